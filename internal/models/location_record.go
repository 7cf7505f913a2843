package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LocationRecord is one persisted location sample. Values are immutable once
// created; the store replaces a record as a whole on update.
type LocationRecord struct {
	ID          uuid.UUID `json:"id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Timestamp   time.Time `json:"timestamp"`   // millisecond precision
	Altitude    float64   `json:"altitude"`    // ellipsoidal, meters
	MSLAltitude float64   `json:"mslAltitude"` // mean sea level, meters
	Accuracy    float32   `json:"accuracy"`    // confidence radius, meters
	Speed       float32   `json:"speed"`       // meters/second

	// Foreground is true if the sample was captured while the app was active
	Foreground bool `json:"foreground"`
	// Precision is true if the sample was captured under the fine location grant
	Precision bool `json:"precision"`
}

// NewLocationRecord creates a record with a fresh ID. The timestamp is
// truncated to the millisecond, the resolution the store keeps.
func NewLocationRecord(lat, lon float64, ts time.Time) LocationRecord {
	return LocationRecord{
		ID:        uuid.New(),
		Latitude:  lat,
		Longitude: lon,
		Timestamp: ts.Truncate(time.Millisecond),
	}
}

// TimestampMillis returns the sample time as unix milliseconds
func (r LocationRecord) TimestampMillis() int64 {
	return r.Timestamp.UnixMilli()
}

func (r LocationRecord) String() string {
	appState := "in BG"
	if r.Foreground {
		appState = "in app"
	}
	return fmt.Sprintf("%v, %v %s on %s", r.Latitude, r.Longitude, appState,
		r.Timestamp.UTC().Format(time.RFC3339Nano))
}

// Sample is a raw location event as delivered by a location provider
type Sample struct {
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Time        time.Time `json:"time" binding:"required"`
	Altitude    float64   `json:"altitude"`
	MSLAltitude float64   `json:"mslAltitude"`
	Accuracy    float32   `json:"accuracy"`
	Speed       float32   `json:"speed"`
}

// LocationRecordsResponse is the list payload returned to the view layer
type LocationRecordsResponse struct {
	Data  []LocationRecord `json:"data"`
	Count int              `json:"count"`
	Limit int              `json:"limit"`
}
