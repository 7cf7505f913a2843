package spatial

import (
	"math"
	"testing"
)

func TestValidCoordinate(t *testing.T) {
	tests := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, true},
		{89.99, 179.99, true},
		{-89.99, -179.99, true},
		{90.01, 0, false},
		{0, -180.01, false},
		{math.NaN(), 0, false},
		{0, math.Inf(1), false},
	}

	for _, tt := range tests {
		if got := ValidCoordinate(tt.lat, tt.lon); got != tt.want {
			t.Errorf("ValidCoordinate(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
		}
	}
}

func TestHaversineDistance(t *testing.T) {
	// one degree of latitude is about 111.2 km
	d := HaversineDistance(0, 0, 1, 0)
	if math.Abs(d-111195) > 100 {
		t.Errorf("HaversineDistance = %v, want ~111195", d)
	}

	if d := HaversineDistance(59.4, 24.7, 59.4, 24.7); d != 0 {
		t.Errorf("distance to self = %v", d)
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"north", 0, 0, 1, 0, 0},
		{"east", 0, 0, 0, 1, 90},
		{"south", 1, 0, 0, 0, 180},
		{"west", 0, 1, 0, 0, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Bearing(tt.lat1, tt.lon1, tt.lat2, tt.lon2); math.Abs(got-tt.want) > 0.01 {
				t.Errorf("Bearing = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDestinationPoint(t *testing.T) {
	lat, lon := DestinationPoint(59.4, 24.7, 45, 1000)
	if d := HaversineDistance(59.4, 24.7, lat, lon); math.Abs(d-1000) > 1 {
		t.Errorf("destination %v m away, want 1000", d)
	}
	if b := Bearing(59.4, 24.7, lat, lon); math.Abs(b-45) > 0.1 {
		t.Errorf("bearing to destination = %v, want 45", b)
	}

	// crossing the antimeridian wraps longitude
	_, lon = DestinationPoint(0, 179.999, 90, 1000)
	if lon > 180 || lon < -180 {
		t.Errorf("longitude not normalized: %v", lon)
	}
}
