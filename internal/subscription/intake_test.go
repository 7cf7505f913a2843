package subscription

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/lightquark/maptracker/internal/models"
	"github.com/lightquark/maptracker/internal/permission"
)

type captureSink struct {
	batches [][]models.LocationRecord
	err     error
}

func (s *captureSink) RecordIncoming(_ context.Context, records []models.LocationRecord) error {
	s.batches = append(s.batches, records)
	return s.err
}

func newTestIntake(t *testing.T, oracle permission.Oracle, foreground bool, sink RecordSink) *Intake {
	t.Helper()
	in, err := NewIntake(IntakeConfig{
		Address:    "intake",
		Oracle:     oracle,
		Foreground: ForegroundFunc(func() bool { return foreground }),
		Sink:       sink,
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("NewIntake: %v", err)
	}
	return in
}

func TestIntake_Convert(t *testing.T) {
	in := newTestIntake(t, allGranted(), true, &captureSink{})

	ts := time.Date(2024, 6, 1, 10, 0, 0, 987654321, time.UTC)
	records := in.Convert([]models.Sample{{
		Latitude:    59.39975,
		Longitude:   24.659275,
		Time:        ts,
		Altitude:    45,
		MSLAltitude: 22,
		Accuracy:    3.5,
		Speed:       1.5,
	}})

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Latitude != 59.39975 || rec.Longitude != 24.659275 {
		t.Errorf("coordinates = %v, %v", rec.Latitude, rec.Longitude)
	}
	if !rec.Timestamp.Equal(ts.Truncate(time.Millisecond)) {
		t.Errorf("expected millisecond timestamp, got %v", rec.Timestamp)
	}
	if rec.Altitude != 45 || rec.MSLAltitude != 22 || rec.Accuracy != 3.5 || rec.Speed != 1.5 {
		t.Errorf("measurements not copied: %+v", rec)
	}
	if !rec.Foreground || !rec.Precision {
		t.Errorf("expected foreground and precise, got %+v", rec)
	}
}

func TestIntake_CoarseBackground(t *testing.T) {
	grants := allGranted()
	grants.Revoke(permission.FineLocation)
	in := newTestIntake(t, grants, false, &captureSink{})

	records := in.Convert([]models.Sample{{Latitude: 1, Longitude: 2, Time: time.Now()}})
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Foreground || records[0].Precision {
		t.Errorf("expected background, imprecise record, got %+v", records[0])
	}
}

func TestIntake_DropsInvalidCoordinates(t *testing.T) {
	in := newTestIntake(t, allGranted(), false, &captureSink{})

	records := in.Convert([]models.Sample{
		{Latitude: 91, Longitude: 0, Time: time.Now()},
		{Latitude: 0, Longitude: 181, Time: time.Now()},
		{Latitude: math.NaN(), Longitude: 0, Time: time.Now()},
		{Latitude: -33.9, Longitude: 151.2, Time: time.Now()},
	})
	if len(records) != 1 {
		t.Fatalf("expected 1 valid record, got %d", len(records))
	}
	if records[0].Latitude != -33.9 {
		t.Errorf("kept the wrong record: %+v", records[0])
	}
}

func TestIntake_DeliverForwardsBatch(t *testing.T) {
	sink := &captureSink{}
	in := newTestIntake(t, allGranted(), false, sink)

	samples := []models.Sample{
		{Latitude: 1, Longitude: 1, Time: time.Now()},
		{Latitude: 2, Longitude: 2, Time: time.Now()},
	}
	if err := in.Deliver(context.Background(), samples); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(sink.batches) != 1 || len(sink.batches[0]) != 2 {
		t.Fatalf("expected one batch of 2, got %v", sink.batches)
	}

	// nothing valid, nothing forwarded
	if err := in.Deliver(context.Background(), []models.Sample{{Latitude: 100, Time: time.Now()}}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(sink.batches) != 1 {
		t.Errorf("expected no extra batch, got %d", len(sink.batches))
	}

	sink.err = errors.New("sink closed")
	if err := in.Deliver(context.Background(), samples); err == nil {
		t.Error("expected sink error to propagate")
	}
}

func TestIntake_Validation(t *testing.T) {
	if _, err := NewIntake(IntakeConfig{Oracle: allGranted(), Sink: &captureSink{}}); err == nil {
		t.Error("expected error without address")
	}
	if _, err := NewIntake(IntakeConfig{Address: "a", Sink: &captureSink{}}); err == nil {
		t.Error("expected error without oracle")
	}
	if _, err := NewIntake(IntakeConfig{Address: "a", Oracle: allGranted()}); err == nil {
		t.Error("expected error without sink")
	}
}
