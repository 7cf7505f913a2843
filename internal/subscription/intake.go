package subscription

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lightquark/maptracker/internal/models"
	"github.com/lightquark/maptracker/internal/permission"
	"github.com/lightquark/maptracker/internal/spatial"
)

// RecordSink receives the records converted from delivered samples
type RecordSink interface {
	RecordIncoming(ctx context.Context, records []models.LocationRecord) error
}

// ForegroundSource reports whether the consuming application is active
type ForegroundSource interface {
	Foreground() bool
}

// ForegroundFunc adapts a function to ForegroundSource
type ForegroundFunc func() bool

// Foreground implements ForegroundSource
func (f ForegroundFunc) Foreground() bool { return f() }

// IntakeConfig configures an Intake.
type IntakeConfig struct {
	Address    string
	Oracle     permission.Oracle
	Foreground ForegroundSource
	Sink       RecordSink
	Logger     *slog.Logger
	Metrics    *Metrics
}

// Intake is the delivery target the provider pushes samples to. Each sample
// becomes a LocationRecord and the batch is forwarded to the sink.
type Intake struct {
	address    string
	oracle     permission.Oracle
	foreground ForegroundSource
	sink       RecordSink
	logger     *slog.Logger
	metrics    *Metrics
}

// NewIntake creates a delivery target
func NewIntake(cfg IntakeConfig) (*Intake, error) {
	if cfg.Address == "" {
		return nil, errors.New("intake: address is required")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("intake: permission oracle is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("intake: record sink is required")
	}
	if cfg.Foreground == nil {
		cfg.Foreground = ForegroundFunc(func() bool { return false })
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Intake{
		address:    cfg.Address,
		oracle:     cfg.Oracle,
		foreground: cfg.Foreground,
		sink:       cfg.Sink,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// Address implements DeliveryTarget
func (in *Intake) Address() string {
	return in.address
}

// Deliver implements DeliveryTarget. Samples with invalid coordinates are
// dropped; the rest are stored as one batch.
func (in *Intake) Deliver(ctx context.Context, samples []models.Sample) error {
	records := in.Convert(samples)
	in.metrics.addSamples(len(samples), len(samples)-len(records))
	if len(records) == 0 {
		return nil
	}

	in.logger.Debug("received location samples", "count", len(records), "target", in.address)
	return in.sink.RecordIncoming(ctx, records)
}

// Convert turns samples into records. Foreground and Precision are taken
// from the application and permission state at the time of conversion.
func (in *Intake) Convert(samples []models.Sample) []models.LocationRecord {
	foreground := in.foreground.Foreground()
	precision := in.oracle.HasCapability(permission.FineLocation)

	records := make([]models.LocationRecord, 0, len(samples))
	for _, sample := range samples {
		if !spatial.ValidCoordinate(sample.Latitude, sample.Longitude) {
			in.logger.Warn("dropping sample with invalid coordinates",
				"latitude", sample.Latitude, "longitude", sample.Longitude)
			continue
		}

		rec := models.NewLocationRecord(sample.Latitude, sample.Longitude, sample.Time)
		rec.Altitude = sample.Altitude
		rec.MSLAltitude = sample.MSLAltitude
		rec.Accuracy = sample.Accuracy
		rec.Speed = sample.Speed
		rec.Foreground = foreground
		rec.Precision = precision
		records = append(records, rec)
	}
	return records
}
