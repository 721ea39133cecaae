package geo

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/girandola/internal/models"
)

// ErrPermissionDenied may be returned by a Locator when the user refuses access.
var ErrPermissionDenied = errors.New("permission denied")

// Locator is the platform's own location facility.
type Locator interface {
	Locate(ctx context.Context, opts Options) (*models.Position, error)
}

// AmbientProvider reads positions from the platform Locator.
type AmbientProvider struct {
	locator Locator
}

func NewAmbientProvider(locator Locator) *AmbientProvider {
	return &AmbientProvider{locator: locator}
}

func (p *AmbientProvider) CurrentPosition(ctx context.Context, opts Options) (*models.Position, error) {
	if p.locator == nil {
		return nil, &UnavailableError{Reason: Unsupported}
	}
	return acquire(ctx, opts, func(ctx context.Context) (*models.Position, error) {
		pos, err := p.locator.Locate(ctx, opts)
		if errors.Is(err, ErrPermissionDenied) {
			return nil, &UnavailableError{Reason: PermissionDenied, Err: err}
		}
		return pos, err
	})
}

// StaticLocator always reports the same reading, stamped at call time.
type StaticLocator struct {
	Lat, Lng, Accuracy float64
	Altitude           *float64
	now                func() time.Time
}

func NewStaticLocator(lat, lng, accuracy float64) *StaticLocator {
	return &StaticLocator{Lat: lat, Lng: lng, Accuracy: accuracy, now: time.Now}
}

func (l *StaticLocator) Locate(ctx context.Context, opts Options) (*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	return &models.Position{
		Lat:       l.Lat,
		Lng:       l.Lng,
		Accuracy:  l.Accuracy,
		Altitude:  l.Altitude,
		Timestamp: now().UTC(),
	}, nil
}
