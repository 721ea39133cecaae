// Package geo acquires a single position fix from whichever location source
// the runtime offers: a native plugin when running inside the app shell, or
// the ambient platform facility otherwise.
package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/girandola/internal/models"
)

// DefaultTimeout bounds a single acquisition when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// ErrLocationUnavailable matches every acquisition failure.
var ErrLocationUnavailable = errors.New("location unavailable")

// Reason classifies why a fix could not be obtained.
type Reason string

const (
	PermissionDenied Reason = "permission_denied"
	Timeout          Reason = "timeout"
	Unsupported      Reason = "unsupported"
	SourceError      Reason = "source_error"
)

// UnavailableError is returned by every Provider on failure.
type UnavailableError struct {
	Reason Reason
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location unavailable (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("location unavailable (%s)", e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool {
	return target == ErrLocationUnavailable
}

// ReasonOf reports the failure reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.Reason, true
	}
	return "", false
}

// Options configure one acquisition.
type Options struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
}

// DefaultOptions asks for a high-accuracy fix within DefaultTimeout.
func DefaultOptions() Options {
	return Options{EnableHighAccuracy: true, Timeout: DefaultTimeout}
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Provider yields one position fix per call. There are no retries.
type Provider interface {
	CurrentPosition(ctx context.Context, opts Options) (*models.Position, error)
}

// Environment describes what the runtime offers.
type Environment struct {
	Native  bool
	Plugin  NativePlugin
	Locator Locator
}

// Select picks the native provider only when the runtime is native and the
// plugin is present; every other combination degrades to the ambient one.
func Select(env Environment) Provider {
	if env.Native && env.Plugin != nil {
		return NewNativeProvider(env.Plugin)
	}
	return NewAmbientProvider(env.Locator)
}

// acquire runs fn under the option timeout and maps failures to UnavailableError.
func acquire(ctx context.Context, opts Options, fn func(context.Context) (*models.Position, error)) (*models.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	type result struct {
		pos *models.Position
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pos, err := fn(ctx)
		ch <- result{pos, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &UnavailableError{Reason: Timeout, Err: ctx.Err()}
		}
		return nil, &UnavailableError{Reason: SourceError, Err: ctx.Err()}
	case r := <-ch:
		if r.err != nil {
			var ue *UnavailableError
			if errors.As(r.err, &ue) {
				return nil, ue
			}
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, &UnavailableError{Reason: Timeout, Err: r.err}
			}
			return nil, &UnavailableError{Reason: SourceError, Err: r.err}
		}
		if r.pos == nil {
			return nil, &UnavailableError{Reason: SourceError, Err: errors.New("empty reading")}
		}
		return r.pos, nil
	}
}
