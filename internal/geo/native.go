package geo

import (
	"context"
	"log/slog"

	"github.com/mmynk/girandola/internal/models"
)

// PermissionState mirrors the plugin's location permission.
type PermissionState string

const (
	StateGranted PermissionState = "granted"
	StateDenied  PermissionState = "denied"
	StatePrompt  PermissionState = "prompt"
)

// NativePlugin is the location plugin exposed by the app shell.
type NativePlugin interface {
	CheckPermissions(ctx context.Context) (PermissionState, error)
	RequestPermissions(ctx context.Context) (PermissionState, error)
	CurrentPosition(ctx context.Context, opts Options) (*models.Position, error)
}

// NativeProvider reads positions through a NativePlugin, asking for
// permission first when it has not been granted.
type NativeProvider struct {
	plugin NativePlugin
}

func NewNativeProvider(plugin NativePlugin) *NativeProvider {
	return &NativeProvider{plugin: plugin}
}

func (p *NativeProvider) CurrentPosition(ctx context.Context, opts Options) (*models.Position, error) {
	return acquire(ctx, opts, func(ctx context.Context) (*models.Position, error) {
		state, err := p.plugin.CheckPermissions(ctx)
		if err != nil {
			return nil, err
		}
		if state != StateGranted {
			slog.Debug("Requesting location permission", "state", state)
			state, err = p.plugin.RequestPermissions(ctx)
			if err != nil {
				return nil, err
			}
		}
		if state != StateGranted {
			return nil, &UnavailableError{Reason: PermissionDenied}
		}
		return p.plugin.CurrentPosition(ctx, opts)
	})
}
