// Package capture implements the live inspection pipeline: a GPS sampler
// and a frame sampler driven by a session state machine that coordinates
// them with the media recorder and an elapsed-time clock.
package capture

import (
	"context"
	"image"
	"time"
)

// Position is one location fix from the underlying provider.
type Position struct {
	Latitude  float64
	Longitude float64
	Speed     *float64
	Heading   *float64
	Timestamp time.Time
}

// PositionOptions mirror the browser geolocation options the pipeline
// was designed around.
type PositionOptions struct {
	HighAccuracy bool
	MaxCacheAge  time.Duration
	Timeout      time.Duration
}

// DefaultPositionOptions requests high-accuracy fixes no older than one
// second, giving up after five.
func DefaultPositionOptions() PositionOptions {
	return PositionOptions{
		HighAccuracy: true,
		MaxCacheAge:  1 * time.Second,
		Timeout:      5 * time.Second,
	}
}

// LocationProvider acquires the device's current position. Acquisition
// may block up to opts.Timeout; it must honor ctx cancellation.
type LocationProvider interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

// FrameSource snapshots the current frame of the live video source at
// its native resolution.
type FrameSource interface {
	Capture() (image.Image, error)
}

// Recorder abstracts the media recorder. Stop yields the final media
// blob accumulated since Start.
type Recorder interface {
	Start() error
	Pause() error
	Resume() error
	Stop() ([]byte, error)
}
