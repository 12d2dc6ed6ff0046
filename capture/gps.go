package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"road-inspection/metrics"
	"road-inspection/models"
	"road-inspection/utils"
)

// GPSSampler periodically acquires the current position and maintains
// the ordered track log for one session. Acquisition failures are
// non-fatal: the locked flag drops and the next tick retries.
type GPSSampler struct {
	mu       sync.Mutex
	provider LocationProvider
	opts     PositionOptions
	videoID  string
	points   []models.GPSPoint
	locked   bool
	cancel   context.CancelFunc
	metrics  *metrics.Metrics
}

// NewGPSSampler creates a sampler for one session. m may be nil.
func NewGPSSampler(provider LocationProvider, videoID string, m *metrics.Metrics) *GPSSampler {
	return &GPSSampler{
		provider: provider,
		opts:     DefaultPositionOptions(),
		videoID:  videoID,
		metrics:  m,
	}
}

// Start begins periodic acquisition. Calling Start on a running sampler
// is a no-op.
func (s *GPSSampler) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Fire-and-forget: a slow fix must not delay the next tick,
				// and in-flight requests survive Stop.
				go s.sample()
			}
		}
	}()
}

// Stop cancels future ticks. In-flight acquisitions are not cancelled.
func (s *GPSSampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// sample acquires one fix and appends it to the track on success.
func (s *GPSSampler) sample() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()

	pos, err := s.provider.CurrentPosition(ctx, s.opts)
	if err != nil {
		if s.metrics != nil {
			s.metrics.GPSErrors.Add(1)
		}
		s.mu.Lock()
		s.locked = false
		s.mu.Unlock()
		// Transient and silent on purpose: the next tick retries.
		utils.GetLogger().DebugContext(ctx, "gps acquisition failed", slog.String("videoId", s.videoID))
		return
	}

	ts := pos.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	point := models.GPSPoint{
		ID:        utils.GenerateUniqueID(),
		VideoID:   s.videoID,
		Timestamp: ts,
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Speed:     pos.Speed,
		Heading:   pos.Heading,
	}

	s.mu.Lock()
	s.points = append(s.points, point)
	s.locked = true
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.GPSFixes.Add(1)
	}
}

// Locked reports whether the most recent acquisition succeeded.
func (s *GPSSampler) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Points returns a copy of the track log in acquisition order.
func (s *GPSSampler) Points() []models.GPSPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.GPSPoint, len(s.points))
	copy(out, s.points)
	return out
}

// Latest returns the most recent fix, or nil before the first success.
func (s *GPSSampler) Latest() *models.GPSPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.points) == 0 {
		return nil
	}
	p := s.points[len(s.points)-1]
	return &p
}
