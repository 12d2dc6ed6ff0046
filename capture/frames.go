package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"road-inspection/inference"
	"road-inspection/metrics"
	"road-inspection/models"
	"road-inspection/utils"

	"github.com/mdobak/go-xerrors"
)

// FrameSampler periodically snapshots the video source, pairs each frame
// with the most recent GPS fix and hands it to the inference client.
// Ticks are independent: a slow inference call for one tick never blocks
// the next from firing, and there is no queuing or backpressure.
type FrameSampler struct {
	mu         sync.Mutex
	source     FrameSource
	infer      *inference.Client
	gps        *GPSSampler
	videoID    string
	sink       func([]models.Detection)
	frameIndex int
	cancel     context.CancelFunc
	metrics    *metrics.Metrics
}

// NewFrameSampler creates a sampler for one session. sink receives the
// materialized detections of each frame that produced any; it may be
// called out of frame order when inference latency varies.
func NewFrameSampler(source FrameSource, infer *inference.Client, gps *GPSSampler, videoID string, sink func([]models.Detection), m *metrics.Metrics) *FrameSampler {
	return &FrameSampler{
		source:  source,
		infer:   infer,
		gps:     gps,
		videoID: videoID,
		sink:    sink,
		metrics: m,
	}
}

// Start begins periodic capture. No-op if already running.
func (s *FrameSampler) Start(interval time.Duration) {
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
				s.sample()
			}
		}
	}()
}

// Stop cancels future ticks. In-flight inference calls are not cancelled
// and may still deliver to the sink afterwards.
func (s *FrameSampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// FrameCount returns how many ticks have fired so far.
func (s *FrameSampler) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameIndex
}

// sample runs one tick: consume a frame index, snapshot the source and
// submit the frame asynchronously. The index advances once per tick no
// matter what happens afterwards, so every processed frame keeps a
// stable ordinal even when other ticks fail.
func (s *FrameSampler) sample() {
	s.mu.Lock()
	index := s.frameIndex
	s.frameIndex++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.FramesSampled.Add(1)
	}

	frame, err := s.source.Capture()
	if err != nil {
		if s.metrics != nil {
			s.metrics.FrameErrors.Add(1)
		}
		utils.GetLogger().WarnContext(context.Background(), "frame capture failed",
			slog.String("videoId", s.videoID),
			slog.Int("frameIndex", index),
			slog.Any("error", xerrors.New(err)))
		return
	}

	var fix *inference.GPSFix
	if latest := s.gps.Latest(); latest != nil {
		fix = &inference.GPSFix{Latitude: latest.Latitude, Longitude: latest.Longitude}
	}
	timestamp := time.Now()

	go func() {
		results := s.infer.SubmitFrame(context.Background(), frame, fix)
		if len(results) == 0 {
			return
		}
		detections := s.infer.Materialize(results, s.videoID, index, timestamp, fix)
		if s.sink != nil {
			s.sink(detections)
		}
	}()
}
