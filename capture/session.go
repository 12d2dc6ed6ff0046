package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"road-inspection/inference"
	"road-inspection/metrics"
	"road-inspection/models"
	"road-inspection/store"
	"road-inspection/utils"
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Config tunes a capture session.
type Config struct {
	// GPSInterval is the location sampling period.
	GPSInterval time.Duration
	// FrameInterval is the frame sampling period.
	FrameInterval time.Duration
	// AcceptLateResults decides whether inference results that land
	// after Stop are still appended to the buffers and store. The
	// default discards them.
	AcceptLateResults bool
}

// DefaultConfig matches the original pipeline: one GPS fix per second,
// one frame every three seconds, late results discarded.
func DefaultConfig() Config {
	return Config{
		GPSInterval:   1 * time.Second,
		FrameInterval: 3 * time.Second,
	}
}

// Result is emitted when a session stops.
type Result struct {
	VideoID    string
	Blob       []byte
	GPSPoints  []models.GPSPoint
	Detections []models.Detection
	FrameCount int
	Elapsed    time.Duration
}

// Session orchestrates the recorder, GPS sampler, frame sampler and
// elapsed-time clock for one recording episode.
//
// States: idle -> recording -> {paused <-> recording} -> stopped.
// Stopped is terminal; a new episode needs a new Session.
type Session struct {
	mu  sync.Mutex
	cfg Config

	recorder Recorder
	provider LocationProvider
	source   FrameSource
	infer    *inference.Client
	store    *store.DetectionStore
	metrics  *metrics.Metrics

	state      State
	videoID    string
	gps        *GPSSampler
	frames     *FrameSampler
	detections []models.Detection

	elapsedSecs atomic.Int64
	clockPaused atomic.Bool
	clockCancel context.CancelFunc
}

// NewSession creates an idle session. st and m may be nil; when st is
// set, detections are appended to it as they arrive.
func NewSession(recorder Recorder, provider LocationProvider, source FrameSource, infer *inference.Client, st *store.DetectionStore, cfg Config, m *metrics.Metrics) *Session {
	if cfg.GPSInterval <= 0 {
		cfg.GPSInterval = DefaultConfig().GPSInterval
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultConfig().FrameInterval
	}
	return &Session{
		cfg:      cfg,
		recorder: recorder,
		provider: provider,
		source:   source,
		infer:    infer,
		store:    st,
		metrics:  m,
		state:    StateIdle,
	}
}

// Start transitions idle -> recording: allocates the video id, resets
// the live buffers, then starts the recorder, both samplers and the
// one-second elapsed clock. A recorder that refuses to start (camera or
// microphone permission) leaves the session idle with no partial state.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("cannot start session from state %s", s.state)
	}

	videoID := utils.GenerateVideoID()

	if err := s.recorder.Start(); err != nil {
		return fmt.Errorf("failed to start recorder: %w", err)
	}

	s.videoID = videoID
	s.detections = nil
	s.elapsedSecs.Store(0)
	s.clockPaused.Store(false)

	s.gps = NewGPSSampler(s.provider, videoID, s.metrics)
	s.frames = NewFrameSampler(s.source, s.infer, s.gps, videoID, s.appendDetections, s.metrics)

	s.gps.Start(s.cfg.GPSInterval)
	s.frames.Start(s.cfg.FrameInterval)
	s.startClock()

	// Readiness probe runs in the background; an unreachable service
	// only means empty detections, never a blocked start.
	go s.infer.EnsureReady(context.Background())

	s.state = StateRecording
	if s.metrics != nil {
		s.metrics.SessionsStarted.Add(1)
		s.metrics.ActiveSessions.Add(1)
	}

	utils.GetLogger().InfoContext(context.Background(), "capture session started",
		slog.String("videoId", videoID))
	return nil
}

// Pause transitions recording -> paused. Only the recorder and the
// elapsed clock are suspended; the GPS and frame samplers keep running,
// matching the original pipeline's behavior.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return fmt.Errorf("cannot pause session from state %s", s.state)
	}
	if err := s.recorder.Pause(); err != nil {
		return fmt.Errorf("failed to pause recorder: %w", err)
	}
	s.clockPaused.Store(true)
	s.state = StatePaused
	return nil
}

// Resume transitions paused -> recording.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return fmt.Errorf("cannot resume session from state %s", s.state)
	}
	if err := s.recorder.Resume(); err != nil {
		return fmt.Errorf("failed to resume recorder: %w", err)
	}
	s.clockPaused.Store(false)
	s.state = StateRecording
	return nil
}

// Stop transitions recording|paused -> stopped, halts the recorder,
// samplers and clock, and emits the final result. In-flight inference
// calls may complete afterwards; Config.AcceptLateResults decides
// whether their detections are appended or discarded.
func (s *Session) Stop() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording && s.state != StatePaused {
		return Result{}, fmt.Errorf("cannot stop session from state %s", s.state)
	}

	blob, recErr := s.recorder.Stop()

	s.gps.Stop()
	s.frames.Stop()
	if s.clockCancel != nil {
		s.clockCancel()
		s.clockCancel = nil
	}

	s.state = StateStopped
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(^uint64(0))
	}

	detections := make([]models.Detection, len(s.detections))
	copy(detections, s.detections)

	result := Result{
		VideoID:    s.videoID,
		Blob:       blob,
		GPSPoints:  s.gps.Points(),
		Detections: detections,
		FrameCount: s.frames.FrameCount(),
		Elapsed:    time.Duration(s.elapsedSecs.Load()) * time.Second,
	}

	utils.GetLogger().InfoContext(context.Background(), "capture session stopped",
		slog.String("videoId", s.videoID),
		slog.Int("gpsPoints", len(result.GPSPoints)),
		slog.Int("detections", len(result.Detections)),
		slog.Int("frames", result.FrameCount))

	if recErr != nil {
		return result, fmt.Errorf("failed to stop recorder: %w", recErr)
	}
	return result, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// VideoID returns the id allocated at Start, empty while idle.
func (s *Session) VideoID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoID
}

// Elapsed returns recorded time, excluding paused stretches.
func (s *Session) Elapsed() time.Duration {
	return time.Duration(s.elapsedSecs.Load()) * time.Second
}

// DetectionCount returns how many detections the live buffer holds.
func (s *Session) DetectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.detections)
}

// appendDetections is the frame sampler's sink. Detections arriving
// after Stop belong to a session that is no longer live and are dropped
// unless AcceptLateResults is set.
func (s *Session) appendDetections(ds []models.Detection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped && !s.cfg.AcceptLateResults {
		utils.GetLogger().DebugContext(context.Background(), "discarding late detections",
			slog.String("videoId", s.videoID),
			slog.Int("count", len(ds)))
		return
	}

	s.detections = append(s.detections, ds...)
	if s.store != nil {
		s.store.AddDetections(ds)
	}
	if s.metrics != nil {
		s.metrics.DetectionsStored.Add(uint64(len(ds)))
	}
}

// startClock runs the one-second elapsed counter until Stop.
func (s *Session) startClock() {
	ctx, cancel := context.WithCancel(context.Background())
	s.clockCancel = cancel

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !s.clockPaused.Load() {
					s.elapsedSecs.Add(1)
				}
			}
		}
	}()
}
