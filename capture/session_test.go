package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"road-inspection/inference"
	"road-inspection/models"
	"road-inspection/store"
)

type fakeRecorder struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	started  int
	paused   int
	resumed  int
	stopped  int
}

func (r *fakeRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.started++
	return nil
}

func (r *fakeRecorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused++
	return nil
}

func (r *fakeRecorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumed++
	return nil
}

func (r *fakeRecorder) Stop() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
	return []byte("webm"), r.stopErr
}

type fakeBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *fakeBlobs) Get(key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *fakeBlobs) Put(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		b.data = make(map[string][]byte)
	}
	b.data[key] = value
	return nil
}

// offlineClient points at a port nothing listens on, so inference calls
// fail fast and sessions produce no detections.
func offlineClient() *inference.Client {
	return inference.NewClient("http://127.0.0.1:1", nil)
}

func newTestSession(rec *fakeRecorder, cfg Config) *Session {
	st := store.NewDetectionStore(&fakeBlobs{})
	return NewSession(rec, &fakeProvider{}, &fakeSource{}, offlineClient(), st, cfg, nil)
}

func TestSessionLifecycleTransitions(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	s := newTestSession(rec, Config{GPSInterval: time.Hour, FrameInterval: time.Hour})

	if s.State() != StateIdle {
		t.Fatalf("new session state = %s, want idle", s.State())
	}
	if s.VideoID() != "" {
		t.Errorf("idle session has video id %q", s.VideoID())
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != StateRecording {
		t.Fatalf("state after Start = %s", s.State())
	}
	if s.VideoID() == "" {
		t.Error("no video id allocated at Start")
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if s.State() != StatePaused {
		t.Fatalf("state after Pause = %s", s.State())
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if s.State() != StateRecording {
		t.Fatalf("state after Resume = %s", s.State())
	}

	result, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.State() != StateStopped {
		t.Fatalf("state after Stop = %s", s.State())
	}
	if result.VideoID != s.VideoID() {
		t.Errorf("result video id %q != session id %q", result.VideoID, s.VideoID())
	}
	if string(result.Blob) != "webm" {
		t.Errorf("result blob = %q", result.Blob)
	}
	if rec.started != 1 || rec.paused != 1 || rec.resumed != 1 || rec.stopped != 1 {
		t.Errorf("recorder calls = %+v", rec)
	}
}

func TestSessionRejectsInvalidTransitions(t *testing.T) {
	t.Parallel()

	s := newTestSession(&fakeRecorder{}, Config{GPSInterval: time.Hour, FrameInterval: time.Hour})

	if err := s.Pause(); err == nil {
		t.Error("Pause on idle session succeeded")
	}
	if err := s.Resume(); err == nil {
		t.Error("Resume on idle session succeeded")
	}
	if _, err := s.Stop(); err == nil {
		t.Error("Stop on idle session succeeded")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start succeeded")
	}
	if err := s.Resume(); err == nil {
		t.Error("Resume while recording succeeded")
	}

	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("Start on stopped session succeeded")
	}
	if _, err := s.Stop(); err == nil {
		t.Error("second Stop succeeded")
	}
}

func TestSessionStartFailureLeavesIdle(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{startErr: errors.New("camera permission denied")}
	s := newTestSession(rec, Config{GPSInterval: time.Hour, FrameInterval: time.Hour})

	if err := s.Start(); err == nil {
		t.Fatal("Start succeeded with a failing recorder")
	}
	if s.State() != StateIdle {
		t.Fatalf("state after failed Start = %s, want idle", s.State())
	}
	if s.VideoID() != "" {
		t.Errorf("failed Start left video id %q", s.VideoID())
	}

	// The same session can retry once the recorder recovers.
	rec.mu.Lock()
	rec.startErr = nil
	rec.mu.Unlock()
	if err := s.Start(); err != nil {
		t.Fatalf("retry Start: %v", err)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSessionPauseKeepsSamplersRunning(t *testing.T) {
	t.Parallel()

	s := newTestSession(&fakeRecorder{}, Config{GPSInterval: 10 * time.Millisecond, FrameInterval: time.Hour})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return len(s.gps.Points()) >= 2 }, "gps points while recording")

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	before := len(s.gps.Points())
	waitFor(t, func() bool { return len(s.gps.Points()) > before }, "gps points while paused")

	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSessionStopReturnsResultOnRecorderError(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{stopErr: errors.New("muxer crashed")}
	s := newTestSession(rec, Config{GPSInterval: time.Hour, FrameInterval: time.Hour})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := s.Stop()
	if err == nil {
		t.Fatal("Stop swallowed recorder error")
	}
	if result.VideoID == "" {
		t.Error("result missing video id despite recorder error")
	}
	if s.State() != StateStopped {
		t.Errorf("state after failed Stop = %s, want stopped", s.State())
	}
}

func TestSessionDiscardsLateDetectionsByDefault(t *testing.T) {
	t.Parallel()

	blobs := &fakeBlobs{}
	st := store.NewDetectionStore(blobs)
	s := NewSession(&fakeRecorder{}, &fakeProvider{}, &fakeSource{}, offlineClient(), st, Config{GPSInterval: time.Hour, FrameInterval: time.Hour}, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	videoID := s.VideoID()

	live := []models.Detection{{ID: "d1", VideoID: videoID, ClassLabel: models.ClassPothole, SeverityScore: models.SeverityHigh}}
	s.appendDetections(live)
	if got := s.DetectionCount(); got != 1 {
		t.Fatalf("live detection count = %d", got)
	}

	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	late := []models.Detection{{ID: "d2", VideoID: videoID, ClassLabel: models.ClassCrack, SeverityScore: models.SeverityLow}}
	s.appendDetections(late)

	if got := s.DetectionCount(); got != 1 {
		t.Errorf("late detection was appended, count = %d", got)
	}
	if got := len(st.GetDetectionsByVideo(videoID)); got != 1 {
		t.Errorf("late detection reached the store, count = %d", got)
	}
}

func TestSessionAcceptsLateDetectionsWhenConfigured(t *testing.T) {
	t.Parallel()

	st := store.NewDetectionStore(&fakeBlobs{})
	cfg := Config{GPSInterval: time.Hour, FrameInterval: time.Hour, AcceptLateResults: true}
	s := NewSession(&fakeRecorder{}, &fakeProvider{}, &fakeSource{}, offlineClient(), st, cfg, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	videoID := s.VideoID()
	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	late := []models.Detection{{ID: "d1", VideoID: videoID, ClassLabel: models.ClassPothole, SeverityScore: models.SeverityMedium}}
	s.appendDetections(late)

	if got := s.DetectionCount(); got != 1 {
		t.Errorf("late detection dropped despite AcceptLateResults, count = %d", got)
	}
	if got := len(st.GetDetectionsByVideo(videoID)); got != 1 {
		t.Errorf("store missed late detection, count = %d", got)
	}
}

func TestSessionResultCollectsBuffers(t *testing.T) {
	t.Parallel()

	s := newTestSession(&fakeRecorder{}, Config{GPSInterval: 10 * time.Millisecond, FrameInterval: time.Hour})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return len(s.gps.Points()) >= 3 }, "gps points")

	result, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(result.GPSPoints) < 3 {
		t.Errorf("result gps points = %d, want >= 3", len(result.GPSPoints))
	}
	for _, p := range result.GPSPoints {
		if p.VideoID != result.VideoID {
			t.Errorf("gps point %s tagged %q, want %q", p.ID, p.VideoID, result.VideoID)
		}
	}
	if result.Detections == nil {
		t.Error("result detections should be an empty slice, not nil")
	}
}
