package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"road-inspection/inference"
	"road-inspection/models"
)

// fakeProvider returns scripted positions; a nil entry means a failed
// acquisition for that call.
type fakeProvider struct {
	mu    sync.Mutex
	calls int
	fail  func(call int) bool
	lat   float64
}

func (p *fakeProvider) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := p.calls
	p.calls++
	if p.fail != nil && p.fail(call) {
		return Position{}, errors.New("position unavailable")
	}
	p.lat += 0.001
	return Position{Latitude: p.lat, Longitude: -73.0, Timestamp: time.Now()}, nil
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	fail  func(call int) bool
}

func (s *fakeSource) Capture() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.calls
	s.calls++
	if s.fail != nil && s.fail(call) {
		return nil, errors.New("capture glitch")
	}
	return image.NewRGBA(image.Rect(0, 0, 16, 16)), nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestGPSSamplerAppendsInAcquisitionOrder(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	sampler := NewGPSSampler(provider, "v1", nil)

	for i := 0; i < 5; i++ {
		sampler.sample()
	}

	points := sampler.Points()
	if len(points) != 5 {
		t.Fatalf("expected 5 points, got %d", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i].Latitude <= points[i-1].Latitude {
			t.Errorf("points out of acquisition order at %d: %v then %v", i, points[i-1].Latitude, points[i].Latitude)
		}
	}
	if !sampler.Locked() {
		t.Error("sampler should be locked after a successful fix")
	}
}

func TestGPSSamplerFailureDropsLockButKeepsRetrying(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{fail: func(call int) bool { return call == 1 }}
	sampler := NewGPSSampler(provider, "v1", nil)

	sampler.sample() // ok
	if !sampler.Locked() {
		t.Fatal("expected lock after first fix")
	}

	sampler.sample() // fails
	if sampler.Locked() {
		t.Error("lock should drop on failure")
	}
	if got := len(sampler.Points()); got != 1 {
		t.Errorf("failed acquisition appended a point: %d", got)
	}

	sampler.sample() // recovers
	if !sampler.Locked() {
		t.Error("lock should recover on the next successful tick")
	}
	if got := len(sampler.Points()); got != 2 {
		t.Errorf("expected 2 points after recovery, got %d", got)
	}
}

func TestGPSSamplerStopCancelsTicks(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	sampler := NewGPSSampler(provider, "v1", nil)

	sampler.Start(10 * time.Millisecond)
	waitFor(t, func() bool { return len(sampler.Points()) >= 2 }, "points while running")
	sampler.Stop()

	// Allow in-flight work to land, then verify no new points appear.
	time.Sleep(50 * time.Millisecond)
	count := len(sampler.Points())
	time.Sleep(50 * time.Millisecond)
	if got := len(sampler.Points()); got != count {
		t.Errorf("points grew after Stop: %d -> %d", count, got)
	}
}

func TestFrameSamplerIndicesAreStrictlyIncreasing(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		// Fail the 3rd and 5th submissions (ticks 2 and 4).
		if n == 3 || n == 5 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"detections":[{"classLabel":"pothole","confidence":0.9,"bbox":{"x":1,"y":2,"width":3,"height":4},"severityScore":"high"}]}`)
	}))
	defer srv.Close()

	client := inference.NewClient(srv.URL, nil)
	provider := &fakeProvider{}
	gps := NewGPSSampler(provider, "v1", nil)
	gps.sample()

	var sinkMu sync.Mutex
	var collected []models.Detection
	sink := func(ds []models.Detection) {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		collected = append(collected, ds...)
	}

	sampler := NewFrameSampler(&fakeSource{}, client, gps, "v1", sink, nil)

	// Drive ticks sequentially so submission order matches tick order.
	for i := 0; i < 5; i++ {
		sampler.sample()
		want := i + 1
		waitFor(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return requests >= want
		}, fmt.Sprintf("inference request %d", want))
	}

	if got := sampler.FrameCount(); got != 5 {
		t.Errorf("frame count = %d, want 5 (indices advance even on failed ticks)", got)
	}

	waitFor(t, func() bool {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		return len(collected) >= 3
	}, "detections from successful ticks")

	sinkMu.Lock()
	defer sinkMu.Unlock()
	if len(collected) != 3 {
		t.Fatalf("expected detections for 3 ticks, got %d", len(collected))
	}
	wantIndices := map[int]bool{0: true, 1: true, 3: true}
	for _, d := range collected {
		if !wantIndices[d.FrameIndex] {
			t.Errorf("unexpected frame index %d (failures were ticks 2 and 4)", d.FrameIndex)
		}
		if d.Latitude == 0 {
			t.Errorf("detection %s missing gps stamp", d.ID)
		}
	}
}

func TestFrameSamplerCaptureErrorConsumesTick(t *testing.T) {
	t.Parallel()

	client := inference.NewClient("http://127.0.0.1:1", nil)
	provider := &fakeProvider{}
	gps := NewGPSSampler(provider, "v1", nil)

	source := &fakeSource{fail: func(call int) bool { return call == 0 }}
	sampler := NewFrameSampler(source, client, gps, "v1", nil, nil)

	sampler.sample() // capture fails
	sampler.sample() // ok (inference unreachable, still consumes a tick)

	if got := sampler.FrameCount(); got != 2 {
		t.Errorf("frame count = %d, want 2", got)
	}
}
