// Package inference talks to the remote detection service that turns a
// frame image (plus an optional GPS fix) into zero or more raw results.
// The service is a black box; unreachable or failing calls simply yield
// no detections so capture is never interrupted.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"road-inspection/metrics"
	"road-inspection/models"
	"road-inspection/utils"

	"github.com/mdobak/go-xerrors"
)

const jpegQuality = 80

// GPSFix is the location attached to a submitted frame.
type GPSFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Result is one raw detection as returned by the service.
type Result struct {
	ClassLabel    models.DetectionClass `json:"classLabel"`
	Confidence    float64               `json:"confidence"`
	BBox          models.BBox           `json:"bbox"`
	SeverityScore models.SeverityLevel  `json:"severityScore"`
}

type detectRequest struct {
	Image string  `json:"image"`
	GPS   *GPSFix `json:"gps"`
}

type detectResponse struct {
	Detections []json.RawMessage `json:"detections"`
}

// Client communicates with the detection service.
type Client struct {
	serviceURL string
	client     *http.Client
	metrics    *metrics.Metrics
	readyOnce  sync.Once
}

// NewClient creates a detection service client. m may be nil.
func NewClient(serviceURL string, m *metrics.Metrics) *Client {
	if serviceURL == "" {
		serviceURL = "http://localhost:8000"
	}

	return &Client{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		metrics: m,
	}
}

// EnsureReady health-checks the service once. An unreachable service is
// logged and tolerated: the client proceeds as ready and later
// submissions against it simply yield zero detections.
func (c *Client) EnsureReady(ctx context.Context) {
	c.readyOnce.Do(func() {
		logger := utils.GetLogger()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL+"/health", nil)
		if err != nil {
			logger.WarnContext(ctx, "failed to build health request", slog.Any("error", xerrors.New(err)))
			return
		}

		resp, err := c.client.Do(req)
		if err != nil {
			logger.WarnContext(ctx, "detection service not reachable, detections will be empty",
				slog.String("serviceURL", c.serviceURL),
				slog.Any("error", xerrors.New(err)))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			logger.WarnContext(ctx, "detection service unhealthy, detections will be empty",
				slog.String("serviceURL", c.serviceURL),
				slog.Int("status", resp.StatusCode))
			return
		}

		logger.InfoContext(ctx, "detection service is reachable", slog.String("serviceURL", c.serviceURL))
	})
}

// SubmitFrame encodes a frame as a lossy JPEG data URL and submits it.
func (c *Client) SubmitFrame(ctx context.Context, frame image.Image, gps *GPSFix) []Result {
	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		utils.GetLogger().WarnContext(ctx, "failed to encode frame", slog.Any("error", xerrors.New(err)))
		return nil
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	return c.SubmitEncoded(ctx, dataURL, gps)
}

// SubmitEncoded sends an already-encoded image data URL to the service.
// Any network failure or non-200 response is treated as zero detections;
// there is no retry. Entries with out-of-range confidence or values
// outside the closed class/severity enums are dropped, not passed through.
func (c *Client) SubmitEncoded(ctx context.Context, dataURL string, gps *GPSFix) []Result {
	logger := utils.GetLogger()
	started := time.Now()

	if c.metrics != nil {
		c.metrics.InferenceRequests.Add(1)
	}

	payload, err := json.Marshal(detectRequest{Image: dataURL, GPS: gps})
	if err != nil {
		c.fail(ctx, "failed to encode detect payload", err)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+"/detect", bytes.NewReader(payload))
	if err != nil {
		c.fail(ctx, "failed to build detect request", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.fail(ctx, "detect request failed", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if c.metrics != nil {
			c.metrics.InferenceFailures.Add(1)
		}
		logger.WarnContext(ctx, "detection service returned non-OK status",
			slog.Int("status", resp.StatusCode))
		return nil
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		c.fail(ctx, "failed to decode detect response", err)
		return nil
	}

	if c.metrics != nil {
		c.metrics.InferenceLatencyMs.Store(uint64(time.Since(started).Milliseconds()))
	}

	results := make([]Result, 0, len(decoded.Detections))
	for i, raw := range decoded.Detections {
		var r Result
		if err := json.Unmarshal(raw, &r); err != nil {
			logger.WarnContext(ctx, "dropping invalid detection result",
				slog.Int("index", i), slog.Any("error", xerrors.New(err)))
			continue
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			logger.WarnContext(ctx, "dropping detection with out-of-range confidence",
				slog.Int("index", i), slog.Float64("confidence", r.Confidence))
			continue
		}
		results = append(results, r)
	}
	return results
}

func (c *Client) fail(ctx context.Context, msg string, err error) {
	if c.metrics != nil {
		c.metrics.InferenceFailures.Add(1)
	}
	utils.GetLogger().WarnContext(ctx, msg, slog.Any("error", xerrors.New(err)))
}

// Materialize turns raw results into persistable detections. The mapping
// is pure: ids derive from (videoID, frameIndex, index), coordinates come
// from the supplied fix (0,0 when absent) and only CreatedAt is wall-clock.
func (c *Client) Materialize(results []Result, videoID string, frameIndex int, timestamp time.Time, gps *GPSFix) []models.Detection {
	detections := make([]models.Detection, 0, len(results))
	for i, r := range results {
		var lat, lng float64
		if gps != nil {
			lat = gps.Latitude
			lng = gps.Longitude
		}
		detections = append(detections, models.Detection{
			ID:            fmt.Sprintf("det-%s-%d-%d", videoID, frameIndex, i),
			VideoID:       videoID,
			FrameIndex:    frameIndex,
			Timestamp:     timestamp,
			BBox:          r.BBox,
			ClassLabel:    r.ClassLabel,
			Confidence:    r.Confidence,
			SeverityScore: r.SeverityScore,
			Latitude:      lat,
			Longitude:     lng,
			Notes:         fmt.Sprintf("Detection confidence: %.1f%%", r.Confidence*100),
			CreatedAt:     time.Now(),
		})
	}
	return detections
}
