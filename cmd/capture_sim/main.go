// capture_sim drives a full capture session against a running detection
// service using synthetic camera frames and a synthetic GPS track, then
// prints the session result. Useful for exercising the pipeline without
// a browser client.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"math/rand"
	"time"

	"road-inspection/capture"
	"road-inspection/db"
	"road-inspection/inference"
	"road-inspection/metrics"
	"road-inspection/store"
	"road-inspection/utils"

	"github.com/joho/godotenv"
)

// syntheticCamera renders a flat gray frame with a moving dark square,
// enough to give the encoder and the detection service real pixels.
type syntheticCamera struct {
	width, height int
	tick          int
}

func (c *syntheticCamera) Capture() (image.Image, error) {
	c.tick++
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			img.Set(x, y, color.Gray{Y: 110})
		}
	}
	offset := (c.tick * 17) % (c.width - 60)
	for y := c.height/2 - 20; y < c.height/2+20; y++ {
		for x := offset; x < offset+60; x++ {
			img.Set(x, y, color.Gray{Y: 30})
		}
	}
	return img, nil
}

// syntheticGPS walks north-east from a fixed origin with light jitter.
type syntheticGPS struct {
	lat, lng float64
}

func (g *syntheticGPS) CurrentPosition(ctx context.Context, opts capture.PositionOptions) (capture.Position, error) {
	g.lat += 0.00005 + rand.Float64()*0.00002
	g.lng += 0.00005 + rand.Float64()*0.00002
	return capture.Position{Latitude: g.lat, Longitude: g.lng, Timestamp: time.Now()}, nil
}

// nullRecorder satisfies the recorder interface without producing media.
type nullRecorder struct{}

func (nullRecorder) Start() error          { return nil }
func (nullRecorder) Pause() error          { return nil }
func (nullRecorder) Resume() error         { return nil }
func (nullRecorder) Stop() ([]byte, error) { return nil, nil }

func main() {
	duration := flag.Duration("duration", 15*time.Second, "how long to record")
	frameInterval := flag.Duration("frame-interval", 3*time.Second, "frame sampling period")
	flag.Parse()
	_ = godotenv.Load()

	blobs, err := db.NewBlobStore()
	if err != nil {
		log.Fatalf("failed to open durability layer: %v", err)
	}
	defer blobs.Close()

	st := store.NewDetectionStore(blobs)
	st.Load()

	m := metrics.New()
	serviceURL := utils.GetEnv("DETECTION_SERVICE_URL", "http://localhost:8000")
	infer := inference.NewClient(serviceURL, m)

	cfg := capture.DefaultConfig()
	cfg.FrameInterval = *frameInterval

	session := capture.NewSession(
		nullRecorder{},
		&syntheticGPS{lat: 40.7128, lng: -74.0060},
		&syntheticCamera{width: 640, height: 480},
		infer,
		st,
		cfg,
		m,
	)

	if err := session.Start(); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	log.Printf("recording session %s for %s", session.VideoID(), *duration)
	time.Sleep(*duration)

	result, err := session.Stop()
	if err != nil {
		log.Fatalf("failed to stop session: %v", err)
	}
	st.Save()

	fmt.Printf("session %s: %d frames, %d gps points, %d detections, %s recorded\n",
		result.VideoID, result.FrameCount, len(result.GPSPoints), len(result.Detections), result.Elapsed)
}
