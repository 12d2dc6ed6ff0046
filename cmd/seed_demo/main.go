// seed_demo populates the durability layer with a demo inspection so
// the dashboard and report endpoints have something to show.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"road-inspection/db"
	"road-inspection/models"
	"road-inspection/store"

	"github.com/joho/godotenv"
)

func main() {
	userID := flag.String("user", "demo-inspector", "user id to own the demo video")
	flag.Parse()
	_ = godotenv.Load()

	blobs, err := db.NewBlobStore()
	if err != nil {
		log.Fatalf("failed to open durability layer: %v", err)
	}
	defer blobs.Close()

	st := store.NewDetectionStore(blobs)
	st.Load()

	videoID := "video-demo-1"
	now := time.Now()

	seeds := []struct {
		class    models.DetectionClass
		severity models.SeverityLevel
		conf     float64
		lat, lng float64
	}{
		{models.ClassPothole, models.SeverityCritical, 0.94, 40.7132, -74.0061},
		{models.ClassPothole, models.SeverityHigh, 0.81, 40.7128, -74.0060},
		{models.ClassCrack, models.SeverityMedium, 0.63, 40.7125, -74.0057},
		{models.ClassCrack, models.SeverityLow, 0.42, 40.7121, -74.0052},
		{models.ClassOther, models.SeverityLow, 0.38, 40.7119, -74.0049},
	}

	for i, s := range seeds {
		st.AddDetection(models.Detection{
			ID:            fmt.Sprintf("det-%s-%d-0", videoID, i),
			VideoID:       videoID,
			FrameIndex:    i,
			Timestamp:     now.Add(time.Duration(i*3) * time.Second),
			BBox:          models.BBox{X: 100 + float64(i*40), Y: 200, Width: 120, Height: 80},
			ClassLabel:    s.class,
			Confidence:    s.conf,
			SeverityScore: s.severity,
			Latitude:      s.lat,
			Longitude:     s.lng,
			Notes:         fmt.Sprintf("Detection confidence: %.1f%%", s.conf*100),
			CreatedAt:     now,
		})
	}

	totalFrames := len(seeds)
	st.CreateVideo(models.Video{
		ID:               videoID,
		UserID:           *userID,
		OriginalFilename: "demo-inspection.webm",
		UploadedAt:       now,
		StartTime:        now.Add(-time.Duration(totalFrames*3) * time.Second),
		EndTime:          now,
		ProcessingStatus: models.StatusPending,
		TotalFrames:      &totalFrames,
	})
	st.UpdateVideoStatus(videoID, models.StatusProcessing)
	st.UpdateVideoStatus(videoID, models.StatusCompleted)
	st.Save()

	log.Printf("seeded %d detections for %s (user %s)", len(seeds), videoID, *userID)
}
