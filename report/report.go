// Package report derives inspection reports from a video's stored
// detection set. Reports are never persisted; they are recomputed on
// each request.
package report

import (
	"fmt"
	"time"

	"road-inspection/models"
	"road-inspection/store"
)

const (
	defaultInspectorName = "Road Inspector"
	defaultOrganization  = "Inspection System"
)

// Generator aggregates detections into report summaries.
type Generator struct {
	store *store.DetectionStore
}

func NewGenerator(st *store.DetectionStore) *Generator {
	return &Generator{store: st}
}

// Summarize reduces a video's detections into severity and class
// histograms plus the bounding geographic extent, in a single pass.
// Returns nil when the video is unknown or has no detections. The
// result is deterministic and order-independent for a given set.
//
// RouteStart holds the min corner and RouteEnd the max corner of the
// bounding extent; despite the names these are not path endpoints.
func (g *Generator) Summarize(videoID string) *models.Report {
	video := g.store.GetVideo(videoID)
	if video == nil {
		return nil
	}

	detections := g.store.GetDetectionsByVideo(videoID)
	if len(detections) == 0 {
		return nil
	}

	bySeverity := map[models.SeverityLevel]int{
		models.SeverityLow:      0,
		models.SeverityMedium:   0,
		models.SeverityHigh:     0,
		models.SeverityCritical: 0,
	}
	byClass := map[models.DetectionClass]int{
		models.ClassPothole: 0,
		models.ClassCrack:   0,
		models.ClassOther:   0,
	}

	minLat, maxLat := 90.0, -90.0
	minLng, maxLng := 180.0, -180.0

	for _, det := range detections {
		bySeverity[det.SeverityScore]++
		byClass[det.ClassLabel]++
		minLat = min(minLat, det.Latitude)
		maxLat = max(maxLat, det.Latitude)
		minLng = min(minLng, det.Longitude)
		maxLng = max(maxLng, det.Longitude)
	}

	return &models.Report{
		ID:            fmt.Sprintf("report-%s", videoID),
		VideoID:       videoID,
		UserID:        video.UserID,
		InspectorName: defaultInspectorName,
		Organization:  defaultOrganization,
		CreatedAt:     time.Now(),
		Summary: models.ReportSummary{
			TotalDetections: len(detections),
			BySeverity:      bySeverity,
			ByClass:         byClass,
			RouteStartLat:   minLat,
			RouteStartLng:   minLng,
			RouteEndLat:     maxLat,
			RouteEndLng:     maxLng,
		},
	}
}

// MaxSeverity returns the highest severity present in a summary, low
// when the summary is empty.
func MaxSeverity(summary models.ReportSummary) models.SeverityLevel {
	switch {
	case summary.BySeverity[models.SeverityCritical] > 0:
		return models.SeverityCritical
	case summary.BySeverity[models.SeverityHigh] > 0:
		return models.SeverityHigh
	case summary.BySeverity[models.SeverityMedium] > 0:
		return models.SeverityMedium
	}
	return models.SeverityLow
}
