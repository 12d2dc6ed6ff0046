package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SeverityLevel is the closed four-level damage classification.
type SeverityLevel string

const (
	SeverityLow      SeverityLevel = "low"
	SeverityMedium   SeverityLevel = "medium"
	SeverityHigh     SeverityLevel = "high"
	SeverityCritical SeverityLevel = "critical"
)

// SeverityLevels lists every valid severity in ascending order.
var SeverityLevels = []SeverityLevel{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s SeverityLevel) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func (s *SeverityLevel) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v := SeverityLevel(raw)
	if !v.Valid() {
		return fmt.Errorf("invalid severity level %q", raw)
	}
	*s = v
	return nil
}

// DetectionClass is the closed set of damage classes the inference
// service may report.
type DetectionClass string

const (
	ClassPothole DetectionClass = "pothole"
	ClassCrack   DetectionClass = "crack"
	ClassOther   DetectionClass = "other"
)

// DetectionClasses lists every valid class.
var DetectionClasses = []DetectionClass{ClassPothole, ClassCrack, ClassOther}

func (c DetectionClass) Valid() bool {
	switch c {
	case ClassPothole, ClassCrack, ClassOther:
		return true
	}
	return false
}

func (c *DetectionClass) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v := DetectionClass(raw)
	if !v.Valid() {
		return fmt.Errorf("invalid detection class %q", raw)
	}
	*c = v
	return nil
}

// ProcessingStatus tracks a video through its lifecycle:
// pending -> processing -> completed | failed.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

func (p ProcessingStatus) Valid() bool {
	switch p {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (p *ProcessingStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v := ProcessingStatus(raw)
	if !v.Valid() {
		return fmt.Errorf("invalid processing status %q", raw)
	}
	*p = v
	return nil
}

// BBox is a detection bounding box in frame pixel coordinates.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// GPSPoint is a single location fix sampled while a session is active.
// Points are buffered in memory by the session that produced them and
// handed over with the session result; they are not persisted separately.
type GPSPoint struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
}

// Detection is one instance of road damage found in one sampled frame.
// Immutable after creation; owned by the detection store, keyed by VideoID.
type Detection struct {
	ID            string         `json:"id"`
	VideoID       string         `json:"videoId"`
	FrameIndex    int            `json:"frameIndex"`
	Timestamp     time.Time      `json:"timestamp"`
	BBox          BBox           `json:"bbox"`
	ClassLabel    DetectionClass `json:"classLabel"`
	Confidence    float64        `json:"confidence"`
	SeverityScore SeverityLevel  `json:"severityScore"`
	Latitude      float64        `json:"latitude"`
	Longitude     float64        `json:"longitude"`
	FrameURL      string         `json:"frameUrl,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Video is one recorded or uploaded inspection episode.
// TotalFrames, ProcessedFrames and DetectionCount are nil until known;
// DetectionCount is a snapshot taken when the status last became completed.
type Video struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	OriginalFilename string           `json:"originalFilename"`
	StorageURL       string           `json:"storageUrl"`
	UploadedAt       time.Time        `json:"uploadedAt"`
	StartTime        time.Time        `json:"startTime"`
	EndTime          time.Time        `json:"endTime"`
	ProcessingStatus ProcessingStatus `json:"processingStatus"`
	TotalFrames      *int             `json:"totalFrames,omitempty"`
	ProcessedFrames  *int             `json:"processedFrames,omitempty"`
	DetectionCount   *int             `json:"detectionCount,omitempty"`
}

// ReportSummary aggregates one video's detection set.
// RouteStartLat/Lng and RouteEndLat/Lng are the min/max corners of the
// bounding extent of all detection coordinates, not actual path endpoints;
// the field names are kept for wire compatibility with the original API.
type ReportSummary struct {
	TotalDetections int                    `json:"totalDetections"`
	BySeverity      map[SeverityLevel]int  `json:"bySeverity"`
	ByClass         map[DetectionClass]int `json:"byClass"`
	RouteStartLat   float64                `json:"routeStartLat"`
	RouteStartLng   float64                `json:"routeStartLng"`
	RouteEndLat     float64                `json:"routeEndLat"`
	RouteEndLng     float64                `json:"routeEndLng"`
}

// Report is derived on demand from a video's detections and never stored.
type Report struct {
	ID            string        `json:"id"`
	VideoID       string        `json:"videoId"`
	UserID        string        `json:"userId"`
	InspectorName string        `json:"inspectorName"`
	Organization  string        `json:"organization"`
	CreatedAt     time.Time     `json:"createdAt"`
	Summary       ReportSummary `json:"summary"`
}
