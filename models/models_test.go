package models

import (
	"encoding/json"
	"testing"
)

func TestSeverityLevelUnmarshalRejectsUnknownValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input   string
		wantErr bool
	}{
		{`"low"`, false},
		{`"medium"`, false},
		{`"high"`, false},
		{`"critical"`, false},
		{`"severe"`, true},
		{`"HIGH"`, true},
		{`""`, true},
		{`3`, true},
	}

	for _, tc := range cases {
		var s SeverityLevel
		err := json.Unmarshal([]byte(tc.input), &s)
		if tc.wantErr && err == nil {
			t.Errorf("unmarshal %s: expected error, got %q", tc.input, s)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unmarshal %s: unexpected error: %v", tc.input, err)
		}
	}
}

func TestDetectionClassUnmarshalRejectsUnknownValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input   string
		wantErr bool
	}{
		{`"pothole"`, false},
		{`"crack"`, false},
		{`"other"`, false},
		{`"sinkhole"`, true},
		{`""`, true},
	}

	for _, tc := range cases {
		var c DetectionClass
		err := json.Unmarshal([]byte(tc.input), &c)
		if tc.wantErr && err == nil {
			t.Errorf("unmarshal %s: expected error, got %q", tc.input, c)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unmarshal %s: unexpected error: %v", tc.input, err)
		}
	}
}

func TestProcessingStatusValid(t *testing.T) {
	t.Parallel()

	for _, status := range []ProcessingStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
		if !status.Valid() {
			t.Errorf("status %q should be valid", status)
		}
	}
	if ProcessingStatus("done").Valid() {
		t.Error("status \"done\" should not be valid")
	}
}

func TestDetectionJSONRoundTrip(t *testing.T) {
	t.Parallel()

	d := Detection{
		ID:            "det-v1-0-0",
		VideoID:       "v1",
		FrameIndex:    0,
		BBox:          BBox{X: 10, Y: 20, Width: 30, Height: 40},
		ClassLabel:    ClassPothole,
		Confidence:    0.9,
		SeverityScore: SeverityHigh,
		Latitude:      40.0,
		Longitude:     -73.0,
		Notes:         "Detection confidence: 90.0%",
	}

	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var back Detection
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back != d {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, d)
	}
}
