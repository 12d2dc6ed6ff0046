package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"road-inspection/models"
	"road-inspection/utils"

	"github.com/mdobak/go-xerrors"
)

// BlobKey is the key under which the entire store is persisted.
const BlobKey = "detection_store"

// BlobStore is the local durability layer: a string-keyed blob store.
// Implemented by db.SQLiteClient and db.MongoClient.
type BlobStore interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
}

// DetectionStore is the keyed collection of detections and videos.
// Detections are kept per video in insertion order (discovery order).
// Single-writer access is assumed by the overall design, but the store is
// still mutex-guarded so the socket layer can share it across connections.
type DetectionStore struct {
	mu         sync.RWMutex
	detections map[string][]models.Detection
	videos     map[string]models.Video
	blobs      BlobStore
}

// snapshot is the serialized form of the store. Map entries are flattened
// into pair lists so the round-trip is stable and explicit.
type snapshot struct {
	Detections []detectionEntry `json:"detections"`
	Videos     []models.Video   `json:"videos"`
}

type detectionEntry struct {
	VideoID    string             `json:"videoId"`
	Detections []models.Detection `json:"detections"`
}

// NewDetectionStore creates an empty store. blobs may be nil, in which case
// Save and Load are no-ops (memory-only store, useful in tests).
func NewDetectionStore(blobs BlobStore) *DetectionStore {
	return &DetectionStore{
		detections: make(map[string][]models.Detection),
		videos:     make(map[string]models.Video),
		blobs:      blobs,
	}
}

// AddDetection appends a detection to the list keyed by its VideoID.
// No deduplication and no foreign-key check: detections may arrive before
// their video record exists.
func (s *DetectionStore) AddDetection(d models.Detection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections[d.VideoID] = append(s.detections[d.VideoID], d)
}

// AddDetections appends a batch in order.
func (s *DetectionStore) AddDetections(ds []models.Detection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range ds {
		s.detections[d.VideoID] = append(s.detections[d.VideoID], d)
	}
}

// GetDetectionsByVideo returns the insertion-ordered detections for a video,
// or an empty list for an unknown id.
func (s *DetectionStore) GetDetectionsByVideo(videoID string) []models.Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds := s.detections[videoID]
	out := make([]models.Detection, len(ds))
	copy(out, ds)
	return out
}

// GetAllDetections returns every detection across all videos.
func (s *DetectionStore) GetAllDetections() []models.Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []models.Detection
	for _, ds := range s.detections {
		all = append(all, ds...)
	}
	return all
}

// ClearDetections removes all detections for a video.
func (s *DetectionStore) ClearDetections(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.detections, videoID)
}

// CreateVideo inserts or replaces a video record.
func (s *DetectionStore) CreateVideo(v models.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[v.ID] = v
}

// GetVideo returns a video by id, or nil if unknown.
func (s *DetectionStore) GetVideo(videoID string) *models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[videoID]
	if !ok {
		return nil
	}
	return &v
}

// GetAllVideos returns every video record.
func (s *DetectionStore) GetAllVideos() []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Video, 0, len(s.videos))
	for _, v := range s.videos {
		out = append(out, v)
	}
	return out
}

// GetVideosByUser returns the videos owned by a user. Linear filter;
// userId is an opaque partition key supplied by the auth service.
func (s *DetectionStore) GetVideosByUser(userID string) []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Video
	for _, v := range s.videos {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	return out
}

// UpdateVideoStatus transitions a video's processing status. On completed,
// ProcessedFrames is set to TotalFrames and DetectionCount snapshots the
// current count for the video; on any other status ProcessedFrames resets
// to 0 and DetectionCount is cleared. No-op for an unknown id.
func (s *DetectionStore) UpdateVideoStatus(videoID string, status models.ProcessingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[videoID]
	if !ok {
		return
	}

	v.ProcessingStatus = status
	if status == models.StatusCompleted {
		v.ProcessedFrames = v.TotalFrames
		count := len(s.detections[videoID])
		v.DetectionCount = &count
	} else {
		zero := 0
		v.ProcessedFrames = &zero
		v.DetectionCount = nil
	}
	s.videos[videoID] = v
}

// DeleteVideo removes a video and all its detections.
func (s *DetectionStore) DeleteVideo(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.videos, videoID)
	delete(s.detections, videoID)
}

// Serialize encodes the entire store (both maps) to JSON.
func (s *DetectionStore) Serialize() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		Detections: make([]detectionEntry, 0, len(s.detections)),
		Videos:     make([]models.Video, 0, len(s.videos)),
	}
	for videoID, ds := range s.detections {
		snap.Detections = append(snap.Detections, detectionEntry{VideoID: videoID, Detections: ds})
	}
	for _, v := range s.videos {
		snap.Videos = append(snap.Videos, v)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("error marshaling detection store: %w", err)
	}
	return data, nil
}

// Deserialize replaces the store contents from a serialized snapshot.
func (s *DetectionStore) Deserialize(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("error unmarshaling detection store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.detections = make(map[string][]models.Detection, len(snap.Detections))
	for _, entry := range snap.Detections {
		s.detections[entry.VideoID] = entry.Detections
	}
	s.videos = make(map[string]models.Video, len(snap.Videos))
	for _, v := range snap.Videos {
		s.videos[v.ID] = v
	}
	return nil
}

// Save pushes the serialized store to the durability layer. Failures are
// logged, never propagated: losing a save must not interrupt a session.
func (s *DetectionStore) Save() {
	if s.blobs == nil {
		return
	}
	logger := utils.GetLogger()

	data, err := s.Serialize()
	if err != nil {
		logger.ErrorContext(context.Background(), "failed to serialize detection store",
			slog.Any("error", xerrors.New(err)))
		return
	}
	if err := s.blobs.Put(BlobKey, data); err != nil {
		logger.ErrorContext(context.Background(), "failed to save detection store",
			slog.Any("error", xerrors.New(err)))
	}
}

// Load pulls the store from the durability layer, replacing current
// contents. Missing data leaves the store empty; failures are logged.
func (s *DetectionStore) Load() {
	if s.blobs == nil {
		return
	}
	logger := utils.GetLogger()

	data, ok, err := s.blobs.Get(BlobKey)
	if err != nil {
		logger.ErrorContext(context.Background(), "failed to load detection store",
			slog.Any("error", xerrors.New(err)))
		return
	}
	if !ok || len(data) == 0 {
		return
	}
	if err := s.Deserialize(data); err != nil {
		logger.ErrorContext(context.Background(), "failed to parse stored detection store",
			slog.Any("error", xerrors.New(err)))
	}
}
