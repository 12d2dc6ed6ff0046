package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"sync"
	"time"

	"road-inspection/inference"
	"road-inspection/metrics"
	"road-inspection/models"
	"road-inspection/store"
	"road-inspection/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

// socketController handles the remote capture flow: a client starts a
// session, streams sampled frames (image data URL plus optional GPS fix)
// and stops the session, which finalizes the video record and saves the
// store. Detections are emitted back as they are found.
type socketController struct {
	store   *store.DetectionStore
	infer   *inference.Client
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*remoteSession // keyed by socket id
}

// remoteSession is the per-connection capture state. The frame index is
// a strictly increasing counter consumed once per frame event.
type remoteSession struct {
	mu         sync.Mutex
	videoID    string
	userID     string
	filename   string
	startTime  time.Time
	frameIndex int
	detections int
}

func (s *remoteSession) nextFrameIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.frameIndex
	s.frameIndex++
	return index
}

func (s *remoteSession) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameIndex
}

func (s *remoteSession) addDetections(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections += n
}

type startSessionPayload struct {
	UserID   string `json:"userId"`
	Filename string `json:"filename"`
}

type framePayload struct {
	Image string            `json:"image"`
	GPS   *inference.GPSFix `json:"gps"`
}

func newSocketController(st *store.DetectionStore, infer *inference.Client, m *metrics.Metrics) *socketController {
	return &socketController{
		store:    st,
		infer:    infer,
		metrics:  m,
		sessions: make(map[string]*remoteSession),
	}
}

func (c *socketController) session(socketID string) *remoteSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[socketID]
}

// handleStartSession allocates a video id and resets per-connection
// capture state. A previous session on the same socket is superseded.
func (c *socketController) handleStartSession(socket socketio.Conn, msg string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	var payload startSessionPayload
	if msg != "" {
		if err := json.Unmarshal([]byte(msg), &payload); err != nil {
			logger.ErrorContext(ctx, "failed to parse startSession payload",
				slog.Any("error", xerrors.New(err)))
			socket.Emit("sessionError", map[string]string{"message": "invalid session payload"})
			return
		}
	}

	sess := &remoteSession{
		videoID:   utils.GenerateVideoID(),
		userID:    payload.UserID,
		filename:  payload.Filename,
		startTime: time.Now(),
	}

	c.mu.Lock()
	c.sessions[socket.ID()] = sess
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SessionsStarted.Add(1)
		c.metrics.ActiveSessions.Add(1)
	}

	logger.InfoContext(ctx, "remote capture session started",
		slog.String("socketID", socket.ID()),
		slog.String("videoId", sess.videoID),
		slog.String("userId", sess.userID))

	socket.Emit("sessionStarted", map[string]string{"videoId": sess.videoID})
}

// handleFrame submits one sampled frame to the inference service and
// persists any detections. Failures yield zero detections and never
// interrupt the session.
func (c *socketController) handleFrame(socket socketio.Conn, msg string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	sess := c.session(socket.ID())
	if sess == nil {
		socket.Emit("sessionError", map[string]string{"message": "no active session"})
		return
	}

	var payload framePayload
	if err := json.Unmarshal([]byte(msg), &payload); err != nil {
		logger.ErrorContext(ctx, "failed to parse frame payload",
			slog.String("socketID", socket.ID()),
			slog.Any("error", xerrors.New(err)))
		socket.Emit("sessionError", map[string]string{"message": "invalid frame payload"})
		return
	}
	if payload.Image == "" {
		socket.Emit("sessionError", map[string]string{"message": "no frame image received"})
		return
	}

	// Consumed unconditionally: the ordinal stays stable even when this
	// frame yields nothing.
	index := sess.nextFrameIndex()
	timestamp := time.Now()

	if c.metrics != nil {
		c.metrics.FramesSampled.Add(1)
	}

	results := c.infer.SubmitEncoded(ctx, payload.Image, payload.GPS)
	if len(results) == 0 {
		return
	}

	detections := c.infer.Materialize(results, sess.videoID, index, timestamp, payload.GPS)
	c.store.AddDetections(detections)
	sess.addDetections(len(detections))
	if c.metrics != nil {
		c.metrics.DetectionsStored.Add(uint64(len(detections)))
	}

	logger.InfoContext(ctx, "frame produced detections",
		slog.String("videoId", sess.videoID),
		slog.Int("frameIndex", index),
		slog.Int("count", len(detections)))

	socket.Emit("detection", detections)
}

// handleStopSession finalizes the video record: created pending, moved
// through processing to completed (snapshotting the detection count),
// then the whole store is saved to the durability layer.
func (c *socketController) handleStopSession(socket socketio.Conn, msg string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	c.mu.Lock()
	sess := c.sessions[socket.ID()]
	delete(c.sessions, socket.ID())
	c.mu.Unlock()

	if sess == nil {
		socket.Emit("sessionError", map[string]string{"message": "no active session"})
		return
	}

	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(^uint64(0))
	}

	totalFrames := sess.frameCount()
	filename := sess.filename
	if filename == "" {
		filename = sess.videoID + ".webm"
	}

	video := models.Video{
		ID:               sess.videoID,
		UserID:           sess.userID,
		OriginalFilename: filename,
		UploadedAt:       time.Now(),
		StartTime:        sess.startTime,
		EndTime:          time.Now(),
		ProcessingStatus: models.StatusPending,
		TotalFrames:      &totalFrames,
	}
	c.store.CreateVideo(video)
	c.store.UpdateVideoStatus(sess.videoID, models.StatusProcessing)
	c.store.UpdateVideoStatus(sess.videoID, models.StatusCompleted)
	c.store.Save()

	final := c.store.GetVideo(sess.videoID)
	detectionCount := 0
	if final != nil && final.DetectionCount != nil {
		detectionCount = *final.DetectionCount
	}

	logger.InfoContext(ctx, "remote capture session finalized",
		slog.String("videoId", sess.videoID),
		slog.Int("frames", totalFrames),
		slog.Int("detections", detectionCount))

	socket.Emit("sessionComplete", map[string]interface{}{
		"videoId":        sess.videoID,
		"totalFrames":    totalFrames,
		"detectionCount": detectionCount,
	})
}

// handleDisconnect drops any session left open by the client. Its
// detections stay in the store, but no video record is finalized.
func (c *socketController) handleDisconnect(socket socketio.Conn) {
	c.mu.Lock()
	sess := c.sessions[socket.ID()]
	delete(c.sessions, socket.ID())
	c.mu.Unlock()

	if sess != nil {
		if c.metrics != nil {
			c.metrics.ActiveSessions.Add(^uint64(0))
		}
		log.Printf("Socket %s disconnected with session %s still open\n", socket.ID(), sess.videoID)
	}
}
