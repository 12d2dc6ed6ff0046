package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"road-inspection/db"
	"road-inspection/inference"
	"road-inspection/metrics"
	"road-inspection/report"
	"road-inspection/store"
	"road-inspection/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

func allowCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Credentials", "true")
}

// newVideosHandler serves GET /api/videos (optionally ?user=) and
// DELETE /api/videos?id= which removes the video and its detections.
func newVideosHandler(st *store.DetectionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowCORS(w, "GET, DELETE, OPTIONS")

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			if userID := r.URL.Query().Get("user"); userID != "" {
				writeJSON(w, http.StatusOK, st.GetVideosByUser(userID))
				return
			}
			writeJSON(w, http.StatusOK, st.GetAllVideos())
		case http.MethodDelete:
			videoID := r.URL.Query().Get("id")
			if videoID == "" {
				writeJSONError(w, http.StatusBadRequest, "id is required")
				return
			}
			st.DeleteVideo(videoID)
			st.Save()
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// newDetectionsHandler serves GET /api/detections?video= (all detections
// when no video is given).
func newDetectionsHandler(st *store.DetectionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowCORS(w, "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if videoID := r.URL.Query().Get("video"); videoID != "" {
			writeJSON(w, http.StatusOK, st.GetDetectionsByVideo(videoID))
			return
		}
		writeJSON(w, http.StatusOK, st.GetAllDetections())
	}
}

// newReportsHandler serves GET /api/reports?video=. An unknown video or
// one with no detections yields 404: "nothing to show" is the
// presentation layer's decision.
func newReportsHandler(gen *report.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowCORS(w, "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		videoID := r.URL.Query().Get("video")
		if videoID == "" {
			writeJSONError(w, http.StatusBadRequest, "video is required")
			return
		}

		rep := gen.Summarize(videoID)
		if rep == nil {
			writeJSONError(w, http.StatusNotFound, "no report available for this video")
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func newHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func serve(protocol, port string) {
	logger := utils.GetLogger()
	ctx := context.Background()
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	blobs, err := db.NewBlobStore()
	if err != nil {
		log.Fatalf("failed to open durability layer: %v", err)
	}
	defer blobs.Close()

	st := store.NewDetectionStore(blobs)
	st.Load()
	logger.InfoContext(ctx, "detection store loaded",
		slog.Int("videos", len(st.GetAllVideos())),
		slog.Int("detections", len(st.GetAllDetections())))

	m := metrics.New()

	serviceURL := utils.GetEnv("DETECTION_SERVICE_URL", "http://localhost:8000")
	infer := inference.NewClient(serviceURL, m)
	go infer.EnsureReady(ctx)

	gen := report.NewGenerator(st)
	controller := newSocketController(st, infer, m)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		return nil
	})

	server.OnEvent("/", "startSession", func(socket socketio.Conn, msg string) {
		controller.handleStartSession(socket, msg)
	})

	server.OnEvent("/", "frame", func(socket socketio.Conn, msg string) {
		// Run in a goroutine so a slow inference call never blocks the
		// socket loop or the next frame event.
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleFrame for socket %s: %v\n", socket.ID(), r)
					socket.Emit("sessionError", map[string]string{"message": "internal error during frame processing"})
				}
			}()
			controller.handleFrame(socket, msg)
		}()
	})

	server.OnEvent("/", "stopSession", func(socket socketio.Conn, msg string) {
		controller.handleStopSession(socket, msg)
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		controller.handleDisconnect(s)
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	serveHTTPS := protocol == "https"

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api/videos", newVideosHandler(st))
	mux.HandleFunc("/api/detections", newDetectionsHandler(st))
	mux.HandleFunc("/api/reports", newReportsHandler(gen))
	mux.HandleFunc("/health", newHealthHandler())
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/", http.FileServer(http.Dir("static")))

	serveHTTP(server, serveHTTPS, port, mux)
}

func serveHTTP(socketServer *socketio.Server, serveHTTPS bool, port string, handler http.Handler) {
	logger := utils.GetLogger()

	if handler == nil {
		handler = socketServer
	}
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		certKey := utils.GetEnv("CERT_KEY", "")
		certFile := utils.GetEnv("CERT_FILE", "")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			logger.ErrorContext(context.Background(), "HTTPS server failed", slog.Any("error", xerrors.New(err)))
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
