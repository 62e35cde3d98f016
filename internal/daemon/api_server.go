package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"creditscan/internal/episode"
	"creditscan/internal/logging"
	"creditscan/internal/segments"
	"creditscan/internal/store"
)

const maxRequestBody = 1 << 16

type apiServer struct {
	bind   string
	daemon *Daemon
	logger *slog.Logger
	server *http.Server
	ln     net.Listener
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) *apiServer {
	return &apiServer{
		bind:   bind,
		daemon: d,
		logger: logging.NewComponentLogger(logger, "api"),
	}
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/pending", s.handlePending)
		r.Get("/episodes", s.handleEpisodes)
		r.Post("/invalidate", s.handleInvalidate)
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if strings.TrimSpace(s.bind) == "" {
		s.logger.Info("api disabled")
		return nil
	}
	ln, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.bind, err)
	}
	s.ln = ln
	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", logging.Error(err))
		}
	}()
	s.logger.Info("api listening", logging.String("address", ln.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("api shutdown", logging.Error(err))
	}
}

func (s *apiServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(started)),
			logging.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type healthResponse struct {
	Status        string               `json:"status"`
	Running       bool                 `json:"running"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Episodes      int                  `json:"episodes"`
	Pending       int                  `json:"pending"`
	Timings       int                  `json:"timings"`
	Fingerprints  int                  `json:"fingerprints"`
	Jobs          map[string]JobStatus `json:"jobs"`
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.daemon.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := healthResponse{
		Status:       "ok",
		Running:      s.daemon.Running(),
		Episodes:     counts.Episodes,
		Pending:      counts.Pending,
		Timings:      counts.Timings,
		Fingerprints: counts.Fingerprints,
		Jobs:         s.daemon.Status(),
	}
	if !s.daemon.started.IsZero() {
		resp.UptimeSeconds = int64(time.Since(s.daemon.started).Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}

type pendingEpisode struct {
	ID                      string    `json:"id"`
	Dir                     string    `json:"dir"`
	DetectionPending        bool      `json:"detection_pending"`
	SilenceDetectionPending bool      `json:"silence_detection_pending"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func (s *apiServer) handlePending(w http.ResponseWriter, r *http.Request) {
	records, err := s.daemon.store.PendingRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"episodes": pendingFromRecords(records)})
}

func pendingFromRecords(records []*store.Record) []pendingEpisode {
	out := make([]pendingEpisode, 0, len(records))
	for _, rec := range records {
		out = append(out, pendingEpisode{
			ID:                      rec.ID,
			Dir:                     rec.Dir,
			DetectionPending:        rec.DetectionPending,
			SilenceDetectionPending: rec.SilenceDetectionPending,
			UpdatedAt:               rec.UpdatedAt,
		})
	}
	return out
}

type segmentView struct {
	Category string  `json:"category"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
}

type episodeView struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Duration float64       `json:"duration"`
	MetaID   int64         `json:"meta_id"`
	Pending  bool          `json:"pending"`
	Segments []segmentView `json:"segments"`
}

func (s *apiServer) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	dir, ok := s.libraryPath(w, r.URL.Query().Get("dir"))
	if !ok {
		return
	}
	root := s.daemon.cfg.LibraryRootFor(dir)
	episodes, err := s.daemon.store.EpisodesForDirectory(r.Context(), root, episode.RelativeDir(root, dir))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]episodeView, 0, len(episodes))
	for _, ep := range episodes {
		view := episodeView{
			ID:       ep.ID,
			Name:     ep.Name,
			Duration: ep.Duration,
			MetaID:   ep.MetaID,
			Pending:  ep.DetectionPending || ep.SilenceDetectionPending,
			Segments: []segmentView{},
		}
		if ep.Segments != nil {
			for _, seg := range ep.Segments.All() {
				view.Segments = append(view.Segments, viewOf(seg))
			}
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"directory": dir, "episodes": views})
}

func viewOf(seg segments.Segment) segmentView {
	return segmentView{Category: seg.Category(), Start: seg.Start, End: seg.End}
}

type invalidateRequest struct {
	Path string `json:"path"`
}

func (s *apiServer) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dir, ok := s.libraryPath(w, req.Path)
	if !ok {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		writeError(w, http.StatusNotFound, "directory not found")
		return
	}

	sc := s.daemon.scanner
	logger := s.logger
	s.daemon.submit(jobInvalidate, dir, func(ctx context.Context) error {
		marked, err := sc.InvalidateDirectory(ctx, dir)
		if err == nil {
			logger.Info("directory invalidated", logging.String(logging.FieldDirectory, dir), logging.Int("marked", marked))
		}
		return err
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "path": dir})
}

// libraryPath validates raw as an absolute path inside a configured library
// root. It writes the error response itself when validation fails.
func (s *apiServer) libraryPath(w http.ResponseWriter, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return "", false
	}
	if !filepath.IsAbs(raw) {
		writeError(w, http.StatusBadRequest, "path must be absolute")
		return "", false
	}
	cleaned := filepath.Clean(raw)
	if !s.inLibrary(cleaned) {
		writeError(w, http.StatusBadRequest, "path is outside the configured library roots")
		return "", false
	}
	return cleaned, true
}

func (s *apiServer) inLibrary(path string) bool {
	for _, root := range s.daemon.cfg.Paths.LibraryRoots {
		root = filepath.Clean(root)
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
