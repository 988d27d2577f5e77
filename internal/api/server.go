// Package api serves the tracker store over HTTP: a small JSON API and a
// tsweb debug page.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/psn.report/internal/httputil"
	"github.com/banshee-data/psn.report/internal/monitoring"
	"github.com/banshee-data/psn.report/internal/psn"
	"github.com/banshee-data/psn.report/internal/psn/tracker"
	"github.com/banshee-data/psn.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	session *psn.Session
	started time.Time
}

func NewServer(session *psn.Session) *Server {
	return &Server{session: session, started: time.Now()}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/trackers", s.listTrackers)
	mux.HandleFunc("/api/trackers/{id}", s.showTracker)
	mux.HandleFunc("/api/status", s.showStatus)
	s.AttachDebugRoutes(mux)
	return mux
}

// XYZ is the JSON form of a vector.
type XYZ struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func xyz(o tracker.Optional[tracker.Vec3]) *XYZ {
	v, ok := o.Get()
	if !ok {
		return nil
	}
	return &XYZ{X: v.X, Y: v.Y, Z: v.Z}
}

// TrackerView is the JSON form of a tracker record. Unset fields are null.
type TrackerView struct {
	ID               uint16    `json:"id"`
	DisplayName      string    `json:"display_name"`
	Name             *string   `json:"name"`
	Position         *XYZ      `json:"position"`
	Speed            *XYZ      `json:"speed"`
	Orientation      *XYZ      `json:"orientation"`
	Acceleration     *XYZ      `json:"acceleration"`
	TargetPosition   *XYZ      `json:"target_position"`
	Validity         *bool     `json:"validity"`
	Status           *float32  `json:"status"`
	TrackerTimestamp *uint64   `json:"tracker_timestamp"`
	LastUpdated      time.Time `json:"last_updated"`
}

func newTrackerView(rec tracker.Record) TrackerView {
	return TrackerView{
		ID:               uint16(rec.ID),
		DisplayName:      rec.DisplayName(),
		Name:             rec.Name.Ptr(),
		Position:         xyz(rec.Position),
		Speed:            xyz(rec.Speed),
		Orientation:      xyz(rec.Orientation),
		Acceleration:     xyz(rec.Acceleration),
		TargetPosition:   xyz(rec.TargetPosition),
		Validity:         rec.Validity.Ptr(),
		Status:           rec.Status.Ptr(),
		TrackerTimestamp: rec.TrackerTimestamp.Ptr(),
		LastUpdated:      rec.LastUpdated,
	}
}

// TrackerList is the response of GET /api/trackers.
type TrackerList struct {
	SessionID  string        `json:"session_id"`
	SystemName string        `json:"system_name"`
	Trackers   []TrackerView `json:"trackers"`
}

func (s *Server) listTrackers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	out := TrackerList{
		SessionID:  s.session.ID().String(),
		SystemName: s.session.SystemName(),
		Trackers:   []TrackerView{},
	}
	for _, rec := range s.session.Store().All() {
		out.Trackers = append(out.Trackers, newTrackerView(rec))
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showTracker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		httputil.BadRequest(w, "invalid tracker id "+strconv.Quote(raw))
		return
	}
	rec, ok := s.session.Store().Get(tracker.ID(id))
	if !ok {
		httputil.NotFound(w, "tracker "+raw+" not seen")
		return
	}
	httputil.WriteJSONOK(w, newTrackerView(rec))
}

// StatusView is the response of GET /api/status.
type StatusView struct {
	SessionID   string           `json:"session_id"`
	SystemName  string           `json:"system_name"`
	State       string           `json:"state"`
	Trackers    int              `json:"trackers"`
	InfoPackets int64            `json:"info_packets"`
	DataPackets int64            `json:"data_packets"`
	Bytes       int64            `json:"bytes"`
	Failures    map[string]int64 `json:"failures"`
	Version     string           `json:"version"`
	GitSHA      string           `json:"git_sha"`
	Uptime      string           `json:"uptime"`
}

func (s *Server) status() StatusView {
	st := s.session.Stats()
	return StatusView{
		SessionID:   s.session.ID().String(),
		SystemName:  s.session.SystemName(),
		State:       s.session.State().String(),
		Trackers:    s.session.Store().Len(),
		InfoPackets: st.InfoPackets,
		DataPackets: st.DataPackets,
		Bytes:       st.Bytes,
		Failures:    st.Failures,
		Version:     version.Version,
		GitSHA:      version.GitSHA,
		Uptime:      time.Since(s.started).Truncate(time.Second).String(),
	}
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.status())
}
