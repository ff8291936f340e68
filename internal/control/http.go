package control

import (
	"encoding/json"
	"image/jpeg"
	"log"
	"net/http"
	"time"

	"meteorwatch/internal/auth"
	"meteorwatch/internal/evaluate"
	authmw "meteorwatch/internal/middleware"
)

// Server wires a Surface to the per-camera HTTP control endpoints of
// spec.md §6: a plain net/http.Server with graceful ctx-driven shutdown,
// endpoint protection via internal/middleware/auth.go, over a direct
// net/http.ServeMux rather than a generated transport layer (see
// DESIGN.md).
type Server struct {
	surface       *Surface
	hub           *EventHub
	authenticator *auth.Authenticator
	logger        *log.Logger
	mux           *http.ServeMux
}

// NewServer builds the control mux for one camera.
func NewServer(surface *Surface, hub *EventHub, authenticator *auth.Authenticator, logger *log.Logger) *Server {
	s := &Server{surface: surface, hub: hub, authenticator: authenticator, logger: logger}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)

	protected := authmw.AuthMiddleware(s.authenticator)
	s.mux.Handle("POST /update_mask", protected(http.HandlerFunc(s.handleUpdateMask)))
	s.mux.Handle("POST /reset_mask", protected(http.HandlerFunc(s.handleResetMask)))
	s.mux.Handle("POST /settings", protected(http.HandlerFunc(s.handleSettings)))
	s.mux.Handle("POST /restart", protected(http.HandlerFunc(s.handleRestart)))

	if s.hub != nil {
		s.mux.HandleFunc("GET /events/ws", s.hub.ServeHTTP)
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	f := s.surface.CurrentFrame()
	if f == nil {
		http.Error(w, `{"error": "no frame available"}`, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	if err := jpeg.Encode(w, f.Img, &jpeg.Options{Quality: 85}); err != nil {
		s.logger.Printf("control: snapshot encode failed: %v", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.surface.Stats())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.surface.CurrentFrame() == nil {
		http.Error(w, "not ready: no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleUpdateMask(w http.ResponseWriter, r *http.Request) {
	m, err := s.surface.SynthesizeMaskFromCurrent(0)
	if err != nil {
		http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusServiceUnavailable)
		return
	}
	s.surface.Masks().UpdateExclusion(m)
	if err := s.surface.PersistMask(); err != nil {
		s.logger.Printf("control: failed persisting mask: %v (WriterIOError)", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"mask_active": true})
}

func (s *Server) handleResetMask(w http.ResponseWriter, r *http.Request) {
	s.surface.Masks().UpdateExclusion(nil)
	if err := s.surface.PersistMask(); err != nil {
		s.logger.Printf("control: failed removing persisted mask: %v (WriterIOError)", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"mask_active": false})
}

// settingsUpdate is the partial-update body for POST /settings (spec.md
// §6). Pointer fields distinguish "not present" from "explicitly zero".
type settingsUpdate struct {
	Sensitivity *string `json:"sensitivity"`

	DiffThreshold         *int     `json:"diff_threshold"`
	MinBrightness         *int     `json:"min_brightness"`
	MinBrightnessTracking *int     `json:"min_brightness_tracking"`
	MinLength             *float64 `json:"min_length"`
	MaxLength             *float64 `json:"max_length"`
	MinDuration           *float64 `json:"min_duration"`
	MaxDuration           *float64 `json:"max_duration"`
	MinSpeed              *float64 `json:"min_speed"`
	MinLinearity          *float64 `json:"min_linearity"`
	MinArea               *float64 `json:"min_area"`
	MaxArea               *float64 `json:"max_area"`
	MaxGapTime            *float64 `json:"max_gap_time"`
	MaxDistance           *float64 `json:"max_distance"`
	MinTrackPoints        *int     `json:"min_track_points"`
	MaxStationaryRatio    *float64 `json:"max_stationary_ratio"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	effective := s.surface.UpdateParams(func(p *evaluate.DetectionParams) {
		// Sensitivity preset always applies first; explicit overrides below
		// win over it (§9 Open Question decision).
		if body.Sensitivity != nil {
			p.ApplySensitivity(evaluate.Sensitivity(*body.Sensitivity))
		}
		if body.DiffThreshold != nil {
			p.DiffThreshold = uint8(clampInt(*body.DiffThreshold, 0, 255))
		}
		if body.MinBrightness != nil {
			p.MinBrightness = uint8(clampInt(*body.MinBrightness, 0, 255))
		}
		if body.MinBrightnessTracking != nil {
			p.MinBrightnessTracking = uint8(clampInt(*body.MinBrightnessTracking, 0, 255))
		}
		if body.MinLength != nil {
			p.MinLength = *body.MinLength
		}
		if body.MaxLength != nil {
			p.MaxLength = *body.MaxLength
		}
		if body.MinDuration != nil {
			p.MinDuration = *body.MinDuration
		}
		if body.MaxDuration != nil {
			p.MaxDuration = *body.MaxDuration
		}
		if body.MinSpeed != nil {
			p.MinSpeed = *body.MinSpeed
		}
		if body.MinLinearity != nil {
			p.MinLinearity = *body.MinLinearity
		}
		if body.MinArea != nil {
			p.MinArea = *body.MinArea
		}
		if body.MaxArea != nil {
			p.MaxArea = *body.MaxArea
		}
		if body.MaxGapTime != nil {
			p.MaxGapTimeSeconds = *body.MaxGapTime
		}
		if body.MaxDistance != nil {
			p.MaxDistance = *body.MaxDistance
		}
		if body.MinTrackPoints != nil {
			p.MinTrackPoints = *body.MinTrackPoints
		}
		if body.MaxStationaryRatio != nil {
			p.MaxStationaryRatio = *body.MaxStationaryRatio
		}
	})

	writeJSON(w, http.StatusOK, effective)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.surface.RequestRestart()
	writeJSON(w, http.StatusAccepted, map[string]bool{"restart_requested": true})
}

// clampInt bounds a raw decoded int to [lo,hi] before it narrows to a u8
// field, so an out-of-range /settings value (e.g. diff_threshold=9999)
// clamps to the documented bound instead of wrapping (spec.md §7
// ParamOutOfRange).
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewHTTPServer wraps handler in a *http.Server with a conservative
// ReadHeaderTimeout.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}
}
