// Package api exposes the calibration and overlay control operations
// over HTTP for the operator UI.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"

	"github.com/aquasight/sonarcam/internal/calib"
	"github.com/aquasight/sonarcam/internal/camera"
	"github.com/aquasight/sonarcam/internal/overlay"
)

type Server struct {
	svc *overlay.Service
}

func NewServer(svc *overlay.Service) *Server {
	return &Server{svc: svc}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/calibration/start", s.startCalibration)
	mux.HandleFunc("/calibration/frame", s.captureFrame)
	mux.HandleFunc("/calibration/solve", s.solveCalibration)
	mux.HandleFunc("/calibration/state", s.calibrationState)
	mux.HandleFunc("/extrinsics", s.extrinsics)
	mux.HandleFunc("/overlay/options", s.overlayOptions)
	mux.HandleFunc("/overlay/points", s.overlayPoints)
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// statusFor maps domain errors onto HTTP statuses: state conflicts and
// missing configuration are 409, bad input is 400, the rest 500.
func statusFor(err error) int {
	var stateErr *calib.StateError
	var solveErr *calib.SolveError
	var detErr *calib.DetectionError
	var cfgErr *calib.ConfigError
	switch {
	case errors.As(err, &stateErr):
		return http.StatusConflict
	case errors.As(err, &solveErr), errors.As(err, &detErr), errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case camera.IsNotConfigured(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) startCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Rows       int     `json:"rows"`
		Cols       int     `json:"cols"`
		SquareSize float64 `json:"square_size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id, err := s.svc.StartCalibration(req.Rows, req.Cols, req.SquareSize)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, map[string]any{"session_id": id.String()})
}

func (s *Server) captureFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	img, _, err := image.Decode(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to decode frame: %v", err), http.StatusBadRequest)
		return
	}
	n, err := s.svc.CaptureCalibrationFrame(img)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, map[string]any{"samples": n})
}

func (s *Server) solveCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res, err := s.svc.SolveCalibration(r.Context())
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, map[string]any{
		"session_id": res.SessionID.String(),
		"intrinsics": res.Intrinsics,
		"rms_px":     res.RMSError,
	})
}

func (s *Server) calibrationState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state, samples := s.svc.CalibrationState()
	writeJSON(w, map[string]any{"state": state.String(), "samples": samples})
}

func (s *Server) extrinsics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, ok := s.svc.Extrinsics()
		if !ok {
			http.Error(w, "No extrinsics configured", http.StatusNotFound)
			return
		}
		writeJSON(w, p)
	case http.MethodPost:
		var p camera.Pose
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.svc.SaveExtrinsics(p.Rotation, p.Translation); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"saved": true})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) overlayOptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.svc.Options())
	case http.MethodPost:
		var opts overlay.Options
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		writeJSON(w, s.svc.SetOptions(opts))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) overlayPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	width, err := strconv.Atoi(r.URL.Query().Get("width"))
	if err != nil || width <= 0 {
		http.Error(w, "width query parameter is required", http.StatusBadRequest)
		return
	}
	height, err := strconv.Atoi(r.URL.Query().Get("height"))
	if err != nil || height <= 0 {
		http.Error(w, "height query parameter is required", http.StatusBadRequest)
		return
	}
	frame, err := s.svc.ProjectLatest(&camera.Bounds{Width: width, Height: height})
	if err != nil {
		if camera.IsNotConfigured(err) {
			// Nothing to show yet; the UI treats this as an empty overlay.
			writeJSON(w, map[string]any{"points": []camera.PixelPoint{}, "reason": err.Error()})
			return
		}
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, map[string]any{
		"points":     frame.Points,
		"point_size": frame.PointSize,
		"color_mode": frame.ColorMode,
	})
}
