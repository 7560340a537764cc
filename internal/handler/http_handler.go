package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/gaze/internal/dwell"
	"github.com/gosight/gosight/gaze/internal/layout"
	"github.com/gosight/gosight/gaze/internal/pointer"
	"github.com/gosight/gosight/gaze/internal/sample"
	"github.com/gosight/gosight/gaze/internal/settings"
	"github.com/gosight/gosight/gaze/internal/target"
	"github.com/gosight/gosight/gaze/internal/transformer"
)

// Pipeline is the part of the pointer the HTTP surface drives
type Pipeline interface {
	Offer(s sample.Sample) bool
	AddRoot(id string) string
	RemoveRoot(id string)
	Roots(ctx context.Context) (int, error)
	Click(ctx context.Context) (bool, error)
	Snapshot(ctx context.Context) ([]dwell.TargetState, error)
	Cursor(ctx context.Context) (pointer.Cursor, error)
	ApplySettings(bag settings.Bag)
	SetLayout(tree target.Tree, overrides map[target.ID]target.Overrides)
	DeviceAdded(id string)
	DeviceRemoved(id string)
	Devices(ctx context.Context) ([]string, error)
	RequestCalibration(ctx context.Context) <-chan error
}

type HTTPHandler struct {
	pipeline Pipeline
}

func NewHTTPHandler(p Pipeline) *HTTPHandler {
	return &HTTPHandler{pipeline: p}
}

// Routes mounts the gaze endpoints on r
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Get("/health", HealthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/samples", h.HandleSamples)
		r.Post("/roots", h.HandleAddRoot)
		r.Delete("/roots/{id}", h.HandleRemoveRoot)
		r.Post("/switch/click", h.HandleClick)
		r.Get("/targets", h.HandleTargets)
		r.Get("/cursor", h.HandleCursor)
		r.Put("/layout", h.HandleLayout)
		r.Put("/settings", h.HandleSettings)
		r.Get("/devices", h.HandleDevices)
		r.Post("/devices/{id}", h.HandleDeviceAdded)
		r.Delete("/devices/{id}", h.HandleDeviceRemoved)
		r.Post("/calibration", h.HandleCalibration)
	})
}

type SampleBatchRequest struct {
	Samples []transformer.RawSample `json:"samples"`
}

// SampleResponse counts samples queued for processing. Samples are
// rejected when they are malformed or when no root is registered.
type SampleResponse struct {
	Success       bool     `json:"success"`
	AcceptedCount int      `json:"accepted_count"`
	RejectedCount int      `json:"rejected_count"`
	Errors        []string `json:"errors,omitempty"`
}

func (h *HTTPHandler) HandleSamples(w http.ResponseWriter, r *http.Request) {
	// Read body
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Parse request
	var req SampleBatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	accepted := 0
	rejected := 0
	var errors []string

	for _, raw := range req.Samples {
		s, err := raw.Sample()
		if err != nil {
			rejected++
			errors = append(errors, err.Error())
			continue
		}
		if !h.pipeline.Offer(s) {
			rejected++
			errors = append(errors, errNoRoot)
			continue
		}
		accepted++
	}

	writeJSON(w, http.StatusOK, SampleResponse{
		Success:       rejected == 0,
		AcceptedCount: accepted,
		RejectedCount: rejected,
		Errors:        errors,
	})
}

const errNoRoot = "no active root"

type RootRequest struct {
	ID string `json:"id"`
}

func (h *HTTPHandler) HandleAddRoot(w http.ResponseWriter, r *http.Request) {
	var req RootRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
	}

	id := h.pipeline.AddRoot(req.ID)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"id":      id,
	})
}

func (h *HTTPHandler) HandleRemoveRoot(w http.ResponseWriter, r *http.Request) {
	h.pipeline.RemoveRoot(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) HandleClick(w http.ResponseWriter, r *http.Request) {
	activated, err := h.pipeline.Click(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"activated": activated,
	})
}

type TargetResponse struct {
	ID          string `json:"id"`
	Capability  string `json:"capability"`
	State       string `json:"state"`
	ElapsedMs   int64  `json:"elapsed_ms"`
	RepeatCount int    `json:"repeat_count"`
}

func (h *HTTPHandler) HandleTargets(w http.ResponseWriter, r *http.Request) {
	states, err := h.pipeline.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	out := make([]TargetResponse, 0, len(states))
	for _, ts := range states {
		out = append(out, TargetResponse{
			ID:          string(ts.Target.ID),
			Capability:  ts.Target.Capability.String(),
			State:       ts.State.String(),
			ElapsedMs:   ts.Elapsed().Milliseconds(),
			RepeatCount: ts.RepeatCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) HandleCursor(w http.ResponseWriter, r *http.Request) {
	c, err := h.pipeline.Cursor(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleLayout replaces the element tree with a YAML or JSON layout
// document
func (h *HTTPHandler) HandleLayout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	l, err := layout.Parse(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	h.pipeline.SetLayout(l, l.Overrides())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"elements": l.Len(),
	})
}

func (h *HTTPHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	var bag settings.Bag
	if err := json.NewDecoder(r.Body).Decode(&bag); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	h.pipeline.ApplySettings(bag)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"keys":    len(bag),
	})
}

func (h *HTTPHandler) HandleDevices(w http.ResponseWriter, r *http.Request) {
	ids, err := h.pipeline.Devices(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"available": len(ids) > 0,
		"devices":   ids,
	})
}

func (h *HTTPHandler) HandleDeviceAdded(w http.ResponseWriter, r *http.Request) {
	h.pipeline.DeviceAdded(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) HandleDeviceRemoved(w http.ResponseWriter, r *http.Request) {
	h.pipeline.DeviceRemoved(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) HandleCalibration(w http.ResponseWriter, r *http.Request) {
	select {
	case err := <-h.pipeline.RequestCalibration(r.Context()):
		if err != nil {
			log.Warn().Err(err).Msg("Calibration request failed")
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": false,
				"message": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Calibration complete",
		})
	case <-r.Context().Done():
		writeError(w, http.StatusGatewayTimeout, r.Context().Err())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": err.Error(),
	})
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
