package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/iclim/ml-app/ml"
	"github.com/iclim/ml-app/monitoring"
	"github.com/iclim/ml-app/registry"
)

const (
	APIPrefix  = "/api/v1"
	APIVersion = "1.0.0"
)

// Handlers translates HTTP requests into registry calls.
type Handlers struct {
	registry *registry.Registry
	catalog  map[string]int
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandlers builds the API handlers. catalog maps each model to the
// feature count its request bodies must carry; metrics may be nil.
func NewHandlers(reg *registry.Registry, catalog map[string]int, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{registry: reg, catalog: catalog, metrics: metrics, logger: logger}
}

func RegisterHandlers(mux *http.ServeMux, h *Handlers) {
	h.handle(mux, "GET /{$}", h.handleRoot)
	h.handle(mux, "GET "+APIPrefix+"/{$}", h.handleList)
	h.handle(mux, "POST "+APIPrefix+"/{model}/predict", h.handlePredict)
	h.handle(mux, "POST "+APIPrefix+"/{model}/predict/batch", h.handleBatchPredict)
	h.handle(mux, "GET "+APIPrefix+"/{model}/health", h.handleHealth)
	h.handle(mux, "GET "+APIPrefix+"/{model}/info", h.handleInfo)
	h.handle(mux, "POST "+APIPrefix+"/{model}/reload", h.handleReload)
}

func (h *Handlers) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	if h.metrics == nil {
		mux.HandleFunc(pattern, fn)
		return
	}
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrapResponseWriter(w)
		fn(wrapped, r)
		h.metrics.ObserveRequest(pattern, wrapped.statusCode, time.Since(start))
	})
}

func (h *Handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "ML Model Serving API",
		"version": APIVersion,
	})
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	ids := h.registry.List()
	endpoints := make(map[string]Endpoints, len(ids))
	for _, id := range ids {
		endpoints[id] = Endpoints{
			Predict:      "/" + id + "/predict",
			BatchPredict: "/" + id + "/predict/batch",
			Health:       "/" + id + "/health",
			Info:         "/" + id + "/info",
		}
	}
	writeJSON(w, http.StatusOK, ListResponse{AvailableModels: ids, Endpoints: endpoints})
}

// lookup resolves the path model or writes a 404.
func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*registry.Unit, bool) {
	id := r.PathValue("model")
	unit, err := h.registry.Lookup(id)
	if err != nil {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Model %s not found", id))
		return nil, false
	}
	return unit, true
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	unit, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req PredictRequest
	if status, err := decodeJSON(r, &req); err != nil {
		writeDetail(w, status, err.Error())
		return
	}
	if err := req.validate(h.catalog[unit.ID()]); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	pred, err := unit.Predict(req.Features)
	if err != nil {
		h.writePredictionError(w, r, unit.ID(), "Prediction failed", err)
		return
	}
	body, err := predictionBody(pred)
	if err != nil {
		h.writePredictionError(w, r, unit.ID(), "Prediction failed", err)
		return
	}
	h.observe(unit.ID(), pred.Kind, 1)
	writeJSON(w, http.StatusOK, body)
}

func (h *Handlers) handleBatchPredict(w http.ResponseWriter, r *http.Request) {
	unit, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req BatchPredictRequest
	if status, err := decodeJSON(r, &req); err != nil {
		writeDetail(w, status, err.Error())
		return
	}
	if err := req.validate(h.catalog[unit.ID()]); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	preds, err := unit.PredictBatch(req.matrix())
	if err != nil {
		h.writePredictionError(w, r, unit.ID(), "Batch prediction failed", err)
		return
	}
	bodies := make([]any, len(preds))
	for i, pred := range preds {
		body, err := predictionBody(pred)
		if err != nil {
			h.writePredictionError(w, r, unit.ID(), "Batch prediction failed", err)
			return
		}
		bodies[i] = body
	}
	h.observe(unit.ID(), preds[0].Kind, len(preds))
	writeJSON(w, http.StatusOK, BatchResponse{Predictions: bodies, BatchSize: len(bodies)})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	unit, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, healthBody(unit))
}

func (h *Handlers) handleInfo(w http.ResponseWriter, r *http.Request) {
	unit, ok := h.lookup(w, r)
	if !ok {
		return
	}
	info := unit.Info()
	if !info.Available {
		writeDetail(w, http.StatusServiceUnavailable, "Model not loaded")
		return
	}
	writeJSON(w, http.StatusOK, InfoResponse{
		Kind:         info.Kind.String(),
		ModelType:    info.ModelType,
		FeatureNames: info.FeatureNames,
		TargetNames:  info.TargetNames,
		Target:       info.Target,
		NFeatures:    info.NFeatures,
	})
}

// handleReload re-reads the artifact and answers with the new health. A
// failed reload is reported as 503.
func (h *Handlers) handleReload(w http.ResponseWriter, r *http.Request) {
	unit, ok := h.lookup(w, r)
	if !ok {
		return
	}
	status, err := h.registry.Reload(r.Context(), unit.ID())
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	code := http.StatusOK
	if !status.Loaded {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthBody(unit))
}

func (h *Handlers) writePredictionError(w http.ResponseWriter, r *http.Request, model, prefix string, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = prefix + ": " + detail
		h.logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("model", model),
			zap.Error(err),
		)
	}
	writeDetail(w, status, detail)
}

func (h *Handlers) observe(model string, kind ml.Kind, samples int) {
	if h.metrics != nil {
		h.metrics.ObservePrediction(model, kind.String(), samples)
	}
}

// statusFor maps registry errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownModel):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, registry.ErrNotLoaded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func predictionBody(pred registry.Prediction) (any, error) {
	var body any
	err := pred.Visit(
		func(c registry.ClassPrediction) error {
			body = ClassificationResponse{Prediction: c.Label, PredictionID: c.ClassID, Confidence: c.Confidence}
			return nil
		},
		func(p registry.RegressionPrediction) error {
			body = RegressionResponse{Prediction: p.Value}
			return nil
		},
	)
	return body, err
}

func healthBody(unit *registry.Unit) HealthResponse {
	info := unit.Info()
	if !info.Available {
		return HealthResponse{
			Status:    "unhealthy",
			ModelType: unit.ID() + "_unknown",
			Error:     info.Error,
		}
	}
	return HealthResponse{
		Status:       "healthy",
		ModelLoaded:  true,
		FeatureCount: info.NFeatures,
		ModelType:    unit.ID() + "_" + info.ModelType,
	}
}
