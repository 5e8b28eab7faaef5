package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/pdf-converter/internal/adapters/http/openapi"
	"github.com/kirillkom/pdf-converter/internal/config"
	"github.com/kirillkom/pdf-converter/internal/core/domain"
	"github.com/kirillkom/pdf-converter/internal/core/ports"
	"github.com/kirillkom/pdf-converter/internal/observability/metrics"
)

type Router struct {
	cfg       config.Config
	converter ports.DocumentConverter
	uploads   ports.UploadReceiver
	tools     ports.ToolStatusReader
	metrics   *metrics.HTTPServerMetrics
	now       func() time.Time
}

// NewRouter wires the conversion API. httpMetrics may be nil.
func NewRouter(
	cfg config.Config,
	converter ports.DocumentConverter,
	uploads ports.UploadReceiver,
	tools ports.ToolStatusReader,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:       cfg,
		converter: converter,
		uploads:   uploads,
		tools:     tools,
		metrics:   httpMetrics,
		now:       time.Now,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", rt.health)
	mux.HandleFunc("GET /api/pdf/health", rt.toolHealth)
	mux.HandleFunc("GET /openapi.json", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	for _, spec := range rt.routes() {
		mux.HandleFunc("POST "+spec.path, rt.convert(spec))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeErrorMessage(w, http.StatusNotFound, "route not found")
	})

	var h http.Handler = mux
	if rt.metrics != nil {
		h = rt.metrics.Middleware(h)
	}
	h = backpressureMiddleware(h, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	h = rateLimitMiddleware(h, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	h = accessLogMiddleware(h)
	return requestIDMiddleware(h)
}

func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Server is running",
		"timestamp": rt.now().UTC().Format(time.RFC3339),
	})
}

// toolHealth reports the startup check results. Missing tools degrade the
// service without taking it down.
func (rt *Router) toolHealth(w http.ResponseWriter, _ *http.Request) {
	statuses := map[string]bool{}
	if rt.tools != nil {
		statuses = rt.tools.Statuses()
	}
	status := "ok"
	for _, ok := range statuses {
		if !ok {
			status = "degraded"
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"status":    status,
		"tools":     statuses,
		"timestamp": rt.now().UTC().Format(time.RFC3339),
	})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	raw, err := openapi.JSON()
	if err != nil {
		slog.Error("openapi_load_failed", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "api description unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// convert runs one conversion route: receive uploads, run the operation,
// stream the result and release every file the result still owns.
func (rt *Router) convert(spec route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		up, err := rt.readUpload(w, r, spec)
		if err != nil {
			writeError(w, r, err)
			return
		}

		result, err := spec.run(r.Context(), rt.converter, up.files, up.params)
		if err != nil {
			// Covers option errors raised before the operation took ownership.
			rt.uploads.Discard(context.WithoutCancel(r.Context()), up.files)
			writeError(w, r, err)
			return
		}
		// Runs even when the client hung up and the request context is done.
		defer rt.converter.Release(context.WithoutCancel(r.Context()), result)

		archive := "results.zip"
		if spec.archiveSuffix != "" && len(up.files) > 0 {
			archive = up.files[0].Stem() + spec.archiveSuffix
		}
		if err := deliver(w, result, archive); err != nil {
			slog.Warn("delivery_failed",
				"request_id", domain.RequestIDFromContext(r.Context()),
				"job_id", result.JobID,
				"error", err,
			)
			if domain.IsKind(err, domain.ErrOutputInaccessible) {
				writeError(w, r, err)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
