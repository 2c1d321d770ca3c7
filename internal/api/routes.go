// Package api provides HTTP handlers for the ESVD explorer server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/esvd-explorer/server/internal/filter"
	"github.com/esvd-explorer/server/internal/metrics"
	"github.com/esvd-explorer/server/internal/service"
	"github.com/esvd-explorer/server/internal/session"
	"github.com/esvd-explorer/server/pkg/colormap"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *DatasetRegistry
	CORSOrigins []string
	Sessions    *session.Store
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", warningHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	// Global datasets endpoint (not dataset-scoped)
	r.Get("/api/datasets", datasetsHandler(cfg.Registry))

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(datasetMiddleware(cfg.Registry))

		r.Route("/api", func(r chi.Router) {
			// Stateless: selections come from the query string.
			r.Get("/options", datasetHandler(optionsHandler))
			r.Get("/summary", datasetHandler(summaryHandler))
			r.Get("/points", datasetHandler(pointsHandler))
			r.Get("/export.csv", datasetHandler(exportCSVHandler))
			r.Get("/export.xlsx", datasetHandler(exportXLSXHandler))
			r.Get("/map.png", datasetHandler(mapPNGHandler))

			// Sessions hold selections between requests.
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", sessionCreateHandler(cfg.Sessions))
				r.Route("/{session_id}", func(r chi.Router) {
					r.Use(sessionMiddleware(cfg.Sessions))
					r.Get("/", sessionStateHandler)
					r.Delete("/", sessionDeleteHandler(cfg.Sessions))
					r.Put("/selection", sessionSelectionHandler)
					r.Get("/summary", sessionSummaryHandler)
					r.Get("/points", sessionPointsHandler)
					r.Get("/export.csv", sessionExportCSVHandler)
				})
			})
		})
	})

	return r
}

// warningHeader carries non-fatal pipeline warnings on binary responses.
const warningHeader = "X-ESVD-Warning"

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Context keys
type ctxKey string

const (
	datasetServiceKey ctxKey = "datasetService"
	sessionKey        ctxKey = "session"
)

// datasetMiddleware resolves the dataset from URL and injects the explorer into context.
func datasetMiddleware(registry *DatasetRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			datasetID := chi.URLParam(r, "dataset")
			svc := registry.Get(datasetID)
			if svc == nil {
				http.Error(w, "dataset not found: "+datasetID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), datasetServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getDatasetService(r *http.Request) *service.Explorer {
	if svc, ok := r.Context().Value(datasetServiceKey).(*service.Explorer); ok {
		return svc
	}
	return nil
}

// datasetHandler adapts a handler factory to the explorer found in context.
func datasetHandler(h func(*service.Explorer) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := getDatasetService(r)
		if svc == nil {
			http.Error(w, "dataset service not found", http.StatusInternalServerError)
			return
		}
		h(svc)(w, r)
	}
}

// datasetsHandler returns the list of available datasets.
func datasetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"default":   registry.DefaultDatasetID(),
			"datasets":  registry.Datasets(),
			"title":     registry.Title(),
			"colormaps": colormap.Names(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// writePipelineError maps pipeline errors to responses. Fatal cascade
// conditions are 422 and carry the stages resolved so far.
func writePipelineError(w http.ResponseWriter, err error) {
	var perr *service.PipelineError
	if errors.As(err, &perr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":      perr.Error(),
			"fatal":      true,
			"resolution": perr.Resolution,
		})
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// parseSelection reads one level from the query string: an absent parameter
// holds nothing, an empty value is ALL and anything else is a category.
func parseSelection(query url.Values, name string) filter.Selection {
	values, ok := query[name]
	if !ok || len(values) == 0 {
		return filter.None
	}
	if values[0] == "" {
		return filter.All()
	}
	return filter.Value(values[0])
}

func parseChain(query url.Values) filter.Chain {
	return filter.Chain{
		Biome:     parseSelection(query, string(filter.LevelBiome)),
		Ecozone:   parseSelection(query, string(filter.LevelEcozone)),
		Ecosystem: parseSelection(query, string(filter.LevelEcosystem)),
	}
}

func optionsHandler(svc *service.Explorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		snap, err := svc.Resolve(parseChain(query), parseSelection(query, string(filter.LevelService)))
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func summaryHandler(svc *service.Explorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := svc.SummaryJSON(parseChain(r.URL.Query()))
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeRawJSON(w, data)
	}
}

func pointsHandler(svc *service.Explorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		data, err := svc.MapJSON(parseChain(query), parseSelection(query, string(filter.LevelService)))
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeRawJSON(w, data)
	}
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Write(data)
}

func exportCSVHandler(svc *service.Explorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, data, err := svc.ExportCSV(parseChain(r.URL.Query()))
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeAttachment(w, "text/csv; charset=utf-8", name, data)
	}
}

func exportXLSXHandler(svc *service.Explorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, data, err := svc.ExportXLSX(parseChain(r.URL.Query()))
		if err != nil {
			writePipelineError(w, err)
			return
		}
		writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", name, data)
	}
}

func mapPNGHandler(svc *service.Explorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		data, warning, err := svc.MapPNG(parseChain(query), parseSelection(query, string(filter.LevelService)), query.Get("colormap"))
		if err != nil {
			writePipelineError(w, err)
			return
		}
		if warning != "" {
			w.Header().Set(warningHeader, warning)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=600")
		w.Write(data)
	}
}
