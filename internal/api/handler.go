// Package api exposes the caches, the contracts index and the oscillator
// builders as a read-only JSON API.
package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/golang-sql/civil"
	"github.com/sirupsen/logrus"

	"cot-lab/internal/catalog"
	"cot-lab/internal/domain"
	"cot-lab/internal/logging"
	"cot-lab/internal/observability"
	"cot-lab/internal/storage"
)

// DefaultHistory is the range served when a request names no start date.
const DefaultHistory = 3 * 365

// RangeService answers range requests.
type RangeService interface {
	GetRange(ctx context.Context, req domain.RangeRequest) ([]*domain.Observation, error)
}

// CatalogService serves and refreshes contract catalogs.
type CatalogService interface {
	GetContracts(ctx context.Context, reportType domain.ReportType) ([]*domain.Contract, error)
	Refresh(ctx context.Context, reportType domain.ReportType) ([]*domain.Contract, error)
	GetAll(ctx context.Context) ([]*domain.Contract, error)
}

// Handler serves the HTTP API.
type Handler struct {
	ranges       RangeService
	catalogs     CatalogService
	observations storage.ObservationStore
	logger       *logrus.Entry
	today        func() civil.Date
}

// NewHandler creates a Handler.
func NewHandler(ranges RangeService, catalogs CatalogService, observations storage.ObservationStore, logger *logrus.Entry) *Handler {
	return &Handler{
		ranges:       ranges,
		catalogs:     catalogs,
		observations: observations,
		logger:       logging.OrDiscard(logger),
		today:        func() civil.Date { return civil.DateOf(time.Now().UTC()) },
	}
}

// Router returns the complete router including /health and /metrics.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", observability.Handler())

	r.Mount("/api/v1", h.Routes())
	return r
}

// Routes returns the API routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Route("/contracts/{reportType}", func(r chi.Router) {
		r.Get("/", h.GetContracts)
		r.Post("/refresh", h.RefreshContracts)
	})

	r.Route("/index", func(r chi.Router) {
		r.Get("/", h.GetGroups)
		r.Get("/{group}", h.GetSubgroups)
		r.Get("/{group}/{subgroup}", h.GetCommodities)
		r.Get("/{group}/{subgroup}/{commodity}", h.GetMarkets)
		r.Get("/{group}/{subgroup}/{commodity}/sets", h.GetContractSets)
	})

	r.Get("/observations/{reportType}/{marketCode}", h.GetObservations)
	r.Get("/series/{reportType}/{marketCode}", h.GetSeries)
	r.Get("/oscillators/{reportType}/{marketCode}", h.GetOscillator)
	r.Get("/snapshot/{reportType}/{date}", h.GetSnapshot)

	return r
}

// logRequests logs one line per request.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.WithFields(logrus.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(started).Milliseconds(),
		}).Debug("request served")
	})
}

// pathParam returns an unescaped URL parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func reportTypeParam(r *http.Request) (domain.ReportType, error) {
	return domain.ParseReportType(pathParam(r, "reportType"))
}

// rangeParams reads start and end query parameters (YYYY-MM-DD).
func (h *Handler) rangeParams(r *http.Request) (civil.Date, civil.Date, error) {
	q := r.URL.Query()

	end := h.today()
	if s := q.Get("end"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			return civil.Date{}, civil.Date{}, badRequest("end", err)
		}
		end = d
	}

	start := end.AddDays(-DefaultHistory)
	if s := q.Get("start"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			return civil.Date{}, civil.Date{}, badRequest("start", err)
		}
		start = d
	}
	return start, end, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, badRequest(name, err)
	}
	return v, nil
}

func floatParam(r *http.Request, name string) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, badRequest(name, err)
	}
	return v, nil
}

// buildIndex indexes the catalogs of every report type.
func (h *Handler) buildIndex(ctx context.Context) (*catalog.Index, error) {
	all, err := h.catalogs.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.BuildIndex(all, catalog.WithIndexLogger(h.logger)), nil
}
