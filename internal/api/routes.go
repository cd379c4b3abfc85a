package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/golang-sql/civil"

	"cot-lab/internal/catalog"
	"cot-lab/internal/domain"
	"cot-lab/internal/positioning"
	"cot-lab/internal/rangecache"
	"cot-lab/internal/storage"
)

// GetContracts handles GET /contracts/{reportType}.
func (h *Handler) GetContracts(w http.ResponseWriter, r *http.Request) {
	rt, err := reportTypeParam(r)
	if err != nil {
		h.fail(w, r, badRequest("reportType", err))
		return
	}
	contracts, err := h.catalogs.GetContracts(r.Context(), rt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, contracts)
}

// RefreshContracts handles POST /contracts/{reportType}/refresh.
func (h *Handler) RefreshContracts(w http.ResponseWriter, r *http.Request) {
	rt, err := reportTypeParam(r)
	if err != nil {
		h.fail(w, r, badRequest("reportType", err))
		return
	}
	contracts, err := h.catalogs.Refresh(r.Context(), rt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"report_type": rt,
		"contracts":   len(contracts),
	})
}

// GetGroups handles GET /index.
func (h *Handler) GetGroups(w http.ResponseWriter, r *http.Request) {
	idx, err := h.buildIndex(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, idx.Groups())
}

// GetSubgroups handles GET /index/{group}.
func (h *Handler) GetSubgroups(w http.ResponseWriter, r *http.Request) {
	h.children(w, r, func(idx *catalog.Index) ([]catalog.Child, error) {
		return idx.Subgroups(pathParam(r, "group"))
	})
}

// GetCommodities handles GET /index/{group}/{subgroup}.
func (h *Handler) GetCommodities(w http.ResponseWriter, r *http.Request) {
	h.children(w, r, func(idx *catalog.Index) ([]catalog.Child, error) {
		return idx.Commodities(pathParam(r, "group"), pathParam(r, "subgroup"))
	})
}

// GetMarkets handles GET /index/{group}/{subgroup}/{commodity}.
func (h *Handler) GetMarkets(w http.ResponseWriter, r *http.Request) {
	h.children(w, r, func(idx *catalog.Index) ([]catalog.Child, error) {
		return idx.Markets(pathParam(r, "group"), pathParam(r, "subgroup"), pathParam(r, "commodity"))
	})
}

func (h *Handler) children(w http.ResponseWriter, r *http.Request, list func(*catalog.Index) ([]catalog.Child, error)) {
	idx, err := h.buildIndex(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	children, err := list(idx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, children)
}

// GetContractSets handles GET /index/{group}/{subgroup}/{commodity}/sets.
func (h *Handler) GetContractSets(w http.ResponseWriter, r *http.Request) {
	idx, err := h.buildIndex(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sets, err := idx.ContractSets(pathParam(r, "group"), pathParam(r, "subgroup"), pathParam(r, "commodity"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, sets)
}

// observationResponse is the JSON form of an observation.
type observationResponse struct {
	ID                    string             `json:"id"`
	MarketCode            string             `json:"market_code"`
	ReportType            domain.ReportType  `json:"report_type"`
	Date                  string             `json:"date"`
	TimestampMs           int64              `json:"timestamp_ms"`
	MarketAndExchangeName string             `json:"market_and_exchange_name"`
	CommodityCode         string             `json:"commodity_code"`
	Fields                map[string]float64 `json:"fields"`
	HistoryExhausted      bool               `json:"history_exhausted,omitempty"`
}

func toResponse(observations []*domain.Observation) []observationResponse {
	out := make([]observationResponse, len(observations))
	for i, o := range observations {
		out[i] = observationResponse{
			ID:                    o.ID,
			MarketCode:            o.MarketCode,
			ReportType:            o.ReportType,
			Date:                  o.Date().String(),
			TimestampMs:           o.TimestampMs,
			MarketAndExchangeName: o.MarketAndExchangeName,
			CommodityCode:         o.CommodityCode,
			Fields:                o.Fields,
			HistoryExhausted:      o.HistoryExhausted,
		}
	}
	return out
}

// loadRange resolves the path and query into a clipped range result.
func (h *Handler) loadRange(r *http.Request) ([]*domain.Observation, error) {
	rt, err := reportTypeParam(r)
	if err != nil {
		return nil, badRequest("reportType", err)
	}
	start, end, err := h.rangeParams(r)
	if err != nil {
		return nil, err
	}
	req := domain.RangeRequest{
		MarketCode: pathParam(r, "marketCode"),
		ReportType: rt,
		Start:      start,
		End:        end,
	}
	observations, err := h.ranges.GetRange(r.Context(), req)
	if err != nil {
		return nil, err
	}
	return rangecache.Clip(observations, req), nil
}

// GetObservations handles GET /observations/{reportType}/{marketCode}?start=&end=.
func (h *Handler) GetObservations(w http.ResponseWriter, r *http.Request) {
	observations, err := h.loadRange(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, toResponse(observations))
}

func (h *Handler) series(r *http.Request) (*positioning.Series, error) {
	measure := positioning.MeasureNet
	if s := r.URL.Query().Get("measure"); s != "" {
		m, err := positioning.ParseMeasure(s)
		if err != nil {
			return nil, badRequest("measure", err)
		}
		measure = m
	}

	observations, err := h.loadRange(r)
	if err != nil {
		return nil, err
	}
	series, err := positioning.Extract(observations, r.URL.Query().Get("category"), measure)
	if err != nil {
		return nil, badRequest("category", err)
	}
	return series, nil
}

// GetSeries handles GET /series/{reportType}/{marketCode}?category=&measure=&start=&end=.
func (h *Handler) GetSeries(w http.ResponseWriter, r *http.Request) {
	series, err := h.series(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, series)
}

// GetOscillator handles GET /oscillators/{reportType}/{marketCode}
// ?category=&measure=&transform=&lookback=&low=&high=&start=&end=.
func (h *Handler) GetOscillator(w http.ResponseWriter, r *http.Request) {
	lookback, err := intParam(r, "lookback", positioning.DefaultLookback)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	low, err := floatParam(r, "low")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	high, err := floatParam(r, "high")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	transform := positioning.Transform(r.URL.Query().Get("transform"))
	if transform == "" {
		transform = positioning.TransformZScore
	}

	series, err := h.series(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	osc, err := positioning.Oscillator(series, positioning.OscillatorSpec{
		Transform: transform,
		Lookback:  lookback,
		ScaleLow:  low,
		ScaleHigh: high,
	})
	if err != nil {
		h.fail(w, r, badRequest("transform", err))
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"transform": transform,
		"lookback":  lookback,
		"series":    osc,
	})
}

// GetSnapshot handles GET /snapshot/{reportType}/{date}: every instrument's
// cached row for one report date.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	rt, err := reportTypeParam(r)
	if err != nil {
		h.fail(w, r, badRequest("reportType", err))
		return
	}
	d, err := civil.ParseDate(pathParam(r, "date"))
	if err != nil {
		h.fail(w, r, badRequest("date", err))
		return
	}

	observations, err := h.observations.GetByTimestamp(r.Context(), rt, domain.DateToMs(d))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %w", storage.ErrStore, err))
		return
	}
	render.JSON(w, r, toResponse(observations))
}
