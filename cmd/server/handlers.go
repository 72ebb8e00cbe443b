package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"launchpad/internal/candles"
	"launchpad/internal/chain"
	"launchpad/internal/curve"
	"launchpad/internal/domain"
	"launchpad/internal/graduation"
	"launchpad/internal/observability"
	"launchpad/internal/storage"
	"launchpad/internal/trading"
)

// api holds the HTTP handlers' dependencies.
type api struct {
	service    *trading.Service
	aggregator *candles.Aggregator
	controller *graduation.Controller // nil when no venue is configured
	logger     *logrus.Logger
}

func newAPI(service *trading.Service, aggregator *candles.Aggregator, controller *graduation.Controller, logger *logrus.Logger) *api {
	return &api{
		service:    service,
		aggregator: aggregator,
		controller: controller,
		logger:     logger,
	}
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tokens", a.handleCreateToken)
		r.Get("/tokens", a.handleListTokens)
		r.Post("/trades", a.handleSettle)

		r.Route("/tokens/{mint}", func(r chi.Router) {
			r.Get("/", a.handleGetToken)
			r.Get("/quote", a.handleQuote)
			r.Get("/trades", a.handleTrades)
			r.Get("/candles", a.handleCandles)
			r.Get("/graduation", a.handleGraduationStatus)
			r.Post("/graduate", a.handleGraduate)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	return r
}

// tokenResponse is the wire shape of an asset.
type tokenResponse struct {
	Mint        string  `json:"mint"`
	Creator     string  `json:"creator"`
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	URI         string  `json:"uri"`
	TotalSupply uint64  `json:"totalSupply"`
	Graduated   bool    `json:"graduated"`
	Released    bool    `json:"released"`
	PoolID      *string `json:"poolId,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
	GraduatedAt *int64  `json:"graduatedAt,omitempty"`

	VirtualBase  uint64 `json:"virtualBase"`
	VirtualQuote uint64 `json:"virtualQuote"`
	RealBase     uint64 `json:"realBase"`
	RealQuote    uint64 `json:"realQuote"`
}

func toTokenResponse(asset *domain.Asset) tokenResponse {
	return tokenResponse{
		Mint:         asset.Mint,
		Creator:      asset.Creator,
		Name:         asset.Name,
		Symbol:       asset.Symbol,
		URI:          asset.URI,
		TotalSupply:  asset.TotalSupply,
		Graduated:    asset.Graduated,
		Released:     asset.Released,
		PoolID:       asset.PoolID,
		CreatedAt:    asset.CreatedAt,
		GraduatedAt:  asset.GraduatedAt,
		VirtualBase:  asset.Reserves.VirtualBase,
		VirtualQuote: asset.Reserves.VirtualQuote,
		RealBase:     asset.Reserves.RealBase,
		RealQuote:    asset.Reserves.RealQuote,
	}
}

func (a *api) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req trading.CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	asset, err := a.service.CreateToken(r.Context(), &req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTokenResponse(asset))
}

func (a *api) handleListTokens(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)

	assets, err := a.service.ListTokens(r.Context(), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	out := make([]tokenResponse, 0, len(assets))
	for _, asset := range assets {
		out = append(out, toTokenResponse(asset))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleGetToken(w http.ResponseWriter, r *http.Request) {
	info, err := a.service.Token(r.Context(), chi.URLParam(r, "mint"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		tokenResponse
		Price        float64  `json:"price"`
		PriceUSD     *float64 `json:"priceUsd,omitempty"`
		MarketCap    float64  `json:"marketCap"`
		MarketCapUSD *float64 `json:"marketCapUsd,omitempty"`
		Progress     float64  `json:"graduationProgress"`
		CurveAddress string   `json:"curveAddress"`
		SolVault     string   `json:"solVault"`
		TokenVault   string   `json:"tokenVault"`
	}{
		tokenResponse: toTokenResponse(info.Asset),
		Price:         info.Price,
		PriceUSD:      info.PriceUSD,
		MarketCap:     info.MarketCap,
		MarketCapUSD:  info.MarketCapUSD,
		Progress:      info.Progress,
		CurveAddress:  info.CurveAddress,
		SolVault:      info.SolVault,
		TokenVault:    info.TokenVault,
	})
}

func (a *api) handleQuote(w http.ResponseWriter, r *http.Request) {
	side := domain.Side(r.URL.Query().Get("side"))
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a positive integer")
		return
	}

	quote, err := a.service.Quote(r.Context(), chi.URLParam(r, "mint"), side, amount)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"side":            quote.Side,
		"mint":            quote.Mint,
		"amount":          quote.Amount,
		"amountOut":       quote.AmountOut,
		"fee":             quote.Fee,
		"capped":          quote.Capped,
		"priceImpact":     quote.PriceImpact,
		"spotPrice":       quote.SpotPrice,
		"newVirtualQuote": quote.NewVirtualQuote,
		"newVirtualBase":  quote.NewVirtualBase,
	})
}

func (a *api) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req trading.SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := a.service.Settle(r.Context(), &req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	resp := map[string]any{
		"signature": result.Signature,
		"recorded":  result.Recorded,
		"duplicate": result.Duplicate,
	}
	if result.Trade != nil {
		resp["trade"] = map[string]any{
			"side":        result.Trade.Side,
			"quoteAmount": result.Trade.QuoteAmount,
			"baseAmount":  result.Trade.BaseAmount,
			"price":       result.Trade.Price,
			"protocolFee": result.Trade.ProtocolFee,
			"creatorFee":  result.Trade.CreatorFee,
			"slot":        result.Trade.Slot,
			"timestamp":   result.Trade.Timestamp,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)

	trades, err := a.service.Trades(r.Context(), chi.URLParam(r, "mint"), limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(trades))
	for _, t := range trades {
		out = append(out, map[string]any{
			"signature":   t.Signature,
			"trader":      t.Trader,
			"side":        t.Side,
			"quoteAmount": t.QuoteAmount,
			"baseAmount":  t.BaseAmount,
			"price":       t.Price,
			"timestamp":   t.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// candleResponse is the wire shape of one OHLCV bucket.
type candleResponse struct {
	BucketStart int64   `json:"bucketStart"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`

	OpenUSD  *float64 `json:"openUsd,omitempty"`
	HighUSD  *float64 `json:"highUsd,omitempty"`
	LowUSD   *float64 `json:"lowUsd,omitempty"`
	CloseUSD *float64 `json:"closeUsd,omitempty"`

	Volume     float64  `json:"volume"`
	VolumeUSD  *float64 `json:"volumeUsd,omitempty"`
	TradeCount int      `json:"tradeCount"`
}

func (a *api) handleCandles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	interval := domain.Interval(q.Get("interval"))
	if interval == "" {
		interval = domain.Interval1m
	}

	from := queryInt64(r, "from", 0)
	to := queryInt64(r, "to", 0)
	limit := queryInt(r, "limit", 500)
	view := q.Get("view")

	list, err := a.aggregator.History(r.Context(), chi.URLParam(r, "mint"), interval, from, to, limit)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	out := make([]candleResponse, 0, len(list))
	for _, c := range list {
		resp := candleResponse{
			BucketStart: c.BucketStart,
			Open:        c.Open,
			High:        c.High,
			Low:         c.Low,
			Close:       c.Close,
			Volume:      c.Volume,
			TradeCount:  c.TradeCount,
		}
		// The native view strips USD legs; the default includes both.
		if view != "native" {
			resp.OpenUSD = c.OpenUSD
			resp.HighUSD = c.HighUSD
			resp.LowUSD = c.LowUSD
			resp.CloseUSD = c.CloseUSD
			resp.VolumeUSD = c.VolumeUSD
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleGraduationStatus(w http.ResponseWriter, r *http.Request) {
	if a.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "graduation disabled: no venue configured")
		return
	}

	status, err := a.controller.Status(r.Context(), chi.URLParam(r, "mint"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *api) handleGraduate(w http.ResponseWriter, r *http.Request) {
	if a.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "graduation disabled: no venue configured")
		return
	}

	status, err := a.controller.Release(r.Context(), chi.URLParam(r, "mint"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// writeServiceError maps service errors onto HTTP status codes.
func (a *api) writeServiceError(w http.ResponseWriter, err error) {
	var execErr *chain.ExecutionError

	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, trading.ErrValidation),
		errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, curve.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrDuplicateKey),
		errors.Is(err, trading.ErrGraduated),
		errors.Is(err, graduation.ErrNotGraduated):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &execErr):
		writeError(w, http.StatusUnprocessableEntity, execErr.Error())
	case errors.Is(err, domain.ErrReserveViolation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		a.logger.WithError(err).Error("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryInt64(r *http.Request, key string, fallback int64) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
