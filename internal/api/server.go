// Package api serves the indexed entities over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/processor"
	"github.com/1hive/honeyswap-indexer/internal/store"
)

// Store is what the read API needs from a backend.
type Store interface {
	store.Reader
	store.Lister
}

var (
	pairOrders  = []string{"reserveUSD", "volumeUSD", "txCount", "trackedReserveNativeCurrency"}
	tokenOrders = []string{"tradeVolumeUSD", "totalLiquidity", "txCount"}
)

type APIServer struct {
	mux       *http.ServeMux
	store     Store
	factoryID string
	checks    map[string]Checker
	modules   Modules
	logger    zerolog.Logger
}

func NewAPIServer(s Store, factoryID string, logger zerolog.Logger) *APIServer {
	srv := &APIServer{
		mux:       http.NewServeMux(),
		store:     s,
		factoryID: factoryID,
		checks:    make(map[string]Checker),
		logger:    logger.With().Str("component", "api").Logger(),
	}
	srv.registerRoutes()
	return srv
}

// Handler exposes the routes with request logging.
func (s *APIServer) Handler() http.Handler {
	return s.logMiddleware(s.mux)
}

func (s *APIServer) Start(ctx context.Context, addr string) error {
	s.logger.Info().Str("addr", addr).Msg("Starting API server")
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info().Msg("Shutting down API server...")
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *APIServer) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /live", s.handleLive)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /modules/{name}/pause", s.handlePauseModule)
	s.mux.HandleFunc("POST /modules/{name}/resume", s.handleResumeModule)

	s.mux.HandleFunc("GET /bundle", s.handleBundle)
	s.mux.HandleFunc("GET /factory", s.handleFactory)
	s.mux.HandleFunc("GET /factory/day-data", s.handleFactoryDayData)

	s.mux.HandleFunc("GET /pairs", s.handlePairs)
	s.mux.HandleFunc("GET /pairs/{id}", s.handlePair)
	s.mux.HandleFunc("GET /pairs/{id}/day-data", s.handlePairDayData)
	s.mux.HandleFunc("GET /pairs/{id}/hour-data", s.handlePairHourData)

	s.mux.HandleFunc("GET /tokens", s.handleTokens)
	s.mux.HandleFunc("GET /tokens/{id}", s.handleToken)
	s.mux.HandleFunc("GET /tokens/{id}/day-data", s.handleTokenDayData)

	s.mux.HandleFunc("GET /transactions/{hash}", s.handleTransaction)
	s.mux.HandleFunc("GET /positions/{id}", s.handlePosition)
}

func (s *APIServer) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("latency", time.Since(start)).
			Msg("http")
	})
}

// fail maps store errors onto status codes.
func (s *APIServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrInvalidInput):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request, name string) string {
	return strings.ToLower(r.PathValue(name))
}

func orderParam(r *http.Request, allowed []string) (string, bool) {
	v := r.URL.Query().Get("order_by")
	if v == "" {
		return allowed[0], true
	}
	for _, a := range allowed {
		if a == v {
			return v, true
		}
	}
	return "", false
}

func getOne[T any](s *APIServer, w http.ResponseWriter, r *http.Request, kind entity.Kind, id string) {
	v, err := store.Load[T](r.Context(), s.store, kind, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, v, nil)
}

func list[T any](s *APIServer, w http.ResponseWriter, r *http.Request, kind entity.Kind, prefix, orderBy string) {
	req := parsePagination(r)
	items, err := store.ListAs[T](r.Context(), s.store, kind, req.listOptions(prefix, orderBy))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page(w, items, req)
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"time": time.Now().UTC()}
	cursor, ok, err := store.Find[entity.IndexerState](r.Context(), s.store, entity.KindIndexerState, processor.DefaultCursorID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ok {
		status["last_block"] = cursor.BlockNumber
		status["last_log_index"] = cursor.LogIndex
	}
	if s.modules != nil {
		status["modules"] = s.moduleInfos()
	}
	JSON(w, http.StatusOK, status, nil)
}

func (s *APIServer) handleBundle(w http.ResponseWriter, r *http.Request) {
	getOne[entity.Bundle](s, w, r, entity.KindBundle, entity.BundleID)
}

func (s *APIServer) handleFactory(w http.ResponseWriter, r *http.Request) {
	getOne[entity.Factory](s, w, r, entity.KindFactory, s.factoryID)
}

func (s *APIServer) handleFactoryDayData(w http.ResponseWriter, r *http.Request) {
	list[entity.FactoryDayData](s, w, r, entity.KindFactoryDayData, "", "date")
}

func (s *APIServer) handlePairs(w http.ResponseWriter, r *http.Request) {
	orderBy, ok := orderParam(r, pairOrders)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid order_by")
		return
	}
	list[entity.Pair](s, w, r, entity.KindPair, "", orderBy)
}

func (s *APIServer) handlePair(w http.ResponseWriter, r *http.Request) {
	getOne[entity.Pair](s, w, r, entity.KindPair, pathID(r, "id"))
}

func (s *APIServer) handlePairDayData(w http.ResponseWriter, r *http.Request) {
	list[entity.PairDayData](s, w, r, entity.KindPairDayData, pathID(r, "id")+"-", "date")
}

func (s *APIServer) handlePairHourData(w http.ResponseWriter, r *http.Request) {
	list[entity.PairHourData](s, w, r, entity.KindPairHourData, pathID(r, "id")+"-", "hourStartUnix")
}

func (s *APIServer) handleTokens(w http.ResponseWriter, r *http.Request) {
	orderBy, ok := orderParam(r, tokenOrders)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid order_by")
		return
	}
	list[entity.Token](s, w, r, entity.KindToken, "", orderBy)
}

func (s *APIServer) handleToken(w http.ResponseWriter, r *http.Request) {
	getOne[entity.Token](s, w, r, entity.KindToken, pathID(r, "id"))
}

func (s *APIServer) handleTokenDayData(w http.ResponseWriter, r *http.Request) {
	list[entity.TokenDayData](s, w, r, entity.KindTokenDayData, pathID(r, "id")+"-", "date")
}

func (s *APIServer) handlePosition(w http.ResponseWriter, r *http.Request) {
	getOne[entity.LiquidityPosition](s, w, r, entity.KindLiquidityPosition, pathID(r, "id"))
}

// transactionView is a transaction with its records inlined.
type transactionView struct {
	ID          string         `json:"id"`
	BlockNumber uint64         `json:"blockNumber"`
	Timestamp   uint64         `json:"timestamp"`
	Mints       []*entity.Mint `json:"mints"`
	Burns       []*entity.Burn `json:"burns"`
	Swaps       []*entity.Swap `json:"swaps"`
}

func (s *APIServer) handleTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tx, err := store.Load[entity.Transaction](ctx, s.store, entity.KindTransaction, pathID(r, "hash"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	view := transactionView{ID: tx.ID, BlockNumber: tx.BlockNumber, Timestamp: tx.Timestamp}
	if view.Mints, err = loadAll[entity.Mint](ctx, s.store, entity.KindMint, tx.Mints); err != nil {
		s.fail(w, r, err)
		return
	}
	if view.Burns, err = loadAll[entity.Burn](ctx, s.store, entity.KindBurn, tx.Burns); err != nil {
		s.fail(w, r, err)
		return
	}
	if view.Swaps, err = loadAll[entity.Swap](ctx, s.store, entity.KindSwap, tx.Swaps); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, view, nil)
}

// loadAll loads ids in order, skipping records removed since.
func loadAll[T any](ctx context.Context, r store.Reader, kind entity.Kind, ids []string) ([]*T, error) {
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		v, ok, err := store.Find[T](ctx, r, kind, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}
