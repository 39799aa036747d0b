// Package api is the engine's operator surface: health, stats, manual
// triggers, Prometheus metrics and a websocket event stream. It is not part
// of the routing data path.
package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderbridge/internal/buildinfo"
	"orderbridge/internal/events"
	"orderbridge/internal/inventory"
	"orderbridge/internal/metrics"
	"orderbridge/internal/model"
	"orderbridge/internal/router"
	"orderbridge/internal/store"
	"orderbridge/internal/tracking"
)

// Ready reports whether the engine's backing services are reachable.
type Ready func(ctx context.Context) error

type Server struct {
	Router *router.Router
	Oracle *inventory.Oracle
	Sync   *tracking.Synchronizer
	Store  store.Store
	Broker events.Broker
	Ready  Ready
}

// Routes builds the ops mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/v1/stats", s.StatsHandler)
	mux.HandleFunc("/v1/outcomes", s.OutcomesHandler)
	mux.HandleFunc("/v1/inventory/low-stock", s.LowStockHandler)
	mux.HandleFunc("/v1/route/pending", s.RoutePendingHandler)
	mux.HandleFunc("/v1/route/orders", s.RouteOrdersHandler)
	mux.HandleFunc("/v1/tracking/sync", s.TrackingSyncHandler)
	mux.HandleFunc("/v1/events/ws", s.EventsWSHandler)
	return mux
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		if err := s.Ready(r.Context()); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// statsResponse is assembled from the three stat-bearing components; any of
// them may be nil in partial deployments.
type statsResponse struct {
	Routing   *router.Stats         `json:"routing,omitempty"`
	Inventory *inventory.CacheStats `json:"inventory,omitempty"`
	Tracking  *tracking.Stats       `json:"tracking,omitempty"`
}

func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var resp statsResponse
	if s.Router != nil {
		st := s.Router.Stats()
		resp.Routing = &st
	}
	if s.Oracle != nil {
		st := s.Oracle.Stats()
		resp.Inventory = &st
	}
	if s.Sync != nil {
		st := s.Sync.Stats()
		resp.Tracking = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) OutcomesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cursor := r.URL.Query().Get("cursor")
	limit := queryInt(r, "limit", 100)
	items, next, err := s.Store.ListOutcomes(r.Context(), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List outcomes failed", err.Error(), r.URL.Path)
		return
	}
	if items == nil {
		items = []model.RoutingOutcome{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) LowStockHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	skus := s.Oracle.LowStockSKUs()
	if skus == nil {
		skus = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"skus": skus})
}

// RoutePendingHandler triggers a full fetch-and-route pass on demand.
func (s *Server) RoutePendingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	res, err := s.Router.RoutePendingOrders(r.Context())
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "Route pending failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RouteOrdersHandler routes an explicit list of source order ids.
func (s *Server) RouteOrdersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		OrderIDs []string `json:"orderIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if len(req.OrderIDs) == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid request", "orderIds required", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, s.Router.RouteBatch(r.Context(), req.OrderIDs))
}

// TrackingSyncHandler triggers one tracking reconciliation pass on demand.
func (s *Server) TrackingSyncHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Sync.SyncAll(r.Context()))
}
