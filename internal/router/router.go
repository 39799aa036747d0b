// Package router sequences each order through
// fetch -> validate -> transform -> check_inventory -> create_order,
// halting at the first hard failure and aggregating batch results.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"orderbridge/internal/errs"
	"orderbridge/internal/events"
	"orderbridge/internal/inventory"
	"orderbridge/internal/metrics"
	"orderbridge/internal/model"
	"orderbridge/internal/provider"
	"orderbridge/internal/source"
	"orderbridge/internal/store"
	"orderbridge/internal/transform"
	"orderbridge/internal/validate"
)

// SourceClient is the slice of the source adapter the router uses.
type SourceClient interface {
	ListPendingOrders(ctx context.Context, filters source.ListFilters) ([]model.RawOrder, error)
	GetOrderDetail(ctx context.Context, orderID string) (model.RawOrder, error)
}

// ProviderClient is the slice of the fulfillment adapter the router uses.
type ProviderClient interface {
	CreateFulfillmentOrder(ctx context.Context, req model.ProviderOrderRequest) (provider.CreateAck, error)
	GetFulfillmentOrder(ctx context.Context, providerOrderID string) (model.ProviderOrderDetail, error)
}

// Oracle is the slice of the inventory oracle the router uses.
type Oracle interface {
	CheckBatch(ctx context.Context, checks []inventory.Check) (inventory.BatchResult, error)
}

// Options tunes batch routing.
type Options struct {
	// FanOut is how many orders route concurrently within one batch.
	FanOut int
	// ContinueOnError keeps a batch going past individual hard failures.
	ContinueOnError bool
	// BatchSize bounds one listing page when routing pending orders.
	BatchSize int
}

type Router struct {
	src    SourceClient
	prov   ProviderClient
	oracle Oracle
	tf     *transform.Transformer
	store  store.Store
	broker events.Broker
	opts   Options

	routed atomic.Int64
	failed atomic.Int64
	lastMu sync.Mutex
	last   time.Time
}

func New(src SourceClient, prov ProviderClient, oracle Oracle, tf *transform.Transformer, st store.Store, broker events.Broker, opts Options) *Router {
	if opts.FanOut <= 0 {
		opts.FanOut = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Router{src: src, prov: prov, oracle: oracle, tf: tf, store: st, broker: broker, opts: opts}
}

// RouteOne runs the full pipeline for one order id. It always produces
// exactly one RoutingOutcome, persisted and published before returning.
func (r *Router) RouteOne(ctx context.Context, orderID string) model.RoutingOutcome {
	out := r.routeOne(ctx, orderID)
	out.CompletedAt = time.Now().UTC()
	if r.store != nil {
		_ = r.store.SaveOutcome(ctx, out)
	}
	if out.Success {
		r.routed.Add(1)
		metrics.RoutingOutcomes.WithLabelValues("success", "").Inc()
		if r.broker != nil {
			r.broker.Publish(events.TopicOrderRouted, events.Event{Data: map[string]any{
				"orderId": out.OrderID, "providerOrderId": out.ProviderOrderID,
			}})
		}
	} else {
		r.failed.Add(1)
		metrics.RoutingOutcomes.WithLabelValues("failure", string(out.FailedStage)).Inc()
		if r.broker != nil {
			r.broker.Publish(events.TopicOrderFailed, events.Event{Data: map[string]any{
				"orderId": out.OrderID, "stage": string(out.FailedStage), "code": out.ErrorCode,
			}})
		}
	}
	return out
}

func (r *Router) routeOne(ctx context.Context, orderID string) model.RoutingOutcome {
	// fetched
	raw, err := r.src.GetOrderDetail(ctx, orderID)
	if err != nil {
		return failure(orderID, err, model.StageFetch, nil)
	}

	// validated
	res, ferrs := validate.Order(raw)
	if len(ferrs) > 0 {
		msgs := make([]string, len(ferrs))
		for i, fe := range ferrs {
			msgs[i] = fe.Error()
		}
		return failure(orderID,
			errs.New(model.StageValidate, errs.KindMalformedInput, strings.Join(msgs, "; ")).WithOrder(orderID),
			model.StageValidate, nil)
	}
	warnings := res.Warnings

	// transformed
	tres, err := r.tf.Order(res.Order, res.Address)
	if err != nil {
		return failure(orderID, err, model.StageTransform, warnings)
	}
	warnings = append(warnings, tres.Warnings...)
	req := tres.Request

	// inventory_checked
	checks := make([]inventory.Check, len(req.Items))
	for i, it := range req.Items {
		checks[i] = inventory.Check{SKU: it.SellerSKU, Quantity: it.Quantity}
	}
	batch, err := r.oracle.CheckBatch(ctx, checks)
	if err != nil {
		// network/provider failure, distinct from insufficiency
		return failure(orderID, err, model.StageInventory, warnings)
	}
	var short []string
	var lowStock []string
	for _, cr := range batch.Results {
		if cr.Err != "" {
			short = append(short, fmt.Sprintf("%s: %s", cr.SKU, cr.Err))
			continue
		}
		if !cr.Sufficient {
			short = append(short, fmt.Sprintf("%s: requested %d, available %d", cr.SKU, cr.Requested, cr.Available))
		}
		if cr.LowStock {
			lowStock = append(lowStock, cr.SKU)
		}
	}
	if len(lowStock) > 0 && r.broker != nil {
		r.broker.Publish(events.TopicLowStock, events.Event{Data: map[string]any{"skus": lowStock}})
	}
	if len(short) > 0 {
		return failure(orderID,
			errs.New(model.StageInventory, errs.KindInsufficientInventory, strings.Join(short, "; ")).WithOrder(orderID),
			model.StageInventory, warnings)
	}

	// submitted
	ack, err := r.prov.CreateFulfillmentOrder(ctx, req)
	if err != nil {
		return failure(orderID, err, model.StageCreateOrder, warnings)
	}
	out := model.RoutingOutcome{
		OrderID:         orderID,
		Success:         true,
		ProviderOrderID: ack.ProviderOrderID,
		RequestID:       req.RequestID,
		Warnings:        warnings,
	}

	// best-effort enrichment; its failure never downgrades the submission
	if detail, derr := r.prov.GetFulfillmentOrder(ctx, ack.ProviderOrderID); derr == nil {
		out.Detail = &detail
	} else {
		out.DetailError = derr.Error()
	}

	if r.store != nil {
		_ = r.store.UpsertTrackingRecord(ctx, model.TrackingRecord{
			SourceOrderID:   orderID,
			PackageID:       res.Order.PackageID,
			ProviderOrderID: ack.ProviderOrderID,
		})
	}
	return out
}

// RouteBatch routes ids in fixed-size concurrency windows. Orders in flight
// share no mutable state besides the oracle's cache.
func (r *Router) RouteBatch(ctx context.Context, orderIDs []string) model.BatchRoutingResult {
	result := model.BatchRoutingResult{TotalOrders: len(orderIDs)}
	outcomes := make([]model.RoutingOutcome, len(orderIDs))

	aborted := false
	for start := 0; start < len(orderIDs) && !aborted; start += r.opts.FanOut {
		end := start + r.opts.FanOut
		if end > len(orderIDs) {
			end = len(orderIDs)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i] = r.RouteOne(ctx, orderIDs[i])
			}(i)
		}
		wg.Wait()
		if !r.opts.ContinueOnError {
			for i := start; i < end; i++ {
				if !outcomes[i].Success {
					aborted = true
					break
				}
			}
		}
	}

	for _, out := range outcomes {
		if out.OrderID == "" {
			continue // window never ran (batch aborted)
		}
		result.Results = append(result.Results, out)
		if out.Success {
			result.SuccessCount++
		} else {
			result.FailureCount++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", out.OrderID, out.ErrorMsg))
		}
	}
	r.lastMu.Lock()
	r.last = time.Now().UTC()
	r.lastMu.Unlock()
	return result
}

// RoutePendingOrders lists all fulfillment-pending orders from the source,
// then batch-routes their ids.
func (r *Router) RoutePendingOrders(ctx context.Context) (model.BatchRoutingResult, error) {
	raws, err := r.src.ListPendingOrders(ctx, source.ListFilters{PageSize: r.opts.BatchSize})
	if err != nil {
		return model.BatchRoutingResult{}, errs.AsEngine(err, model.StageFetch)
	}
	ids := make([]string, 0, len(raws))
	for _, raw := range raws {
		if raw.OrderID != "" {
			ids = append(ids, raw.OrderID)
		}
	}
	return r.RouteBatch(ctx, ids), nil
}

// Stats is the router's operational introspection.
type Stats struct {
	TotalRouted int64     `json:"totalRouted"`
	TotalFailed int64     `json:"totalFailed"`
	LastBatchAt time.Time `json:"lastBatchAt,omitempty"`
}

func (r *Router) Stats() Stats {
	r.lastMu.Lock()
	last := r.last
	r.lastMu.Unlock()
	return Stats{TotalRouted: r.routed.Load(), TotalFailed: r.failed.Load(), LastBatchAt: last}
}

func failure(orderID string, err error, stage model.Stage, warnings []string) model.RoutingOutcome {
	e := errs.AsEngine(err, stage)
	return model.RoutingOutcome{
		OrderID:     orderID,
		Success:     false,
		Warnings:    warnings,
		FailedStage: e.Stage,
		ErrorCode:   string(e.Kind),
		ErrorMsg:    e.Error(),
	}
}
