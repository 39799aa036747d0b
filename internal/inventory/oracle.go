// Package inventory answers "can this SKU/quantity ship now" from a
// time-bounded cache over the provider's inventory query.
package inventory

import (
	"context"
	"sync"
	"time"

	"orderbridge/internal/errs"
	"orderbridge/internal/metrics"
	"orderbridge/internal/model"
	"orderbridge/internal/provider"
)

// Querier is the slice of the fulfillment adapter the oracle needs.
type Querier interface {
	GetInventorySummaries(ctx context.Context, skus []string) ([]provider.InventorySummary, error)
}

// Options tunes one oracle instance.
type Options struct {
	TTL               time.Duration
	SafetyStock       int
	LowStockThreshold int
	// ChunkSize is the provider's max SKUs per inventory query.
	ChunkSize int
}

// Oracle caches per-SKU snapshots for a fixed TTL. Always construct one per
// pipeline; it is deliberately not a package singleton.
type Oracle struct {
	q    Querier
	opts Options

	mu     sync.RWMutex
	cache  map[string]model.InventorySnapshot
	hits   int64
	misses int64

	// now is swappable in tests.
	now func() time.Time
}

func New(q Querier, opts Options) *Oracle {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 50
	}
	return &Oracle{q: q, opts: opts, cache: map[string]model.InventorySnapshot{}, now: time.Now}
}

// Check is one SKU/quantity question.
type Check struct {
	SKU      string
	Quantity int
}

// CheckResult is the per-SKU answer. Err is set only for that SKU (absent
// from the provider response); it never fails the batch.
type CheckResult struct {
	SKU        string `json:"sku"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
	Sufficient bool   `json:"sufficient"`
	LowStock   bool   `json:"lowStock"`
	CacheHit   bool   `json:"cacheHit"`
	Err        string `json:"error,omitempty"`
}

// BatchResult aggregates a batch check. For batches with zero per-SKU errors,
// SufficientCount + InsufficientCount == TotalSKUs.
type BatchResult struct {
	TotalSKUs         int           `json:"totalSkus"`
	SufficientCount   int           `json:"sufficientCount"`
	InsufficientCount int           `json:"insufficientCount"`
	ErrorCount        int           `json:"errorCount"`
	Results           []CheckResult `json:"results"`
}

// CheckOne answers for a single SKU. The returned error is a transport or
// provider failure, not an insufficiency.
func (o *Oracle) CheckOne(ctx context.Context, sku string, qty int) (CheckResult, error) {
	batch, err := o.CheckBatch(ctx, []Check{{SKU: sku, Quantity: qty}})
	if err != nil {
		return CheckResult{}, err
	}
	return batch.Results[0], nil
}

// CheckBatch partitions the requests into cache hits and misses, queries the
// misses in provider-max-sized chunks, and answers each SKU independently.
func (o *Oracle) CheckBatch(ctx context.Context, checks []Check) (BatchResult, error) {
	now := o.now()

	// Partition against the cache. Expired entries are evicted here, on
	// access, never by a background sweeper.
	hit := make(map[string]model.InventorySnapshot, len(checks))
	var missList []string
	seen := map[string]bool{}
	o.mu.Lock()
	for _, c := range checks {
		if seen[c.SKU] {
			continue
		}
		seen[c.SKU] = true
		snap, ok := o.cache[c.SKU]
		if ok && snap.Expired(now) {
			delete(o.cache, c.SKU)
			metrics.InventoryCache.WithLabelValues("expired").Inc()
			ok = false
		}
		if ok {
			hit[c.SKU] = snap
			o.hits++
			metrics.InventoryCache.WithLabelValues("hit").Inc()
		} else {
			missList = append(missList, c.SKU)
			o.misses++
			metrics.InventoryCache.WithLabelValues("miss").Inc()
		}
	}
	o.mu.Unlock()

	// Query misses outside the lock.
	fetched := make(map[string]model.InventorySnapshot, len(missList))
	for start := 0; start < len(missList); start += o.opts.ChunkSize {
		end := start + o.opts.ChunkSize
		if end > len(missList) {
			end = len(missList)
		}
		sums, err := o.q.GetInventorySummaries(ctx, missList[start:end])
		if err != nil {
			return BatchResult{}, errs.AsEngine(err, model.StageInventory)
		}
		for _, s := range sums {
			fetched[s.SKU] = model.InventorySnapshot{
				SKU:           s.SKU,
				Fulfillable:   s.Fulfillable,
				Total:         s.Total,
				Reserved:      s.Reserved,
				Inbound:       s.Inbound,
				Unfulfillable: s.Unfulfillable,
				CapturedAt:    now,
				ExpiresAt:     now.Add(o.opts.TTL),
			}
		}
	}
	if len(fetched) > 0 {
		o.mu.Lock()
		for sku, snap := range fetched {
			o.cache[sku] = snap
		}
		o.mu.Unlock()
	}

	var res BatchResult
	res.TotalSKUs = len(checks)
	res.Results = make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		r := CheckResult{SKU: c.SKU, Requested: c.Quantity}
		snap, ok := hit[c.SKU]
		if ok {
			r.CacheHit = true
		} else {
			snap, ok = fetched[c.SKU]
			if !ok {
				// absent from the provider response: unavailable, error
				// on this SKU only
				r.Err = "sku not found in provider inventory"
				res.ErrorCount++
				res.Results = append(res.Results, r)
				continue
			}
		}
		r.Available = snap.Fulfillable - o.opts.SafetyStock
		if r.Available < 0 {
			r.Available = 0
		}
		r.Sufficient = r.Available >= c.Quantity
		r.LowStock = r.Available <= o.opts.LowStockThreshold
		if r.Sufficient {
			res.SufficientCount++
		} else {
			res.InsufficientCount++
		}
		res.Results = append(res.Results, r)
	}
	return res, nil
}

// CacheStats reports the oracle's cache behavior since construction.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

func (o *Oracle) Stats() CacheStats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return CacheStats{Entries: len(o.cache), Hits: o.hits, Misses: o.misses}
}

// LowStockSKUs lists cached, unexpired SKUs at or below the low-stock
// threshold after safety stock.
func (o *Oracle) LowStockSKUs() []string {
	now := o.now()
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []string
	for sku, snap := range o.cache {
		if snap.Expired(now) {
			continue
		}
		avail := snap.Fulfillable - o.opts.SafetyStock
		if avail < 0 {
			avail = 0
		}
		if avail <= o.opts.LowStockThreshold {
			out = append(out, sku)
		}
	}
	return out
}

// Invalidate drops one SKU's snapshot, forcing the next check to requery.
func (o *Oracle) Invalidate(sku string) {
	o.mu.Lock()
	delete(o.cache, sku)
	o.mu.Unlock()
}
