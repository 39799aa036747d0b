// Package tracking reconciles shipment tracking from the fulfillment provider
// back to the order source for every successfully routed order.
package tracking

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"orderbridge/internal/events"
	"orderbridge/internal/metrics"
	"orderbridge/internal/model"
	"orderbridge/internal/source"
	"orderbridge/internal/store"
)

// ProviderClient is the slice of the fulfillment adapter the synchronizer uses.
type ProviderClient interface {
	GetFulfillmentOrder(ctx context.Context, providerOrderID string) (model.ProviderOrderDetail, error)
}

// SourceClient is the slice of the source adapter the synchronizer uses.
type SourceClient interface {
	UpdateTracking(ctx context.Context, packageID string, upd source.TrackingUpdate) error
}

// Options tunes the synchronizer.
type Options struct {
	// Interval between scheduled runs.
	Interval time.Duration
	// RatePerMinute caps provider+source calls across all callers in-process.
	RatePerMinute int
	// BatchLimit bounds how many unsynced records one run picks up.
	BatchLimit int
}

type Synchronizer struct {
	prov   ProviderClient
	src    SourceClient
	store  store.Store
	broker events.Broker
	rate   *RateWindow
	opts   Options

	// running guards against overlapping scheduled runs; checked only at
	// run start, never held across I/O.
	running atomic.Bool
	stop    chan struct{}
	stopped atomic.Bool

	synced atomic.Int64
	failed atomic.Int64
}

func New(prov ProviderClient, src SourceClient, st store.Store, broker events.Broker, opts Options) *Synchronizer {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 100
	}
	return &Synchronizer{
		prov: prov, src: src, store: st, broker: broker,
		rate: NewRateWindow(opts.RatePerMinute),
		opts: opts,
		stop: make(chan struct{}),
	}
}

// Track registers a routed order for tracking sync.
func (s *Synchronizer) Track(ctx context.Context, sourceOrderID, packageID, providerOrderID string) error {
	return s.store.UpsertTrackingRecord(ctx, model.TrackingRecord{
		SourceOrderID:   sourceOrderID,
		PackageID:       packageID,
		ProviderOrderID: providerOrderID,
	})
}

// SyncOne fetches shipment info for one record and, if a tracking number is
// present and not yet pushed, reports it to the source platform. The record
// survives every failure; only the attempt counter and last error move.
func (s *Synchronizer) SyncOne(ctx context.Context, rec model.TrackingRecord) (synced, skipped bool, err error) {
	if rec.Synced {
		return true, false, nil
	}
	if err := s.rate.Acquire(ctx); err != nil {
		return false, false, err
	}
	detail, err := s.prov.GetFulfillmentOrder(ctx, rec.ProviderOrderID)
	if err != nil {
		s.recordFailure(ctx, rec, err.Error())
		return false, false, err
	}
	var shipment *model.Shipment
	for i := range detail.Shipments {
		if detail.Shipments[i].TrackingNumber != "" {
			shipment = &detail.Shipments[i]
			break
		}
	}
	if shipment == nil {
		// not shipped yet: attempt recorded, record stays eligible,
		// counted as a skip rather than a failure
		_ = s.store.RecordTrackingFailure(ctx, rec.SourceOrderID, "no tracking number available yet")
		metrics.TrackingSyncs.WithLabelValues("skipped").Inc()
		return false, true, nil
	}

	if err := s.rate.Acquire(ctx); err != nil {
		return false, false, err
	}
	pkg := rec.PackageID
	if pkg == "" {
		pkg = rec.SourceOrderID
	}
	err = s.src.UpdateTracking(ctx, pkg, source.TrackingUpdate{
		TrackingNumber: shipment.TrackingNumber,
		CarrierID:      shipment.CarrierCode,
		CarrierName:    shipment.CarrierName,
	})
	if err != nil {
		s.recordFailure(ctx, rec, err.Error())
		return false, false, err
	}

	if err := s.store.MarkTrackingSynced(ctx, rec.SourceOrderID, shipment.TrackingNumber, shipment.CarrierName); err != nil {
		return false, false, err
	}
	s.synced.Add(1)
	metrics.TrackingSyncs.WithLabelValues("success").Inc()
	if s.broker != nil {
		s.broker.Publish(events.TopicTrackingSync, events.Event{Data: map[string]any{
			"orderId":        rec.SourceOrderID,
			"trackingNumber": shipment.TrackingNumber,
			"carrier":        shipment.CarrierName,
		}})
	}
	return true, false, nil
}

func (s *Synchronizer) recordFailure(ctx context.Context, rec model.TrackingRecord, msg string) {
	s.failed.Add(1)
	metrics.TrackingSyncs.WithLabelValues("failure").Inc()
	_ = s.store.RecordTrackingFailure(ctx, rec.SourceOrderID, msg)
}

// SyncAll runs one pass over unsynced records.
func (s *Synchronizer) SyncAll(ctx context.Context) model.BatchTrackingSyncResult {
	var res model.BatchTrackingSyncResult
	recs, err := s.store.ListUnsyncedTrackingRecords(ctx, s.opts.BatchLimit)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	res.TotalRecords = len(recs)
	for _, rec := range recs {
		synced, skipped, err := s.SyncOne(ctx, rec)
		switch {
		case err != nil:
			res.FailureCount++
			res.Errors = append(res.Errors, rec.SourceOrderID+": "+err.Error())
		case skipped:
			res.SkippedCount++
		case synced:
			res.SyncedCount++
		}
		if ctx.Err() != nil {
			break
		}
	}
	return res
}

// Start launches the interval scheduler. Safe to call once; Stop ends it.
func (s *Synchronizer) Start() {
	go func() {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.runScheduled()
			}
		}
	}()
}

func (s *Synchronizer) runScheduled() {
	// skip, never queue, an overlapping run
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Interval)
	defer cancel()
	res := s.SyncAll(ctx)
	if res.FailureCount > 0 {
		log.Printf("tracking sync: %d synced, %d failed, %d skipped", res.SyncedCount, res.FailureCount, res.SkippedCount)
	}
}

// Stop halts the scheduler. Idempotent.
func (s *Synchronizer) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.stop)
	}
}

// Stats is the synchronizer's operational introspection.
type Stats struct {
	TotalSynced int64 `json:"totalSynced"`
	TotalFailed int64 `json:"totalFailed"`
	RateUsed    int   `json:"rateUsed"`
	Running     bool  `json:"running"`
}

func (s *Synchronizer) Stats() Stats {
	return Stats{
		TotalSynced: s.synced.Load(),
		TotalFailed: s.failed.Load(),
		RateUsed:    s.rate.Used(),
		Running:     s.running.Load(),
	}
}
