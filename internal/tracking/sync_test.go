package tracking

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"orderbridge/internal/metrics"
	"orderbridge/internal/model"
	"orderbridge/internal/source"
	"orderbridge/internal/store"
)

type fakeProvider struct {
	detail model.ProviderOrderDetail
	err    error
	calls  atomic.Int64
}

func (f *fakeProvider) GetFulfillmentOrder(ctx context.Context, id string) (model.ProviderOrderDetail, error) {
	f.calls.Add(1)
	if f.err != nil {
		return model.ProviderOrderDetail{}, f.err
	}
	return f.detail, nil
}

type fakeSource struct {
	err     error
	updates []source.TrackingUpdate
	pkgIDs  []string
}

func (f *fakeSource) UpdateTracking(ctx context.Context, packageID string, upd source.TrackingUpdate) error {
	f.pkgIDs = append(f.pkgIDs, packageID)
	f.updates = append(f.updates, upd)
	return f.err
}

func shippedDetail() model.ProviderOrderDetail {
	return model.ProviderOrderDetail{
		ProviderOrderID: "PF-1",
		Status:          "COMPLETE",
		Shipments: []model.Shipment{
			{ShipmentID: "ship-1", CarrierCode: "USPS", CarrierName: "USPS", TrackingNumber: "9400100000000000000001"},
		},
	}
}

func newTestSync(prov ProviderClient, src SourceClient) (*Synchronizer, *store.Memory) {
	st := store.NewMemory()
	return New(prov, src, st, nil, Options{Interval: time.Minute}), st
}

func TestSyncOneSuccess(t *testing.T) {
	prov := &fakeProvider{detail: shippedDetail()}
	src := &fakeSource{}
	s, st := newTestSync(prov, src)
	ctx := context.Background()

	require.NoError(t, s.Track(ctx, "ORD-1", "pkg-1", "PF-1"))
	rec, err := st.GetTrackingRecord(ctx, "ORD-1")
	require.NoError(t, err)

	synced, skipped, err := s.SyncOne(ctx, rec)
	require.NoError(t, err)
	require.True(t, synced)
	require.False(t, skipped)

	require.Equal(t, []string{"pkg-1"}, src.pkgIDs)
	require.Equal(t, "9400100000000000000001", src.updates[0].TrackingNumber)
	require.Equal(t, "USPS", src.updates[0].CarrierName)

	rec, err = st.GetTrackingRecord(ctx, "ORD-1")
	require.NoError(t, err)
	require.True(t, rec.Synced)
	require.Equal(t, "9400100000000000000001", rec.TrackingNumber)
	require.Empty(t, rec.LastError)
}

func TestSyncOneFallsBackToOrderIDWhenNoPackage(t *testing.T) {
	prov := &fakeProvider{detail: shippedDetail()}
	src := &fakeSource{}
	s, st := newTestSync(prov, src)
	ctx := context.Background()

	require.NoError(t, s.Track(ctx, "ORD-2", "", "PF-1"))
	rec, _ := st.GetTrackingRecord(ctx, "ORD-2")
	_, _, err := s.SyncOne(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, []string{"ORD-2"}, src.pkgIDs)
}

func TestSyncOneNotShippedYetIsSkipped(t *testing.T) {
	prov := &fakeProvider{detail: model.ProviderOrderDetail{ProviderOrderID: "PF-1", Status: "PLANNING"}}
	src := &fakeSource{}
	s, st := newTestSync(prov, src)
	ctx := context.Background()

	require.NoError(t, s.Track(ctx, "ORD-3", "pkg-3", "PF-1"))
	rec, _ := st.GetTrackingRecord(ctx, "ORD-3")

	failBefore := testutil.ToFloat64(metrics.TrackingSyncs.WithLabelValues("failure"))
	skipBefore := testutil.ToFloat64(metrics.TrackingSyncs.WithLabelValues("skipped"))

	synced, skipped, err := s.SyncOne(ctx, rec)
	require.NoError(t, err)
	require.False(t, synced)
	require.True(t, skipped)
	require.Empty(t, src.updates)

	rec, err = st.GetTrackingRecord(ctx, "ORD-3")
	require.NoError(t, err)
	require.False(t, rec.Synced)
	require.Equal(t, 1, rec.SyncAttempts)

	// a skip is one attempt, counted once and not as a failure
	require.Equal(t, failBefore, testutil.ToFloat64(metrics.TrackingSyncs.WithLabelValues("failure")))
	require.Equal(t, skipBefore+1, testutil.ToFloat64(metrics.TrackingSyncs.WithLabelValues("skipped")))
	require.Zero(t, s.Stats().TotalFailed)
}

func TestSyncOneThreeFailuresKeepsRecord(t *testing.T) {
	prov := &fakeProvider{err: errors.New("connection reset")}
	src := &fakeSource{}
	s, st := newTestSync(prov, src)
	ctx := context.Background()

	require.NoError(t, s.Track(ctx, "ORD-4", "pkg-4", "PF-4"))
	for i := 0; i < 3; i++ {
		rec, err := st.GetTrackingRecord(ctx, "ORD-4")
		require.NoError(t, err)
		_, _, err = s.SyncOne(ctx, rec)
		require.Error(t, err)
	}

	rec, err := st.GetTrackingRecord(ctx, "ORD-4")
	require.NoError(t, err)
	require.False(t, rec.Synced)
	require.Equal(t, 3, rec.SyncAttempts)
	require.Equal(t, "connection reset", rec.LastError)

	unsynced, err := st.ListUnsyncedTrackingRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
}

func TestSyncOneSourcePushFailure(t *testing.T) {
	prov := &fakeProvider{detail: shippedDetail()}
	src := &fakeSource{err: errors.New("package not found")}
	s, st := newTestSync(prov, src)
	ctx := context.Background()

	require.NoError(t, s.Track(ctx, "ORD-5", "pkg-5", "PF-5"))
	rec, _ := st.GetTrackingRecord(ctx, "ORD-5")
	_, _, err := s.SyncOne(ctx, rec)
	require.Error(t, err)

	rec, _ = st.GetTrackingRecord(ctx, "ORD-5")
	require.False(t, rec.Synced)
	require.Equal(t, "package not found", rec.LastError)
}

func TestSyncOneAlreadySyncedIsNoop(t *testing.T) {
	prov := &fakeProvider{detail: shippedDetail()}
	s, _ := newTestSync(prov, &fakeSource{})

	synced, skipped, err := s.SyncOne(context.Background(), model.TrackingRecord{SourceOrderID: "ORD-6", Synced: true})
	require.NoError(t, err)
	require.True(t, synced)
	require.False(t, skipped)
	require.Zero(t, prov.calls.Load())
}

func TestSyncAllMixedOutcomes(t *testing.T) {
	prov := &fakeProvider{detail: shippedDetail()}
	src := &fakeSource{}
	s, _ := newTestSync(prov, src)
	ctx := context.Background()

	require.NoError(t, s.Track(ctx, "ORD-A", "pkg-a", "PF-A"))
	require.NoError(t, s.Track(ctx, "ORD-B", "pkg-b", "PF-B"))

	res := s.SyncAll(ctx)
	require.Equal(t, 2, res.TotalRecords)
	require.Equal(t, 2, res.SyncedCount)
	require.Zero(t, res.FailureCount)

	// both synced: next pass finds nothing
	res = s.SyncAll(ctx)
	require.Zero(t, res.TotalRecords)
}

func TestSyncAllCountsFailuresAndSkips(t *testing.T) {
	prov := &fakeProvider{detail: model.ProviderOrderDetail{Status: "PLANNING"}}
	s, _ := newTestSync(prov, &fakeSource{})
	ctx := context.Background()

	require.NoError(t, s.Track(ctx, "ORD-C", "pkg-c", "PF-C"))
	res := s.SyncAll(ctx)
	require.Equal(t, 1, res.TotalRecords)
	require.Equal(t, 1, res.SkippedCount)
	require.Zero(t, res.SyncedCount)
}

func TestSchedulerSkipsOverlappingRun(t *testing.T) {
	prov := &fakeProvider{detail: shippedDetail()}
	s, _ := newTestSync(prov, &fakeSource{})

	// simulate a run already in flight
	require.True(t, s.running.CompareAndSwap(false, true))
	s.runScheduled()
	require.Zero(t, prov.calls.Load())
	s.running.Store(false)
}

func TestStopIdempotent(t *testing.T) {
	s, _ := newTestSync(&fakeProvider{}, &fakeSource{})
	s.Start()
	s.Stop()
	s.Stop()
}
