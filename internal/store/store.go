package store

import (
    "context"
    "errors"

    "orderbridge/internal/model"
)

// Store persists routing outcomes and tracking records. Tracking records are
// mutated in place across sync attempts and never auto-deleted; outcomes are
// append-only.
type Store interface {
    // Outcomes
    SaveOutcome(ctx context.Context, out model.RoutingOutcome) error
    ListOutcomes(ctx context.Context, cursor string, limit int) ([]model.RoutingOutcome, string, error)

    // Tracking records, keyed by source order id
    UpsertTrackingRecord(ctx context.Context, rec model.TrackingRecord) error
    GetTrackingRecord(ctx context.Context, sourceOrderID string) (model.TrackingRecord, error)
    ListUnsyncedTrackingRecords(ctx context.Context, limit int) ([]model.TrackingRecord, error)
    MarkTrackingSynced(ctx context.Context, sourceOrderID, trackingNumber, carrierName string) error
    RecordTrackingFailure(ctx context.Context, sourceOrderID, lastError string) error
}

var ErrNotFound = errors.New("not found")
