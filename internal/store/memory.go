package store

import (
    "context"
    "strconv"
    "sync"
    "time"

    "orderbridge/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu        sync.Mutex
    outcomes  []model.RoutingOutcome           // append order == listing order
    tracking  map[string]*model.TrackingRecord // source order id -> record
    trackSeq  []string                         // insertion order for stable listing
    now       func() time.Time
}

func NewMemory() *Memory {
    return &Memory{
        tracking: map[string]*model.TrackingRecord{},
        now:      time.Now,
    }
}

func (m *Memory) SaveOutcome(ctx context.Context, out model.RoutingOutcome) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.outcomes = append(m.outcomes, out)
    return nil
}

// ListOutcomes pages by numeric offset cursor.
func (m *Memory) ListOutcomes(ctx context.Context, cursor string, limit int) ([]model.RoutingOutcome, string, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    start := 0
    if cursor != "" {
        if n, err := strconv.Atoi(cursor); err == nil && n > 0 {
            start = n
        }
    }
    if start > len(m.outcomes) {
        start = len(m.outcomes)
    }
    if limit <= 0 {
        limit = 100
    }
    end := start + limit
    if end > len(m.outcomes) {
        end = len(m.outcomes)
    }
    out := append([]model.RoutingOutcome(nil), m.outcomes[start:end]...)
    next := ""
    if end < len(m.outcomes) {
        next = strconv.Itoa(end)
    }
    return out, next, nil
}

func (m *Memory) UpsertTrackingRecord(ctx context.Context, rec model.TrackingRecord) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    now := m.now()
    if existing, ok := m.tracking[rec.SourceOrderID]; ok {
        // Conflict keeps sync state: only the routing-owned fields move.
        existing.PackageID = rec.PackageID
        existing.ProviderOrderID = rec.ProviderOrderID
        existing.UpdatedAt = now
        return nil
    }
    rec.CreatedAt = now
    rec.UpdatedAt = now
    cp := rec
    m.tracking[rec.SourceOrderID] = &cp
    m.trackSeq = append(m.trackSeq, rec.SourceOrderID)
    return nil
}

func (m *Memory) GetTrackingRecord(ctx context.Context, sourceOrderID string) (model.TrackingRecord, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    rec, ok := m.tracking[sourceOrderID]
    if !ok {
        return model.TrackingRecord{}, ErrNotFound
    }
    return *rec, nil
}

func (m *Memory) ListUnsyncedTrackingRecords(ctx context.Context, limit int) ([]model.TrackingRecord, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if limit <= 0 {
        limit = 100
    }
    out := []model.TrackingRecord{}
    for _, id := range m.trackSeq {
        rec := m.tracking[id]
        if rec.Synced {
            continue
        }
        out = append(out, *rec)
        if len(out) >= limit {
            break
        }
    }
    return out, nil
}

func (m *Memory) MarkTrackingSynced(ctx context.Context, sourceOrderID, trackingNumber, carrierName string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    rec, ok := m.tracking[sourceOrderID]
    if !ok {
        return ErrNotFound
    }
    now := m.now()
    rec.Synced = true
    rec.TrackingNumber = trackingNumber
    rec.CarrierName = carrierName
    rec.SyncAttempts++
    rec.LastAttemptAt = now
    rec.LastError = ""
    rec.UpdatedAt = now
    return nil
}

func (m *Memory) RecordTrackingFailure(ctx context.Context, sourceOrderID, lastError string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    rec, ok := m.tracking[sourceOrderID]
    if !ok {
        return ErrNotFound
    }
    now := m.now()
    rec.SyncAttempts++
    rec.LastAttemptAt = now
    rec.LastError = lastError
    rec.UpdatedAt = now
    return nil
}
