package store

import (
    "context"
    "encoding/json"
    "errors"
    "strconv"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"

    "orderbridge/internal/model"
)

// DB is the pgx surface the postgres store needs; pgxpool satisfies it in
// production and pgxmock in tests.
type DB interface {
    QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
    Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
    Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Postgres persists outcomes and tracking records in two tables.
type Postgres struct {
    db DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
    pool, err := pgxpool.New(ctx, dsn)
    if err != nil {
        return nil, err
    }
    if err := pool.Ping(ctx); err != nil {
        return nil, err
    }
    return &Postgres{db: pool}, nil
}

// NewPostgresWithDB wraps an existing connection surface (tests).
func NewPostgresWithDB(db DB) *Postgres { return &Postgres{db: db} }

const schema = `
CREATE TABLE IF NOT EXISTS routing_outcomes (
    seq BIGSERIAL PRIMARY KEY,
    order_id TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    provider_order_id TEXT,
    failed_stage TEXT,
    error_code TEXT,
    error_message TEXT,
    payload JSONB NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS tracking_records (
    source_order_id TEXT PRIMARY KEY,
    package_id TEXT,
    provider_order_id TEXT NOT NULL,
    sync_attempts INT NOT NULL DEFAULT 0,
    last_attempt_at TIMESTAMPTZ,
    synced BOOLEAN NOT NULL DEFAULT FALSE,
    tracking_number TEXT,
    carrier_name TEXT,
    last_error TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tracking_unsynced ON tracking_records (synced, created_at);
`

// Ping verifies connectivity (readiness probe).
func (p *Postgres) Ping(ctx context.Context) error {
    _, err := p.db.Exec(ctx, "SELECT 1")
    return err
}

// Migrate applies the schema (dev helper, idempotent).
func (p *Postgres) Migrate(ctx context.Context) error {
    _, err := p.db.Exec(ctx, schema)
    return err
}

func (p *Postgres) SaveOutcome(ctx context.Context, out model.RoutingOutcome) error {
    payload, err := json.Marshal(out)
    if err != nil {
        return err
    }
    _, err = p.db.Exec(ctx,
        `INSERT INTO routing_outcomes (order_id, success, provider_order_id, failed_stage, error_code, error_message, payload, completed_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
        out.OrderID, out.Success, nullIfEmpty(out.ProviderOrderID), nullIfEmpty(string(out.FailedStage)),
        nullIfEmpty(out.ErrorCode), nullIfEmpty(out.ErrorMsg), payload, out.CompletedAt)
    return err
}

func (p *Postgres) ListOutcomes(ctx context.Context, cursor string, limit int) ([]model.RoutingOutcome, string, error) {
    if limit <= 0 {
        limit = 100
    }
    after := int64(0)
    if cursor != "" {
        if n, err := strconv.ParseInt(cursor, 10, 64); err == nil && n > 0 {
            after = n
        }
    }
    rows, err := p.db.Query(ctx,
        `SELECT seq, payload FROM routing_outcomes WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit+1)
    if err != nil {
        return nil, "", err
    }
    defer rows.Close()
    var out []model.RoutingOutcome
    var seqs []int64
    for rows.Next() {
        var seq int64
        var payload []byte
        if err := rows.Scan(&seq, &payload); err != nil {
            return nil, "", err
        }
        var o model.RoutingOutcome
        if err := json.Unmarshal(payload, &o); err != nil {
            return nil, "", err
        }
        out = append(out, o)
        seqs = append(seqs, seq)
    }
    if err := rows.Err(); err != nil {
        return nil, "", err
    }
    next := ""
    if len(out) > limit {
        out = out[:limit]
        next = strconv.FormatInt(seqs[limit-1], 10)
    }
    return out, next, nil
}

func (p *Postgres) UpsertTrackingRecord(ctx context.Context, rec model.TrackingRecord) error {
    now := time.Now().UTC()
    _, err := p.db.Exec(ctx,
        `INSERT INTO tracking_records (source_order_id, package_id, provider_order_id, sync_attempts, synced, tracking_number, carrier_name, last_error, created_at, updated_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
         ON CONFLICT (source_order_id) DO UPDATE SET
           package_id=EXCLUDED.package_id,
           provider_order_id=EXCLUDED.provider_order_id,
           updated_at=EXCLUDED.updated_at`,
        rec.SourceOrderID, nullIfEmpty(rec.PackageID), rec.ProviderOrderID, rec.SyncAttempts, rec.Synced,
        nullIfEmpty(rec.TrackingNumber), nullIfEmpty(rec.CarrierName), nullIfEmpty(rec.LastError), now)
    return err
}

func (p *Postgres) GetTrackingRecord(ctx context.Context, sourceOrderID string) (model.TrackingRecord, error) {
    row := p.db.QueryRow(ctx,
        `SELECT source_order_id, COALESCE(package_id,''), provider_order_id, sync_attempts,
                COALESCE(last_attempt_at, 'epoch'::timestamptz), synced,
                COALESCE(tracking_number,''), COALESCE(carrier_name,''), COALESCE(last_error,''),
                created_at, updated_at
         FROM tracking_records WHERE source_order_id=$1`, sourceOrderID)
    rec, err := scanTracking(row)
    if errors.Is(err, pgx.ErrNoRows) {
        return model.TrackingRecord{}, ErrNotFound
    }
    return rec, err
}

func (p *Postgres) ListUnsyncedTrackingRecords(ctx context.Context, limit int) ([]model.TrackingRecord, error) {
    if limit <= 0 {
        limit = 100
    }
    rows, err := p.db.Query(ctx,
        `SELECT source_order_id, COALESCE(package_id,''), provider_order_id, sync_attempts,
                COALESCE(last_attempt_at, 'epoch'::timestamptz), synced,
                COALESCE(tracking_number,''), COALESCE(carrier_name,''), COALESCE(last_error,''),
                created_at, updated_at
         FROM tracking_records WHERE NOT synced ORDER BY created_at LIMIT $1`, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.TrackingRecord
    for rows.Next() {
        rec, err := scanTracking(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, rec)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkTrackingSynced(ctx context.Context, sourceOrderID, trackingNumber, carrierName string) error {
    tag, err := p.db.Exec(ctx,
        `UPDATE tracking_records
         SET synced=TRUE, tracking_number=$2, carrier_name=$3, sync_attempts=sync_attempts+1,
             last_attempt_at=now(), last_error=NULL, updated_at=now()
         WHERE source_order_id=$1`, sourceOrderID, trackingNumber, carrierName)
    if err != nil {
        return err
    }
    if tag.RowsAffected() == 0 {
        return ErrNotFound
    }
    return nil
}

func (p *Postgres) RecordTrackingFailure(ctx context.Context, sourceOrderID, lastError string) error {
    tag, err := p.db.Exec(ctx,
        `UPDATE tracking_records
         SET sync_attempts=sync_attempts+1, last_attempt_at=now(), last_error=$2, updated_at=now()
         WHERE source_order_id=$1`, sourceOrderID, lastError)
    if err != nil {
        return err
    }
    if tag.RowsAffected() == 0 {
        return ErrNotFound
    }
    return nil
}

type scanner interface{ Scan(dest ...any) error }

func scanTracking(s scanner) (model.TrackingRecord, error) {
    var rec model.TrackingRecord
    err := s.Scan(&rec.SourceOrderID, &rec.PackageID, &rec.ProviderOrderID, &rec.SyncAttempts,
        &rec.LastAttemptAt, &rec.Synced, &rec.TrackingNumber, &rec.CarrierName, &rec.LastError,
        &rec.CreatedAt, &rec.UpdatedAt)
    return rec, err
}

func nullIfEmpty(s string) any {
    if s == "" {
        return nil
    }
    return s
}
