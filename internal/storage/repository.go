package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"energy-desk/internal/regime"
)

const (
	upsertThresholdsSQL = `INSERT INTO regime_thresholds (
        symbol,
        noise_pct,
        high_pct,
        critical_pct,
        degraded,
        history_points,
        recent_points,
        calibrated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (symbol) DO UPDATE
    SET
        noise_pct      = EXCLUDED.noise_pct,
        high_pct       = EXCLUDED.high_pct,
        critical_pct   = EXCLUDED.critical_pct,
        degraded       = EXCLUDED.degraded,
        history_points = EXCLUDED.history_points,
        recent_points  = EXCLUDED.recent_points,
        calibrated_at  = EXCLUDED.calibrated_at,
        updated_at     = now();`

	getThresholdsSQL = `SELECT
        symbol,
        noise_pct::text,
        high_pct::text,
        critical_pct::text,
        degraded,
        history_points,
        recent_points,
        calibrated_at
    FROM regime_thresholds
    WHERE symbol = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store keeps one thresholds row per symbol in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the lock dies with the session if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Save upserts the thresholds row for symbol.
func (s *Store) Save(ctx context.Context, symbol string, rec Record) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return fmt.Errorf("save thresholds: symbol required")
	}
	if err := rec.Thresholds.Validate(); err != nil {
		return fmt.Errorf("save thresholds: %w", err)
	}

	calibratedAt := rec.CalibratedAt
	if calibratedAt.IsZero() {
		calibratedAt = time.Now().UTC()
	}

	_, execErr := pool.Exec(ctx, upsertThresholdsSQL,
		symbol,
		numeric(rec.Thresholds.Noise),
		numeric(rec.Thresholds.High),
		numeric(rec.Thresholds.Critical),
		rec.Degraded,
		rec.HistoryPoints,
		rec.RecentPoints,
		calibratedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert thresholds: %w", execErr)
	}
	return nil
}

// Load fetches the thresholds row for symbol.
func (s *Store) Load(ctx context.Context, symbol string) (Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return Record{}, err
	}

	rec, err := scanRecord(pool.QueryRow(ctx, getThresholdsSQL, strings.TrimSpace(symbol)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNoThresholds
	}
	if err != nil {
		return Record{}, fmt.Errorf("load thresholds: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec                         Record
		noiseStr, highStr, critStr  string
		historyPoints, recentPoints int32
	)
	if err := row.Scan(
		&rec.Symbol,
		&noiseStr,
		&highStr,
		&critStr,
		&rec.Degraded,
		&historyPoints,
		&recentPoints,
		&rec.CalibratedAt,
	); err != nil {
		return Record{}, err
	}
	rec.HistoryPoints = int(historyPoints)
	rec.RecentPoints = int(recentPoints)

	t, err := parseThresholds(noiseStr, highStr, critStr)
	if err != nil {
		return Record{}, err
	}
	rec.Thresholds = t
	rec.CalibratedAt = rec.CalibratedAt.UTC()
	return rec, nil
}

// numeric renders a threshold as the exact two decimal NUMERIC literal.
func numeric(v float64) string {
	return decimal.NewFromFloat(v).Round(2).StringFixed(2)
}

func parseThresholds(noise, high, critical string) (regime.Thresholds, error) {
	var t regime.Thresholds
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"noise", noise, &t.Noise},
		{"high", high, &t.High},
		{"critical", critical, &t.Critical},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return regime.Thresholds{}, fmt.Errorf("parse %s threshold: %w", f.name, err)
		}
		*f.dst = d.InexactFloat64()
	}
	return t, nil
}

var (
	_ ThresholdStore = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
