package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertCheckRunSQL = `INSERT INTO check_runs (
        run_id,
        tick_ts,
        latitude,
        longitude,
        method,
        status,
        matched,
        error,
        duration_ms
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (run_id) DO UPDATE
    SET
        status      = EXCLUDED.status,
        matched     = EXCLUDED.matched,
        error       = EXCLUDED.error,
        duration_ms = EXCLUDED.duration_ms;`

	listRecentRunsSQL = `SELECT
        run_id,
        tick_ts,
        latitude::text,
        longitude::text,
        method,
        status,
        matched,
        error,
        duration_ms,
        created_at
    FROM check_runs
    ORDER BY tick_ts DESC
    LIMIT $1;`

	countRunsSQL = `SELECT COUNT(*) FROM check_runs;`

	deleteRunsBeforeSQL = `DELETE FROM check_runs WHERE created_at < $1;`

	upsertNotificationSQL = `INSERT INTO notification_log (
        run_id,
        day,
        prayer,
        notification_id,
        prayer_ts,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (day, prayer) DO UPDATE
    SET run_id    = EXCLUDED.run_id,
        prayer_ts = EXCLUDED.prayer_ts,
        error     = EXCLUDED.error,
        sends     = notification_log.sends + 1
    RETURNING id, run_id, day, prayer, notification_id, prayer_ts, sends, error, created_at;`

	hasNotifiedSQL = `SELECT EXISTS (
        SELECT 1 FROM notification_log WHERE day = $1 AND prayer = $2 AND error IS NULL
    );`

	listRecentNotificationsSQL = `SELECT
        id,
        run_id,
        day,
        prayer,
        notification_id,
        prayer_ts,
        sends,
        error,
        created_at
    FROM notification_log
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// CheckRunStore defines operations for check run persistence.
type CheckRunStore interface {
	InsertCheckRun(ctx context.Context, run CheckRun) error
	ListRecentRuns(ctx context.Context, limit int) ([]CheckRun, error)
	CountRuns(ctx context.Context) (int64, error)
	DeleteRunsBefore(ctx context.Context, olderThan time.Time) error
}

// NotificationStore defines operations for notification auditing.
type NotificationStore interface {
	RecordNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error)
	HasNotified(ctx context.Context, day time.Time, prayer string) (bool, error)
	ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to check runs and the notification log.
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

// InsertCheckRun persists or updates a check run.
func (s *Store) InsertCheckRun(ctx context.Context, run CheckRun) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var lat, lon interface{}
	if run.Latitude != nil {
		lat = run.Latitude.StringFixed(6)
	}
	if run.Longitude != nil {
		lon = run.Longitude.StringFixed(6)
	}
	var errMsg interface{}
	if run.Error != nil {
		errMsg = *run.Error
	}
	matched := run.Matched
	if matched == nil {
		matched = []string{}
	}

	_, execErr := pool.Exec(ctx, insertCheckRunSQL,
		run.RunID,
		run.TickAt,
		lat,
		lon,
		run.Method,
		run.Status,
		matched,
		errMsg,
		run.DurationMS,
	)
	if execErr != nil {
		return fmt.Errorf("insert check run: %w", execErr)
	}
	return nil
}

// ListRecentRuns lists the most recent runs ordered by descending tick time.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]CheckRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]CheckRun, 0, limit)
	for rows.Next() {
		run, scanErr := scanCheckRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// CountRuns counts stored runs.
func (s *Store) CountRuns(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countRunsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count runs: %w", scanErr)
	}
	return count, nil
}

// DeleteRunsBefore prunes historical runs.
func (s *Store) DeleteRunsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteRunsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete runs before: %w", execErr)
	}
	return nil
}

// RecordNotification upserts the (day, prayer) row, counting repeat sends.
func (s *Store) RecordNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return NotificationRecord{}, err
	}

	var errMsg interface{}
	if rec.Error != nil {
		errMsg = *rec.Error
	}

	row := pool.QueryRow(ctx, upsertNotificationSQL,
		rec.RunID,
		dateOnly(rec.Day),
		rec.Prayer,
		rec.NotificationID,
		rec.PrayerTime,
		errMsg,
	)
	out, scanErr := scanNotification(row)
	if scanErr != nil {
		return NotificationRecord{}, fmt.Errorf("record notification: %w", scanErr)
	}
	return out, nil
}

// HasNotified reports whether prayer was delivered on day.
func (s *Store) HasNotified(ctx context.Context, day time.Time, prayer string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var exists bool
	if scanErr := pool.QueryRow(ctx, hasNotifiedSQL, dateOnly(day), prayer).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("has notified: %w", scanErr)
	}
	return exists, nil
}

// ListRecentNotifications lists the latest notification rows.
func (s *Store) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentNotificationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent notifications: %w", queryErr)
	}
	defer rows.Close()

	out := make([]NotificationRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanCheckRun(rows pgx.Rows) (CheckRun, error) {
	var (
		run    CheckRun
		lat    sql.NullString
		lon    sql.NullString
		errMsg sql.NullString
	)
	if err := rows.Scan(
		&run.RunID,
		&run.TickAt,
		&lat,
		&lon,
		&run.Method,
		&run.Status,
		&run.Matched,
		&errMsg,
		&run.DurationMS,
		&run.CreatedAt,
	); err != nil {
		return CheckRun{}, err
	}

	if lat.Valid {
		v, err := decimal.NewFromString(lat.String)
		if err != nil {
			return CheckRun{}, fmt.Errorf("parse latitude: %w", err)
		}
		run.Latitude = &v
	}
	if lon.Valid {
		v, err := decimal.NewFromString(lon.String)
		if err != nil {
			return CheckRun{}, fmt.Errorf("parse longitude: %w", err)
		}
		run.Longitude = &v
	}
	if errMsg.Valid {
		msg := errMsg.String
		run.Error = &msg
	}
	return run, nil
}

func scanNotification(row pgx.Row) (NotificationRecord, error) {
	var (
		rec    NotificationRecord
		errMsg sql.NullString
	)
	if err := row.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.Day,
		&rec.Prayer,
		&rec.NotificationID,
		&rec.PrayerTime,
		&rec.Sends,
		&errMsg,
		&rec.CreatedAt,
	); err != nil {
		return NotificationRecord{}, err
	}
	if errMsg.Valid {
		msg := errMsg.String
		rec.Error = &msg
	}
	return rec, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var (
	_ CheckRunStore     = (*Store)(nil)
	_ NotificationStore = (*Store)(nil)
	_ AdvisoryLocker    = (*Store)(nil)
)
