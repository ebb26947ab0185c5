package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"kstat-sampler/internal/metrics"
)

var ErrNotFound = errors.New("history: not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

// Point is one value of a field over time.
type Point struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// InsertSnapshot stores the snapshot body and one sample row per field.
func (r *Repository) InsertSnapshot(ctx context.Context, snap metrics.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ts := snap.Timestamp.UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots(id,host,ts,cycle,elapsed,body_json) VALUES(?,?,?,?,?,?)`,
		snap.ID, snap.Host, ts, snap.Cycle, float64(snap.Elapsed), string(body)); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO samples(snapshot_id,host,ts,family,entity,field,value) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range flatten(snap) {
		if _, err := stmt.ExecContext(ctx, snap.ID, snap.Host, ts, row.family, row.entity, row.field, row.value); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// LatestSnapshot returns the most recent snapshot stored for host.
func (r *Repository) LatestSnapshot(ctx context.Context, host string) (metrics.Snapshot, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT body_json FROM snapshots WHERE host = ? ORDER BY ts DESC, cycle DESC LIMIT 1`, host).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return metrics.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return metrics.Snapshot{}, err
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return metrics.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Series returns one field's values since from, oldest first. entity is empty
// for host-wide families.
func (r *Repository) Series(ctx context.Context, host, family, entity, field string, from time.Time, limit int) ([]Point, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ts,value FROM samples WHERE host = ? AND family = ? AND entity = ? AND field = ? AND ts >= ? ORDER BY ts ASC LIMIT ?`,
		host, family, entity, field, from.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Point, 0, limit)
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.TS, &p.Value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteOlderThan drops snapshots and samples taken before cutoff.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM samples WHERE ts < ?`, cutoff.UTC()); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return n, nil
}

type sampleRow struct {
	family string
	entity string
	field  string
	value  float64
}

func flatten(snap metrics.Snapshot) []sampleRow {
	var out []sampleRow
	add := func(family, entity string, stats metrics.Stats) {
		fields := make([]string, 0, len(stats))
		for f := range stats {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			out = append(out, sampleRow{family: family, entity: entity, field: f, value: stats[f]})
		}
	}
	add("load", "", snap.Load)
	add("uptime", "", snap.Uptime)
	add("cpu", "", snap.CPU)
	add("mem", "", snap.Mem)
	add("vmstat", "", snap.VM)
	add("sys", "", snap.Sys)
	add("tcpstat", "", snap.TCP)
	add("io", "", snap.IO)
	for _, d := range snap.Disks {
		add("iostat", d.ID, d.Stats)
	}
	for _, n := range snap.Net {
		add("net", n.ID, n.Stats)
	}
	return out
}
