// Package catalog keeps an index of inspected recordings in a sqlite
// database.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/eventstream/internal/monitoring"
)

// ErrNotFound is returned by Get for an unknown recording ID.
var ErrNotFound = errors.New("recording not found")

var logf = monitoring.Tagged("catalog")

// Catalog is a migrated sqlite database of recordings.
type Catalog struct {
	*sql.DB
}

// Recording summarises one Event Stream source.
type Recording struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Kind    string `json:"kind"`
	Version string `json:"version"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	// Events is the number of decoded events.
	Events int64 `json:"events"`
	// FirstT and LastT are the first and last timestamps in microseconds.
	FirstT uint64 `json:"first_t"`
	LastT  uint64 `json:"last_t"`
	// EventRate is in events per second of stream time.
	EventRate        float64   `json:"event_rate"`
	MeanIntervalUs   float64   `json:"mean_interval_us"`
	StdDevIntervalUs float64   `json:"stddev_interval_us"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// Open opens or creates the catalog at path and applies pending migrations.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	c := &Catalog{DB: db}
	if err := c.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Record stores rec and returns its ID, generating one when rec.ID is empty.
func (c *Catalog) Record(ctx context.Context, rec Recording) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	_, err := c.ExecContext(ctx, `
		INSERT INTO recordings (
			recording_id, source, kind, version, width, height, events,
			first_t, last_t, event_rate, mean_interval_us, stddev_interval_us, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.Kind, rec.Version, rec.Width, rec.Height, rec.Events,
		int64(rec.FirstT), int64(rec.LastT), rec.EventRate, rec.MeanIntervalUs, rec.StdDevIntervalUs,
		rec.RecordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record %s: %w", rec.Source, err)
	}
	logf("recorded %s as %s (%d events)", rec.Source, rec.ID, rec.Events)
	return rec.ID, nil
}

const selectRecording = `
	SELECT recording_id, source, kind, version, width, height, events,
	       first_t, last_t, event_rate, mean_interval_us, stddev_interval_us, recorded_at
	FROM recordings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (Recording, error) {
	var rec Recording
	var firstT, lastT int64
	var recordedAt string
	err := row.Scan(&rec.ID, &rec.Source, &rec.Kind, &rec.Version, &rec.Width, &rec.Height, &rec.Events,
		&firstT, &lastT, &rec.EventRate, &rec.MeanIntervalUs, &rec.StdDevIntervalUs, &recordedAt)
	if err != nil {
		return Recording{}, err
	}
	rec.FirstT, rec.LastT = uint64(firstT), uint64(lastT)
	if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
		rec.RecordedAt = t
	}
	return rec, nil
}

// List returns every recording, newest first.
func (c *Catalog) List(ctx context.Context) ([]Recording, error) {
	rows, err := c.QueryContext(ctx, selectRecording+` ORDER BY recorded_at DESC, recording_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var recs []Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Get returns the recording with the given ID.
func (c *Catalog) Get(ctx context.Context, id string) (Recording, error) {
	rec, err := scanRecording(c.QueryRowContext(ctx, selectRecording+` WHERE recording_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Recording{}, fmt.Errorf("failed to get recording %s: %w", id, err)
	}
	return rec, nil
}
