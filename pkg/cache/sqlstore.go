package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Dialect selects SQL flavour details.
type Dialect string

// Supported dialects. The values double as database/sql driver names.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ErrUnknownDialect is returned for an unsupported SQL dialect.
var ErrUnknownDialect = errors.New("unknown sql dialect")

type tableSpec struct {
	name   string
	attrs  []string
	radius bool
}

//nolint:gochecknoglobals // fixed table layouts
var tableSpecs = map[Kind]tableSpec{
	KindGeocoding: {
		name: "geocoding_cache",
		attrs: []string{
			trajectory.AttrStreet,
			trajectory.AttrCity,
			trajectory.AttrPostalCode,
			trajectory.AttrCountry,
			trajectory.AttrRawAddress,
		},
	},
	KindSurface: {
		name: "surface_cache",
		attrs: []string{
			trajectory.AttrSurface,
			trajectory.AttrHighway,
			trajectory.AttrTrackType,
			trajectory.AttrSmoothness,
			trajectory.AttrWayID,
		},
		radius: true,
	},
}

func specFor(kind Kind) (tableSpec, error) {
	tbl, ok := tableSpecs[kind]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}

	return tbl, nil
}

// keyColumns returns the uniqueness key of the table.
func (t tableSpec) keyColumns() []string {
	cols := []string{"latitude", "longitude"}
	if t.radius {
		cols = append(cols, "query_radius")
	}

	return append(cols, "provider")
}

// columns returns every non-id column in scan order.
func (t tableSpec) columns() []string {
	cols := []string{"latitude", "longitude"}
	if t.radius {
		cols = append(cols, "query_radius")
	}

	cols = append(cols, t.attrs...)

	return append(cols, "provider", "query_date")
}

// SQLStore keeps cache entries and track audits in a SQL database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore opens the database and creates missing tables. For sqlite the
// dsn is a file path and its directory is created.
func NewSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	switch dialect {
	case DialectSQLite:
		if dir := filepath.Dir(dsn); dir != "" && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create cache directory: %w", err)
			}
		}
	case DialectPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, string(dialect))
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s cache: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// One writer; parallel connections only produce SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s cache: %w", dialect, err)
	}

	s := &SQLStore{db: db, dialect: dialect}

	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate creates the cache and audit tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate cache schema: %w", err)
		}
	}

	return nil
}

func (s *SQLStore) schema() []string {
	idType, floatType := "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL"
	if s.dialect == DialectPostgres {
		idType, floatType = "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION"
	}

	stmts := make([]string, 0, 6)

	for _, kind := range Kinds() {
		tbl := tableSpecs[kind]

		defs := []string{
			"id " + idType,
			"latitude " + floatType + " NOT NULL",
			"longitude " + floatType + " NOT NULL",
		}
		if tbl.radius {
			defs = append(defs, "query_radius "+floatType+" NOT NULL DEFAULT 0")
		}

		for _, attr := range tbl.attrs {
			defs = append(defs, attr+" TEXT NOT NULL DEFAULT ''")
		}

		defs = append(defs,
			"provider TEXT NOT NULL",
			"query_date TEXT NOT NULL",
			"UNIQUE ("+strings.Join(tbl.keyColumns(), ", ")+")",
		)

		stmts = append(stmts,
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", tbl.name, strings.Join(defs, ",\n\t")),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_position ON %s (latitude, longitude)", tbl.name, tbl.name),
		)
	}

	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS tracks (
	id TEXT PRIMARY KEY,
	file TEXT NOT NULL,
	stage TEXT NOT NULL,
	total_points INTEGER NOT NULL,
	sampling_distance_km `+floatType+` NOT NULL DEFAULT 0,
	processed_at TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS track_points (
	track_id TEXT NOT NULL REFERENCES tracks (id),
	sequence_index INTEGER NOT NULL,
	cache_entry_id BIGINT,
	PRIMARY KEY (track_id, sequence_index)
)`,
	)

	return stmts
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)

	b.Grow(len(query) + 8)

	for _, r := range query {
		if r == '?' {
			n++

			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))

			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

// Candidates returns entries inside the query box for the provider and, for
// the surface kind, the exact radius.
func (s *SQLStore) Candidates(ctx context.Context, q CandidateQuery) ([]Entry, error) {
	tbl, err := specFor(q.Kind)
	if err != nil {
		return nil, err
	}

	var (
		where = []string{"provider = ?"}
		args  = []any{q.Provider}
	)

	if tbl.radius {
		where = append(where, "query_radius = ?")
		args = append(args, q.RadiusM)
	}

	where = append(where, "latitude BETWEEN ? AND ?")
	args = append(args, q.Box.MinLat, q.Box.MaxLat)

	parts := q.Box.Split()
	lonClauses := make([]string, 0, len(parts))

	for _, part := range parts {
		lonClauses = append(lonClauses, "longitude BETWEEN ? AND ?")
		args = append(args, part.MinLon, part.MaxLon)
	}

	where = append(where, "("+strings.Join(lonClauses, " OR ")+")")

	query := fmt.Sprintf("SELECT id, %s FROM %s WHERE %s ORDER BY id",
		strings.Join(tbl.columns(), ", "), tbl.name, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tbl.name, err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		e, err := scanEntry(rows, q.Kind, tbl)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", tbl.name, err)
	}

	return entries, nil
}

func scanEntry(rows *sql.Rows, kind Kind, tbl tableSpec) (Entry, error) {
	var queryDate string

	e := Entry{Kind: kind}
	values := make([]string, len(tbl.attrs))
	dest := []any{&e.ID, &e.Lat, &e.Lon}

	if tbl.radius {
		dest = append(dest, &e.RadiusM)
	}

	for i := range values {
		dest = append(dest, &values[i])
	}

	dest = append(dest, &e.Provider, &queryDate)

	if err := rows.Scan(dest...); err != nil {
		return Entry{}, fmt.Errorf("failed to scan %s row: %w", tbl.name, err)
	}

	e.Attributes = make(trajectory.Attributes, len(tbl.attrs))

	for i, attr := range tbl.attrs {
		if values[i] != "" {
			e.Attributes[attr] = values[i]
		}
	}

	if t, err := time.Parse(time.RFC3339Nano, queryDate); err == nil {
		e.QueriedAt = t
	}

	return e, nil
}

// Upsert inserts the entry or replaces the attributes and query date of the
// entry with the same key. The stored id is returned.
func (s *SQLStore) Upsert(ctx context.Context, e Entry) (int64, error) {
	tbl, err := specFor(e.Kind)
	if err != nil {
		return 0, err
	}

	cols := tbl.columns()
	args := []any{e.Lat, e.Lon}

	if tbl.radius {
		args = append(args, e.RadiusM)
	}

	for _, attr := range tbl.attrs {
		args = append(args, e.Attributes[attr])
	}

	args = append(args, e.Provider, e.QueriedAt.UTC().Format(time.RFC3339Nano))

	updates := make([]string, 0, len(tbl.attrs)+1)
	for _, attr := range append(append([]string{}, tbl.attrs...), "query_date") {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", attr, attr))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING id",
		tbl.name,
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
		strings.Join(tbl.keyColumns(), ", "),
		strings.Join(updates, ", "),
	)

	var id int64
	if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert into %s: %w", tbl.name, err)
	}

	return id, nil
}

// Count returns the number of stored entries of a kind.
func (s *SQLStore) Count(ctx context.Context, kind Kind) (int64, error) {
	tbl, err := specFor(kind)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tbl.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", tbl.name, err)
	}

	return n, nil
}

// RecordTrack writes one tracks row and its track_points in a transaction.
func (s *SQLStore) RecordTrack(ctx context.Context, audit TrackAudit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin track audit: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(
		"INSERT INTO tracks (id, file, stage, total_points, sampling_distance_km, processed_at) VALUES (?, ?, ?, ?, ?, ?)"),
		audit.ID, audit.File, audit.Stage, audit.TotalPoints, audit.SamplingDistanceKm,
		audit.ProcessedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to insert track %s: %w", audit.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		"INSERT INTO track_points (track_id, sequence_index, cache_entry_id) VALUES (?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("failed to prepare track points: %w", err)
	}
	defer stmt.Close()

	for _, p := range audit.Points {
		var entryID sql.NullInt64
		if p.EntryID != nil {
			entryID = sql.NullInt64{Int64: *p.EntryID, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx, audit.ID, p.SequenceIndex, entryID); err != nil {
			return fmt.Errorf("failed to insert track point %d: %w", p.SequenceIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit track audit: %w", err)
	}

	return nil
}

// TrackPoints returns the audited points of a track ordered by sequence index.
func (s *SQLStore) TrackPoints(ctx context.Context, trackID string) ([]TrackPoint, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT sequence_index, cache_entry_id FROM track_points WHERE track_id = ? ORDER BY sequence_index"), trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track points: %w", err)
	}
	defer rows.Close()

	var points []TrackPoint

	for rows.Next() {
		var (
			p       TrackPoint
			entryID sql.NullInt64
		)

		if err := rows.Scan(&p.SequenceIndex, &entryID); err != nil {
			return nil, fmt.Errorf("failed to scan track point: %w", err)
		}

		if entryID.Valid {
			id := entryID.Int64
			p.EntryID = &id
		}

		points = append(points, p)
	}

	return points, rows.Err()
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
