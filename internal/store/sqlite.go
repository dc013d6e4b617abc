package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dvf-flood/internal/model"
	"github.com/sells-group/dvf-flood/pkg/geocode"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       TEXT,
	error       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	key        TEXT PRIMARY KEY,
	found      INTEGER NOT NULL,
	lat        REAL,
	lon        REAL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS flood_cache (
	point      TEXT PRIMARY KEY,
	tag        TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sales (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	sale_key     TEXT NOT NULL,
	code_commune TEXT NOT NULL,
	type_local   TEXT NOT NULL,
	flood_status TEXT,
	data         TEXT NOT NULL,
	PRIMARY KEY (run_id, sale_key)
);

CREATE TABLE IF NOT EXISTS communes (
	code       TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	dept       TEXT,
	population INTEGER,
	coastal    INTEGER NOT NULL DEFAULT 0,
	geom       BLOB,
	data       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_stage ON runs(stage);
CREATE INDEX IF NOT EXISTS idx_sales_commune ON sales(code_commune);
CREATE INDEX IF NOT EXISTS idx_communes_name ON communes(name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, stage string, startedAt time.Time) (*Run, error) {
	id := uuid.New().String()
	startedAt = startedAt.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, stage, status, started_at) VALUES (?, ?, ?, ?)`,
		id, stage, string(RunStatusRunning), startedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &Run{ID: id, Stage: stage, Status: RunStatusRunning, StartedAt: startedAt}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status RunStatus, stats map[string]int, runErr error, finishedAt time.Time) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run stats")
	}
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), string(statsJSON), errText, finishedAt.UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, stage, status, stats, error, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, stage, status, stats, error, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, filter.Stage)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// --- Geocode cache ---

func (s *SQLiteStore) GetGeocode(ctx context.Context, key string) (geocode.CacheEntry, bool, error) {
	var found bool
	var lat, lon sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT found, lat, lon FROM geocode_cache WHERE key = ?`, key,
	).Scan(&found, &lat, &lon)
	if err == sql.ErrNoRows {
		return geocode.CacheEntry{}, false, nil
	}
	if err != nil {
		return geocode.CacheEntry{}, false, eris.Wrap(err, "sqlite: get geocode")
	}
	entry := geocode.CacheEntry{Found: found}
	if found && lat.Valid && lon.Valid {
		entry.Coord = model.Coordinate{Lat: lat.Float64, Lon: lon.Float64}
	}
	return entry, true, nil
}

func (s *SQLiteStore) PutGeocode(ctx context.Context, key string, entry geocode.CacheEntry) error {
	var lat, lon sql.NullFloat64
	if entry.Found {
		lat = sql.NullFloat64{Float64: entry.Coord.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: entry.Coord.Lon, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (key, found, lat, lon, cached_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET found = excluded.found, lat = excluded.lat,
		   lon = excluded.lon, cached_at = excluded.cached_at`,
		key, entry.Found, lat, lon, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: put geocode")
}

// --- Flood cache ---

// pointKey rounds to 1e-6 degrees (about 10 cm).
func pointKey(p model.Coordinate) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lon, 'f', 6, 64)
}

func (s *SQLiteStore) GetFloodTag(ctx context.Context, p model.Coordinate) (*model.FloodTag, error) {
	var tagJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT tag FROM flood_cache WHERE point = ?`, pointKey(p),
	).Scan(&tagJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get flood tag")
	}
	var tag model.FloodTag
	if err := json.Unmarshal([]byte(tagJSON), &tag); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal flood tag")
	}
	return &tag, nil
}

func (s *SQLiteStore) PutFloodTag(ctx context.Context, p model.Coordinate, tag model.FloodTag) error {
	tagJSON, err := json.Marshal(tag)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal flood tag")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flood_cache (point, tag, cached_at) VALUES (?, ?, ?)
		 ON CONFLICT(point) DO UPDATE SET tag = excluded.tag, cached_at = excluded.cached_at`,
		pointKey(p), string(tagJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: put flood tag")
}

// --- Sales ---

func (s *SQLiteStore) SaveTransactions(ctx context.Context, runID string, txs []model.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin sales")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO sales (run_id, sale_key, code_commune, type_local, flood_status, data)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare sales insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range txs {
		t := &txs[i]
		data, err := json.Marshal(t)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal sale %s", t.Key())
		}
		var status sql.NullString
		if t.Flood != nil {
			status = sql.NullString{String: string(t.Flood.Status), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, runID, t.Key(), t.CommuneCode, string(t.PropertyType), status, string(data)); err != nil {
			return eris.Wrapf(err, "sqlite: insert sale %s", t.Key())
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit sales")
}

func (s *SQLiteStore) LoadTransactions(ctx context.Context, runID string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM sales WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load sales")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Transaction
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sale")
		}
		var t model.Transaction
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal sale")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load sales iterate")
}

// --- Communes ---

func (s *SQLiteStore) SaveCommunes(ctx context.Context, communes []model.Commune) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin communes")
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range communes {
		c := &communes[i]
		data, err := json.Marshal(c)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal commune %s", c.Code)
		}
		var blob []byte
		if c.Geometry != nil {
			blob, err = ewkb.Marshal(c.Geometry, ewkb.NDR)
			if err != nil {
				return eris.Wrapf(err, "sqlite: encode geometry of %s", c.Code)
			}
		}
		var pop sql.NullInt64
		if c.Population != nil {
			pop = sql.NullInt64{Int64: int64(*c.Population), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO communes (code, name, dept, population, coastal, geom, data)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Code, c.Name, c.Department, pop, c.Coastal, blob, string(data),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert commune %s", c.Code)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit communes")
}

func (s *SQLiteStore) GetCommune(ctx context.Context, code string) (*model.Commune, error) {
	var data string
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data, geom FROM communes WHERE code = ?`, code,
	).Scan(&data, &blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get commune %s", code)
	}

	var c model.Commune
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal commune")
	}
	if len(blob) > 0 {
		g, err := ewkb.Unmarshal(blob)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode geometry of %s", code)
		}
		mp, ok := g.(*geom.MultiPolygon)
		if !ok {
			return nil, eris.Errorf("sqlite: commune %s geometry is %T", code, g)
		}
		c.Geometry = mp
	}
	return &c, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var statsJSON, errText sql.NullString
	var finished sql.NullTime

	err := row.Scan(&r.ID, &r.Stage, &r.Status, &statsJSON, &errText, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if statsJSON.Valid && statsJSON.String != "" && statsJSON.String != "null" {
		if err := json.Unmarshal([]byte(statsJSON.String), &r.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run stats")
		}
	}
	r.Error = errText.String
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
