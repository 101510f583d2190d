package export

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/rigkit/api"
	"github.com/agentic-research/rigkit/internal/graph"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS scene (
	key TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	parent_id TEXT,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	class_id TEXT,
	x REAL, y REAL, z REAL,
	wx REAL, wy REAL, wz REAL,
	line INTEGER
);

CREATE TABLE IF NOT EXISTS fixtures (
	node_id TEXT PRIMARY KEY,
	spec TEXT,
	fixture_type_id TEXT,
	fixture_type TEXT,
	mode TEXT,
	requested_mode TEXT,
	fixture_id TEXT,
	unit_number INTEGER,
	resolved INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS addresses (
	node_id TEXT NOT NULL,
	brk INTEGER NOT NULL,
	universe INTEGER NOT NULL,
	channel INTEGER NOT NULL,
	absolute INTEGER NOT NULL,
	footprint INTEGER NOT NULL,
	overflow INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fixture_types (
	key TEXT PRIMARY KEY,
	id TEXT,
	name TEXT,
	manufacturer TEXT,
	source TEXT,
	placeholder INTEGER NOT NULL,
	modes INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS diagnostics (
	seq INTEGER PRIMARY KEY,
	severity TEXT NOT NULL,
	kind TEXT NOT NULL,
	node_id TEXT,
	path TEXT,
	line INTEGER,
	message TEXT
);
`

// Indexes are created after the bulk load.
const indexIndexes = `
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id, name);
CREATE INDEX IF NOT EXISTS idx_addresses_universe ON addresses(universe, channel);
CREATE INDEX IF NOT EXISTS idx_diagnostics_kind ON diagnostics(kind);
`

// IndexWriter writes scene rows into a SQLite database in batched
// transactions.
type IndexWriter struct {
	db        *sql.DB
	tx        *sql.Tx
	stmts     map[string]*sql.Stmt
	batchSize int
	count     int
	seq       int
	mu        sync.Mutex
}

var indexStatements = map[string]string{
	"scene": `INSERT OR REPLACE INTO scene (key, value) VALUES (?, ?)`,
	"node": `INSERT OR REPLACE INTO nodes (id, parent_id, name, kind, class_id, x, y, z, wx, wy, wz, line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	"fixture": `INSERT OR REPLACE INTO fixtures (node_id, spec, fixture_type_id, fixture_type, mode, requested_mode, fixture_id, unit_number, resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	"address": `INSERT INTO addresses (node_id, brk, universe, channel, absolute, footprint, overflow)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
	"type": `INSERT OR REPLACE INTO fixture_types (key, id, name, manufacturer, source, placeholder, modes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
	"diagnostic": `INSERT INTO diagnostics (seq, severity, kind, node_id, path, line, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
}

// NewIndexWriter opens (creating if needed) the database at dbPath and
// initializes the schema.
func NewIndexWriter(dbPath string) (*IndexWriter, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	for _, pragma := range []string{"PRAGMA synchronous = OFF", "PRAGMA journal_mode = MEMORY"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(indexSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &IndexWriter{db: db, batchSize: 5000}
	if err := w.beginTx(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *IndexWriter) beginTx() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	w.tx = tx
	w.stmts = make(map[string]*sql.Stmt, len(indexStatements))
	for name, query := range indexStatements {
		stmt, err := tx.Prepare(query)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("prepare %s: %w", name, err)
		}
		w.stmts[name] = stmt
	}
	return nil
}

func (w *IndexWriter) commitTx() error {
	for _, stmt := range w.stmts {
		_ = stmt.Close()
	}
	w.stmts = nil
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// exec runs a prepared statement and rolls the batch over when full.
func (w *IndexWriter) exec(name string, args ...any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tx == nil {
		return fmt.Errorf("index writer closed")
	}
	if _, err := w.stmts[name].Exec(args...); err != nil {
		return fmt.Errorf("insert %s: %w", name, err)
	}
	w.count++
	if w.count >= w.batchSize {
		w.count = 0
		if err := w.commitTx(); err != nil {
			return err
		}
		return w.beginTx()
	}
	return nil
}

// SetScene records a scene-level key.
func (w *IndexWriter) SetScene(key, value string) error {
	return w.exec("scene", key, value)
}

// AddNode writes a node with its local and world translation.
func (w *IndexWriter) AddNode(n *api.Node, world api.Matrix) error {
	local, abs := n.Transform.Translate(), world.Translate()
	err := w.exec("node", n.ID.String(), nullUUID(n.ParentID), n.Name, n.Kind.String(), nullUUID(n.Class),
		local[0], local[1], local[2], abs[0], abs[1], abs[2], n.Line)
	if err != nil || n.Fixture == nil {
		return err
	}
	f := n.Fixture
	var typeID, typeName any
	if f.Type != nil {
		typeID, typeName = nullUUID(f.Type.ID), f.Type.Name
	}
	return w.exec("fixture", n.ID.String(), f.Spec, typeID, typeName, f.ModeResolved, f.Mode,
		f.FixtureID, f.UnitNumber, boolInt(f.Resolved()))
}

// AddPatch writes one patched break.
func (w *IndexWriter) AddPatch(e *graph.PatchEntry, universeSize int) error {
	return w.exec("address", e.Node.String(), e.Address.Break, e.Address.Universe, e.Address.Channel,
		e.Address.Absolute(universeSize), e.Footprint, e.Overflow)
}

// AddFixtureType writes a fixture type keyed by its GUID, or by name for
// types without one.
func (w *IndexWriter) AddFixtureType(ft *api.FixtureType) error {
	key := "spec:" + ft.Name
	if ft.ID != uuid.Nil {
		key = "id:" + ft.ID.String()
	}
	return w.exec("type", key, nullUUID(ft.ID), ft.Name, ft.Manufacturer, ft.Source,
		boolInt(ft.IsPlaceholder()), len(ft.Modes))
}

// AddDiagnostic appends a diagnostic row.
func (w *IndexWriter) AddDiagnostic(d api.Diagnostic) error {
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()
	return w.exec("diagnostic", seq, d.Severity.String(), api.KindName(d.Kind), nullUUID(d.Node), d.Path, d.Line, d.Message)
}

// Close commits the open batch, builds the lookup indexes and closes the
// database.
func (w *IndexWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tx == nil {
		return nil
	}
	err := w.commitTx()
	w.tx = nil
	if err == nil {
		if _, ierr := w.db.Exec(indexIndexes); ierr != nil {
			err = fmt.Errorf("create indexes: %w", ierr)
		}
	}
	return multierr.Append(err, w.db.Close())
}

// Index writes the whole scene to a SQLite database at dbPath.
func Index(ctx context.Context, g *graph.SceneGraph, dbPath string) (err error) {
	w, err := NewIndexWriter(dbPath)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, w.Close()) }()

	if doc := g.Source(); doc != nil {
		for k, v := range map[string]string{
			"source":           doc.Source,
			"version":          doc.Version.String(),
			"provider":         doc.Provider,
			"provider_version": doc.ProviderVersion,
		} {
			if err := w.SetScene(k, v); err != nil {
				return err
			}
		}
	}

	var walk func(id uuid.UUID, parent api.Matrix) error
	walk = func(id uuid.UUID, parent api.Matrix) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := g.GetNode(id)
		if err != nil {
			return err
		}
		world := parent.Mul(n.Transform)
		if err := w.AddNode(n, world); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := walk(c, world); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range g.Roots() {
		if err := walk(id, api.Identity()); err != nil {
			return err
		}
	}

	patch := g.Patch()
	for _, e := range patch.Entries() {
		if err := w.AddPatch(e, patch.UniverseSize()); err != nil {
			return err
		}
	}
	for _, ft := range g.FixtureTypes() {
		if err := w.AddFixtureType(ft); err != nil {
			return err
		}
	}
	for _, d := range g.Diagnostics() {
		if err := w.AddDiagnostic(d); err != nil {
			return err
		}
	}
	return nil
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
