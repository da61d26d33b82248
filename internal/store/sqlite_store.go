package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	kerr "github.com/kittclouds/karta/pkg/errors"
)

// SQLiteStore is the SQLite-backed Gateway.
// Uses ncruces/go-sqlite3/driver which provides a database/sql interface.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// schema defines the graph tables and the focal-relative context tables.
const schema = `
-- Nodes (global, context independent)
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    ntype TEXT NOT NULL,
    path TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL,
    modified_at INTEGER NOT NULL,
    attributes TEXT NOT NULL DEFAULT '{}'
);

-- Edges (Graph)
-- Note: No foreign keys - referential integrity managed at application level
CREATE TABLE IF NOT EXISTS edges (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    contains INTEGER NOT NULL DEFAULT 0,
    attributes TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

-- Contexts, keyed by focal node id. Viewport is optional.
CREATE TABLE IF NOT EXISTS contexts (
    id TEXT PRIMARY KEY,
    has_viewport INTEGER NOT NULL DEFAULT 0,
    rel_pos_x REAL NOT NULL DEFAULT 0,
    rel_pos_y REAL NOT NULL DEFAULT 0,
    scale REAL NOT NULL DEFAULT 1
);

-- View placements relative to the context's focal node
CREATE TABLE IF NOT EXISTS context_views (
    context_id TEXT NOT NULL,
    node_id TEXT NOT NULL,
    rel_x REAL NOT NULL,
    rel_y REAL NOT NULL,
    rel_scale REAL NOT NULL,
    width REAL NOT NULL,
    height REAL NOT NULL,
    rotation REAL NOT NULL DEFAULT 0,
    attributes TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (context_id, node_id)
);

CREATE INDEX IF NOT EXISTS idx_context_views_node ON context_views(node_id);
`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStore creates a new in-memory SQLite store.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	root := rootNode()
	if _, err := db.Exec(`
		INSERT OR IGNORE INTO nodes (id, ntype, path, created_at, modified_at, attributes)
		VALUES (?, ?, ?, ?, ?, ?)
	`, root.ID, root.NType, root.Path, root.CreatedAt, root.ModifiedAt, encodeAttrs(root.Attributes)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed root node: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// =============================================================================
// Nodes
// =============================================================================

// GetNode retrieves a node by id.
func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*DataNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryNode(ctx, s.db, "id = ?", id)
}

// GetNodeByPath retrieves a node by its normalized path.
func (s *SQLiteStore) GetNodeByPath(ctx context.Context, p string) (*DataNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p = NormalizePath(p)
	if p == "" {
		return nil, nil
	}
	return queryNode(ctx, s.db, "path = ?", p)
}

// SaveNode inserts or updates a node. A changed path renames the node and
// rebases its descendants.
func (s *SQLiteStore) SaveNode(ctx context.Context, node *DataNode) (*DataNode, error) {
	if node == nil || node.ID == "" {
		return nil, kerr.New(kerr.CodeStoreInvalidInput, "node id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out *DataNode
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n := node.Clone()
		n.Path = NormalizePath(n.Path)
		n.ModifiedAt = nowMillis()

		existing, err := queryNode(ctx, tx, "id = ?", n.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			if n.Path == "" {
				return kerr.New(kerr.CodeStoreInvalidInput, "new node needs a path", kerr.FieldNodeID(n.ID))
			}
			if err := ensurePathFree(ctx, tx, n.Path); err != nil {
				return err
			}
			if n.CreatedAt == 0 {
				n.CreatedAt = n.ModifiedAt
			}
			out = n
			return insertNode(ctx, tx, n)
		}

		n.CreatedAt = existing.CreatedAt
		if n.Path == "" {
			n.Path = existing.Path
		}
		if n.Path != existing.Path {
			if existing.IsProtected() {
				return protected(existing)
			}
			if err := ensurePathFree(ctx, tx, n.Path); err != nil {
				return err
			}
			if _, err := rebaseDescendants(ctx, tx, existing.Path, n.Path, n.ModifiedAt); err != nil {
				return err
			}
		}
		n.Attributes[AttrName] = n.Name()

		_, err = tx.ExecContext(ctx, `
			UPDATE nodes SET ntype = ?, path = ?, modified_at = ?, attributes = ? WHERE id = ?
		`, n.NType, n.Path, n.ModifiedAt, encodeAttrs(n.Attributes), n.ID)
		out = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// CreateNode inserts a node under parentPath together with its contains edge.
func (s *SQLiteStore) CreateNode(ctx context.Context, node *DataNode, parentPath string) (*DataNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out *DataNode
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		parent, err := queryNode(ctx, tx, "path = ?", NormalizePath(parentPath))
		if err != nil {
			return err
		}
		if parent == nil {
			return notFound(parentPath)
		}
		n, err := prepareNewNode(node, parent)
		if err != nil {
			return err
		}
		if existing, err := queryNode(ctx, tx, "id = ?", n.ID); err != nil {
			return err
		} else if existing != nil {
			return kerr.New(kerr.CodeStoreConflict, "node id already exists", kerr.FieldNodeID(n.ID))
		}
		if err := ensurePathFree(ctx, tx, n.Path); err != nil {
			return err
		}
		if err := insertNode(ctx, tx, n); err != nil {
			return err
		}
		edge := &KartaEdge{ID: NewID(), Source: parent.ID, Target: n.ID, Contains: true}
		out = n
		return insertEdge(ctx, tx, edge)
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// DeleteNodes removes nodes by id or path, with their descendants, edges
// and view entries in every context.
func (s *SQLiteStore) DeleteNodes(ctx context.Context, handles []string) (*DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &DeleteResult{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, handle := range handles {
			n, err := resolveNode(ctx, tx, handle)
			if err != nil {
				return err
			}
			if n == nil {
				result.Failed = append(result.Failed, DeleteFailure{Handle: handle, Error: "node not found"})
				continue
			}
			if n.IsProtected() {
				result.Failed = append(result.Failed, DeleteFailure{Handle: handle, Error: "node is protected"})
				continue
			}

			descendants, err := descendantPaths(ctx, tx, n.Path)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(descendants))
			for id := range descendants {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			for _, id := range append([]string{n.ID}, ids...) {
				if err := purgeNode(ctx, tx, id); err != nil {
					return err
				}
			}
			result.Deleted = append(result.Deleted, DeletedNode{NodeID: n.ID, DescendantsDeleted: ids})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MoveNodes re-parents nodes, rewriting descendant paths.
func (s *SQLiteStore) MoveNodes(ctx context.Context, moves []MoveRequest) (*MoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &MoveResult{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range moves {
			src, err := queryNode(ctx, tx, "path = ?", NormalizePath(m.SourcePath))
			if err != nil {
				return err
			}
			target, err := queryNode(ctx, tx, "path = ?", NormalizePath(m.TargetParentPath))
			if err != nil {
				return err
			}
			newPath, errMsg := checkMove(src, target, m)
			if errMsg != "" {
				result.Errors = append(result.Errors, errMsg)
				continue
			}
			if err := ensurePathFree(ctx, tx, newPath); err != nil {
				result.Errors = append(result.Errors, "target path already in use: "+newPath)
				continue
			}

			now := nowMillis()
			moved, err := rebaseDescendants(ctx, tx, src.Path, newPath, now)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE nodes SET path = ?, modified_at = ? WHERE id = ?`,
				newPath, now, src.ID); err != nil {
				return err
			}
			result.Moved = append(result.Moved, MovedNode{ID: src.ID, NewPath: newPath})
			result.Moved = append(result.Moved, moved...)

			if err := reparentTx(ctx, tx, src.ID, target.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result.Moved, func(i, j int) bool { return result.Moved[i].NewPath < result.Moved[j].NewPath })
	return result, nil
}

// =============================================================================
// Contexts
// =============================================================================

// LoadContextBundle returns the focal node, its neighbors, the stored
// context (if any) and every edge among those nodes.
func (s *SQLiteStore) LoadContextBundle(ctx context.Context, handle string) (*Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	focal, err := resolveNode(ctx, s.db, handle)
	if err != nil || focal == nil {
		return nil, err
	}

	sc, err := loadStorable(ctx, s.db, focal.ID)
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{FocalID: focal.ID, Context: sc}

	ids := map[string]bool{focal.ID: true}
	if sc != nil {
		for id := range sc.ViewNodes {
			ids[id] = true
		}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id FROM edges WHERE source_id = ? OR target_id = ?
	`, focal.ID, focal.ID)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "loading neighbors")
	}
	for rows.Next() {
		var src, dst string
		if err := rows.Scan(&src, &dst); err != nil {
			rows.Close()
			return nil, err
		}
		ids[src] = true
		ids[dst] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for id := range ids {
		n, err := queryNode(ctx, s.db, "id = ?", id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			delete(ids, id)
			continue
		}
		bundle.Nodes = append(bundle.Nodes, n)
	}

	edges, err := queryEdges(ctx, s.db, "", nil)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if ids[e.Source] && ids[e.Target] {
			bundle.Edges = append(bundle.Edges, e)
		}
	}
	sortBundle(bundle)
	return bundle, nil
}

// SaveContext merges the supplied entries and viewport into the stored
// context, creating it on first save.
func (s *SQLiteStore) SaveContext(ctx context.Context, sc *StorableContext) error {
	if sc == nil || sc.ID == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "context id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		focal, err := queryNode(ctx, tx, "id = ?", sc.ID)
		if err != nil {
			return err
		}
		if focal == nil {
			return notFound(sc.ID)
		}

		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO contexts (id) VALUES (?)`, sc.ID); err != nil {
			return err
		}
		if sc.Viewport != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE contexts SET has_viewport = 1, rel_pos_x = ?, rel_pos_y = ?, scale = ? WHERE id = ?
			`, sc.Viewport.RelPosX, sc.Viewport.RelPosY, sc.Viewport.Scale, sc.ID); err != nil {
				return err
			}
		}

		for id, vn := range sc.ViewNodes {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, id).Scan(&exists)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO context_views (context_id, node_id, rel_x, rel_y, rel_scale, width, height, rotation, attributes)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(context_id, node_id) DO UPDATE SET
					rel_x = excluded.rel_x,
					rel_y = excluded.rel_y,
					rel_scale = excluded.rel_scale,
					width = excluded.width,
					height = excluded.height,
					rotation = excluded.rotation,
					attributes = excluded.attributes
			`, sc.ID, id, vn.RelX, vn.RelY, vn.RelScale, vn.Width, vn.Height, vn.Rotation,
				encodeAttrs(vn.Attributes)); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveViewNodes drops entries from a stored context.
func (s *SQLiteStore) RemoveViewNodes(ctx context.Context, contextID string, nodeIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range nodeIDs {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM context_views WHERE context_id = ? AND node_id = ?`, contextID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAllContextPaths maps every stored context id to its focal node path.
func (s *SQLiteStore) GetAllContextPaths(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT c.id, n.path FROM contexts c JOIN nodes n ON n.id = c.id`)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "listing contexts")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, p string
		if err := rows.Scan(&id, &p); err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, rows.Err()
}

// =============================================================================
// Edges
// =============================================================================

// CreateEdges inserts association edges. The batch is all-or-nothing.
func (s *SQLiteStore) CreateEdges(ctx context.Context, edges []*KartaEdge) ([]*KartaEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := make([]*KartaEdge, 0, len(edges))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		pending := make(map[[2]string]bool)
		for _, in := range edges {
			if err := checkEdgeShape(in); err != nil {
				return err
			}
			for _, id := range []string{in.Source, in.Target} {
				n, err := queryNode(ctx, tx, "id = ?", id)
				if err != nil {
					return err
				}
				if n == nil {
					return notFound(id)
				}
			}
			key := pairKey(in.Source, in.Target)
			dup, err := edgeExists(ctx, tx, in.Source, in.Target, "")
			if err != nil {
				return err
			}
			if dup || pending[key] {
				return duplicateEdge(in)
			}
			pending[key] = true

			e := in.Clone()
			if e.ID == "" {
				e.ID = NewID()
			}
			if err := insertEdge(ctx, tx, e); err != nil {
				return err
			}
			created = append(created, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ReconnectEdge moves an association edge to new endpoints.
func (s *SQLiteStore) ReconnectEdge(ctx context.Context, edgeID, newSource, newTarget string) (*KartaEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out *KartaEdge
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		edges, err := queryEdges(ctx, tx, "id = ?", []any{edgeID})
		if err != nil {
			return err
		}
		if len(edges) == 0 {
			return kerr.New(kerr.CodeStoreEdgeNotFound, "edge not found", kerr.Field("edge_id", edgeID))
		}
		e := edges[0]
		if err := checkReconnect(e, newSource, newTarget); err != nil {
			return err
		}
		for _, id := range []string{newSource, newTarget} {
			n, err := queryNode(ctx, tx, "id = ?", id)
			if err != nil {
				return err
			}
			if n == nil {
				return notFound(id)
			}
		}
		dup, err := edgeExists(ctx, tx, newSource, newTarget, e.ID)
		if err != nil {
			return err
		}
		if dup {
			return kerr.New(kerr.CodeStoreConflict, "edge already exists")
		}
		e.Source = newSource
		e.Target = newTarget
		out = e
		_, err = tx.ExecContext(ctx, `UPDATE edges SET source_id = ?, target_id = ? WHERE id = ?`,
			newSource, newTarget, e.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEdges removes association edges. Contains edges are refused.
func (s *SQLiteStore) DeleteEdges(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			var contains int
			err := tx.QueryRowContext(ctx, `SELECT contains FROM edges WHERE id = ?`, id).Scan(&contains)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return err
			}
			if contains != 0 {
				return kerr.New(kerr.CodeStoreProtected, "contains edges cannot be deleted", kerr.Field("edge_id", id))
			}
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// Lifecycle
// =============================================================================

// Snapshot dumps every node, edge and stored context.
func (s *SQLiteStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{}
	nodes, err := queryNodes(ctx, s.db, "", nil)
	if err != nil {
		return nil, err
	}
	snap.Nodes = nodes

	if snap.Edges, err = queryEdges(ctx, s.db, "", nil); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM contexts`)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "listing contexts")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		sc, err := loadStorable(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if sc != nil {
			snap.Contexts = append(snap.Contexts, sc)
		}
	}
	sortSnapshot(snap)
	return snap, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if kerr.CodeOf(err) == "" {
			return kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "sqlite store")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "commit transaction")
	}
	return nil
}

const nodeColumns = `id, ntype, path, created_at, modified_at, attributes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*DataNode, error) {
	var n DataNode
	var attrs string
	if err := row.Scan(&n.ID, &n.NType, &n.Path, &n.CreatedAt, &n.ModifiedAt, &attrs); err != nil {
		return nil, err
	}
	n.Attributes = decodeAttrs(attrs)
	return &n, nil
}

func queryNode(ctx context.Context, q querier, where string, args ...any) (*DataNode, error) {
	n, err := scanNode(q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE `+where, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "querying node")
	}
	return n, nil
}

func queryNodes(ctx context.Context, q querier, where string, args []any) ([]*DataNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes`
	if where != "" {
		query += ` WHERE ` + where
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "querying nodes")
	}
	defer rows.Close()

	var nodes []*DataNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func resolveNode(ctx context.Context, q querier, handle string) (*DataNode, error) {
	if IsPathHandle(handle) {
		p := NormalizePath(handle)
		if p == "" {
			return nil, nil
		}
		return queryNode(ctx, q, "path = ?", p)
	}
	return queryNode(ctx, q, "id = ?", handle)
}

func insertNode(ctx context.Context, q querier, n *DataNode) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO nodes (id, ntype, path, created_at, modified_at, attributes)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.ID, n.NType, n.Path, n.CreatedAt, n.ModifiedAt, encodeAttrs(n.Attributes))
	return err
}

func ensurePathFree(ctx context.Context, q querier, p string) error {
	n, err := queryNode(ctx, q, "path = ?", p)
	if err != nil {
		return err
	}
	if n != nil {
		return kerr.New(kerr.CodeStoreConflict, "path already in use", kerr.FieldPath(p))
	}
	return nil
}

// descendantPaths returns id -> path for every node strictly under p.
// The range scan relies on '0' being the byte after '/'.
func descendantPaths(ctx context.Context, q querier, p string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, path FROM nodes WHERE path >= ? AND path < ?`, p+"/", p+"0")
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "querying descendants")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, dp string
		if err := rows.Scan(&id, &dp); err != nil {
			return nil, err
		}
		out[id] = dp
	}
	return out, rows.Err()
}

func rebaseDescendants(ctx context.Context, q querier, oldPath, newPath string, now int64) ([]MovedNode, error) {
	descendants, err := descendantPaths(ctx, q, oldPath)
	if err != nil {
		return nil, err
	}
	moved := make([]MovedNode, 0, len(descendants))
	for id, dp := range descendants {
		np := rebasePath(dp, oldPath, newPath)
		if _, err := q.ExecContext(ctx, `UPDATE nodes SET path = ?, modified_at = ? WHERE id = ?`, np, now, id); err != nil {
			return nil, err
		}
		moved = append(moved, MovedNode{ID: id, NewPath: np})
	}
	return moved, nil
}

func purgeNode(ctx context.Context, q querier, id string) error {
	stmts := []string{
		`DELETE FROM nodes WHERE id = ?`,
		`DELETE FROM contexts WHERE id = ?`,
		`DELETE FROM context_views WHERE context_id = ?`,
		`DELETE FROM context_views WHERE node_id = ?`,
		`DELETE FROM edges WHERE source_id = ?`,
		`DELETE FROM edges WHERE target_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return nil
}

func reparentTx(ctx context.Context, q querier, childID, parentID string) error {
	res, err := q.ExecContext(ctx, `UPDATE edges SET source_id = ? WHERE contains = 1 AND target_id = ?`, parentID, childID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}
	return insertEdge(ctx, q, &KartaEdge{ID: NewID(), Source: parentID, Target: childID, Contains: true})
}

func insertEdge(ctx context.Context, q querier, e *KartaEdge) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO edges (id, source_id, target_id, contains, attributes) VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.Source, e.Target, boolToInt(e.Contains), encodeAttrs(e.Attributes))
	return err
}

func queryEdges(ctx context.Context, q querier, where string, args []any) ([]*KartaEdge, error) {
	query := `SELECT id, source_id, target_id, contains, attributes FROM edges`
	if where != "" {
		query += ` WHERE ` + where
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "querying edges")
	}
	defer rows.Close()

	var edges []*KartaEdge
	for rows.Next() {
		var e KartaEdge
		var contains int
		var attrs string
		if err := rows.Scan(&e.ID, &e.Source, &e.Target, &contains, &attrs); err != nil {
			return nil, err
		}
		e.Contains = contains != 0
		e.Attributes = decodeAttrs(attrs)
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// edgeExists reports whether an edge already joins a and b in either
// direction, ignoring the edge with id except.
func edgeExists(ctx context.Context, q querier, a, b, except string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `
		SELECT 1 FROM edges
		WHERE ((source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?)) AND id != ?
		LIMIT 1
	`, a, b, b, a, except).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func loadStorable(ctx context.Context, q querier, id string) (*StorableContext, error) {
	var hasViewport int
	var vp StorableViewport
	err := q.QueryRowContext(ctx, `
		SELECT has_viewport, rel_pos_x, rel_pos_y, scale FROM contexts WHERE id = ?
	`, id).Scan(&hasViewport, &vp.RelPosX, &vp.RelPosY, &vp.Scale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "loading context")
	}

	sc := &StorableContext{ID: id, ViewNodes: make(map[string]StorableViewNode)}
	if hasViewport != 0 {
		sc.Viewport = &vp
	}

	rows, err := q.QueryContext(ctx, `
		SELECT v.node_id, v.rel_x, v.rel_y, v.rel_scale, v.width, v.height, v.rotation, v.attributes
		FROM context_views v JOIN nodes n ON n.id = v.node_id
		WHERE v.context_id = ?
	`, id)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "loading context views")
	}
	defer rows.Close()

	for rows.Next() {
		var vn StorableViewNode
		var attrs string
		if err := rows.Scan(&vn.ID, &vn.RelX, &vn.RelY, &vn.RelScale, &vn.Width, &vn.Height, &vn.Rotation, &attrs); err != nil {
			return nil, err
		}
		vn.Attributes = decodeAttrs(attrs)
		sc.ViewNodes[vn.ID] = vn
	}
	return sc, rows.Err()
}

func encodeAttrs(attrs map[string]any) string {
	if len(attrs) == 0 {
		return "{}"
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeAttrs(raw string) map[string]any {
	out := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface check
var _ Gateway = (*SQLiteStore)(nil)
