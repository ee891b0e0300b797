// Package sqlitedir persists the Directory tree in SQLite. The tree is
// flattened into leaf rows (path, value-as-JSON); subtrees are reassembled on
// read by prefix scan. Child events share the same hub as the in-memory store.
package sqlitedir

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/platefeed/server/pkg/directory"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	path  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

type Store struct {
	db *sql.DB

	// mu serializes mutations so staged pre-images stay consistent with
	// the emitted post-images.
	mu  sync.Mutex
	hub *directory.SubHub
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, hub: directory.NewSubHub()}, nil
}

func (s *Store) Close() error {
	s.hub.Shutdown()
	return s.db.Close()
}

func (s *Store) GetCollection(ctx context.Context, path string) (map[string]any, error) {
	rows, err := s.subtreeRows(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	for sub, raw := range rows {
		key, ok := directory.ChildOf(path, sub)
		if !ok {
			continue
		}
		rest := strings.TrimPrefix(sub, directory.Join(path, key))
		value, err := decodeLeaf(raw)
		if err != nil {
			return nil, err
		}
		if rest == "" {
			out[key] = value
			continue
		}
		child, _ := out[key].(map[string]any)
		if child == nil {
			child = make(map[string]any)
			out[key] = child
		}
		insertAt(child, directory.Split(rest), value)
	}
	return out, nil
}

func (s *Store) GetChild(ctx context.Context, path string) (any, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM nodes WHERE path = ?`, path).Scan(&raw)
	switch {
	case err == nil:
		value, err := decodeLeaf(raw)
		return value, err == nil, err
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, false, err
	}

	rows, err := s.subtreeRows(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	tree := make(map[string]any)
	for sub, raw := range rows {
		value, err := decodeLeaf(raw)
		if err != nil {
			return nil, false, err
		}
		rest := strings.TrimPrefix(strings.TrimPrefix(sub, path), "/")
		insertAt(tree, directory.Split(rest), value)
	}
	return tree, true, nil
}

func (s *Store) SetChild(ctx context.Context, path string, value any) error {
	if len(directory.Split(path)) == 0 {
		return fmt.Errorf("directory: cannot set the root path")
	}
	leaves := make(map[string]any)
	flatten(path, value, leaves)

	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.stage(ctx, path)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteSubtree(ctx, tx, path); err != nil {
			return err
		}
		for leafPath, leafValue := range leaves {
			raw, err := json.Marshal(leafValue)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO nodes (path, value) VALUES (?, ?)
				 ON CONFLICT (path) DO UPDATE SET value = excluded.value`,
				leafPath, string(raw)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, pending)
	return nil
}

func (s *Store) RemoveChild(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.stage(ctx, path)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		return deleteSubtree(ctx, tx, path)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, pending)
	return nil
}

func (s *Store) IncrementCounter(ctx context.Context, path string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.stage(ctx, path)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var current int64
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT value FROM nodes WHERE path = ?`, path).Scan(&raw)
		switch {
		case err == nil:
			if err := json.Unmarshal([]byte(raw), &current); err != nil {
				return fmt.Errorf("directory: counter at %q: %w", path, err)
			}
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO nodes (path, value) VALUES (?, ?)
			 ON CONFLICT (path) DO UPDATE SET value = excluded.value`,
			path, fmt.Sprintf("%d", current+delta))
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ctx, pending)
	return nil
}

func (s *Store) NewChildID() string {
	return directory.NewChildID()
}

func (s *Store) Subscribe(ctx context.Context, path string) (<-chan directory.ChildEvent, error) {
	return s.hub.Subscribe(ctx, path)
}

func (s *Store) UnsubscribeAll(path string) {
	s.hub.UnsubscribeAll(path)
}

func (s *Store) stage(ctx context.Context, path string) ([]directory.PendingEvent, error) {
	var stageErr error
	pending := s.hub.Stage(path, func(p string) bool {
		ok, err := s.pathExists(ctx, p)
		if err != nil && stageErr == nil {
			stageErr = err
		}
		return ok
	})
	return pending, stageErr
}

func (s *Store) emit(ctx context.Context, pending []directory.PendingEvent) {
	s.hub.Emit(pending, func(p string) (any, bool) {
		value, ok, err := s.GetChild(ctx, p)
		if err != nil {
			return nil, false
		}
		return value, ok
	})
}

func (s *Store) pathExists(ctx context.Context, path string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM nodes WHERE path = ? OR (path >= ? AND path < ?) LIMIT 1`,
		path, path+"/", path+"0").Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// subtreeRows returns every leaf row strictly below path. The range trick
// relies on '0' being the byte after '/' in ASCII.
func (s *Store) subtreeRows(ctx context.Context, path string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, value FROM nodes WHERE path >= ? AND path < ?`,
		path+"/", path+"0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var p, v string
		if err := rows.Scan(&p, &v); err != nil {
			return nil, err
		}
		out[p] = v
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func deleteSubtree(ctx context.Context, tx *sql.Tx, path string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE path = ?`, path); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM nodes WHERE path >= ? AND path < ?`, path+"/", path+"0")
	return err
}

// flatten walks a JSON tree and records its leaves keyed by full path.
// Arrays and scalars are leaves; maps recurse.
func flatten(path string, value any, out map[string]any) {
	if m, ok := value.(map[string]any); ok {
		for key, child := range m {
			flatten(directory.Join(path, key), child, out)
		}
		return
	}
	out[path] = value
}

func insertAt(tree map[string]any, segs []string, value any) {
	for len(segs) > 1 {
		child, ok := tree[segs[0]].(map[string]any)
		if !ok {
			child = make(map[string]any)
			tree[segs[0]] = child
		}
		tree = child
		segs = segs[1:]
	}
	if len(segs) == 1 {
		tree[segs[0]] = value
	}
}

func decodeLeaf(raw string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, err
	}
	return value, nil
}
