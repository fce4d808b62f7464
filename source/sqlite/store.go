// Package sqlite provides a SQLite-backed block source.
//
// block_instances holds standalone blocks and is the primary source;
// page_blocks holds the simpler page-attached rows and serves as the legacy
// fallback for page contexts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/unkn0wn-root/blockcache"
	"github.com/unkn0wn-root/blockcache/block"
	"github.com/unkn0wn-root/blockcache/source/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const migrationTable = "schema_migrations"

// Store reads and writes block rows in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var (
	_ blockcache.BlockSource     = (*Store)(nil)
	_ blockcache.PageBlockLister = (*Store)(nil)
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite block store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Blocks returns the active standalone blocks of a region in one context,
// ordered by weight then id.
func (s *Store) Blocks(ctx context.Context, region string, scope block.Context) ([]block.Block, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, type, region, context, config, body, weight, roles, updated_at
		   FROM block_instances
		  WHERE region = ? AND context = ? AND active = 1
		  ORDER BY weight, id`,
		region, string(scope),
	)
	if err != nil {
		return nil, fmt.Errorf("query block instances: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

// Legacy returns a source reading page_blocks. Global contexts have no
// page-attached rows.
func (s *Store) Legacy() blockcache.BlockSource {
	return blockcache.SourceFunc(func(ctx context.Context, region string, scope block.Context) ([]block.Block, error) {
		pageID, ok := scope.PageID()
		if !ok {
			return nil, nil
		}
		return s.pageBlocks(ctx, pageID, region)
	})
}

// PageBlocks lists every block attached to a page: standalone instances in
// the page context and page-attached rows, active or not.
func (s *Store) PageBlocks(ctx context.Context, pageID int64) ([]block.Block, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, type, region, context, config, body, weight, roles, updated_at
		   FROM block_instances
		  WHERE context = ?
		  ORDER BY region, weight, id`,
		string(block.PageContext(pageID)),
	)
	if err != nil {
		return nil, fmt.Errorf("query page instances: %w", err)
	}
	out, err := scanInstances(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	attached, err := s.pageBlocks(ctx, pageID, "")
	if err != nil {
		return nil, err
	}
	return append(out, attached...), nil
}

// pageBlocks reads page-attached rows; an empty region selects every region
// and includes inactive rows.
func (s *Store) pageBlocks(ctx context.Context, pageID int64, region string) ([]block.Block, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT id, page_id, type, region, body, weight, roles, updated_at
	            FROM page_blocks
	           WHERE page_id = ? AND region = ? AND active = 1
	           ORDER BY weight, id`
	args := []any{pageID, region}
	if region == "" {
		query = `SELECT id, page_id, type, region, body, weight, roles, updated_at
		           FROM page_blocks
		          WHERE page_id = ?
		          ORDER BY region, weight, id`
		args = args[:1]
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query page blocks: %w", err)
	}
	defer rows.Close()
	return scanPageBlocks(rows)
}

// PageBlock fetches one page-specific block by id, active or not.
func (s *Store) PageBlock(ctx context.Context, id int64) (*block.PageBlock, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, page_id, type, region, body, weight, roles, updated_at
		   FROM page_blocks WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query page block: %w", err)
	}
	defer rows.Close()
	list, err := scanPageBlocks(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("page block %d: %w", id, sql.ErrNoRows)
	}
	return list[0].(*block.PageBlock), nil
}

func scanPageBlocks(rows *sql.Rows) ([]block.Block, error) {
	var out []block.Block
	for rows.Next() {
		var (
			b       block.PageBlock
			roles   string
			updated int64
		)
		if err := rows.Scan(&b.BlockID, &b.PageID, &b.TypeName, &b.RegionName, &b.Body, &b.Order, &roles, &updated); err != nil {
			return nil, fmt.Errorf("scan page block: %w", err)
		}
		b.Rule = block.Visibility{Roles: splitRoles(roles)}
		b.Modified = fromMillis(updated)
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page blocks: %w", err)
	}
	return out, nil
}

// Instance fetches one standalone block by id.
func (s *Store) Instance(ctx context.Context, id int64) (*block.Instance, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, type, region, context, config, body, weight, roles, updated_at
		   FROM block_instances WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query block instance: %w", err)
	}
	defer rows.Close()
	list, err := scanInstances(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("block instance %d: %w", id, sql.ErrNoRows)
	}
	return list[0].(*block.Instance), nil
}

// SaveInstance inserts or replaces a standalone block. A zero Modified
// time is set to now so the fingerprint moves on every save.
func (s *Store) SaveInstance(ctx context.Context, b *block.Instance, active bool) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if b == nil {
		return errors.New("block instance is required")
	}
	if strings.TrimSpace(b.TypeName) == "" || strings.TrimSpace(b.RegionName) == "" {
		return errors.New("block type and region are required")
	}
	settings := b.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	config, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode block config: %w", err)
	}
	if b.Modified.IsZero() {
		b.Modified = time.Now().UTC()
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO block_instances
		   (id, type, region, context, config, body, weight, roles, active, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BlockID, b.TypeName, b.RegionName, string(b.Context()), string(config),
		b.Body, b.Order, joinRoles(b.Rule.Roles), boolInt(active), toMillis(b.Modified),
	)
	if err != nil {
		return fmt.Errorf("save block instance: %w", err)
	}
	return nil
}

// SavePageBlock inserts or replaces a page-attached block.
func (s *Store) SavePageBlock(ctx context.Context, b *block.PageBlock, active bool) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if b == nil {
		return errors.New("page block is required")
	}
	if b.Modified.IsZero() {
		b.Modified = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO page_blocks
		   (id, page_id, type, region, body, weight, roles, active, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BlockID, b.PageID, b.TypeName, b.RegionName, b.Body, b.Order,
		joinRoles(b.Rule.Roles), boolInt(active), toMillis(b.Modified),
	)
	if err != nil {
		return fmt.Errorf("save page block: %w", err)
	}
	return nil
}

// SetListItems replaces the items of a list block.
func (s *Store) SetListItems(ctx context.Context, blockID int64, items []string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin list items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM list_items WHERE block_id = ?`, blockID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear list items: %w", err)
	}
	for i, item := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO list_items (block_id, position, item) VALUES (?, ?, ?)`,
			blockID, i, item,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert list item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit list items: %w", err)
	}
	return nil
}

// ListItems loads the items of many list blocks in one query. Blocks with
// no rows are absent from the result.
func (s *Store) ListItems(ctx context.Context, ids []int64) (map[int64][]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT block_id, item FROM list_items
		  WHERE block_id IN (`+placeholders+`)
		  ORDER BY block_id, position`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query list items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			item string
		)
		if err := rows.Scan(&id, &item); err != nil {
			return nil, fmt.Errorf("scan list item: %w", err)
		}
		out[id] = append(out[id], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate list items: %w", err)
	}
	return out, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func scanInstances(rows *sql.Rows) ([]block.Block, error) {
	var out []block.Block
	for rows.Next() {
		var (
			b       block.Instance
			scope   string
			config  string
			roles   string
			updated int64
		)
		if err := rows.Scan(&b.BlockID, &b.TypeName, &b.RegionName, &scope, &config, &b.Body, &b.Order, &roles, &updated); err != nil {
			return nil, fmt.Errorf("scan block instance: %w", err)
		}
		if config != "" {
			if err := json.Unmarshal([]byte(config), &b.Settings); err != nil {
				return nil, fmt.Errorf("decode config of block %d: %w", b.BlockID, err)
			}
		}
		b.Scope = block.Context(scope)
		b.Rule = block.Visibility{Roles: splitRoles(roles)}
		b.Modified = fromMillis(updated)
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate block instances: %w", err)
	}
	return out, nil
}

func splitRoles(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	var out []string
	for _, r := range strings.Split(csv, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func joinRoles(roles []string) string {
	clean := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			clean = append(clean, r)
		}
	}
	slices.Sort(clean)
	return strings.Join(slices.Compact(clean), ",")
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// applyMigrations executes each embedded .sql file at most once.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	slices.Sort(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
	    name TEXT PRIMARY KEY,
	    applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := sqlDB.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		up := upSection(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}
		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			file, toMillis(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upSection returns the SQL between the Up and Down markers.
func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	i := strings.Index(content, up)
	if i == -1 {
		return content
	}
	rest := content[i+len(up):]
	if j := strings.Index(rest, down); j != -1 {
		return rest[:j]
	}
	return rest
}
