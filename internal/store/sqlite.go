package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/example/go-hindi-bpe/internal/bpe"
	"github.com/example/go-hindi-bpe/internal/pretokenize"
)

const sqliteSchemaVersion = "1"

var sqliteSchema = []string{
	`DROP TABLE IF EXISTS meta`,
	`DROP TABLE IF EXISTS vocab`,
	`DROP TABLE IF EXISTS merges`,
	`CREATE TABLE meta(
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE vocab(
		id      INTEGER PRIMARY KEY,
		symbol  TEXT NOT NULL UNIQUE,
		special INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE merges(
		merge_rank   INTEGER PRIMARY KEY,
		left_symbol  TEXT NOT NULL,
		right_symbol TEXT NOT NULL
	)`,
}

// SaveSQLite writes m into the SQLite database at path, replacing any model
// already stored there.
func SaveSQLite(ctx context.Context, path string, m *bpe.Model) (err error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", path, err)
	}
	defer func() {
		if cerr := db.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close sqlite %s: %w", path, cerr)
		}
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range sqliteSchema {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	meta := map[string]string{
		"schema_version": sqliteSchemaVersion,
		"unk_token":      m.UnkToken(),
		"pre_tokenizer":  string(m.PreTokenizer()),
	}
	for k, v := range meta {
		if _, err = tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	vocab := m.Vocabulary()
	insVocab, err := tx.PrepareContext(ctx, `INSERT INTO vocab(id, symbol, special) VALUES(?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare vocab insert: %w", err)
	}
	defer insVocab.Close()
	for id, s := range vocab.Symbols() {
		if _, err = insVocab.ExecContext(ctx, id, s, vocab.IsSpecial(id)); err != nil {
			return fmt.Errorf("insert vocab %d: %w", id, err)
		}
	}

	insMerge, err := tx.PrepareContext(ctx, `INSERT INTO merges(merge_rank, left_symbol, right_symbol) VALUES(?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare merge insert: %w", err)
	}
	defer insMerge.Close()
	for rank, p := range pairsOf(m) {
		if _, err = insMerge.ExecContext(ctx, rank, p.Left, p.Right); err != nil {
			return fmt.Errorf("insert merge %d: %w", rank, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadSQLite reads a model written by SaveSQLite. A missing file is an
// error rather than a fresh empty database.
func LoadSQLite(ctx context.Context, path string) (*bpe.Model, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}
	if v := meta["schema_version"]; v != sqliteSchemaVersion {
		return nil, fmt.Errorf("%w: schema version %q, want %q", bpe.ErrInvalidModel, v, sqliteSchemaVersion)
	}

	symbols, specials, err := readVocab(ctx, db)
	if err != nil {
		return nil, err
	}
	pairs, err := readMergeRows(ctx, db)
	if err != nil {
		return nil, err
	}

	return bpe.NewModel(symbols, specials, pairs, bpe.ModelConfig{
		UnkToken:     meta["unk_token"],
		PreTokenizer: pretokenize.Mode(meta["pre_tokenizer"]),
	})
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("%w: read meta: %v", bpe.ErrInvalidModel, err)
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	return meta, nil
}

func readVocab(ctx context.Context, db *sql.DB) ([]string, int, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, symbol, special FROM vocab ORDER BY id`)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read vocab: %v", bpe.ErrInvalidModel, err)
	}
	defer rows.Close()

	var (
		symbols     []string
		specials    int
		nonSpecials bool
	)
	for rows.Next() {
		var (
			id      int
			symbol  string
			special bool
		)
		if err := rows.Scan(&id, &symbol, &special); err != nil {
			return nil, 0, fmt.Errorf("scan vocab: %w", err)
		}
		if id != len(symbols) {
			return nil, 0, fmt.Errorf("%w: vocab ids not dense at %d", bpe.ErrInvalidModel, id)
		}
		if special {
			if nonSpecials {
				return nil, 0, fmt.Errorf("%w: special token %q after regular symbols", bpe.ErrInvalidModel, symbol)
			}
			specials++
		} else {
			nonSpecials = true
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("read vocab: %w", err)
	}
	return symbols, specials, nil
}

func readMergeRows(ctx context.Context, db *sql.DB) ([]bpe.Pair, error) {
	rows, err := db.QueryContext(ctx, `SELECT merge_rank, left_symbol, right_symbol FROM merges ORDER BY merge_rank`)
	if err != nil {
		return nil, fmt.Errorf("%w: read merges: %v", bpe.ErrInvalidModel, err)
	}
	defer rows.Close()

	var pairs []bpe.Pair
	for rows.Next() {
		var (
			rank int
			p    bpe.Pair
		)
		if err := rows.Scan(&rank, &p.Left, &p.Right); err != nil {
			return nil, fmt.Errorf("scan merge: %w", err)
		}
		if rank != len(pairs) {
			return nil, fmt.Errorf("%w: merge ranks not dense at %d", bpe.ErrInvalidModel, rank)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read merges: %w", err)
	}
	return pairs, nil
}
