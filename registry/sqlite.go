package registry

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"artregistry/contenthash"
	"artregistry/logging"
	"artregistry/types"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the file-backed Store used by the CLI and server.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the registry database, creating the schema if needed.
func OpenSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS artworks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content_hash TEXT NOT NULL UNIQUE,
		ipfs_cid TEXT,
		source_path TEXT,
		source_prefix TEXT,
		format TEXT,
		width INTEGER,
		height INTEGER,
		size INTEGER,
		phash TEXT,
		dhash TEXT,
		fingerprint TEXT,
		created_with TEXT,
		modified_at TEXT,
		registered_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_content_hash ON artworks(content_hash);
	CREATE INDEX IF NOT EXISTS idx_phash ON artworks(phash);
	CREATE INDEX IF NOT EXISTS idx_dhash ON artworks(dhash);

	CREATE TABLE IF NOT EXISTS anchors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		root TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		position INTEGER NOT NULL,
		proof TEXT NOT NULL,
		anchored_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_anchor_root ON anchors(root);
	CREATE INDEX IF NOT EXISTS idx_anchor_hash ON anchors(content_hash);`

	if _, err = db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, err
	}

	// Databases created before CID support lack the ipfs_cid column;
	// add it in place.
	var cidColumns int
	err = db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('artworks') WHERE name='ipfs_cid'").Scan(&cidColumns)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error checking for ipfs_cid column: %v", err)
	}
	if cidColumns == 0 {
		if _, err = db.Exec("ALTER TABLE artworks ADD COLUMN ipfs_cid TEXT;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("error adding ipfs_cid column: %v", err)
		}
		logging.DebugLog("Added 'ipfs_cid' column to existing database schema")
	}

	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// FindByContentHash returns the record with the exact content hash.
func (s *SQLite) FindByContentHash(ctx context.Context, hash string) (*types.ArtworkInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, COALESCE(ipfs_cid, ''), source_path, source_prefix,
		       format, width, height, size, phash, dhash, fingerprint, created_with,
		       modified_at, registered_at
		FROM artworks WHERE content_hash = ?`, contenthash.Normalize(hash))

	info, err := scanArtwork(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artwork %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return info, nil
}

// StoreArtwork registers a record. Without forceRewrite an existing
// record for the same content hash is left untouched, preserving its
// original registration time.
func (s *SQLite) StoreArtwork(ctx context.Context, info types.ArtworkInfo, forceRewrite bool) error {
	var stmt *sql.Stmt
	var prepErr error

	if forceRewrite {
		stmt, prepErr = s.db.PrepareContext(ctx, `
			INSERT OR REPLACE INTO artworks (
				content_hash, ipfs_cid, source_path, source_prefix, format,
				width, height, size, phash, dhash, fingerprint, created_with,
				modified_at, registered_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
	} else {
		stmt, prepErr = s.db.PrepareContext(ctx, `
			INSERT OR IGNORE INTO artworks (
				content_hash, ipfs_cid, source_path, source_prefix, format,
				width, height, size, phash, dhash, fingerprint, created_with,
				modified_at, registered_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
	}
	if prepErr != nil {
		return fmt.Errorf("cannot prepare statement for %s: %v", info.ContentHash, prepErr)
	}
	defer stmt.Close()

	registeredAt := info.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	}

	_, err := stmt.ExecContext(ctx,
		contenthash.Normalize(info.ContentHash),
		info.IPFSCID,
		info.SourcePath,
		info.SourcePrefix,
		info.Format,
		info.Width,
		info.Height,
		info.Size,
		info.PHash,
		info.DHash,
		info.Fingerprint,
		info.CreatedWith,
		info.ModifiedAt,
		registeredAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("cannot insert data for %s: %v", info.ContentHash, err)
	}
	return nil
}

// FindCandidates returns stored fingerprints whose pHash or dHash shares
// a leading band with the query, earliest registrations first. When the
// banded query matches nothing it falls back to the oldest rows so the
// comparator still sees up to limit candidates.
func (s *SQLite) FindCandidates(ctx context.Context, pHash, dHash []byte, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	pBand := hashBand(pHash)
	dBand := hashBand(dHash)

	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, content_hash, registered_at FROM artworks
		WHERE fingerprint != '' AND (substr(phash, 1, 4) = ? OR substr(dhash, 1, 4) = ?)
		ORDER BY registered_at ASC LIMIT ?`, pBand, dBand, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	candidates, err := collectCandidates(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(candidates) > 0 {
		return candidates, nil
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT fingerprint, content_hash, registered_at FROM artworks
		WHERE fingerprint != ''
		ORDER BY registered_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	candidates, err = collectCandidates(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return candidates, nil
}

// ListUnanchored returns content hashes absent from every anchor batch.
func (s *SQLite) ListUnanchored(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT content_hash FROM artworks
		WHERE content_hash NOT IN (SELECT content_hash FROM anchors)
		ORDER BY registered_at ASC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		hashes = append(hashes, hash)
	}
	return hashes, rows.Err()
}

// StoreAnchorBatch persists one row per batch item with its JSON proof.
func (s *SQLite) StoreAnchorBatch(ctx context.Context, batch types.AnchorBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cannot begin anchor transaction: %v", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO anchors (batch_id, root, content_hash, position, proof, anchored_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("cannot prepare anchor statement: %v", err)
	}
	defer stmt.Close()

	anchoredAt := batch.AnchoredAt.Format(time.RFC3339Nano)
	for _, item := range batch.Items {
		proofJSON, err := json.Marshal(item.Proof)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("cannot encode proof for %s: %v", item.ContentHash, err)
		}
		if _, err := stmt.ExecContext(ctx, batch.BatchID, batch.Root,
			contenthash.Normalize(item.ContentHash), item.Position, string(proofJSON), anchoredAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("cannot insert anchor for %s: %v", item.ContentHash, err)
		}
	}
	return tx.Commit()
}

// FindAnchorBatch reassembles the batch anchored under the given root.
func (s *SQLite) FindAnchorBatch(ctx context.Context, root string) (*types.AnchorBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, content_hash, position, proof, anchored_at
		FROM anchors WHERE root = ? ORDER BY position ASC`, root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	batch := &types.AnchorBatch{Root: root}
	for rows.Next() {
		var item types.AnchorItem
		var proofJSON, anchoredAt string
		if err := rows.Scan(&batch.BatchID, &item.ContentHash, &item.Position, &proofJSON, &anchoredAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if err := json.Unmarshal([]byte(proofJSON), &item.Proof); err != nil {
			return nil, fmt.Errorf("corrupt proof for %s: %v", item.ContentHash, err)
		}
		if t, err := time.Parse(time.RFC3339Nano, anchoredAt); err == nil {
			batch.AnchoredAt = t
		}
		batch.Items = append(batch.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(batch.Items) == 0 {
		return nil, fmt.Errorf("anchor %s: %w", root, ErrNotFound)
	}
	return batch, nil
}

// Stats retrieves registry totals, optionally filtered by source prefix.
func (s *SQLite) Stats(ctx context.Context, sourcePrefix string) (*Stats, error) {
	stats := &Stats{}

	totalQuery := "SELECT COUNT(*) FROM artworks"
	uniqueQuery := "SELECT COUNT(DISTINCT phash) FROM artworks"
	anchoredQuery := "SELECT COUNT(*) FROM artworks WHERE content_hash IN (SELECT content_hash FROM anchors)"
	var args []interface{}
	if sourcePrefix != "" {
		totalQuery += " WHERE source_prefix = ?"
		uniqueQuery += " WHERE source_prefix = ?"
		anchoredQuery += " AND source_prefix = ?"
		args = append(args, sourcePrefix)
	}

	if err := s.db.QueryRowContext(ctx, totalQuery, args...).Scan(&stats.TotalArtworks); err != nil {
		return nil, fmt.Errorf("failed to get total artworks: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, uniqueQuery, args...).Scan(&stats.UniqueFingerprints); err != nil {
		return nil, fmt.Errorf("failed to get unique fingerprints: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, anchoredQuery, args...).Scan(&stats.AnchoredArtworks); err != nil {
		return nil, fmt.Errorf("failed to get anchored artworks: %v", err)
	}
	return stats, nil
}

// hashBand returns the 2-byte hex band used for coarse candidate
// bucketing.
func hashBand(hash []byte) string {
	if len(hash) < 2 {
		return ""
	}
	return hex.EncodeToString(hash[:2])
}

// scanArtwork reads one artworks row.
func scanArtwork(row *sql.Row) (*types.ArtworkInfo, error) {
	var info types.ArtworkInfo
	var registeredAt string
	err := row.Scan(&info.ID, &info.ContentHash, &info.IPFSCID, &info.SourcePath,
		&info.SourcePrefix, &info.Format, &info.Width, &info.Height, &info.Size,
		&info.PHash, &info.DHash, &info.Fingerprint, &info.CreatedWith,
		&info.ModifiedAt, &registeredAt)
	if err != nil {
		return nil, err
	}
	if t, parseErr := time.Parse(time.RFC3339Nano, registeredAt); parseErr == nil {
		info.RegisteredAt = t
	}
	return &info, nil
}

// collectCandidates drains a candidate query result.
func collectCandidates(rows *sql.Rows) ([]Candidate, error) {
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var registeredAt string
		if err := rows.Scan(&c.Fingerprint, &c.ContentHash, &registeredAt); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, registeredAt); err == nil {
			c.RegisteredAt = t
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
