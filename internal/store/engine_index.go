package store

import (
	"context"
	"database/sql"
	"errors"
)

// The MnemonicHash, BasicMasking and Catalog1 engines each own a private
// "<name>_index" / "<name>_functions" table pair: one row per distinct
// signature, fanning out to every function that produced it. These helpers
// are deliberately table-name-parameterized instead of duplicated three
// times, since the three schemas only ever differ in which extra column
// (total_bytes for BasicMasking) is part of the signature's uniqueness key —
// callers that need that column use the *WithExtra variants.

// FindIndexRow looks up an existing signature row id in "<table>_index" by
// (sha256, architecture). found is false when no such signature exists yet.
func (s *Store) FindIndexRow(ctx context.Context, table, sha256, architecture string) (id int64, found bool, err error) {
	row := s.DB.QueryRow(ctx,
		"SELECT id FROM "+table+"_index WHERE sha256 = $1 AND architecture = $2", sha256, architecture)
	switch err := row.Scan(&id); {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	}
	return id, true, nil
}

// CreateIndexRow inserts a brand-new signature row.
func (s *Store) CreateIndexRow(ctx context.Context, table, sha256, architecture string) (int64, error) {
	res, err := s.DB.Exec(ctx,
		"INSERT INTO "+table+"_index (sha256, architecture) VALUES ($1, $2)", sha256, architecture)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FindIndexRowWithExtra is FindIndexRow for the BasicMasking schema, whose
// signature also carries total_bytes.
func (s *Store) FindIndexRowWithExtra(ctx context.Context, table, sha256, architecture string, extra int) (id int64, found bool, err error) {
	row := s.DB.QueryRow(ctx,
		"SELECT id FROM "+table+"_index WHERE sha256 = $1 AND architecture = $2 AND total_bytes = $3",
		sha256, architecture, extra)
	switch err := row.Scan(&id); {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	}
	return id, true, nil
}

// CreateIndexRowWithExtra is CreateIndexRow for the BasicMasking schema.
func (s *Store) CreateIndexRowWithExtra(ctx context.Context, table, sha256, architecture string, extra int) (int64, error) {
	res, err := s.DB.Exec(ctx,
		"INSERT INTO "+table+"_index (sha256, architecture, total_bytes) VALUES ($1, $2, $3)",
		sha256, architecture, extra)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LinkIndexFunction fans an index row out to one more function id that
// shares its signature.
func (s *Store) LinkIndexFunction(ctx context.Context, table string, indexID, functionID int64) error {
	_, err := s.DB.Exec(ctx,
		"INSERT INTO "+table+"_functions (index_id, function_id) VALUES ($1, $2) ON CONFLICT (index_id, function_id) DO NOTHING",
		indexID, functionID)
	return err
}

// FunctionsForIndexRow lists every function id sharing one signature row,
// excluding the query function itself.
func (s *Store) FunctionsForIndexRow(ctx context.Context, table string, indexID, excludeFunctionID int64) ([]int64, error) {
	rows, err := s.DB.Query(ctx,
		"SELECT function_id FROM "+table+"_functions WHERE index_id = $1 AND function_id != $2",
		indexID, excludeFunctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// InsertCatalog1Hashes records the NUM_PERMS permutation hash values
// produced for one Catalog1 index row, so a future scan can intersect
// against them with a single IN query.
func (s *Store) InsertCatalog1Hashes(ctx context.Context, indexID int64, architecture string, hashes []uint64) error {
	for _, h := range hashes {
		if _, err := s.DB.Exec(ctx,
			`INSERT INTO catalog1_hashes (index_id, architecture, perm_hash) VALUES ($1, $2, $3)`,
			indexID, architecture, int64(h)); err != nil {
			return err
		}
	}
	return nil
}

// Catalog1IndexRowsSharingHashes finds every other index row that shares at
// least one permutation hash with the query, returning index id -> number of
// shared hashes (the "shared permutation count" the original engine ranks
// candidates by).
func (s *Store) Catalog1IndexRowsSharingHashes(ctx context.Context, architecture string, hashes []uint64, excludeIndexID int64) (map[int64]int, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(hashes)+2)
	placeholders := ""
	args = append(args, architecture)
	for i, h := range hashes {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += placeholder(len(args) + 1)
		args = append(args, int64(h))
	}
	args = append(args, excludeIndexID)
	query := "SELECT index_id, COUNT(*) FROM catalog1_hashes WHERE architecture = $1 AND perm_hash IN (" +
		placeholders + ") AND index_id != " + placeholder(len(args)) + " GROUP BY index_id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var indexID int64
		var count int
		if err := rows.Scan(&indexID, &count); err != nil {
			return nil, err
		}
		out[indexID] = count
	}
	return out, rows.Err()
}

func placeholder(n int) string {
	return "$" + itoaPositional(n)
}

func itoaPositional(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
