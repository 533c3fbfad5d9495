package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/saferwall/first-go/internal/model"
)

// FindOrCreateFunction resolves the canonical function entity for
// (sha256(opcodes), architecture), creating it (and its API set) on first
// sight. created reports whether this call inserted a new row.
func (s *Store) FindOrCreateFunction(ctx context.Context, sha256, architecture string, opcodes []byte, apis []string) (fn model.Function, created bool, err error) {
	if existing, found, err := s.FindFunction(ctx, sha256, architecture); err != nil {
		return model.Function{}, false, err
	} else if found {
		return existing, false, nil
	}

	res, err := s.DB.Exec(ctx,
		`INSERT INTO functions (sha256, architecture, opcodes) VALUES ($1, $2, $3)`,
		sha256, architecture, opcodes)
	if err != nil {
		return model.Function{}, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Function{}, false, err
	}

	for _, api := range apis {
		if _, err := s.DB.Exec(ctx,
			`INSERT INTO function_apis (function_id, api) VALUES ($1, $2) ON CONFLICT (function_id, api) DO NOTHING`,
			id, api); err != nil {
			return model.Function{}, false, err
		}
	}

	return model.Function{ID: id, SHA256: sha256, Architecture: architecture, Opcodes: opcodes, APIs: sortedCopy(apis)}, true, nil
}

// FindFunction looks up a function by its natural key without creating it.
func (s *Store) FindFunction(ctx context.Context, sha256, architecture string) (model.Function, bool, error) {
	var fn model.Function
	row := s.DB.QueryRow(ctx,
		`SELECT id, sha256, architecture, opcodes FROM functions WHERE sha256 = $1 AND architecture = $2`,
		sha256, architecture)
	switch err := row.Scan(&fn.ID, &fn.SHA256, &fn.Architecture, &fn.Opcodes); {
	case errors.Is(err, sql.ErrNoRows):
		return model.Function{}, false, nil
	case err != nil:
		return model.Function{}, false, err
	}
	apis, err := s.apisOfFunction(ctx, fn.ID)
	if err != nil {
		return model.Function{}, false, err
	}
	fn.APIs = apis
	return fn, true, nil
}

// GetFunction loads a function by its primary key.
func (s *Store) GetFunction(ctx context.Context, id int64) (model.Function, bool, error) {
	var fn model.Function
	row := s.DB.QueryRow(ctx, `SELECT id, sha256, architecture, opcodes FROM functions WHERE id = $1`, id)
	switch err := row.Scan(&fn.ID, &fn.SHA256, &fn.Architecture, &fn.Opcodes); {
	case errors.Is(err, sql.ErrNoRows):
		return model.Function{}, false, nil
	case err != nil:
		return model.Function{}, false, err
	}
	apis, err := s.apisOfFunction(ctx, id)
	if err != nil {
		return model.Function{}, false, err
	}
	fn.APIs = apis
	return fn, true, nil
}

func (s *Store) apisOfFunction(ctx context.Context, functionID int64) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT api FROM function_apis WHERE function_id = $1`, functionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var apis []string
	for rows.Next() {
		var api string
		if err := rows.Scan(&api); err != nil {
			return nil, err
		}
		apis = append(apis, api)
	}
	sort.Strings(apis)
	return apis, rows.Err()
}

// AddFunctionToSample records that functionID occurs in sampleID, idempotently.
func (s *Store) AddFunctionToSample(ctx context.Context, sampleID, functionID int64) error {
	_, err := s.DB.Exec(ctx,
		`INSERT INTO sample_functions (sample_id, function_id) VALUES ($1, $2) ON CONFLICT (sample_id, function_id) DO NOTHING`,
		sampleID, functionID)
	return err
}

// DistinctArchitectures lists every architecture tag that has at least one
// stored function, for the architectures RPC to union with the hard-coded
// standards set.
func (s *Store) DistinctArchitectures(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT DISTINCT architecture FROM functions ORDER BY architecture`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
