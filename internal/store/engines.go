package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/saferwall/first-go/internal/model"
)

func (s *Store) engineByQuery(ctx context.Context, query string, args ...any) (model.EngineRecord, bool, error) {
	var e model.EngineRecord
	var id int64
	row := s.DB.QueryRow(ctx, query, args...)
	switch err := row.Scan(&id, &e.Name, &e.Description, &e.ModulePath, &e.ClassName, &e.Developer, &e.Active, &e.Rank); {
	case errors.Is(err, sql.ErrNoRows):
		return model.EngineRecord{}, false, nil
	case err != nil:
		return model.EngineRecord{}, false, err
	}
	e.ID = uint32(id)
	return e, true, nil
}

// RegisterEngine inserts an engine's catalog row by name if none exists yet,
// the way the original FIRST's engine catalog is seeded once at startup. An
// existing row is returned unchanged, so operator edits to Active/Rank
// persist across restarts.
func (s *Store) RegisterEngine(ctx context.Context, name, description, modulePath, className string, defaultActive bool, defaultRank int) (model.EngineRecord, error) {
	if existing, found, err := s.EngineByName(ctx, name); err != nil {
		return model.EngineRecord{}, err
	} else if found {
		return existing, nil
	}

	res, err := s.DB.Exec(ctx,
		`INSERT INTO engines (name, description, module_path, class_name, active, rank) VALUES ($1, $2, $3, $4, $5, $6)`,
		name, description, modulePath, className, defaultActive, defaultRank)
	if err != nil {
		return model.EngineRecord{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.EngineRecord{}, err
	}
	return model.EngineRecord{
		ID: uint32(id), Name: name, Description: description, ModulePath: modulePath,
		ClassName: className, Active: defaultActive, Rank: defaultRank,
	}, nil
}

// EngineByName looks up a registered engine by its short name (e.g.
// "ExactMatch").
func (s *Store) EngineByName(ctx context.Context, name string) (model.EngineRecord, bool, error) {
	return s.engineByQuery(ctx,
		`SELECT id, name, description, module_path, class_name, COALESCE(developer, 0), active, rank FROM engines WHERE name = $1`,
		name)
}

// EngineByID looks up a registered engine by its catalog primary key, used
// to resolve the engine id embedded in a synthesized annotation's wire id.
func (s *Store) EngineByID(ctx context.Context, id uint32) (model.EngineRecord, bool, error) {
	return s.engineByQuery(ctx,
		`SELECT id, name, description, module_path, class_name, COALESCE(developer, 0), active, rank FROM engines WHERE id = $1`,
		int64(id))
}

// ActiveEngines lists every engine the operator has marked active, ordered
// by rank, for the engine manager to load at startup.
func (s *Store) ActiveEngines(ctx context.Context) ([]model.EngineRecord, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT id, name, description, module_path, class_name, COALESCE(developer, 0), active, rank
		 FROM engines WHERE active = $1 ORDER BY rank ASC, id ASC`, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EngineRecord
	for rows.Next() {
		var e model.EngineRecord
		var id int64
		if err := rows.Scan(&id, &e.Name, &e.Description, &e.ModulePath, &e.ClassName, &e.Developer, &e.Active, &e.Rank); err != nil {
			return nil, err
		}
		e.ID = uint32(id)
		out = append(out, e)
	}
	return out, rows.Err()
}
