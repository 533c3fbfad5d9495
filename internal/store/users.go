package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/saferwall/first-go/internal/model"
)

// CreateUser registers a new analyst with a freshly minted API key. number
// disambiguates duplicate handles, mirroring the "handle#NNNN" tag in
// spec.md §3.
func (s *Store) CreateUser(ctx context.Context, handle string, number int) (model.User, error) {
	apiKey := uuid.New().String()
	res, err := s.DB.Exec(ctx,
		`INSERT INTO users (handle, number, api_key) VALUES ($1, $2, $3)`,
		handle, number, apiKey)
	if err != nil {
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return model.User{ID: id, Handle: handle, Number: number, APIKey: apiKey}, nil
}

// UserByAPIKey resolves the bearer credential used on every RPC Facade call.
// Returns (model.User{}, false, nil) when the key is unknown — callers map
// that to the spec's HTTP 401 Unauthorized.
func (s *Store) UserByAPIKey(ctx context.Context, apiKey string) (model.User, bool, error) {
	var u model.User
	row := s.DB.QueryRow(ctx,
		`SELECT id, handle, number, api_key FROM users WHERE api_key = $1`, apiKey)
	switch err := row.Scan(&u.ID, &u.Handle, &u.Number, &u.APIKey); {
	case errors.Is(err, sql.ErrNoRows):
		return model.User{}, false, nil
	case err != nil:
		return model.User{}, false, fmt.Errorf("store: lookup user by api key: %w", err)
	default:
		return u, true, nil
	}
}

// UserByID is used to resolve a Metadata's creator tag.
func (s *Store) UserByID(ctx context.Context, id int64) (model.User, bool, error) {
	var u model.User
	row := s.DB.QueryRow(ctx, `SELECT id, handle, number, api_key FROM users WHERE id = $1`, id)
	switch err := row.Scan(&u.ID, &u.Handle, &u.Number, &u.APIKey); {
	case errors.Is(err, sql.ErrNoRows):
		return model.User{}, false, nil
	case err != nil:
		return model.User{}, false, err
	default:
		return u, true, nil
	}
}
