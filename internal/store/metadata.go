package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/saferwall/first-go/internal/model"
)

// AddMetadataToFunction appends a new annotation revision for (functionID,
// userID), creating the Metadata container on first use. Per spec.md
// invariant 4, a revision is only written when it actually differs from the
// current one; HasChanged is evaluated against the row most recently read
// back from metadata_details so two identical metadata_add calls in a row
// collapse to one revision.
func (s *Store) AddMetadataToFunction(ctx context.Context, functionID, userID int64, name, prototype, comment string, now time.Time) (model.Metadata, error) {
	meta, found, err := s.metadataByFunctionAndUser(ctx, functionID, userID)
	if err != nil {
		return model.Metadata{}, err
	}
	if !found {
		res, err := s.DB.Exec(ctx,
			`INSERT INTO metadata (function_id, user_id) VALUES ($1, $2)`, functionID, userID)
		if err != nil {
			return model.Metadata{}, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return model.Metadata{}, err
		}
		meta = model.Metadata{ID: id, FunctionID: functionID, UserID: userID}
	}

	if !meta.HasChanged(name, prototype, comment) {
		return meta, nil
	}

	if _, err := s.DB.Exec(ctx,
		`INSERT INTO metadata_details (metadata_id, name, prototype, comment, committed) VALUES ($1, $2, $3, $4, $5)`,
		meta.ID, name, prototype, comment, now.Unix()); err != nil {
		return model.Metadata{}, err
	}
	meta.Revisions = append(meta.Revisions, model.MetadataDetails{Name: name, Prototype: prototype, Comment: comment, Committed: now})
	return meta, nil
}

func (s *Store) metadataByFunctionAndUser(ctx context.Context, functionID, userID int64) (model.Metadata, bool, error) {
	var id int64
	row := s.DB.QueryRow(ctx,
		`SELECT id FROM metadata WHERE function_id = $1 AND user_id = $2`, functionID, userID)
	switch err := row.Scan(&id); {
	case errors.Is(err, sql.ErrNoRows):
		return model.Metadata{}, false, nil
	case err != nil:
		return model.Metadata{}, false, err
	}
	meta, found, err := s.GetMetadata(ctx, id)
	return meta, found, err
}

// GetMetadata loads one metadata container with every revision, ordered
// oldest-first so Current() returns the latest.
func (s *Store) GetMetadata(ctx context.Context, id int64) (model.Metadata, bool, error) {
	var meta model.Metadata
	row := s.DB.QueryRow(ctx, `SELECT id, function_id, user_id FROM metadata WHERE id = $1`, id)
	switch err := row.Scan(&meta.ID, &meta.FunctionID, &meta.UserID); {
	case errors.Is(err, sql.ErrNoRows):
		return model.Metadata{}, false, nil
	case err != nil:
		return model.Metadata{}, false, err
	}

	rows, err := s.DB.Query(ctx,
		`SELECT name, prototype, comment, committed FROM metadata_details WHERE metadata_id = $1 ORDER BY committed ASC, id ASC`,
		id)
	if err != nil {
		return model.Metadata{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var d model.MetadataDetails
		var committed int64
		if err := rows.Scan(&d.Name, &d.Prototype, &d.Comment, &committed); err != nil {
			return model.Metadata{}, false, err
		}
		d.Committed = time.Unix(committed, 0).UTC()
		meta.Revisions = append(meta.Revisions, d)
	}
	return meta, true, rows.Err()
}

// GetMetadataList returns every analyst's metadata container for a function,
// used by the engine manager to resolve scan hits to annotations.
func (s *Store) GetMetadataList(ctx context.Context, functionID int64) ([]model.Metadata, error) {
	rows, err := s.DB.Query(ctx, `SELECT id FROM metadata WHERE function_id = $1`, functionID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	out := make([]model.Metadata, 0, len(ids))
	for _, id := range ids {
		m, found, err := s.GetMetadata(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, m)
		}
	}
	return out, nil
}

// MetadataHistory renders the full revision history for one metadata id,
// attributed to its creator, for the metadata_history RPC.
func (s *Store) MetadataHistory(ctx context.Context, metadataID int64) (model.History, bool, error) {
	meta, found, err := s.GetMetadata(ctx, metadataID)
	if err != nil || !found {
		return model.History{}, found, err
	}
	user, found, err := s.UserByID(ctx, meta.UserID)
	if err != nil {
		return model.History{}, false, err
	}
	creator := "unknown"
	if found {
		creator = user.Tag()
	}
	hist := model.History{Creator: creator}
	for _, rev := range meta.Revisions {
		hist.Entries = append(hist.Entries, model.HistoryEntry{
			Name: rev.Name, Prototype: rev.Prototype, Comment: rev.Comment, Committed: rev.Committed,
		})
	}
	return hist, true, nil
}

// DeleteMetadata removes a metadata container and its revisions. Only the
// creator may delete their own annotation: the delete is scoped to userID, so
// a call by anyone else removes nothing and returns ErrNotFound.
func (s *Store) DeleteMetadata(ctx context.Context, metadataID, userID int64) error {
	res, err := s.DB.Exec(ctx, `DELETE FROM metadata WHERE id = $1 AND user_id = $2`, metadataID, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	if _, err := s.DB.Exec(ctx, `DELETE FROM metadata_details WHERE metadata_id = $1`, metadataID); err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `DELETE FROM applied_metadata WHERE metadata_id = $1`, metadataID)
	return err
}

// ApplyMetadata marks an annotation as confirmed-applicable to a sample, the
// store side of metadata_applied.
func (s *Store) ApplyMetadata(ctx context.Context, metadataID, sampleID, userID int64) error {
	_, err := s.DB.Exec(ctx,
		`INSERT INTO applied_metadata (metadata_id, sample_id, user_id) VALUES ($1, $2, $3) ON CONFLICT (metadata_id, sample_id, user_id) DO NOTHING`,
		metadataID, sampleID, userID)
	return err
}

// UnapplyMetadata reverts ApplyMetadata, the store side of metadata_unapplied.
func (s *Store) UnapplyMetadata(ctx context.Context, metadataID, sampleID, userID int64) error {
	_, err := s.DB.Exec(ctx,
		`DELETE FROM applied_metadata WHERE metadata_id = $1 AND sample_id = $2 AND user_id = $3`,
		metadataID, sampleID, userID)
	return err
}

// Rank reports how many distinct (sample, user) pairs have applied a
// metadata id — the vote count engines and the facade sort annotations by.
func (s *Store) Rank(ctx context.Context, metadataID int64) (int, error) {
	var n int
	row := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM applied_metadata WHERE metadata_id = $1`, metadataID)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CreatedByUser lists the metadata containers a user has authored, newest
// first, plus the total row count so the facade can report total_pages —
// the store side of metadata_created in spec.md §4.3.
func (s *Store) CreatedByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Metadata, int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM metadata WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.DB.Query(ctx,
		`SELECT id FROM metadata WHERE user_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	out := make([]model.Metadata, 0, len(ids))
	for _, id := range ids {
		m, found, err := s.GetMetadata(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if found {
			out = append(out, m)
		}
	}
	return out, total, nil
}

// HasAnnotations reports whether a function already carries at least one
// piece of metadata. MnemonicHash and BasicMasking both drop scan hits on
// functions with none, mirroring the original engines' shared
// "ignore if len(metadata) == 0" guard.
func (s *Store) HasAnnotations(ctx context.Context, functionID int64) (bool, error) {
	var n int
	row := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM metadata WHERE function_id = $1`, functionID)
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
