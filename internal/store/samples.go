package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/saferwall/first-go/internal/model"
)

// Checkin upserts a sample by its (md5, crc32) pair, refreshing last_seen and
// filling in sha1/sha256 the first time they're supplied, and records that
// userID has now seen it. This is the store side of the checkin RPC in
// spec.md §5.1.
func (s *Store) Checkin(ctx context.Context, md5 string, crc32 uint32, sha1, sha256 string, userID int64, now time.Time) (model.Sample, error) {
	existing, found, err := s.sampleByHashes(ctx, md5, crc32)
	if err != nil {
		return model.Sample{}, err
	}

	if !found {
		res, err := s.DB.Exec(ctx,
			`INSERT INTO samples (md5, crc32, sha1, sha256, last_seen) VALUES ($1, $2, $3, $4, $5)`,
			md5, crc32, sha1, sha256, now.Unix())
		if err != nil {
			return model.Sample{}, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return model.Sample{}, err
		}
		existing = model.Sample{ID: id, MD5: md5, CRC32: crc32, SHA1: sha1, SHA256: sha256, LastSeen: now}
	} else {
		if existing.SHA1 == "" {
			existing.SHA1 = sha1
		}
		if existing.SHA256 == "" {
			existing.SHA256 = sha256
		}
		existing.LastSeen = now
		if _, err := s.DB.Exec(ctx,
			`UPDATE samples SET sha1 = $1, sha256 = $2, last_seen = $3 WHERE id = $4`,
			existing.SHA1, existing.SHA256, now.Unix(), existing.ID); err != nil {
			return model.Sample{}, err
		}
	}

	if _, err := s.DB.Exec(ctx,
		`INSERT INTO sample_seen_by (sample_id, user_id) VALUES ($1, $2) ON CONFLICT (sample_id, user_id) DO NOTHING`,
		existing.ID, userID); err != nil {
		return model.Sample{}, err
	}

	return existing, nil
}

func (s *Store) sampleByHashes(ctx context.Context, md5 string, crc32 uint32) (model.Sample, bool, error) {
	var sample model.Sample
	var lastSeen int64
	row := s.DB.QueryRow(ctx,
		`SELECT id, md5, crc32, sha1, sha256, last_seen FROM samples WHERE md5 = $1 AND crc32 = $2`,
		md5, crc32)
	switch err := row.Scan(&sample.ID, &sample.MD5, &sample.CRC32, &sample.SHA1, &sample.SHA256, &lastSeen); {
	case errors.Is(err, sql.ErrNoRows):
		return model.Sample{}, false, nil
	case err != nil:
		return model.Sample{}, false, err
	}
	sample.LastSeen = time.Unix(lastSeen, 0).UTC()
	return sample, true, nil
}

// FindSample looks up a sample by its natural key without checking it in,
// used by metadata_applied/metadata_unapplied to resolve the sample a
// client refers to without mutating last_seen/seen_by.
func (s *Store) FindSample(ctx context.Context, md5 string, crc32 uint32) (model.Sample, bool, error) {
	return s.sampleByHashes(ctx, md5, crc32)
}

// GetSample loads a sample by its primary key, including the set of users
// who have ever checked it in.
func (s *Store) GetSample(ctx context.Context, id int64) (model.Sample, bool, error) {
	var sample model.Sample
	var lastSeen int64
	row := s.DB.QueryRow(ctx,
		`SELECT id, md5, crc32, sha1, sha256, last_seen FROM samples WHERE id = $1`, id)
	switch err := row.Scan(&sample.ID, &sample.MD5, &sample.CRC32, &sample.SHA1, &sample.SHA256, &lastSeen); {
	case errors.Is(err, sql.ErrNoRows):
		return model.Sample{}, false, nil
	case err != nil:
		return model.Sample{}, false, err
	}
	sample.LastSeen = time.Unix(lastSeen, 0).UTC()

	rows, err := s.DB.Query(ctx, `SELECT user_id FROM sample_seen_by WHERE sample_id = $1`, id)
	if err != nil {
		return model.Sample{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return model.Sample{}, false, err
		}
		sample.SeenBy = append(sample.SeenBy, uid)
	}
	return sample, true, rows.Err()
}

// FunctionsOfSample lists every function id the store has associated with a
// sample.
func (s *Store) FunctionsOfSample(ctx context.Context, sampleID int64) ([]int64, error) {
	rows, err := s.DB.Query(ctx, `SELECT function_id FROM sample_functions WHERE sample_id = $1`, sampleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
