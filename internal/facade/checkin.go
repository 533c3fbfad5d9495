package facade

import (
	"context"
	"time"

	"github.com/saferwall/first-go/internal/apierr"
)

// CheckinRequest is the checkin RPC payload (spec §4.2/§6): a sample
// identified by (md5, crc32) plus its optional sha1/sha256 hashes.
type CheckinRequest struct {
	MD5    string
	CRC32  uint32
	SHA1   string
	SHA256 string
}

// Checkin gets-or-creates the Sample, refreshes last_seen, records the
// caller in seen_by, and fills in sha1/sha256 the first time they're
// supplied. It has no response payload beyond the envelope's success flag.
func (f *Facade) Checkin(ctx context.Context, apiKey string, req CheckinRequest) *apierr.APIError {
	user, aerr := f.authenticate(ctx, apiKey)
	if aerr != nil {
		return aerr
	}
	if aerr := validateMD5(req.MD5); aerr != nil {
		return aerr
	}
	if aerr := validateSHA1(req.SHA1); aerr != nil {
		return aerr
	}
	if aerr := validateSHA256(req.SHA256); aerr != nil {
		return aerr
	}

	if _, err := f.st.Checkin(ctx, req.MD5, req.CRC32, req.SHA1, req.SHA256, user.ID, time.Now().UTC()); err != nil {
		return apierr.StorageUnavailable(err)
	}
	return nil
}
