package facade

import (
	"context"
	"sort"

	"github.com/saferwall/first-go/internal/apierr"
	"github.com/saferwall/first-go/internal/disasm"
)

// TestConnection validates the caller's API key and otherwise does nothing;
// the envelope's bare success/failure flag is the entire response.
func (f *Facade) TestConnection(ctx context.Context, apiKey string) *apierr.APIError {
	_, aerr := f.authenticate(ctx, apiKey)
	return aerr
}

// Architectures returns the union of the hard-coded standards list and
// every architecture tag actually present in storage (SPEC_FULL §4,
// grounded on original_source/server/first_core/dbs/builtin_db.py).
func (f *Facade) Architectures(ctx context.Context, apiKey string) ([]string, *apierr.APIError) {
	if _, aerr := f.authenticate(ctx, apiKey); aerr != nil {
		return nil, aerr
	}
	seen, err := f.st.DistinctArchitectures(ctx)
	if err != nil {
		return nil, apierr.StorageUnavailable(err)
	}

	union := make(map[string]struct{}, len(disasm.StandardArchitectures)+len(seen))
	for _, a := range disasm.StandardArchitectures {
		union[a] = struct{}{}
	}
	for _, a := range seen {
		union[a] = struct{}{}
	}
	out := make([]string, 0, len(union))
	for a := range union {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}
