// Package facade implements the RPC Facade boundary from spec §4.10: a thin
// layer that authenticates the caller by API key, validates request shapes
// (length ceilings, batch limits, base64/hex decoding), and translates
// between wire-shaped request/response structs and the core operations in
// internal/store and internal/engine. It owns no business logic of its own.
package facade

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/saferwall/first-go/internal/apierr"
	"github.com/saferwall/first-go/internal/disasm"
	"github.com/saferwall/first-go/internal/engine"
	"github.com/saferwall/first-go/internal/model"
	"github.com/saferwall/first-go/internal/store"
)

// Facade wires the store, the engine manager, and a shared disassembler
// behind the RPC operations spec §4.10 names.
type Facade struct {
	st  *store.Store
	mgr *engine.Manager
	dec disasm.Disassembler
	log zerolog.Logger
}

// New constructs a Facade. dec may be nil, in which case every operation
// behaves as if no architecture were supported by a decoder (MnemonicHash
// and BasicMasking simply skip, exactly as an unsupported architecture
// would).
func New(st *store.Store, mgr *engine.Manager, dec disasm.Disassembler, log zerolog.Logger) *Facade {
	return &Facade{st: st, mgr: mgr, dec: dec, log: log.With().Str("component", "facade").Logger()}
}

// authenticate resolves the bearer API key every operation is keyed by.
func (f *Facade) authenticate(ctx context.Context, apiKey string) (model.User, *apierr.APIError) {
	u, found, err := f.st.UserByAPIKey(ctx, apiKey)
	if err != nil {
		return model.User{}, apierr.StorageUnavailable(err)
	}
	if !found {
		return model.User{}, apierr.Unauthorized()
	}
	return u, nil
}

// decodeArchitecture shares one Disassembly across every engine for a
// single opcode stream, per the concurrency model in spec §5. A nil result
// is returned (not an error) for architectures the configured decoder
// doesn't support — callers treat that exactly as "no shared disassembly".
func (f *Facade) decodeArchitecture(architecture string, opcodes []byte) disasm.Disassembly {
	if f.dec == nil || !f.dec.Supports(architecture) {
		return nil
	}
	dis, err := f.dec.Decode(architecture, opcodes)
	if err != nil {
		return nil
	}
	return dis
}
