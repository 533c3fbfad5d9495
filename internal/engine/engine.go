// Package engine defines the pluggable similarity-engine contract and the
// manager that fans add/scan calls out to every active engine, merges their
// results, and ranks annotations the way spec §4.9 describes. Concrete
// engines (exactmatch, mnemonichash, basicmasking, catalog1) live in their
// own subpackages and register a constructor here via Register, the way the
// teacher's connector registers bridge network implementations with the
// bridgev2 framework at init time rather than through reflection.
package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/saferwall/first-go/internal/disasm"
	"github.com/saferwall/first-go/internal/store"
)

// Dump is the function payload handed to an engine's Add, mirroring the
// {id, apis, opcodes, architecture, sha256, disassembly?} shape in spec §4.4.
type Dump struct {
	FunctionID   int64
	SHA256       string
	Architecture string
	Opcodes      []byte
	APIs         []string
	Disassembly  disasm.Disassembly // nil when the architecture has no decoder
}

// FunctionResult is one engine's opinion about a candidate function: its id
// and a similarity score in [0, 100].
type FunctionResult struct {
	FunctionID int64
	Similarity float64
}

// Engine is the contract every similarity engine satisfies.
type Engine interface {
	Name() string        // ≤16 chars
	Description() string // ≤256 chars
	Rank() int            // operator-assigned tie-break weight
	IsOperational() bool  // true once every required store resolved

	Add(ctx context.Context, fn Dump) error
	Scan(ctx context.Context, opcodes []byte, architecture string, apis []string, dis disasm.Disassembly) ([]FunctionResult, error)
}

// Constructor builds one engine instance against the shared store, the way
// LoadActiveEngines "dynamically loads each implementation" in spec §4.9 —
// here, by looking up a registered constructor instead of reflecting on a
// module path + class name string, since Go has no runtime class loader.
type Constructor func(st *store.Store, log zerolog.Logger) (Engine, error)

var registry = map[string]Constructor{}

// Register associates a class name (as stored in the Engine catalog's
// class_name column) with a constructor. Concrete engine packages call this
// from an init() function; cmd/firstd blank-imports them so registration
// happens before LoadActiveEngines runs.
func Register(className string, ctor Constructor) {
	registry[className] = ctor
}
