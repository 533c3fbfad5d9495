// Package exactmatch implements the ExactMatch similarity engine: a direct
// sha256(opcodes)+architecture lookup against the Function Store, with no
// private index table of its own (spec §4.5).
package exactmatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/rs/zerolog"

	"github.com/saferwall/first-go/internal/disasm"
	"github.com/saferwall/first-go/internal/engine"
	"github.com/saferwall/first-go/internal/store"
)

const (
	className   = "ExactMatch"
	description = "Direct sha256(opcodes)+architecture lookup against the function store"
)

func init() {
	engine.Register(className, New)
}

// Engine is the ExactMatch similarity engine.
type Engine struct {
	st *store.Store
}

// New constructs an ExactMatch engine. It has no private storage of its
// own, so it is always operational once the shared store exists.
func New(st *store.Store, _ zerolog.Logger) (engine.Engine, error) {
	return &Engine{st: st}, nil
}

func (e *Engine) Name() string        { return "ExactMatch" }
func (e *Engine) Description() string { return description }
func (e *Engine) Rank() int           { return 0 }
func (e *Engine) IsOperational() bool { return e.st != nil }

// Add is a no-op: the Function Store already carries sha256(opcodes), so
// there is nothing extra for this engine to index.
func (e *Engine) Add(context.Context, engine.Dump) error { return nil }

// Scan computes sha256(opcodes) and looks up the unique function with that
// key and architecture. When found, similarity is 90, +10 when the query's
// API set matches the function's exactly.
func (e *Engine) Scan(ctx context.Context, opcodes []byte, architecture string, apis []string, _ disasm.Disassembly) ([]engine.FunctionResult, error) {
	sum := sha256.Sum256(opcodes)
	digest := hex.EncodeToString(sum[:])

	fn, found, err := e.st.FindFunction(ctx, digest, architecture)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	similarity := 90.0
	if apiSetsEqual(apis, fn.APIs) {
		similarity = 100.0
	}
	return []engine.FunctionResult{{FunctionID: fn.ID, Similarity: similarity}}, nil
}

func apiSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := sortedCopy(a), sortedCopy(b)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
