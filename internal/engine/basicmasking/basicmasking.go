// Package basicmasking implements the BasicMasking similarity engine: it
// masks the immediate operand of call/jump instructions before hashing, so
// code that differs only in control-flow targets still matches (spec §4.7).
package basicmasking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rs/zerolog"

	"github.com/saferwall/first-go/internal/disasm"
	"github.com/saferwall/first-go/internal/engine"
	"github.com/saferwall/first-go/internal/store"
)

const (
	className        = "BasicMasking"
	description      = "Masks call/jump immediate operands before hashing to catch control-flow-only diffs"
	indexTable       = "basicmasking"
	minInstructions  = 8
	apiOverlapBonus  = 10.0
	similarityCeil   = 90.0
	noFunction int64 = 0
)

func init() {
	engine.Register(className, New)
}

// Engine is the BasicMasking similarity engine.
type Engine struct {
	st *store.Store
}

// New constructs a BasicMasking engine against the shared store's
// basicmasking_index / basicmasking_functions tables.
func New(st *store.Store, _ zerolog.Logger) (engine.Engine, error) {
	return &Engine{st: st}, nil
}

func (e *Engine) Name() string        { return "BasicMasking" }
func (e *Engine) Description() string { return description }
func (e *Engine) Rank() int           { return 2 }
func (e *Engine) IsOperational() bool { return e.st != nil }

// Add disassembles the function, normalizes it (masking call/jump immediate
// operands), and files it under sha256(normalized)+architecture+total_bytes.
// Functions with fewer than 8 instructions, or unsupported architectures,
// are silently skipped.
func (e *Engine) Add(ctx context.Context, fn engine.Dump) error {
	if fn.Disassembly == nil {
		return nil
	}
	instrs := fn.Disassembly.Instructions()
	if len(instrs) < minInstructions {
		return nil
	}

	normalized, _, totalBytes := normalize(instrs)
	digest := hashBytes(normalized)

	indexID, found, err := e.st.FindIndexRowWithExtra(ctx, indexTable, digest, fn.Architecture, totalBytes)
	if err != nil {
		return err
	}
	if !found {
		indexID, err = e.st.CreateIndexRowWithExtra(ctx, indexTable, digest, fn.Architecture, totalBytes)
		if err != nil {
			return err
		}
	}
	return e.st.LinkIndexFunction(ctx, indexTable, indexID, fn.FunctionID)
}

// Scan normalizes the query the same way Add does, looks up the resulting
// (digest, architecture, total_bytes) key, and yields a similarity-scored
// result for every linked, annotated function.
func (e *Engine) Scan(ctx context.Context, _ []byte, architecture string, apis []string, dis disasm.Disassembly) ([]engine.FunctionResult, error) {
	if dis == nil {
		return nil, nil
	}
	instrs := dis.Instructions()
	if len(instrs) < minInstructions {
		return nil, nil
	}

	normalized, changedBits, totalBytes := normalize(instrs)
	digest := hashBytes(normalized)

	indexID, found, err := e.st.FindIndexRowWithExtra(ctx, indexTable, digest, architecture, totalBytes)
	if err != nil || !found {
		return nil, err
	}

	functionIDs, err := e.st.FunctionsForIndexRow(ctx, indexTable, indexID, noFunction)
	if err != nil {
		return nil, err
	}

	totalBits := float64(totalBytes * 8)
	base := 100.0
	if totalBits > 0 {
		base = 100.0 * (1.0 - float64(changedBits)/totalBits)
	}
	if base > similarityCeil {
		base = similarityCeil
	}

	var results []engine.FunctionResult
	for _, fid := range functionIDs {
		has, err := e.st.HasAnnotations(ctx, fid)
		if err != nil {
			return nil, err
		}
		if !has {
			continue
		}
		fn, found, err := e.st.GetFunction(ctx, fid)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		similarity := base
		if len(fn.APIs) > 0 {
			similarity += apiOverlapBonus * float64(sharedCount(apis, fn.APIs)) / float64(len(fn.APIs))
		}
		if similarity > 100 {
			similarity = 100
		}
		results = append(results, engine.FunctionResult{FunctionID: fid, Similarity: similarity})
	}
	return results, nil
}

// normalize masks the immediate operand of every control-transfer
// instruction, leaving all other instructions' raw bytes untouched, and
// reports the total masked bit-width plus the total instruction byte count.
func normalize(instrs []disasm.Instruction) (normalized []byte, changedBits, totalBytes int) {
	for _, in := range instrs {
		totalBytes += len(in.Raw)
		if in.ControlTransfer && in.HasImmediate {
			masked := make([]byte, len(in.Raw))
			copy(masked, in.Raw)
			for i := 0; i < in.ImmLen && in.ImmOffset+i < len(masked); i++ {
				masked[in.ImmOffset+i] = 0
			}
			normalized = append(normalized, masked...)
			changedBits += in.ImmLen * 8
			continue
		}
		normalized = append(normalized, in.Raw...)
	}
	return normalized, changedBits, totalBytes
}

func sharedCount(a, b []string) int {
	want := make(map[string]struct{}, len(b))
	for _, x := range b {
		want[x] = struct{}{}
	}
	n := 0
	for _, x := range a {
		if _, ok := want[x]; ok {
			n++
		}
	}
	return n
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
