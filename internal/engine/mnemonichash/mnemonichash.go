// Package mnemonichash implements the MnemonicHash similarity engine: a
// sha256 over the ordered, valid-only mnemonic stream of a disassembled
// function (spec §4.6).
package mnemonichash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rs/zerolog"

	"github.com/saferwall/first-go/internal/disasm"
	"github.com/saferwall/first-go/internal/engine"
	"github.com/saferwall/first-go/internal/store"
)

const (
	className       = "MnemonicHash"
	description     = "sha256 over the ordered mnemonic stream of a disassembled function"
	indexTable      = "mnemonichash"
	minMnemonics    = 8
	baseSimilarity  = 75.0
	apiOverlapBonus = 10.0
	noAPIBonus      = 5.0
	// noFunction is never a real function id (AUTOINCREMENT starts at 1);
	// used so FunctionsForIndexRow's exclusion parameter is a no-op here.
	noFunction = 0
)

func init() {
	engine.Register(className, New)
}

// Engine is the MnemonicHash similarity engine.
type Engine struct {
	st *store.Store
}

// New constructs a MnemonicHash engine against the shared store's
// mnemonichash_index / mnemonichash_functions tables.
func New(st *store.Store, _ zerolog.Logger) (engine.Engine, error) {
	return &Engine{st: st}, nil
}

func (e *Engine) Name() string        { return "MnemonicHash" }
func (e *Engine) Description() string { return description }
func (e *Engine) Rank() int           { return 1 }
func (e *Engine) IsOperational() bool { return e.st != nil }

// Add disassembles the function, extracts its mnemonic stream, and files it
// under sha256(concat(mnemonics))+architecture. Functions with fewer than 8
// valid mnemonics, or whose architecture this engine's shared disassembler
// doesn't support, are silently skipped (EngineSkip).
func (e *Engine) Add(ctx context.Context, fn engine.Dump) error {
	if fn.Disassembly == nil {
		return nil
	}
	mnemonics := disasm.Mnemonics(fn.Disassembly)
	if len(mnemonics) < minMnemonics {
		return nil
	}

	digest := hashMnemonics(mnemonics)
	indexID, found, err := e.st.FindIndexRow(ctx, indexTable, digest, fn.Architecture)
	if err != nil {
		return err
	}
	if !found {
		indexID, err = e.st.CreateIndexRow(ctx, indexTable, digest, fn.Architecture)
		if err != nil {
			return err
		}
	}
	return e.st.LinkIndexFunction(ctx, indexTable, indexID, fn.FunctionID)
}

// Scan looks up (sha256(concat(mnemonics)), architecture) and yields a
// result for every linked function that already carries at least one
// annotation, per spec §4.6.
func (e *Engine) Scan(ctx context.Context, _ []byte, architecture string, apis []string, dis disasm.Disassembly) ([]engine.FunctionResult, error) {
	if dis == nil {
		return nil, nil
	}
	mnemonics := disasm.Mnemonics(dis)
	if len(mnemonics) < minMnemonics {
		return nil, nil
	}

	digest := hashMnemonics(mnemonics)
	indexID, found, err := e.st.FindIndexRow(ctx, indexTable, digest, architecture)
	if err != nil || !found {
		return nil, err
	}

	functionIDs, err := e.st.FunctionsForIndexRow(ctx, indexTable, indexID, noFunction)
	if err != nil {
		return nil, err
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
		results = append(results, engine.FunctionResult{
			FunctionID: fid,
			Similarity: baseSimilarity + apiOverlapScore(apis, fn.APIs),
		})
	}
	return results, nil
}

func apiOverlapScore(scanAPIs, funcAPIs []string) float64 {
	if len(funcAPIs) == 0 {
		return noAPIBonus
	}
	shared := 0
	want := make(map[string]struct{}, len(funcAPIs))
	for _, a := range funcAPIs {
		want[a] = struct{}{}
	}
	for _, a := range scanAPIs {
		if _, ok := want[a]; ok {
			shared++
		}
	}
	return apiOverlapBonus * float64(shared) / float64(len(funcAPIs))
}

func hashMnemonics(mnemonics []string) string {
	sum := sha256.Sum256([]byte(strings.Join(mnemonics, "")))
	return hex.EncodeToString(sum[:])
}
