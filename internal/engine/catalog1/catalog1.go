// Package catalog1 implements the Catalog1 similarity engine: xorpd's
// fcatalog locality-sensitive hashing algorithm, ported from the original
// FIRST server's pure-Python implementation (spec §4.8).
package catalog1

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/saferwall/first-go/internal/disasm"
	"github.com/saferwall/first-go/internal/engine"
	"github.com/saferwall/first-go/internal/store"
)

const (
	className        = "Catalog1"
	description      = "fcatalog locality-sensitive hashing over raw opcode bytes"
	indexTable       = "catalog1"
	minOpcodeBytes   = 4
	exactSimilarity  = 100.0
	candidateLimit   = 10
	similarityFloor  = 80.0
	noFunction int64 = 0
)

func init() {
	engine.Register(className, New)
}

// Engine is the Catalog1 similarity engine.
type Engine struct {
	st *store.Store
}

// New constructs a Catalog1 engine against the shared store's catalog1_index
// / catalog1_functions / catalog1_hashes tables.
func New(st *store.Store, _ zerolog.Logger) (engine.Engine, error) {
	return &Engine{st: st}, nil
}

func (e *Engine) Name() string        { return "Catalog1" }
func (e *Engine) Description() string { return description }
func (e *Engine) Rank() int           { return 3 }
func (e *Engine) IsOperational() bool { return e.st != nil }

// Add signs the function's raw opcode bytes and files the resulting
// signature, and every one of its NumPerms permutation hashes, under the
// signature's sha256.
func (e *Engine) Add(ctx context.Context, fn engine.Dump) error {
	if len(fn.Opcodes) < minOpcodeBytes {
		return nil
	}
	sig, err := Sign(fn.Opcodes)
	if err != nil {
		return nil //nolint:nilerr // EngineSkip: too-short input, not an error
	}
	digest := signatureDigest(sig)

	indexID, found, err := e.st.FindIndexRow(ctx, indexTable, digest, fn.Architecture)
	if err != nil {
		return err
	}
	if !found {
		indexID, err = e.st.CreateIndexRow(ctx, indexTable, digest, fn.Architecture)
		if err != nil {
			return err
		}
		if err := e.st.InsertCatalog1Hashes(ctx, indexID, fn.Architecture, toUint64(sig)); err != nil {
			return err
		}
	}
	return e.st.LinkIndexFunction(ctx, indexTable, indexID, fn.FunctionID)
}

// Scan first checks for an identical signature (similarity 100 for every
// linked function), then falls back to counting, per candidate index row,
// how many of the query's NumPerms permutation hashes it shares, keeping the
// top 10 rows whose resulting similarity exceeds 80.
func (e *Engine) Scan(ctx context.Context, opcodes []byte, architecture string, _ []string, _ disasm.Disassembly) ([]engine.FunctionResult, error) {
	if len(opcodes) < minOpcodeBytes {
		return nil, nil
	}
	sig, err := Sign(opcodes)
	if err != nil {
		return nil, nil
	}
	digest := signatureDigest(sig)

	if indexID, found, err := e.st.FindIndexRow(ctx, indexTable, digest, architecture); err != nil {
		return nil, err
	} else if found {
		functionIDs, err := e.st.FunctionsForIndexRow(ctx, indexTable, indexID, noFunction)
		if err != nil {
			return nil, err
		}
		results := make([]engine.FunctionResult, 0, len(functionIDs))
		for _, fid := range functionIDs {
			results = append(results, engine.FunctionResult{FunctionID: fid, Similarity: exactSimilarity})
		}
		return results, nil
	}

	counts, err := e.st.Catalog1IndexRowsSharingHashes(ctx, architecture, toUint64(sig), -1)
	if err != nil || len(counts) == 0 {
		return nil, err
	}

	type candidate struct {
		indexID int64
		count   int
	}
	candidates := make([]candidate, 0, len(counts))
	for id, c := range counts {
		candidates = append(candidates, candidate{indexID: id, count: c})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].indexID < candidates[j].indexID
	})
	if len(candidates) > candidateLimit {
		candidates = candidates[:candidateLimit]
	}

	var results []engine.FunctionResult
	for _, c := range candidates {
		similarity := 100.0 * float64(c.count) / float64(NumPerms)
		if similarity <= similarityFloor {
			continue
		}
		functionIDs, err := e.st.FunctionsForIndexRow(ctx, indexTable, c.indexID, noFunction)
		if err != nil {
			return nil, err
		}
		for _, fid := range functionIDs {
			results = append(results, engine.FunctionResult{FunctionID: fid, Similarity: similarity})
		}
	}
	return results, nil
}

func signatureDigest(sig []uint32) string {
	sorted := make([]uint32, len(sig))
	copy(sorted, sig)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	concatenated := ""
	for _, v := range sorted {
		concatenated += fmt.Sprintf("%d", v)
	}
	sum := sha256.Sum256([]byte(concatenated))
	return hex.EncodeToString(sum[:])
}

func toUint64(sig []uint32) []uint64 {
	out := make([]uint64, len(sig))
	for i, v := range sig {
		out[i] = uint64(v)
	}
	return out
}
