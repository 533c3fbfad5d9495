package catalog1

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/saferwall/first-go/internal/engine"
	"github.com/saferwall/first-go/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	raw, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })
	s, err := store.OpenWithDB(context.Background(), raw, "sqlite3", zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenWithDB: %v", err)
	}
	return s
}

func TestAddThenScanIdenticalOpcodesMatchExactly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	opcodes := []byte("The quick brown fox jumps over 13 lazy dogs.")

	fn, _, err := st.FindOrCreateFunction(ctx, "aa", "intel32", opcodes, nil)
	if err != nil {
		t.Fatalf("FindOrCreateFunction: %v", err)
	}

	e, err := New(st, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Add(ctx, engine.Dump{FunctionID: fn.ID, Architecture: "intel32", Opcodes: opcodes}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := e.Scan(ctx, opcodes, "intel32", nil, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(results) != 1 || results[0].FunctionID != fn.ID || results[0].Similarity != 100 {
		t.Fatalf("Scan = %+v, want one hit at similarity 100 for function %d", results, fn.ID)
	}
}

func TestScanUnknownOpcodesReturnsNoResults(t *testing.T) {
	st := newTestStore(t)
	e, _ := New(st, zerolog.Nop())
	results, err := e.Scan(context.Background(), []byte("completely unseen data"), "intel32", nil, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Scan = %+v, want none", results)
	}
}

func TestAddSkipsTooShortOpcodes(t *testing.T) {
	st := newTestStore(t)
	e, _ := New(st, zerolog.Nop())
	if err := e.Add(context.Background(), engine.Dump{FunctionID: 1, Architecture: "intel32", Opcodes: []byte{0x01, 0x02}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

// TestScanFindsPartialPermutationMatch exercises the non-exact branch of
// Scan: a candidate index row whose stored permutation hashes overlap the
// query's signature in most, but not all, of the NumPerms slots. The
// candidate's signature is derived from the query's own real Sign() output
// with exactly `changed` of its 64 entries replaced by sentinel values, so
// the two are guaranteed to share exactly NumPerms-changed hashes and to
// digest differently (forcing the exact-match lookup to miss).
func TestScanFindsPartialPermutationMatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	e, err := New(st, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	queryOpcodes := make([]byte, 64)
	for i := range queryOpcodes {
		queryOpcodes[i] = byte(i*7 + 3)
	}
	sig, err := Sign(queryOpcodes)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	const changed = 10
	neighbor := make([]uint32, len(sig))
	copy(neighbor, sig)
	for i := 0; i < changed; i++ {
		neighbor[i] = ^uint32(0) - uint32(i) // sentinel, vanishingly unlikely to collide with a real perm() output
	}

	otherFn, _, err := st.FindOrCreateFunction(ctx, "ee", "intel32", []byte{0x01, 0x02, 0x03, 0x04}, nil)
	if err != nil {
		t.Fatalf("FindOrCreateFunction: %v", err)
	}
	indexID, err := st.CreateIndexRow(ctx, indexTable, signatureDigest(neighbor), "intel32")
	if err != nil {
		t.Fatalf("CreateIndexRow: %v", err)
	}
	if err := st.InsertCatalog1Hashes(ctx, indexID, "intel32", toUint64(neighbor)); err != nil {
		t.Fatalf("InsertCatalog1Hashes: %v", err)
	}
	if err := st.LinkIndexFunction(ctx, indexTable, indexID, otherFn.ID); err != nil {
		t.Fatalf("LinkIndexFunction: %v", err)
	}

	results, err := e.Scan(ctx, queryOpcodes, "intel32", nil, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(results) != 1 || results[0].FunctionID != otherFn.ID {
		t.Fatalf("Scan = %+v, want one partial-match hit for function %d", results, otherFn.ID)
	}
	want := 100.0 * float64(len(sig)-changed) / float64(NumPerms)
	if results[0].Similarity != want {
		t.Fatalf("Similarity = %v, want %v (%d/%d shared permutation hashes)", results[0].Similarity, want, len(sig)-changed, NumPerms)
	}
	if results[0].Similarity <= similarityFloor || results[0].Similarity == exactSimilarity {
		t.Fatalf("Similarity = %v, want strictly between the %v floor and an exact match", results[0].Similarity, similarityFloor)
	}
}
