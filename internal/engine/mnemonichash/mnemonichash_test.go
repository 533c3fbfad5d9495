package mnemonichash

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/saferwall/first-go/internal/disasm"
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

// eightPushes is "push eax"*8 (0x50 repeated), decoding to 8 valid "push"
// mnemonics — the minimum this engine requires.
var eightPushes = []byte{0x50, 0x50, 0x50, 0x50, 0x50, 0x50, 0x50, 0x50}

func TestAddThenScanFindsAnnotatedFunction(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	dec := disasm.NewIntelDecoder()

	u, err := st.CreateUser(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	fn, _, err := st.FindOrCreateFunction(ctx, "aa", "intel32", eightPushes, []string{"CreateFileW"})
	if err != nil {
		t.Fatalf("FindOrCreateFunction: %v", err)
	}
	if _, err := st.AddMetadataToFunction(ctx, fn.ID, u.ID, "fn", "", "", time.Unix(1700000000, 0)); err != nil {
		t.Fatalf("AddMetadataToFunction: %v", err)
	}

	dis, err := dec.Decode("intel32", eightPushes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	e, err := New(st, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Add(ctx, engine.Dump{FunctionID: fn.ID, Architecture: "intel32", Opcodes: eightPushes, Disassembly: dis}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := e.Scan(ctx, eightPushes, "intel32", []string{"CreateFileW"}, dis)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(results) != 1 || results[0].FunctionID != fn.ID {
		t.Fatalf("Scan = %+v, want one hit for function %d", results, fn.ID)
	}
	if results[0].Similarity != 85 { // 75 base + 10 full api overlap
		t.Fatalf("Similarity = %v, want 85", results[0].Similarity)
	}
}

func TestScanSkipsUnannotatedFunction(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	dec := disasm.NewIntelDecoder()

	fn, _, err := st.FindOrCreateFunction(ctx, "bb", "intel32", eightPushes, nil)
	if err != nil {
		t.Fatalf("FindOrCreateFunction: %v", err)
	}
	dis, _ := dec.Decode("intel32", eightPushes)

	e, _ := New(st, zerolog.Nop())
	if err := e.Add(ctx, engine.Dump{FunctionID: fn.ID, Architecture: "intel32", Opcodes: eightPushes, Disassembly: dis}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := e.Scan(ctx, eightPushes, "intel32", nil, dis)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Scan = %+v, want no results (function has no annotations)", results)
	}
}

func TestScanSkipsShortMnemonicStreams(t *testing.T) {
	st := newTestStore(t)
	e, _ := New(st, zerolog.Nop())
	dec := disasm.NewIntelDecoder()

	short := []byte{0x50, 0x50}
	dis, _ := dec.Decode("intel32", short)
	results, err := e.Scan(context.Background(), short, "intel32", nil, dis)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Scan with < 8 mnemonics = %+v, want none", results)
	}
}
