package facade

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/saferwall/first-go/internal/disasm"
	"github.com/saferwall/first-go/internal/engine"
	_ "github.com/saferwall/first-go/internal/engine/basicmasking"
	_ "github.com/saferwall/first-go/internal/engine/catalog1"
	_ "github.com/saferwall/first-go/internal/engine/exactmatch"
	_ "github.com/saferwall/first-go/internal/engine/mnemonichash"
	"github.com/saferwall/first-go/internal/model"
	"github.com/saferwall/first-go/internal/store"
)

// newTestFacade wires a full, in-memory stack: a fresh sqlite-backed store,
// all four built-in engines registered and loaded, and the real intel
// decoder, the same assembly cmd/firstd performs at startup.
func newTestFacade(t *testing.T) (*Facade, *store.Store, model.User) {
	t.Helper()
	ctx := context.Background()

	raw, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })

	st, err := store.OpenWithDB(ctx, raw, "sqlite3", zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenWithDB: %v", err)
	}

	for _, rec := range []struct {
		name, class string
		rank        int
	}{
		{"ExactMatch", "ExactMatch", 0},
		{"MnemonicHash", "MnemonicHash", 1},
		{"BasicMasking", "BasicMasking", 2},
		{"Catalog1", "Catalog1", 3},
	} {
		if _, err := st.RegisterEngine(ctx, rec.name, rec.name+" engine", "internal/engine/"+rec.name, rec.class, true, rec.rank); err != nil {
			t.Fatalf("RegisterEngine(%s): %v", rec.name, err)
		}
	}

	mgr := engine.NewManager(st, zerolog.Nop())
	if err := mgr.LoadActiveEngines(ctx); err != nil {
		t.Fatalf("LoadActiveEngines: %v", err)
	}
	if len(mgr.Engines()) != 4 {
		t.Fatalf("loaded %d engines, want 4", len(mgr.Engines()))
	}

	user, err := st.CreateUser(ctx, "h4x0r", 1337)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	f := New(st, mgr, disasm.NewIntelDecoder(), zerolog.Nop())
	return f, st, user
}
