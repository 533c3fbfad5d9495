package maintenance

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/saferwall/first-go/internal/engine"
	_ "github.com/saferwall/first-go/internal/engine/exactmatch"
	"github.com/saferwall/first-go/internal/store"
)

func TestSweepRunsOnSchedule(t *testing.T) {
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
	if _, err := st.RegisterEngine(ctx, "ExactMatch", "exact match", "internal/engine/exactmatch", "ExactMatch", true, 0); err != nil {
		t.Fatalf("RegisterEngine: %v", err)
	}

	mgr := engine.NewManager(st, zerolog.Nop())

	job := New(st, mgr, zerolog.Nop())
	if err := job.Start("@every 50ms"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer job.Stop()

	deadline := time.After(2 * time.Second)
	for len(mgr.Engines()) == 0 {
		select {
		case <-deadline:
			t.Fatal("sweep never loaded the registered engine within the deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
