// Command firstd is the service entry point: it loads configuration, opens
// the store, loads the active engine set, starts the maintenance sweep, and
// serves the RPC Facade over HTTP. Routing here is deliberately minimal —
// spec.md's non-goals exclude production HTTP hardening (CSRF, sessions,
// rate limiting); this is a boundary-only net/http.ServeMux satisfying the
// wire-format description in spec §6, not a hardened edge server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/saferwall/first-go/internal/config"
	"github.com/saferwall/first-go/internal/disasm"
	"github.com/saferwall/first-go/internal/engine"
	_ "github.com/saferwall/first-go/internal/engine/basicmasking"
	_ "github.com/saferwall/first-go/internal/engine/catalog1"
	_ "github.com/saferwall/first-go/internal/engine/exactmatch"
	_ "github.com/saferwall/first-go/internal/engine/mnemonichash"
	"github.com/saferwall/first-go/internal/facade"
	"github.com/saferwall/first-go/internal/maintenance"
	"github.com/saferwall/first-go/internal/store"
)

// builtinEngines is the catalog seed: every engine this binary links gets a
// row the first time it starts, active by default at its package's natural
// rank. An operator can deactivate any of them afterward without a rebuild.
var builtinEngines = []struct {
	name, description, modulePath, className string
	rank                                      int
}{
	{"ExactMatch", "Direct sha256(opcodes)+architecture lookup against the function store", "internal/engine/exactmatch", "ExactMatch", 0},
	{"MnemonicHash", "sha256 over the ordered mnemonic stream of a disassembled function", "internal/engine/mnemonichash", "MnemonicHash", 1},
	{"BasicMasking", "Masks call/jump immediate operands before hashing to catch control-flow-only diffs", "internal/engine/basicmasking", "BasicMasking", 2},
	{"Catalog1", "fcatalog locality-sensitive hashing over raw opcode bytes", "internal/engine/catalog1", "Catalog1", 3},
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := config.WriteDefault(*configPath); err != nil {
		fatalf("write default config: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	log := newLogger(cfg.Logging)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}

	for _, e := range builtinEngines {
		if _, err := st.RegisterEngine(ctx, e.name, e.description, e.modulePath, e.className, true, e.rank); err != nil {
			log.Fatal().Err(err).Str("engine", e.name).Msg("failed to register built-in engine")
		}
	}

	mgr := engine.NewManager(st, log)
	if err := mgr.LoadActiveEngines(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load active engines")
	}

	f := facade.New(st, mgr, disasm.NewIntelDecoder(), log)

	job := maintenance.New(st, mgr, log)
	if cfg.Maintenance.Cron != "" {
		if err := job.Start(cfg.Maintenance.Cron); err != nil {
			log.Fatal().Err(err).Msg("failed to start maintenance sweep")
		}
		defer job.Stop()
	}

	srv := newServer(f, log)
	log.Info().Str("address", cfg.Listen.Address).Msg("starting firstd")
	if err := srv.run(ctx, cfg.Listen.Address); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.File == "" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Logger()
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func fatalf(format string, args ...any) {
	zerolog.New(os.Stderr).Error().Msgf(format, args...)
	os.Exit(1)
}
