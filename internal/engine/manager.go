package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/saferwall/first-go/internal/disasm"
	"github.com/saferwall/first-go/internal/idcodec"
	"github.com/saferwall/first-go/internal/model"
	"github.com/saferwall/first-go/internal/store"
)

// Manager loads the operator-activated engine set and fans add/scan calls
// out to each of them, isolating per-engine failures the way spec §4.9
// requires.
type Manager struct {
	st      *store.Store
	log     zerolog.Logger
	engines []Engine
}

// NewManager constructs an empty manager; call LoadActiveEngines to
// populate it from the Engine catalog.
func NewManager(st *store.Store, log zerolog.Logger) *Manager {
	return &Manager{st: st, log: log.With().Str("component", "engine_manager").Logger()}
}

// LoadActiveEngines reads every active=true row from the Engine catalog and
// instantiates it via the registered constructor for its class name.
// Engines that fail to construct, or whose constructor is unknown, are
// skipped with a log line — one bad engine must never stop the manager from
// loading the rest.
func (m *Manager) LoadActiveEngines(ctx context.Context) error {
	records, err := m.st.ActiveEngines(ctx)
	if err != nil {
		return fmt.Errorf("engine: load active engines: %w", err)
	}

	engines := make([]Engine, 0, len(records))
	for _, rec := range records {
		ctor, ok := registry[rec.ClassName]
		if !ok {
			m.log.Warn().Str("engine", rec.Name).Str("class", rec.ClassName).
				Msg("no constructor registered for engine class, skipping")
			continue
		}
		e, err := ctor(m.st, m.log)
		if err != nil {
			m.log.Warn().Err(err).Str("engine", rec.Name).Msg("engine failed to instantiate, skipping")
			continue
		}
		if !e.IsOperational() {
			m.log.Warn().Str("engine", rec.Name).Msg("engine missing a required store, skipping")
			continue
		}
		engines = append(engines, e)
	}

	sort.Slice(engines, func(i, j int) bool { return engines[i].Rank() < engines[j].Rank() })
	m.engines = engines
	m.log.Info().Int("count", len(engines)).Msg("loaded active engines")
	return nil
}

// Engines returns the currently loaded engine set.
func (m *Manager) Engines() []Engine { return m.engines }

// Add indexes a newly-created (or re-submitted) function dump against every
// active engine. Each engine's error is captured independently and never
// propagated to the caller; the returned map is empty when every engine
// succeeded.
func (m *Manager) Add(ctx context.Context, fn Dump) map[string]error {
	errs := make(map[string]error)
	for _, e := range m.engines {
		if err := e.Add(ctx, fn); err != nil {
			m.log.Warn().Err(err).Str("engine", e.Name()).Int64("function_id", fn.FunctionID).Msg("engine add failed")
			errs[e.Name()] = err
		}
	}
	return errs
}

type mergedHit struct {
	similarity float64
	engines    map[string]struct{}
}

// Scan runs every active engine's Scan concurrently-free (spec leaves engine
// scan order unspecified but does not require parallelism) against one
// shared disassembly, merges results by function id taking the maximum
// similarity and the union of contributing engines, resolves each surviving
// function to its annotations, and returns the top 30 annotations overall
// alongside a map of every engine that contributed at least one hit to its
// description.
func (m *Manager) Scan(ctx context.Context, opcodes []byte, architecture string, apis []string, dis disasm.Disassembly) (map[string]string, []model.Annotation, error) {
	merged := make(map[int64]*mergedHit)
	contributing := make(map[string]string)

	for _, e := range m.engines {
		results, err := e.Scan(ctx, opcodes, architecture, apis, dis)
		if err != nil {
			m.log.Warn().Err(err).Str("engine", e.Name()).Msg("engine scan failed")
			continue
		}
		if len(results) == 0 {
			continue
		}
		contributing[e.Name()] = e.Description()
		for _, r := range results {
			h, ok := merged[r.FunctionID]
			if !ok {
				h = &mergedHit{engines: make(map[string]struct{})}
				merged[r.FunctionID] = h
			}
			if r.Similarity > h.similarity {
				h.similarity = r.Similarity
			}
			h.engines[e.Name()] = struct{}{}
		}
	}

	var all []model.Annotation
	for functionID, hit := range merged {
		annotations, err := m.annotationsForFunction(ctx, functionID, hit)
		if err != nil {
			return nil, nil, err
		}
		sortAnnotations(annotations)
		if len(annotations) > 10 {
			annotations = annotations[:10]
		}
		all = append(all, annotations...)
	}

	sortAnnotations(all)
	if len(all) > 30 {
		all = all[:30]
	}
	return contributing, all, nil
}

func (m *Manager) annotationsForFunction(ctx context.Context, functionID int64, hit *mergedHit) ([]model.Annotation, error) {
	metas, err := m.st.GetMetadataList(ctx, functionID)
	if err != nil {
		return nil, err
	}
	engineNames := make([]string, 0, len(hit.engines))
	for name := range hit.engines {
		engineNames = append(engineNames, name)
	}
	sort.Strings(engineNames)

	out := make([]model.Annotation, 0, len(metas))
	for _, meta := range metas {
		if len(meta.Revisions) == 0 {
			continue
		}
		rank, err := m.st.Rank(ctx, meta.ID)
		if err != nil {
			return nil, err
		}
		cur := meta.Current()
		creator := "unknown"
		if user, found, err := m.st.UserByID(ctx, meta.UserID); err != nil {
			return nil, err
		} else if found {
			creator = user.Tag()
		}
		out = append(out, model.Annotation{
			ID:         idcodec.EncodeUser(uint64(meta.ID)),
			Creator:    creator,
			Name:       cur.Name,
			Prototype:  cur.Prototype,
			Comment:    cur.Comment,
			Rank:       rank,
			Similarity: hit.similarity,
			Engines:    engineNames,
		})
	}
	return out, nil
}

func sortAnnotations(a []model.Annotation) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].Similarity != a[j].Similarity {
			return a[i].Similarity > a[j].Similarity
		}
		return a[i].Rank > a[j].Rank
	})
}
