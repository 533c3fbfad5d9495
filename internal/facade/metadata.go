package facade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/rs/xid"

	"github.com/saferwall/first-go/internal/apierr"
	"github.com/saferwall/first-go/internal/engine"
	"github.com/saferwall/first-go/internal/idcodec"
	"github.com/saferwall/first-go/internal/store"
)

// AnnotationDTO is the wire shape of one annotation, carried by
// metadata_get, metadata_created and metadata_scan responses alike (spec §6).
type AnnotationDTO struct {
	ID         string
	Creator    string
	Name       string
	Prototype  string
	Comment    string
	Rank       int
	Similarity float64
	Engines    []string
}

// FunctionSubmission is one entry of metadata_add's functions map.
type FunctionSubmission struct {
	Opcodes      string // base64
	Architecture string
	Name         string
	Prototype    string
	Comment      string
	APIs         []string
}

// MetadataAddRequest is the metadata_add payload (spec §6): a sample
// identified by (md5, crc32) plus a client-keyed batch of function
// submissions.
type MetadataAddRequest struct {
	MD5       string
	CRC32     uint32
	Functions map[string]FunctionSubmission
}

// MetadataAddResponse maps each submission's client_id to its new or
// existing annotation's wire id.
type MetadataAddResponse struct {
	Results map[string]string
}

// MetadataAdd implements the full metadata_add data flow from spec §2:
// Function Store (create-or-get) → Metadata Store (append-or-update
// revision) → Metadata Store (mark the caller as an applier, since
// submitting an annotation for a sample is itself evidence the caller
// applied it) → Engine Manager.add.
func (f *Facade) MetadataAdd(ctx context.Context, apiKey string, req MetadataAddRequest) (MetadataAddResponse, *apierr.APIError) {
	user, aerr := f.authenticate(ctx, apiKey)
	if aerr != nil {
		return MetadataAddResponse{}, aerr
	}
	if aerr := validateMD5(req.MD5); aerr != nil {
		return MetadataAddResponse{}, aerr
	}
	if aerr := validateBatchSize(len(req.Functions)); aerr != nil {
		return MetadataAddResponse{}, aerr
	}

	// batchID has no meaning to the store; it exists purely so the log lines
	// for every function in one metadata_add call can be correlated without
	// assuming the caller's own client_id keys are unique across calls.
	batchID := xid.New().String()
	log := f.log.With().Str("batch_id", batchID).Str("user", user.Tag()).Logger()

	now := time.Now().UTC()
	sample, err := f.st.Checkin(ctx, req.MD5, req.CRC32, "", "", user.ID, now)
	if err != nil {
		return MetadataAddResponse{}, apierr.StorageUnavailable(err)
	}
	log.Debug().Int("functions", len(req.Functions)).Msg("metadata_add")

	results := make(map[string]string, len(req.Functions))
	for clientID, sub := range req.Functions {
		if aerr := validateArchitecture(sub.Architecture); aerr != nil {
			return MetadataAddResponse{}, aerr
		}
		if aerr := validateAnnotationStrings(sub.Name, sub.Prototype, sub.Comment); aerr != nil {
			return MetadataAddResponse{}, aerr
		}
		if aerr := validateAPIs(sub.APIs); aerr != nil {
			return MetadataAddResponse{}, aerr
		}
		opcodes, aerr := decodeOpcodes(sub.Opcodes)
		if aerr != nil {
			return MetadataAddResponse{}, aerr
		}

		sum := sha256.Sum256(opcodes)
		digest := hex.EncodeToString(sum[:])

		fn, _, err := f.st.FindOrCreateFunction(ctx, digest, sub.Architecture, opcodes, sub.APIs)
		if err != nil {
			return MetadataAddResponse{}, apierr.StorageUnavailable(err)
		}
		if err := f.st.AddFunctionToSample(ctx, sample.ID, fn.ID); err != nil {
			return MetadataAddResponse{}, apierr.StorageUnavailable(err)
		}

		meta, err := f.st.AddMetadataToFunction(ctx, fn.ID, user.ID, sub.Name, sub.Prototype, sub.Comment, now)
		if err != nil {
			return MetadataAddResponse{}, apierr.StorageUnavailable(err)
		}
		if err := f.st.ApplyMetadata(ctx, meta.ID, sample.ID, user.ID); err != nil {
			return MetadataAddResponse{}, apierr.StorageUnavailable(err)
		}

		dis := f.decodeArchitecture(sub.Architecture, opcodes)
		if errs := f.mgr.Add(ctx, engine.Dump{
			FunctionID: fn.ID, SHA256: digest, Architecture: sub.Architecture,
			Opcodes: opcodes, APIs: sub.APIs, Disassembly: dis,
		}); len(errs) > 0 {
			log.Warn().Interface("engine_errors", errs).Int64("function_id", fn.ID).
				Msg("one or more engines failed to index a submitted function")
		}

		results[clientID] = idcodec.EncodeUser(uint64(meta.ID))
	}
	return MetadataAddResponse{Results: results}, nil
}

// MetadataGet resolves a batch of wire ids to their current annotation
// view, splitting user ids (resolved against the Metadata Store) from
// engine ids (synthesized from the Engine catalog) via the ID Codec.
func (f *Facade) MetadataGet(ctx context.Context, apiKey string, ids []string) (map[string]AnnotationDTO, *apierr.APIError) {
	if _, aerr := f.authenticate(ctx, apiKey); aerr != nil {
		return nil, aerr
	}
	if aerr := validateBatchSize(len(ids)); aerr != nil {
		return nil, aerr
	}

	userIDs, engineRefs := idcodec.Split(ids)
	out := make(map[string]AnnotationDTO, len(ids))

	for _, mid := range userIDs {
		meta, found, err := f.st.GetMetadata(ctx, int64(mid))
		if err != nil {
			return nil, apierr.StorageUnavailable(err)
		}
		if !found || len(meta.Revisions) == 0 {
			continue
		}
		rank, err := f.st.Rank(ctx, meta.ID)
		if err != nil {
			return nil, apierr.StorageUnavailable(err)
		}
		creator := "unknown"
		if u, found, err := f.st.UserByID(ctx, meta.UserID); err != nil {
			return nil, apierr.StorageUnavailable(err)
		} else if found {
			creator = u.Tag()
		}
		cur := meta.Current()
		id := idcodec.EncodeUser(uint64(meta.ID))
		out[id] = AnnotationDTO{ID: id, Creator: creator, Name: cur.Name, Prototype: cur.Prototype, Comment: cur.Comment, Rank: rank}
	}

	for _, ref := range engineRefs {
		id := idcodec.EncodeEngine(ref.EngineID, ref.MetadataID)
		name := "unknown engine"
		if rec, found, err := f.st.EngineByID(ctx, ref.EngineID); err != nil {
			return nil, apierr.StorageUnavailable(err)
		} else if found {
			name = rec.Name
		}
		out[id] = AnnotationDTO{ID: id, Creator: name, Name: name, Engines: []string{name}}
	}

	return out, nil
}

// MetadataDelete removes an annotation. Only the owning user may delete it;
// a non-owner call, or one naming an engine-synthesized id (which has no
// owner), reports false rather than an error, per spec §8 property 6.
func (f *Facade) MetadataDelete(ctx context.Context, apiKey, id string) (bool, *apierr.APIError) {
	user, aerr := f.authenticate(ctx, apiKey)
	if aerr != nil {
		return false, aerr
	}
	if !idcodec.IsValid(id) {
		return false, apierr.InputInvalid("malformed id")
	}
	if idcodec.IsEngine(id) {
		return false, nil
	}
	_, _, metadataID, _ := idcodec.Decode(id)

	switch err := f.st.DeleteMetadata(ctx, int64(metadataID), user.ID); {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, apierr.StorageUnavailable(err)
	default:
		return true, nil
	}
}

// HistoryEntryDTO is one revision as returned by metadata_history.
type HistoryEntryDTO struct {
	Name      string
	Prototype string
	Comment   string
	Committed int64 // unix seconds
}

// HistoryDTO is the per-id response shape for metadata_history.
type HistoryDTO struct {
	Creator string
	Entries []HistoryEntryDTO
}

// MetadataHistory returns the full revision history for a batch of ids,
// synthesizing a single-entry history for engine-generated ids.
func (f *Facade) MetadataHistory(ctx context.Context, apiKey string, ids []string) (map[string]HistoryDTO, *apierr.APIError) {
	if _, aerr := f.authenticate(ctx, apiKey); aerr != nil {
		return nil, aerr
	}
	if aerr := validateBatchSize(len(ids)); aerr != nil {
		return nil, aerr
	}

	userIDs, engineRefs := idcodec.Split(ids)
	out := make(map[string]HistoryDTO, len(ids))

	for _, mid := range userIDs {
		hist, found, err := f.st.MetadataHistory(ctx, int64(mid))
		if err != nil {
			return nil, apierr.StorageUnavailable(err)
		}
		if !found {
			continue
		}
		dto := HistoryDTO{Creator: hist.Creator}
		for _, e := range hist.Entries {
			dto.Entries = append(dto.Entries, HistoryEntryDTO{
				Name: e.Name, Prototype: e.Prototype, Comment: e.Comment, Committed: e.Committed.Unix(),
			})
		}
		out[idcodec.EncodeUser(mid)] = dto
	}

	for _, ref := range engineRefs {
		id := idcodec.EncodeEngine(ref.EngineID, ref.MetadataID)
		name := "unknown engine"
		if rec, found, err := f.st.EngineByID(ctx, ref.EngineID); err != nil {
			return nil, apierr.StorageUnavailable(err)
		} else if found {
			name = rec.Name
		}
		out[id] = HistoryDTO{Creator: name, Entries: []HistoryEntryDTO{{Name: name}}}
	}

	return out, nil
}

// MetadataCreatedResponse is the paginated metadata_created response.
type MetadataCreatedResponse struct {
	Results    []AnnotationDTO
	TotalPages int
}

// MetadataCreated lists the annotations the caller has authored, 1-based
// page numbers, page size fixed at the §4.10 ceiling of 20.
func (f *Facade) MetadataCreated(ctx context.Context, apiKey string, page int) (MetadataCreatedResponse, *apierr.APIError) {
	user, aerr := f.authenticate(ctx, apiKey)
	if aerr != nil {
		return MetadataCreatedResponse{}, aerr
	}
	if page < 1 {
		page = 1
	}
	const pageSize = maxBatch

	metas, total, err := f.st.CreatedByUser(ctx, user.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return MetadataCreatedResponse{}, apierr.StorageUnavailable(err)
	}

	creator := user.Tag()
	results := make([]AnnotationDTO, 0, len(metas))
	for _, meta := range metas {
		if len(meta.Revisions) == 0 {
			continue
		}
		rank, err := f.st.Rank(ctx, meta.ID)
		if err != nil {
			return MetadataCreatedResponse{}, apierr.StorageUnavailable(err)
		}
		cur := meta.Current()
		results = append(results, AnnotationDTO{
			ID: idcodec.EncodeUser(uint64(meta.ID)), Creator: creator,
			Name: cur.Name, Prototype: cur.Prototype, Comment: cur.Comment, Rank: rank,
		})
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}
	return MetadataCreatedResponse{Results: results, TotalPages: totalPages}, nil
}

// ApplyRequest identifies the sample and annotation an apply/unapply call
// refers to.
type ApplyRequest struct {
	MD5   string
	CRC32 uint32
	ID    string
}

// ApplyResponse reports whether the apply/unapply took effect.
type ApplyResponse struct {
	Applied bool
}

// MetadataApplied records that the caller applied an annotation while
// analysing a sample. A sample the caller's client refers to but that no
// longer exists server-side is tolerated as a no-op success, matching the
// original status view's tolerance of stale client state (SPEC_FULL §4).
// An engine-synthesized id is accepted but left unimplemented per spec §9's
// open question and reports success without writing anything.
func (f *Facade) MetadataApplied(ctx context.Context, apiKey string, req ApplyRequest) (ApplyResponse, *apierr.APIError) {
	user, aerr := f.authenticate(ctx, apiKey)
	if aerr != nil {
		return ApplyResponse{}, aerr
	}
	if aerr := validateMD5(req.MD5); aerr != nil {
		return ApplyResponse{}, aerr
	}
	if !idcodec.IsValid(req.ID) {
		return ApplyResponse{}, apierr.InputInvalid("malformed id")
	}

	sample, found, err := f.st.FindSample(ctx, req.MD5, req.CRC32)
	if err != nil {
		return ApplyResponse{}, apierr.StorageUnavailable(err)
	}
	if !found {
		return ApplyResponse{Applied: true}, nil
	}
	if idcodec.IsEngine(req.ID) {
		return ApplyResponse{Applied: true}, nil
	}

	_, _, metadataID, _ := idcodec.Decode(req.ID)
	if err := f.st.ApplyMetadata(ctx, int64(metadataID), sample.ID, user.ID); err != nil {
		return ApplyResponse{}, apierr.StorageUnavailable(err)
	}
	return ApplyResponse{Applied: true}, nil
}

// MetadataUnapplied reverts MetadataApplied. Per spec §8 property 5, it
// reports success whether or not the triple existed.
func (f *Facade) MetadataUnapplied(ctx context.Context, apiKey string, req ApplyRequest) (ApplyResponse, *apierr.APIError) {
	user, aerr := f.authenticate(ctx, apiKey)
	if aerr != nil {
		return ApplyResponse{}, aerr
	}
	if aerr := validateMD5(req.MD5); aerr != nil {
		return ApplyResponse{}, aerr
	}
	if !idcodec.IsValid(req.ID) {
		return ApplyResponse{}, apierr.InputInvalid("malformed id")
	}

	sample, found, err := f.st.FindSample(ctx, req.MD5, req.CRC32)
	if err != nil {
		return ApplyResponse{}, apierr.StorageUnavailable(err)
	}
	if !found || idcodec.IsEngine(req.ID) {
		return ApplyResponse{Applied: true}, nil
	}

	_, _, metadataID, _ := idcodec.Decode(req.ID)
	if err := f.st.UnapplyMetadata(ctx, int64(metadataID), sample.ID, user.ID); err != nil {
		return ApplyResponse{}, apierr.StorageUnavailable(err)
	}
	return ApplyResponse{Applied: true}, nil
}
