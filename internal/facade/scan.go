package facade

import (
	"context"

	"github.com/rs/xid"

	"github.com/saferwall/first-go/internal/apierr"
	"github.com/saferwall/first-go/internal/model"
)

// ScanSubmission is one entry of metadata_scan's functions map: an
// unidentified function the caller wants matched against everything already
// indexed.
type ScanSubmission struct {
	Opcodes      string // base64
	Architecture string
	APIs         []string
}

// MetadataScanRequest is the metadata_scan payload (spec §4.9/§6).
type MetadataScanRequest struct {
	Functions map[string]ScanSubmission
}

// MetadataScanResponse reports which engines contributed at least one hit
// anywhere in the batch, plus the merged, ranked annotation list per
// client-keyed submission.
type MetadataScanResponse struct {
	Engines map[string]string
	Matches map[string][]AnnotationDTO
}

// MetadataScan runs every submitted function through the Engine Manager,
// which disassembles once and shares the result read-only across engines
// per spec §5, then merges each engine's hits into one ranked list per
// submission.
func (f *Facade) MetadataScan(ctx context.Context, apiKey string, req MetadataScanRequest) (MetadataScanResponse, *apierr.APIError) {
	if _, aerr := f.authenticate(ctx, apiKey); aerr != nil {
		return MetadataScanResponse{}, aerr
	}
	if aerr := validateBatchSize(len(req.Functions)); aerr != nil {
		return MetadataScanResponse{}, aerr
	}

	log := f.log.With().Str("batch_id", xid.New().String()).Logger()
	log.Debug().Int("functions", len(req.Functions)).Msg("metadata_scan")

	engines := make(map[string]string)
	matches := make(map[string][]AnnotationDTO, len(req.Functions))

	for clientID, sub := range req.Functions {
		if aerr := validateArchitecture(sub.Architecture); aerr != nil {
			return MetadataScanResponse{}, aerr
		}
		if aerr := validateAPIs(sub.APIs); aerr != nil {
			return MetadataScanResponse{}, aerr
		}
		opcodes, aerr := decodeOpcodes(sub.Opcodes)
		if aerr != nil {
			return MetadataScanResponse{}, aerr
		}

		dis := f.decodeArchitecture(sub.Architecture, opcodes)
		contributing, annotations, err := f.mgr.Scan(ctx, opcodes, sub.Architecture, sub.APIs, dis)
		if err != nil {
			return MetadataScanResponse{}, apierr.StorageUnavailable(err)
		}
		for name, description := range contributing {
			engines[name] = description
		}
		matches[clientID] = toAnnotationDTOs(annotations)
	}

	return MetadataScanResponse{Engines: engines, Matches: matches}, nil
}

func toAnnotationDTOs(annotations []model.Annotation) []AnnotationDTO {
	out := make([]AnnotationDTO, 0, len(annotations))
	for _, a := range annotations {
		out = append(out, AnnotationDTO{
			ID:         a.ID,
			Creator:    a.Creator,
			Name:       a.Name,
			Prototype:  a.Prototype,
			Comment:    a.Comment,
			Rank:       a.Rank,
			Similarity: a.Similarity,
			Engines:    a.Engines,
		})
	}
	return out
}
