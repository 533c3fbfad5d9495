package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferwall/first-go/internal/apierr"
	"github.com/saferwall/first-go/internal/facade"
)

// server adapts facade.Facade's Go methods to the form-encoded-request,
// JSON-envelope wire format spec §6 describes. It is intentionally thin:
// every validation and business decision lives in the facade, this file
// only transcodes.
type server struct {
	f   *facade.Facade
	log zerolog.Logger
	mux *http.ServeMux
}

func newServer(f *facade.Facade, log zerolog.Logger) *server {
	s := &server{f: f, log: log.With().Str("component", "http").Logger(), mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /{apikey}/test_connection", s.handleTestConnection)
	s.mux.HandleFunc("GET /{apikey}/architectures", s.handleArchitectures)
	s.mux.HandleFunc("POST /{apikey}/checkin", s.handleCheckin)
	s.mux.HandleFunc("POST /{apikey}/metadata_add", s.handleMetadataAdd)
	s.mux.HandleFunc("POST /{apikey}/metadata_scan", s.handleMetadataScan)
	s.mux.HandleFunc("GET /{apikey}/metadata_get", s.handleMetadataGet)
	s.mux.HandleFunc("POST /{apikey}/metadata_delete", s.handleMetadataDelete)
	s.mux.HandleFunc("GET /{apikey}/metadata_history", s.handleMetadataHistory)
	s.mux.HandleFunc("GET /{apikey}/metadata_created", s.handleMetadataCreated)
	s.mux.HandleFunc("POST /{apikey}/metadata_applied", s.handleMetadataApplied)
	s.mux.HandleFunc("POST /{apikey}/metadata_unapplied", s.handleMetadataUnapplied)
	return s
}

func (s *server) run(ctx context.Context, address string) error {
	httpSrv := &http.Server{Addr: address, Handler: s.mux}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// writeOK writes the success envelope `{"failed": false, ...fields}`.
func writeOK(w http.ResponseWriter, fields map[string]any) {
	envelope := map[string]any{"failed": false}
	for k, v := range fields {
		envelope[k] = v
	}
	writeJSON(w, http.StatusOK, envelope)
}

// writeErr writes the failure envelope spec §6/§7 describe: HTTP 200 for
// every application-level error except Unauthorized, which is a bodiless
// HTTP 401.
func writeErr(w http.ResponseWriter, aerr *apierr.APIError) {
	if aerr.Kind == apierr.KindUnauthorized {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failed": true, "msg": aerr.Message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiKey(r *http.Request) string { return r.PathValue("apikey") }

func parseCRC32(s string) uint32 {
	n, _ := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	return uint32(n)
}

func (s *server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	if aerr := s.f.TestConnection(r.Context(), apiKey(r)); aerr != nil {
		writeErr(w, aerr)
		return
	}
	writeOK(w, nil)
}

func (s *server) handleArchitectures(w http.ResponseWriter, r *http.Request) {
	archs, aerr := s.f.Architectures(r.Context(), apiKey(r))
	if aerr != nil {
		writeErr(w, aerr)
		return
	}
	writeOK(w, map[string]any{"architectures": archs})
}

func (s *server) handleCheckin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeErr(w, apierr.InputInvalid("malformed request body"))
		return
	}
	req := facade.CheckinRequest{
		MD5:    r.FormValue("md5"),
		CRC32:  parseCRC32(r.FormValue("crc32")),
		SHA1:   r.FormValue("sha1"),
		SHA256: r.FormValue("sha256"),
	}
	if aerr := s.f.Checkin(r.Context(), apiKey(r), req); aerr != nil {
		writeErr(w, aerr)
		return
	}
	writeOK(w, nil)
}

// wireFunctionSubmission is the JSON shape of one metadata_add functions[client_id] entry.
type wireFunctionSubmission struct {
	Opcodes      string   `json:"opcodes"`
	Architecture string   `json:"architecture"`
	Name         string   `json:"name"`
	Prototype    string   `json:"prototype"`
	Comment      string   `json:"comment"`
	APIs         []string `json:"apis"`
}

func (s *server) handleMetadataAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeErr(w, apierr.InputInvalid("malformed request body"))
		return
	}
	var wire map[string]wireFunctionSubmission
	if err := json.Unmarshal([]byte(r.FormValue("functions")), &wire); err != nil {
		writeErr(w, apierr.InputInvalid("functions must be a JSON object"))
		return
	}

	req := facade.MetadataAddRequest{
		MD5:       r.FormValue("md5"),
		CRC32:     parseCRC32(r.FormValue("crc32")),
		Functions: make(map[string]facade.FunctionSubmission, len(wire)),
	}
	for clientID, sub := range wire {
		req.Functions[clientID] = facade.FunctionSubmission{
			Opcodes: sub.Opcodes, Architecture: sub.Architecture,
			Name: sub.Name, Prototype: sub.Prototype, Comment: sub.Comment, APIs: sub.APIs,
		}
	}

	resp, aerr := s.f.MetadataAdd(r.Context(), apiKey(r), req)
	if aerr != nil {
		writeErr(w, aerr)
		return
	}
	writeOK(w, map[string]any{"results": resp.Results})
}

type wireScanSubmission struct {
	Opcodes      string   `json:"opcodes"`
	Architecture string   `json:"architecture"`
	APIs         []string `json:"apis"`
}

type wireAnnotation struct {
	ID         string   `json:"id"`
	Creator    string   `json:"creator"`
	Name       string   `json:"name"`
	Prototype  string   `json:"prototype"`
	Comment    string   `json:"comment"`
	Rank       int      `json:"rank"`
	Similarity float64  `json:"similarity"`
	Engines    []string `json:"engines"`
}

func toWireAnnotation(a facade.AnnotationDTO) wireAnnotation {
	return wireAnnotation{
		ID: a.ID, Creator: a.Creator, Name: a.Name, Prototype: a.Prototype,
		Comment: a.Comment, Rank: a.Rank, Similarity: a.Similarity, Engines: a.Engines,
	}
}

func (s *server) handleMetadataScan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeErr(w, apierr.InputInvalid("malformed request body"))
		return
	}
	var wire map[string]wireScanSubmission
	if err := json.Unmarshal([]byte(r.FormValue("functions")), &wire); err != nil {
		writeErr(w, apierr.InputInvalid("functions must be a JSON object"))
		return
	}

	req := facade.MetadataScanRequest{Functions: make(map[string]facade.ScanSubmission, len(wire))}
	for clientID, sub := range wire {
		req.Functions[clientID] = facade.ScanSubmission{Opcodes: sub.Opcodes, Architecture: sub.Architecture, APIs: sub.APIs}
	}

	resp, aerr := s.f.MetadataScan(r.Context(), apiKey(r), req)
	if aerr != nil {
		writeErr(w, aerr)
		return
	}

	matches := make(map[string][]wireAnnotation, len(resp.Matches))
	for clientID, dtos := range resp.Matches {
		wireDTOs := make([]wireAnnotation, len(dtos))
		for i, a := range dtos {
			wireDTOs[i] = toWireAnnotation(a)
		}
		matches[clientID] = wireDTOs
	}
	writeOK(w, map[string]any{"results": map[string]any{"engines": resp.Engines, "matches": matches}})
}

func splitIDs(raw string) []string {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err == nil {
		return ids
	}
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *server) handleMetadataGet(w http.ResponseWriter, r *http.Request) {
	ids := splitIDs(r.URL.Query().Get("ids"))
	got, aerr := s.f.MetadataGet(r.Context(), apiKey(r), ids)
	if aerr != nil {
		writeErr(w, aerr)
		return
	}
	out := make(map[string]wireAnnotation, len(got))
	for id, dto := range got {
		out[id] = toWireAnnotation(dto)
	}
	writeOK(w, map[string]any{"metadata": out})
}

func (s *server) handleMetadataDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeErr(w, apierr.InputInvalid("malformed request body"))
		return
	}
	deleted, aerr := s.f.MetadataDelete(r.Context(), apiKey(r), r.FormValue("id"))
	if aerr != nil {
		writeErr(w, aerr)
		return
	}
	writeOK(w, map[string]any{"deleted": deleted})
}

type wireHistoryEntry struct {
	Name      string `json:"name"`
	Prototype string `json:"prototype"`
	Comment   string `json:"comment"`
	Committed int64  `json:"committed"`
}

type wireHistory struct {
	Creator string             `json:"creator"`
	Entries []wireHistoryEntry `json:"entries"`
}

func (s *server) handleMetadataHistory(w http.ResponseWriter, r *http.Request) {
	ids := splitIDs(r.URL.Query().Get("ids"))
	got, aerr := s.f.MetadataHistory(r.Context(), apiKey(r), ids)
	if aerr != nil {
		writeErr(w, aerr)
		return
	}
	out := make(map[string]wireHistory, len(got))
	for id, h := range got {
		entries := make([]wireHistoryEntry, len(h.Entries))
		for i, e := range h.Entries {
			entries[i] = wireHistoryEntry{Name: e.Name, Prototype: e.Prototype, Comment: e.Comment, Committed: e.Committed}
		}
		out[id] = wireHistory{Creator: h.Creator, Entries: entries}
	}
	writeOK(w, map[string]any{"history": out})
}

func (s *server) handleMetadataCreated(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	resp, aerr := s.f.MetadataCreated(r.Context(), apiKey(r), page)
	if aerr != nil {
		writeErr(w, aerr)
		return
	}
	results := make([]wireAnnotation, len(resp.Results))
	for i, a := range resp.Results {
		results[i] = toWireAnnotation(a)
	}
	writeOK(w, map[string]any{"results": results, "total_pages": resp.TotalPages})
}

func (s *server) parseApplyRequest(r *http.Request) (facade.ApplyRequest, error) {
	if err := r.ParseForm(); err != nil {
		return facade.ApplyRequest{}, err
	}
	return facade.ApplyRequest{MD5: r.FormValue("md5"), CRC32: parseCRC32(r.FormValue("crc32")), ID: r.FormValue("id")}, nil
}

func (s *server) handleMetadataApplied(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseApplyRequest(r)
	if err != nil {
		writeErr(w, apierr.InputInvalid("malformed request body"))
		return
	}
	resp, aerr := s.f.MetadataApplied(r.Context(), apiKey(r), req)
	if aerr != nil {
		writeErr(w, aerr)
		return
	}
	writeOK(w, map[string]any{"applied": resp.Applied})
}

func (s *server) handleMetadataUnapplied(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseApplyRequest(r)
	if err != nil {
		writeErr(w, apierr.InputInvalid("malformed request body"))
		return
	}
	resp, aerr := s.f.MetadataUnapplied(r.Context(), apiKey(r), req)
	if aerr != nil {
		writeErr(w, aerr)
		return
	}
	writeOK(w, map[string]any{"applied": resp.Applied})
}
