package facade

import (
	"context"
	"encoding/base64"
	"testing"
)

func b64(raw []byte) string { return base64.StdEncoding.EncodeToString(raw) }

func TestMetadataAddCreateGetHistory(t *testing.T) {
	f, _, user := newTestFacade(t)
	ctx := context.Background()

	opcodes := []byte{0x55, 0xC3} // push ebp; ret
	addReq := MetadataAddRequest{
		MD5:   "d41d8cd98f00b204e9800998ecf8427e",
		CRC32: 0x11223344,
		Functions: map[string]FunctionSubmission{
			"c0": {
				Opcodes: b64(opcodes), Architecture: "intel32",
				Name: "sub_401000", Prototype: "void sub_401000()", Comment: "entry stub",
				APIs: []string{"kernel32.CreateFileA"},
			},
		},
	}

	addResp, aerr := f.MetadataAdd(ctx, user.APIKey, addReq)
	if aerr != nil {
		t.Fatalf("MetadataAdd: %v", aerr)
	}
	id, ok := addResp.Results["c0"]
	if !ok || id == "" {
		t.Fatalf("MetadataAdd response missing id for c0: %+v", addResp)
	}

	got, aerr := f.MetadataGet(ctx, user.APIKey, []string{id})
	if aerr != nil {
		t.Fatalf("MetadataGet: %v", aerr)
	}
	dto, ok := got[id]
	if !ok {
		t.Fatalf("MetadataGet missing %q: %+v", id, got)
	}
	if dto.Name != "sub_401000" || dto.Creator != "h4x0r#1337" {
		t.Fatalf("MetadataGet = %+v, want name sub_401000 creator h4x0r#1337", dto)
	}

	hist, aerr := f.MetadataHistory(ctx, user.APIKey, []string{id})
	if aerr != nil {
		t.Fatalf("MetadataHistory: %v", aerr)
	}
	h, ok := hist[id]
	if !ok || len(h.Entries) != 1 {
		t.Fatalf("MetadataHistory = %+v, want exactly one entry", hist)
	}
	if h.Entries[0].Name != "sub_401000" {
		t.Fatalf("history entry name = %q, want sub_401000", h.Entries[0].Name)
	}
}

func TestMetadataAddRevisesOnChange(t *testing.T) {
	f, _, user := newTestFacade(t)
	ctx := context.Background()

	opcodes := []byte{0x90, 0xC3}
	base := MetadataAddRequest{
		MD5: "d41d8cd98f00b204e9800998ecf8427e",
		Functions: map[string]FunctionSubmission{
			"c0": {Opcodes: b64(opcodes), Architecture: "intel32", Name: "foo"},
		},
	}
	resp1, aerr := f.MetadataAdd(ctx, user.APIKey, base)
	if aerr != nil {
		t.Fatalf("first MetadataAdd: %v", aerr)
	}
	id1 := resp1.Results["c0"]

	renamed := base
	renamed.Functions = map[string]FunctionSubmission{
		"c0": {Opcodes: b64(opcodes), Architecture: "intel32", Name: "bar"},
	}
	resp2, aerr := f.MetadataAdd(ctx, user.APIKey, renamed)
	if aerr != nil {
		t.Fatalf("second MetadataAdd: %v", aerr)
	}
	id2 := resp2.Results["c0"]

	if id1 != id2 {
		t.Fatalf("re-annotating the same function by the same user created a new container: %q != %q", id1, id2)
	}

	hist, aerr := f.MetadataHistory(ctx, user.APIKey, []string{id1})
	if aerr != nil {
		t.Fatalf("MetadataHistory: %v", aerr)
	}
	if len(hist[id1].Entries) != 2 {
		t.Fatalf("Entries = %+v, want 2 revisions", hist[id1].Entries)
	}
}

func TestMetadataDeleteRequiresOwnership(t *testing.T) {
	f, st, owner := newTestFacade(t)
	ctx := context.Background()

	other, err := st.CreateUser(ctx, "bob", 1)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	resp, aerr := f.MetadataAdd(ctx, owner.APIKey, MetadataAddRequest{
		MD5: "d41d8cd98f00b204e9800998ecf8427e",
		Functions: map[string]FunctionSubmission{
			"c0": {Opcodes: b64([]byte{0xC3}), Architecture: "intel32", Name: "foo"},
		},
	})
	if aerr != nil {
		t.Fatalf("MetadataAdd: %v", aerr)
	}
	id := resp.Results["c0"]

	deleted, aerr := f.MetadataDelete(ctx, other.APIKey, id)
	if aerr != nil {
		t.Fatalf("MetadataDelete(non-owner): %v", aerr)
	}
	if deleted {
		t.Fatal("a non-owner must not be able to delete another user's annotation")
	}

	deleted, aerr = f.MetadataDelete(ctx, owner.APIKey, id)
	if aerr != nil {
		t.Fatalf("MetadataDelete(owner): %v", aerr)
	}
	if !deleted {
		t.Fatal("the owner must be able to delete their own annotation")
	}
}

func TestMetadataCreatedIsScopedToCaller(t *testing.T) {
	f, st, owner := newTestFacade(t)
	ctx := context.Background()

	other, err := st.CreateUser(ctx, "carol", 1)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if _, aerr := f.MetadataAdd(ctx, owner.APIKey, MetadataAddRequest{
		MD5: "d41d8cd98f00b204e9800998ecf8427e",
		Functions: map[string]FunctionSubmission{
			"c0": {Opcodes: b64([]byte{0xC3}), Architecture: "intel32", Name: "ownfn"},
		},
	}); aerr != nil {
		t.Fatalf("owner MetadataAdd: %v", aerr)
	}
	if _, aerr := f.MetadataAdd(ctx, other.APIKey, MetadataAddRequest{
		MD5: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Functions: map[string]FunctionSubmission{
			"c0": {Opcodes: b64([]byte{0x90}), Architecture: "intel32", Name: "otherfn"},
		},
	}); aerr != nil {
		t.Fatalf("other MetadataAdd: %v", aerr)
	}

	created, aerr := f.MetadataCreated(ctx, owner.APIKey, 1)
	if aerr != nil {
		t.Fatalf("MetadataCreated: %v", aerr)
	}
	if len(created.Results) != 1 || created.Results[0].Name != "ownfn" {
		t.Fatalf("MetadataCreated = %+v, want exactly the caller's own annotation", created.Results)
	}
	if created.TotalPages != 1 {
		t.Fatalf("TotalPages = %d, want 1", created.TotalPages)
	}
}

func TestMetadataAppliedToleratesUnknownSample(t *testing.T) {
	f, _, user := newTestFacade(t)
	ctx := context.Background()

	resp, aerr := f.MetadataApplied(ctx, user.APIKey, ApplyRequest{
		MD5: "ffffffffffffffffffffffffffffffff", ID: "aaaaaaaaaaaaaaaaaaaaaaaaaa",
	})
	if aerr != nil {
		t.Fatalf("MetadataApplied on a nonexistent sample: %v", aerr)
	}
	if !resp.Applied {
		t.Fatal("MetadataApplied on a nonexistent sample should still report success")
	}
}

func TestMetadataApplyUnapplyRoundTrip(t *testing.T) {
	f, _, user := newTestFacade(t)
	ctx := context.Background()

	addResp, aerr := f.MetadataAdd(ctx, user.APIKey, MetadataAddRequest{
		MD5: "d41d8cd98f00b204e9800998ecf8427e",
		Functions: map[string]FunctionSubmission{
			"c0": {Opcodes: b64([]byte{0xC3}), Architecture: "intel32", Name: "foo"},
		},
	})
	if aerr != nil {
		t.Fatalf("MetadataAdd: %v", aerr)
	}
	id := addResp.Results["c0"]

	applyReq := ApplyRequest{MD5: "d41d8cd98f00b204e9800998ecf8427e", ID: id}
	if resp, aerr := f.MetadataApplied(ctx, user.APIKey, applyReq); aerr != nil || !resp.Applied {
		t.Fatalf("MetadataApplied: resp=%+v err=%v", resp, aerr)
	}
	if resp, aerr := f.MetadataUnapplied(ctx, user.APIKey, applyReq); aerr != nil || !resp.Applied {
		t.Fatalf("MetadataUnapplied: resp=%+v err=%v", resp, aerr)
	}
	// unapplying something that was never applied is still a success.
	if resp, aerr := f.MetadataUnapplied(ctx, user.APIKey, applyReq); aerr != nil || !resp.Applied {
		t.Fatalf("idempotent MetadataUnapplied: resp=%+v err=%v", resp, aerr)
	}
}

func TestMetadataAddRejectsOversizedBatch(t *testing.T) {
	f, _, user := newTestFacade(t)
	ctx := context.Background()

	functions := make(map[string]FunctionSubmission, maxBatch+1)
	for i := 0; i <= maxBatch; i++ {
		functions[string(rune('a'+i))] = FunctionSubmission{Opcodes: b64([]byte{0xC3}), Architecture: "intel32"}
	}

	_, aerr := f.MetadataAdd(ctx, user.APIKey, MetadataAddRequest{MD5: "d41d8cd98f00b204e9800998ecf8427e", Functions: functions})
	if aerr == nil {
		t.Fatal("MetadataAdd with more than maxBatch functions: want an error, got nil")
	}
}
