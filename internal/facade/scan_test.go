package facade

import (
	"context"
	"testing"
)

func TestMetadataScanFindsExactMatch(t *testing.T) {
	f, _, user := newTestFacade(t)
	ctx := context.Background()

	opcodes := []byte{0x55, 0x90, 0xC3} // push ebp; nop; ret
	if _, aerr := f.MetadataAdd(ctx, user.APIKey, MetadataAddRequest{
		MD5: "d41d8cd98f00b204e9800998ecf8427e",
		Functions: map[string]FunctionSubmission{
			"c0": {Opcodes: b64(opcodes), Architecture: "intel32", Name: "known_fn", APIs: []string{"kernel32.ExitProcess"}},
		},
	}); aerr != nil {
		t.Fatalf("MetadataAdd: %v", aerr)
	}

	scanResp, aerr := f.MetadataScan(ctx, user.APIKey, MetadataScanRequest{
		Functions: map[string]ScanSubmission{
			"s0": {Opcodes: b64(opcodes), Architecture: "intel32", APIs: []string{"kernel32.ExitProcess"}},
		},
	})
	if aerr != nil {
		t.Fatalf("MetadataScan: %v", aerr)
	}

	if _, ok := scanResp.Engines["ExactMatch"]; !ok {
		t.Fatalf("Engines = %v, want ExactMatch to have contributed", scanResp.Engines)
	}
	matches, ok := scanResp.Matches["s0"]
	if !ok || len(matches) == 0 {
		t.Fatalf("Matches[s0] = %v, want at least one hit", matches)
	}
	if matches[0].Name != "known_fn" {
		t.Fatalf("top match name = %q, want known_fn", matches[0].Name)
	}
	if matches[0].Similarity != 100 {
		t.Fatalf("identical-bytes-and-apis similarity = %v, want 100", matches[0].Similarity)
	}
}

func TestMetadataScanRejectsBadBase64(t *testing.T) {
	f, _, user := newTestFacade(t)
	ctx := context.Background()

	_, aerr := f.MetadataScan(ctx, user.APIKey, MetadataScanRequest{
		Functions: map[string]ScanSubmission{"s0": {Opcodes: "not-base64!!", Architecture: "intel32"}},
	})
	if aerr == nil {
		t.Fatal("MetadataScan with malformed base64: want an error, got nil")
	}
	if aerr.Message != "Unable to decode opcodes" {
		t.Fatalf("Message = %q, want the exact wire-compatible wording", aerr.Message)
	}
}

func TestMetadataScanReturnsNothingForUnseenFunction(t *testing.T) {
	f, _, user := newTestFacade(t)
	ctx := context.Background()

	scanResp, aerr := f.MetadataScan(ctx, user.APIKey, MetadataScanRequest{
		Functions: map[string]ScanSubmission{
			"s0": {Opcodes: b64([]byte{0x12, 0x34, 0x56, 0x78}), Architecture: "intel32"},
		},
	})
	if aerr != nil {
		t.Fatalf("MetadataScan: %v", aerr)
	}
	if len(scanResp.Matches["s0"]) != 0 {
		t.Fatalf("Matches[s0] = %v, want none for a never-seen function", scanResp.Matches["s0"])
	}
}
