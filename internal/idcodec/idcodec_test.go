package idcodec

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		flag       uint8
		engineID   uint32
		metadataID uint64
	}{
		{"zero", 0, 0, 0},
		{"user metadata", 0, 0, 123456789},
		{"engine flag only", EngineFlag, 0, 1},
		{"max values", 0xFF, 0xFFFFFFFF, 0xFFFFFFFFFFFFFFFF},
		{"typical engine result", EngineFlag, 42, 9001},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded := Encode(tc.flag, tc.engineID, tc.metadataID)
			if len(encoded) != Length {
				t.Fatalf("encoded length = %d, want %d", len(encoded), Length)
			}
			flag, engineID, metadataID, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode returned error: %v", err)
			}
			if flag != tc.flag || engineID != tc.engineID || metadataID != tc.metadataID {
				t.Fatalf("round trip mismatch: got (%d,%d,%d), want (%d,%d,%d)",
					flag, engineID, metadataID, tc.flag, tc.engineID, tc.metadataID)
			}
		})
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	tests := []string{
		"",
		"short",
		"zz" + "00000000" + "0000000000000000",
		"0123456789abcdef0123456789a", // 27 chars, too long
	}
	for _, in := range tests {
		if _, _, _, err := Decode(in); err == nil {
			t.Fatalf("Decode(%q) expected error, got nil", in)
		}
	}
}

func TestIsUserIsEngine(t *testing.T) {
	userID := EncodeUser(7)
	if !IsUser(userID) || IsEngine(userID) {
		t.Fatalf("expected %q to be a user id", userID)
	}
	engineID := EncodeEngine(3, 7)
	if IsUser(engineID) || !IsEngine(engineID) {
		t.Fatalf("expected %q to be an engine id", engineID)
	}
	if IsUser("not-hex") || IsEngine("not-hex") {
		t.Fatalf("malformed ids should be neither user nor engine")
	}
}

func TestSplit(t *testing.T) {
	ids := []string{
		EncodeUser(1),
		EncodeUser(2),
		EncodeEngine(5, 10),
		"garbage",
	}
	userIDs, engineRefs := Split(ids)
	if len(userIDs) != 2 || userIDs[0] != 1 || userIDs[1] != 2 {
		t.Fatalf("unexpected userIDs: %v", userIDs)
	}
	if len(engineRefs) != 1 || engineRefs[0] != (EngineRef{EngineID: 5, MetadataID: 10}) {
		t.Fatalf("unexpected engineRefs: %v", engineRefs)
	}
}
