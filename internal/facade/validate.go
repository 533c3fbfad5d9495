package facade

import (
	"encoding/base64"
	"regexp"

	"github.com/saferwall/first-go/internal/apierr"
)

// Batch and length ceilings from spec §3/§4.10.
const (
	maxBatch        = 20
	maxNameLen      = 256
	maxPrototypeLen = 256
	maxCommentLen   = 512
	maxAPILen       = 128
)

var (
	md5Pattern    = regexp.MustCompile(`^[0-9a-f]{32}$`)
	sha1Pattern   = regexp.MustCompile(`^[0-9a-f]{40}$`)
	sha256Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
	apiPattern    = regexp.MustCompile(`^[A-Za-z0-9_:@?$.]+$`)
)

func validateMD5(md5 string) *apierr.APIError {
	if !md5Pattern.MatchString(md5) {
		return apierr.InputInvalid("md5 must be 32 lowercase hex characters")
	}
	return nil
}

// validateSHA1 and validateSHA256 are no-ops on an empty string: both
// hashes are optional on checkin per spec §4.2.
func validateSHA1(sha1 string) *apierr.APIError {
	if sha1 == "" {
		return nil
	}
	if !sha1Pattern.MatchString(sha1) {
		return apierr.InputInvalid("sha1 must be 40 lowercase hex characters")
	}
	return nil
}

func validateSHA256(sha256 string) *apierr.APIError {
	if sha256 == "" {
		return nil
	}
	if !sha256Pattern.MatchString(sha256) {
		return apierr.InputInvalid("sha256 must be 64 lowercase hex characters")
	}
	return nil
}

func validateBatchSize(n int) *apierr.APIError {
	if n > maxBatch {
		return apierr.InputInvalid("batch exceeds the maximum of 20 entries")
	}
	return nil
}

func validateArchitecture(architecture string) *apierr.APIError {
	if architecture == "" {
		return apierr.InputInvalid("architecture is required")
	}
	return nil
}

func validateAPIs(apis []string) *apierr.APIError {
	for _, a := range apis {
		if len(a) > maxAPILen || !apiPattern.MatchString(a) {
			return apierr.InputInvalid("api string \"" + a + "\" must match ^[A-Za-z0-9_:@?$.]+$ and be at most 128 characters")
		}
	}
	return nil
}

func validateAnnotationStrings(name, prototype, comment string) *apierr.APIError {
	if len(name) > maxNameLen {
		return apierr.InputInvalid("name exceeds 256 characters")
	}
	if len(prototype) > maxPrototypeLen {
		return apierr.InputInvalid("prototype exceeds 256 characters")
	}
	if len(comment) > maxCommentLen {
		return apierr.InputInvalid("comment exceeds 512 characters")
	}
	return nil
}

// decodeOpcodes base64-decodes a submitted opcode stream. The error message
// is load-bearing: spec §4.10 fixes its exact wording.
func decodeOpcodes(encoded string) ([]byte, *apierr.APIError) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apierr.InputInvalid("Unable to decode opcodes")
	}
	return raw, nil
}
