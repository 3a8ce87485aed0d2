package zatca_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/zatca"
)

// ──────────────────────────────────────────────────────────────────────────────
// TestEncodeTLV_ExactVector pins the byte-exact TLV encoding for a known
// 5-field payload (no certificate material).
//
// This test is the canary of the QR integration: any accidental change to the
// tag ordering, the length byte or the base64 step breaks it immediately.
//
// Vector built by hand:
//
//	tag 1 len 4  "ACME"
//	tag 2 len 10 "3001234567"
//	tag 3 len 20 "2025-01-01T10:00:00Z"
//	tag 4 len 5  "28.00"
//	tag 5 len 4  "3.00"
// ──────────────────────────────────────────────────────────────────────────────

const testQRVectorB64 = "AQRBQ01FAgozMDAxMjM0NTY3AxQyMDI1LTAxLTAxVDEwOjAwOjAwWgQFMjguMDAFBDMuMDA="

func buildTestPayload() zatca.Payload {
	return zatca.Payload{
		1: "ACME",
		2: "3001234567",
		3: "2025-01-01T10:00:00Z",
		4: "28.00",
		5: "3.00",
	}
}

func TestEncodeTLV_ExactVector(t *testing.T) {
	encoded, err := buildTestPayload().Encode()
	require.NoError(t, err)
	assert.Equal(t, testQRVectorB64, encoded,
		"TLV encoding must match the reference byte sequence exactly")
}

func TestEncodeTLV_TagsAscending(t *testing.T) {
	// Same payload, map iteration order must not leak into the output.
	raw, err := buildTestPayload().EncodeTLV()
	require.NoError(t, err)

	var seen []int
	for i := 0; i < len(raw); {
		tag := int(raw[i])
		length := int(raw[i+1])
		seen = append(seen, tag)
		i += 2 + length
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen, "tags must be emitted in ascending order")
}

func TestDecodePayload_RoundTrip(t *testing.T) {
	original := buildTestPayload()
	encoded, err := original.Encode()
	require.NoError(t, err)

	decoded, err := zatca.DecodePayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded, "decode must recover the exact tag map")
}

func TestDecodePayload_RoundTripWithArabicValue(t *testing.T) {
	// UTF-8 length counting: Arabic seller names are multi-byte.
	p := zatca.Payload{1: "متجر التمور", 2: "310122393500003", 4: "115.00"}
	encoded, err := p.Encode()
	require.NoError(t, err)
	decoded, err := zatca.DecodePayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestEncodeTLV_ErrorOnOversizedValue(t *testing.T) {
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'x'
	}
	p := zatca.Payload{1: string(long)}
	_, err := p.Encode()
	assert.Error(t, err, "single length byte cannot describe >255 value bytes")
}

// The payload model carries tags 1 through 9 only; anything outside that
// range is a programming error, not a value to silently encode.
func TestEncodeTLV_ErrorOnTagOutOfRange(t *testing.T) {
	_, err := zatca.Payload{0: "x"}.Encode()
	assert.Error(t, err)
	_, err = zatca.Payload{10: "x"}.Encode()
	assert.Error(t, err)
	_, err = zatca.Payload{256: "x"}.Encode()
	assert.Error(t, err)
}

func TestDecodePayload_ErrorOnTruncatedValue(t *testing.T) {
	// Header promises 10 bytes, only 3 present.
	raw := []byte{1, 10, 'a', 'b', 'c'}
	_, err := zatca.DecodePayload(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}

func TestDecodePayload_ErrorOnGarbageBase64(t *testing.T) {
	_, err := zatca.DecodePayload("!!not-base64!!")
	assert.Error(t, err)
}
