// Package zatca: pure domain logic of the Saudi e-invoicing regulation:
// TLV QR payload, hash chain state and the simplified invoice builder.
// No I/O here; everything is deterministic and testable without a live store.
package zatca

import (
	"encoding/base64"
	"fmt"
	"sort"
)

// Payload is the QR content: numeric tag (1-9) to UTF-8 string value.
// Encoding is byte-exact TLV with tags emitted in ascending order.
type Payload map[int]string

// EncodeTLV packs the payload: for each tag in ascending order, one byte for
// the tag, one byte for the UTF-8 byte length of the value, then the value
// bytes. Values are short by regulation, so a single length byte suffices.
func (p Payload) EncodeTLV() ([]byte, error) {
	tags := make([]int, 0, len(p))
	for tag := range p {
		if tag < 1 || tag > 9 {
			return nil, fmt.Errorf("zatca: QR tag %d out of range", tag)
		}
		tags = append(tags, tag)
	}
	sort.Ints(tags)

	var out []byte
	for _, tag := range tags {
		value := []byte(p[tag])
		if len(value) > 255 {
			return nil, fmt.Errorf("zatca: QR tag %d value exceeds 255 bytes", tag)
		}
		out = append(out, byte(tag), byte(len(value)))
		out = append(out, value...)
	}
	return out, nil
}

// Encode returns the base64 form of the TLV bytes, the string printed on the
// receipt QR and stored on the order.
func (p Payload) Encode() (string, error) {
	raw, err := p.EncodeTLV()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodePayload parses a base64 TLV string back into the tag map.
// Round-trips exactly with Encode.
func DecodePayload(encoded string) (Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("zatca: QR payload is not valid base64: %w", err)
	}
	p := Payload{}
	for i := 0; i < len(raw); {
		if i+2 > len(raw) {
			return nil, fmt.Errorf("zatca: truncated TLV header at offset %d", i)
		}
		tag := int(raw[i])
		length := int(raw[i+1])
		i += 2
		if i+length > len(raw) {
			return nil, fmt.Errorf("zatca: TLV value for tag %d overruns payload", tag)
		}
		if _, dup := p[tag]; dup {
			return nil, fmt.Errorf("zatca: duplicate TLV tag %d", tag)
		}
		p[tag] = string(raw[i : i+length])
		i += length
	}
	return p, nil
}
