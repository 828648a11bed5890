package mti

import (
	"fmt"
	"strconv"
	"strings"
)

// Wire layout: 4 ASCII digit MTI code, 16 uppercase hex digits of primary
// bitmap (fields 1..64, field n maps to bit 64-n), then fields in ascending
// field-number order, each fixed-width or preceded by a decimal length
// prefix per the static field table.
const (
	mtiLen    = 4
	bitmapLen = 16
	headerLen = mtiLen + bitmapLen
)

// EncodeError reports a message that cannot be rendered to the wire: a
// missing mandatory field or a field value violating its spec.
type EncodeError struct {
	Field  int
	Reason string
}

func (e *EncodeError) Error() string {
	if e.Field > 0 {
		return fmt.Sprintf("mti encode: field %d: %s", e.Field, e.Reason)
	}
	return "mti encode: " + e.Reason
}

// DecodeError reports a byte stream that cannot be parsed: truncation, an
// unsupported MTI code, or a bitmap/payload mismatch.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("mti decode: offset %d: %s", e.Offset, e.Reason)
}

// Encode renders m to its canonical wire representation. Encoding is
// deterministic: the same message always yields the same bytes.
func Encode(m *Message) ([]byte, error) {
	if !IsSupported(m.MTI) {
		return nil, &EncodeError{Reason: fmt.Sprintf("unsupported MTI code %q", m.MTI)}
	}
	for _, f := range mandatoryFields[m.MTI] {
		if _, ok := m.Fields[f]; !ok {
			return nil, &EncodeError{Field: f, Reason: fmt.Sprintf("mandatory field missing for MTI %s", m.MTI)}
		}
	}

	var bitmap uint64
	var body strings.Builder
	for _, f := range m.FieldNumbers() {
		spec, ok := fieldSpecs[f]
		if !ok {
			return nil, &EncodeError{Field: f, Reason: "field not in spec table"}
		}
		value := m.Fields[f]
		if err := spec.validateWire(f, value); err != nil {
			return nil, err
		}
		bitmap |= 1 << (64 - f)
		if spec.isVariable() {
			fmt.Fprintf(&body, "%0*d", spec.lenDigits, len(value))
		}
		body.WriteString(value)
	}

	out := make([]byte, 0, headerLen+body.Len())
	out = append(out, m.MTI...)
	out = append(out, fmt.Sprintf("%016X", bitmap)...)
	out = append(out, body.String()...)
	return out, nil
}

// Decode parses a wire byte stream into a Message. Fields in the spec table
// but outside the MTI's mandatory set are preserved without interpretation.
func Decode(data []byte) (*Message, error) {
	if len(data) < headerLen {
		return nil, &DecodeError{Offset: len(data), Reason: "stream shorter than MTI header"}
	}

	code := string(data[:mtiLen])
	if !IsSupported(code) {
		return nil, &DecodeError{Offset: 0, Reason: fmt.Sprintf("unsupported MTI code %q", code)}
	}

	bitmap, err := strconv.ParseUint(string(data[mtiLen:headerLen]), 16, 64)
	if err != nil {
		return nil, &DecodeError{Offset: mtiLen, Reason: "malformed bitmap: " + err.Error()}
	}

	msg := NewMessage(code)
	pos := headerLen
	for f := 1; f <= 64; f++ {
		if bitmap&(1<<(64-f)) == 0 {
			continue
		}
		if f == 1 {
			return nil, &DecodeError{Offset: mtiLen, Reason: "secondary bitmap not supported"}
		}
		spec, ok := fieldSpecs[f]
		if !ok {
			return nil, &DecodeError{Offset: pos, Reason: fmt.Sprintf("bitmap declares unknown field %d", f)}
		}

		length := spec.length
		if spec.isVariable() {
			if pos+spec.lenDigits > len(data) {
				return nil, &DecodeError{Offset: pos, Reason: fmt.Sprintf("truncated before length prefix of field %d", f)}
			}
			length, err = strconv.Atoi(string(data[pos : pos+spec.lenDigits]))
			if err != nil {
				return nil, &DecodeError{Offset: pos, Reason: fmt.Sprintf("malformed length prefix of field %d", f)}
			}
			if length > spec.length {
				return nil, &DecodeError{Offset: pos, Reason: fmt.Sprintf("field %d length %d exceeds max %d", f, length, spec.length)}
			}
			pos += spec.lenDigits
		}

		if pos+length > len(data) {
			return nil, &DecodeError{Offset: pos, Reason: fmt.Sprintf("bitmap declares field %d but payload is truncated", f)}
		}
		value := string(data[pos : pos+length])
		if err := spec.validateWire(f, value); err != nil {
			return nil, &DecodeError{Offset: pos, Reason: err.Error()}
		}
		msg.Fields[f] = value
		pos += length
	}

	if pos != len(data) {
		return nil, &DecodeError{Offset: pos, Reason: fmt.Sprintf("%d trailing bytes after last declared field", len(data)-pos)}
	}

	for _, f := range mandatoryFields[code] {
		if _, ok := msg.Fields[f]; !ok {
			return nil, &DecodeError{Offset: pos, Reason: fmt.Sprintf("mandatory field %d missing for MTI %s", f, code)}
		}
	}
	return msg, nil
}
