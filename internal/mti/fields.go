package mti

import "fmt"

// Field numbers used by the gateway.
const (
	FieldProcessingCode = 3
	FieldAmount         = 4
	FieldTransmission   = 7
	FieldTrace          = 11
	FieldApprovalCode   = 38
	FieldResponseCode   = 39
	FieldTerminalID     = 41
	FieldMerchantID     = 42
	FieldAdditionalData = 48
	FieldCurrency       = 49
)

type charset int

const (
	charsetNumeric  charset = iota // digits only
	charsetAlpha                   // letters only
	charsetAlphaNum                // letters and digits
	charsetANS                     // letters, digits, space and punctuation
)

// fieldSpec fixes the wire layout of one field. lenDigits == 0 means a
// fixed-width field of exactly length bytes; otherwise the field is
// variable-width with a lenDigits-wide decimal length prefix and length is
// the maximum.
type fieldSpec struct {
	name      string
	charset   charset
	length    int
	lenDigits int
}

// fieldSpecs is the static field table. Fields present on the wire but
// absent from this table cannot be framed and are a decode error; fields in
// the table but outside a message's mandatory set (48, notably) are carried
// through without interpretation.
var fieldSpecs = map[int]fieldSpec{
	FieldProcessingCode: {"processing code", charsetNumeric, 6, 0},
	FieldAmount:         {"amount", charsetNumeric, 12, 0},
	FieldTransmission:   {"transmission date/time", charsetNumeric, 10, 0},
	FieldTrace:          {"system trace audit number", charsetNumeric, 6, 0},
	FieldApprovalCode:   {"approval code", charsetANS, 6, 0},
	FieldResponseCode:   {"response code", charsetAlphaNum, 2, 0},
	FieldTerminalID:     {"terminal id", charsetANS, 8, 0},
	FieldMerchantID:     {"merchant id", charsetANS, 15, 0},
	FieldAdditionalData: {"additional data", charsetANS, 999, 3},
	FieldCurrency:       {"currency code", charsetAlpha, 3, 0},
}

// mandatoryFields fixes, per MTI code, the fields that must be present for
// encoding and that callers may rely on after a successful decode.
var mandatoryFields = map[string][]int{
	AuthorizationRequest:  {FieldProcessingCode, FieldAmount, FieldTransmission, FieldTrace, FieldTerminalID, FieldMerchantID, FieldCurrency},
	AuthorizationResponse: {FieldProcessingCode, FieldAmount, FieldTransmission, FieldTrace, FieldResponseCode, FieldTerminalID, FieldMerchantID},
	FinancialRequest:      {FieldProcessingCode, FieldAmount, FieldTransmission, FieldTrace, FieldTerminalID, FieldMerchantID, FieldCurrency},
	FinancialResponse:     {FieldProcessingCode, FieldAmount, FieldTransmission, FieldTrace, FieldResponseCode, FieldTerminalID, FieldMerchantID},
	Advice:                {FieldProcessingCode, FieldAmount, FieldTransmission, FieldTrace, FieldTerminalID, FieldMerchantID, FieldCurrency},
	AdviceResponse:        {FieldProcessingCode, FieldAmount, FieldTransmission, FieldTrace, FieldResponseCode, FieldTerminalID, FieldMerchantID},
}

func (s fieldSpec) isVariable() bool { return s.lenDigits > 0 }

func (s fieldSpec) checkCharset(field int, value string) error {
	for _, r := range value {
		var ok bool
		switch s.charset {
		case charsetNumeric:
			ok = r >= '0' && r <= '9'
		case charsetAlpha:
			ok = (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
		case charsetAlphaNum:
			ok = (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
		case charsetANS:
			ok = r >= 0x20 && r <= 0x7e
		}
		if !ok {
			return &EncodeError{Field: field, Reason: fmt.Sprintf("character %q not allowed in %s", r, s.name)}
		}
	}
	return nil
}

// canonicalize pads a value to its fixed wire width (numerics left with
// zeros, text right with spaces) and rejects overlong or malformed values.
func (s fieldSpec) canonicalize(field int, value string) (string, error) {
	if err := s.checkCharset(field, value); err != nil {
		return "", err
	}
	if s.isVariable() {
		if len(value) > s.length {
			return "", &EncodeError{Field: field, Reason: fmt.Sprintf("%s exceeds max length %d", s.name, s.length)}
		}
		return value, nil
	}
	if len(value) > s.length {
		return "", &EncodeError{Field: field, Reason: fmt.Sprintf("%s exceeds fixed length %d", s.name, s.length)}
	}
	for len(value) < s.length {
		if s.charset == charsetNumeric {
			value = "0" + value
		} else {
			value = value + " "
		}
	}
	return value, nil
}

// validateWire checks a value already in wire form, shared by Encode and
// Decode.
func (s fieldSpec) validateWire(field int, value string) error {
	if s.isVariable() {
		if len(value) > s.length {
			return &EncodeError{Field: field, Reason: fmt.Sprintf("%s exceeds max length %d", s.name, s.length)}
		}
	} else if len(value) != s.length {
		return &EncodeError{Field: field, Reason: fmt.Sprintf("%s must be exactly %d bytes, got %d", s.name, s.length, len(value))}
	}
	return s.checkCharset(field, value)
}
