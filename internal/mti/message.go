package mti

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Supported message type indicators. Reversals and adjustments ride the
// 0220/0230 advice pair with a distinguishing processing code.
const (
	AuthorizationRequest  = "0100"
	AuthorizationResponse = "0110"
	FinancialRequest      = "0200"
	FinancialResponse     = "0210"
	Advice                = "0220"
	AdviceResponse        = "0230"
)

// Processing codes (field 3) used by the gateway.
const (
	ProcPurchase   = "000000"
	ProcReversal   = "020000"
	ProcAdjustment = "220000"
)

// ResponseApproved is the field 39 value signalling approval; anything else
// is a decline.
const ResponseApproved = "00"

var responseFor = map[string]string{
	AuthorizationRequest: AuthorizationResponse,
	FinancialRequest:     FinancialResponse,
	Advice:               AdviceResponse,
}

// IsSupported reports whether code is one of the six supported MTIs.
func IsSupported(code string) bool {
	_, ok := mandatoryFields[code]
	return ok
}

// IsResponse reports whether code is a response/advice-response MTI.
func IsResponse(code string) bool {
	return code == AuthorizationResponse || code == FinancialResponse || code == AdviceResponse
}

// ResponseMTI returns the paired response code for a request or advice MTI.
func ResponseMTI(requestCode string) (string, bool) {
	resp, ok := responseFor[requestCode]
	return resp, ok
}

// Message is the canonical in-memory form of an MTI message: a code plus a
// sparse field map. Field values are stored exactly as they appear on the
// wire (fixed-width fields include their padding), which is what makes
// Decode(Encode(m)) == m hold.
type Message struct {
	MTI    string
	Fields map[int]string
}

// NewMessage returns an empty message for the given MTI code.
func NewMessage(mtiCode string) *Message {
	return &Message{MTI: mtiCode, Fields: make(map[int]string)}
}

// Set canonicalizes value to the field's wire form (zero-padding numerics,
// space-padding fixed text fields) and stores it. It fails if the field is
// not in the static table, the value exceeds the field length, or the
// charset is violated.
func (m *Message) Set(field int, value string) error {
	spec, ok := fieldSpecs[field]
	if !ok {
		return &EncodeError{Field: field, Reason: "field not in spec table"}
	}
	canonical, err := spec.canonicalize(field, value)
	if err != nil {
		return err
	}
	m.Fields[field] = canonical
	return nil
}

// Get returns the stored wire-form value of a field.
func (m *Message) Get(field int) (string, bool) {
	v, ok := m.Fields[field]
	return v, ok
}

// TraceNumber returns field 11, the per-exchange correlation identifier.
func (m *Message) TraceNumber() string {
	return m.Fields[FieldTrace]
}

// Amount returns field 4 parsed into minor currency units.
func (m *Message) Amount() (int64, error) {
	raw, ok := m.Fields[FieldAmount]
	if !ok {
		return 0, fmt.Errorf("message has no amount field")
	}
	return ParseAmount(raw)
}

// FieldNumbers returns the present field numbers in ascending order.
func (m *Message) FieldNumbers() []int {
	nums := make([]int, 0, len(m.Fields))
	for n := range m.Fields {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// FormatAmount renders minor currency units as the 12-digit field 4 value.
func FormatAmount(minor int64) (string, error) {
	if minor < 0 || minor > 999999999999 {
		return "", fmt.Errorf("amount %d out of field range", minor)
	}
	return fmt.Sprintf("%012d", minor), nil
}

// ParseAmount reads a 12-digit field 4 value into minor currency units.
func ParseAmount(raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed amount field %q: %w", raw, err)
	}
	return v, nil
}

// FormatTransmission renders the field 7 transmission timestamp (MMDDhhmmss).
func FormatTransmission(t time.Time) string {
	return t.UTC().Format("0102150405")
}
