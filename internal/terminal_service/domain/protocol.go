package domain

import (
	"math/rand"
	"strings"
)

// Protocol describes one POS terminal protocol variant: the approval-code
// shape it expects and whether it may fall back to offline queueing when the
// upstream processor is unreachable.
type Protocol struct {
	Name           string
	ApprovalLength int
	Alphanumeric   bool
	OfflineCapable bool
}

// Protocols is the static table of supported terminal protocol variants.
// The -101.x family uses numeric approval codes, -201.x alphanumeric.
var Protocols = map[string]Protocol{
	"POS Terminal -101.1 (4-digit approval)":     {Name: "POS Terminal -101.1 (4-digit approval)", ApprovalLength: 4},
	"POS Terminal -101.4 (6-digit approval)":     {Name: "POS Terminal -101.4 (6-digit approval)", ApprovalLength: 6},
	"POS Terminal -101.6 (Pre-authorization)":    {Name: "POS Terminal -101.6 (Pre-authorization)", ApprovalLength: 6},
	"POS Terminal -101.7 (4-digit approval)":     {Name: "POS Terminal -101.7 (4-digit approval)", ApprovalLength: 4},
	"POS Terminal -101.8 (PIN-LESS transaction)": {Name: "POS Terminal -101.8 (PIN-LESS transaction)", ApprovalLength: 4, OfflineCapable: true},
	"POS Terminal -201.1 (6-digit approval)":     {Name: "POS Terminal -201.1 (6-digit approval)", ApprovalLength: 6, Alphanumeric: true},
	"POS Terminal -201.3 (6-digit approval)":     {Name: "POS Terminal -201.3 (6-digit approval)", ApprovalLength: 6, Alphanumeric: true, OfflineCapable: true},
	"POS Terminal -201.5 (6-digit approval)":     {Name: "POS Terminal -201.5 (6-digit approval)", ApprovalLength: 6, Alphanumeric: true, OfflineCapable: true},
}

// SupportedCurrencies lists currency codes accepted on transaction requests.
var SupportedCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
	"BTC": true,
	"ETH": true,
}

// LookupProtocol resolves a protocol by name.
func LookupProtocol(name string) (Protocol, error) {
	p, ok := Protocols[name]
	if !ok {
		return Protocol{}, ErrUnknownProtocol
	}
	return p, nil
}

// ValidateApprovalCode checks an approval code against the protocol's
// length and charset. Offline codes are "OF" followed by digits.
func (p Protocol) ValidateApprovalCode(code string) bool {
	code = strings.TrimRight(code, " ") // field 38 is space-padded on the wire
	if len(code) != p.ApprovalLength {
		return false
	}
	if strings.HasPrefix(code, "OF") {
		return p.OfflineCapable && allDigits(code[2:])
	}
	if p.Alphanumeric {
		return allAlphaNum(code)
	}
	return allDigits(code)
}

// GenerateApprovalCode produces a code matching the protocol's shape:
// upstream-issued codes when offline is false, provisional "OF" codes for
// queued offline approvals.
func (p Protocol) GenerateApprovalCode(offline bool) string {
	if offline && p.OfflineCapable {
		return "OF" + randomDigits(p.ApprovalLength-2)
	}
	if p.Alphanumeric {
		const alnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
		b := make([]byte, p.ApprovalLength)
		for i := range b {
			b[i] = alnum[rand.Intn(len(alnum))]
		}
		return string(b)
	}
	return randomDigits(p.ApprovalLength)
}

func randomDigits(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + rand.Intn(10))
	}
	return string(b)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func allAlphaNum(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
