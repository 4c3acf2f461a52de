package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// RuleKind identifies which inventory rule produced a candidate
type RuleKind string

const (
	RuleLowStock      RuleKind = "LOW_STOCK"
	RuleCriticalStock RuleKind = "CRITICAL_STOCK"
	RuleExpiringSoon  RuleKind = "EXPIRING_SOON"
)

// Severity represents normalized alert severity levels
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities; unknown values rank below LOW
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// SeveritiesAtLeast lists the known severities as severe as floor, most severe first
func SeveritiesAtLeast(floor Severity) []Severity {
	var out []Severity
	for _, s := range []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow} {
		if s.AtLeast(floor) {
			out = append(out, s)
		}
	}
	return out
}

// ParseSeverity normalizes a severity string, returning false when it is unknown
func ParseSeverity(value string) (Severity, bool) {
	s := Severity(strings.ToUpper(strings.TrimSpace(value)))
	if s.Rank() == 0 {
		return "", false
	}
	return s, true
}

// GetSeverityEmoji returns a Slack emoji for the severity
func GetSeverityEmoji(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return ":red_circle:"
	case SeverityHigh:
		return ":large_orange_circle:"
	case SeverityMedium:
		return ":large_yellow_circle:"
	case SeverityLow:
		return ":large_blue_circle:"
	default:
		return ":white_circle:"
	}
}

// CandidateFacts is the snapshot of values that justified a candidate
type CandidateFacts struct {
	CurrentQuantity  int    `json:"current_quantity"`
	ReorderThreshold int    `json:"reorder_threshold,omitempty"`
	DaysUntilExpiry  *int   `json:"days_until_expiry,omitempty"`
	Lot              string `json:"lot,omitempty"`
}

// Map converts the facts into a generic map for JSON storage
func (f CandidateFacts) Map() map[string]interface{} {
	m := map[string]interface{}{
		"current_quantity": f.CurrentQuantity,
	}
	if f.ReorderThreshold != 0 {
		m["reorder_threshold"] = f.ReorderThreshold
	}
	if f.DaysUntilExpiry != nil {
		m["days_until_expiry"] = *f.DaysUntilExpiry
	}
	if f.Lot != "" {
		m["lot"] = f.Lot
	}
	return m
}

// Candidate is an alert produced by one evaluation pass. It is never persisted directly.
type Candidate struct {
	RuleKind    RuleKind
	SubjectID   string
	SubjectName string
	Severity    Severity
	Facts       CandidateFacts
}

// DedupKey returns the content address of the candidate's underlying condition
func (c Candidate) DedupKey() string {
	return DedupKey(c.RuleKind, c.SubjectID)
}

// DedupKey derives a deterministic key from rule kind and subject, independent of time
func DedupKey(kind RuleKind, subjectID string) string {
	sum := sha256.Sum256([]byte(string(kind) + "|" + subjectID))
	return hex.EncodeToString(sum[:])
}
