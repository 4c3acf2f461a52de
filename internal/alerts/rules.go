package alerts

import (
	"fmt"
	"sort"
)

// DefaultExpiryWindowDays is used when Options.ExpiryWindowDays is not positive
const DefaultExpiryWindowDays = 30

// highStockRatio is the quantity/threshold ratio at or below which low stock becomes HIGH
const highStockRatio = 0.5

// StockFact is a product whose quantity is at or below its reorder threshold
type StockFact struct {
	SubjectID        string
	Name             string
	CurrentQuantity  int
	ReorderThreshold int
}

// ExpiryFact is a stocked batch approaching its expiry date
type ExpiryFact struct {
	SubjectID       string
	Name            string
	Lot             string
	Quantity        int
	DaysUntilExpiry int
}

// Facts is the read-only snapshot a pass evaluates
type Facts struct {
	Stock    []StockFact
	Expiring []ExpiryFact
}

// Options tunes rule evaluation
type Options struct {
	ExpiryWindowDays int
}

// Evaluate maps a snapshot of facts to alert candidates.
// It has no side effects and returns candidates sorted by rule kind and subject.
func Evaluate(facts Facts, opts Options) []Candidate {
	window := opts.ExpiryWindowDays
	if window <= 0 {
		window = DefaultExpiryWindowDays
	}

	var candidates []Candidate
	for _, f := range facts.Stock {
		if c, ok := evaluateStock(f); ok {
			candidates = append(candidates, c)
		}
	}
	candidates = append(candidates, evaluateExpiry(facts.Expiring, window)...)

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].RuleKind != candidates[j].RuleKind {
			return candidates[i].RuleKind < candidates[j].RuleKind
		}
		return candidates[i].SubjectID < candidates[j].SubjectID
	})
	return candidates
}

func evaluateStock(f StockFact) (Candidate, bool) {
	facts := CandidateFacts{
		CurrentQuantity:  f.CurrentQuantity,
		ReorderThreshold: f.ReorderThreshold,
	}

	// Negative quantities come from oversold stock and are treated as empty.
	if f.CurrentQuantity <= 0 {
		return Candidate{
			RuleKind:    RuleCriticalStock,
			SubjectID:   f.SubjectID,
			SubjectName: f.Name,
			Severity:    SeverityCritical,
			Facts:       facts,
		}, true
	}

	if f.ReorderThreshold <= 0 || f.CurrentQuantity > f.ReorderThreshold {
		return Candidate{}, false
	}

	return Candidate{
		RuleKind:    RuleLowStock,
		SubjectID:   f.SubjectID,
		SubjectName: f.Name,
		Severity:    lowStockSeverity(f.CurrentQuantity, f.ReorderThreshold),
		Facts:       facts,
	}, true
}

func lowStockSeverity(quantity, threshold int) Severity {
	ratio := float64(quantity) / float64(threshold)
	if ratio <= highStockRatio {
		return SeverityHigh
	}
	return SeverityMedium
}

// evaluateExpiry keeps the nearest-expiring batch per product
func evaluateExpiry(facts []ExpiryFact, window int) []Candidate {
	nearest := make(map[string]ExpiryFact)
	var order []string
	for _, f := range facts {
		if f.DaysUntilExpiry < 0 || f.DaysUntilExpiry > window {
			continue
		}
		existing, seen := nearest[f.SubjectID]
		if !seen {
			order = append(order, f.SubjectID)
		}
		if !seen || f.DaysUntilExpiry < existing.DaysUntilExpiry {
			nearest[f.SubjectID] = f
		}
	}

	candidates := make([]Candidate, 0, len(order))
	for _, id := range order {
		f := nearest[id]
		days := f.DaysUntilExpiry
		candidates = append(candidates, Candidate{
			RuleKind:    RuleExpiringSoon,
			SubjectID:   f.SubjectID,
			SubjectName: f.Name,
			Severity:    expirySeverity(days),
			Facts: CandidateFacts{
				CurrentQuantity: f.Quantity,
				DaysUntilExpiry: &days,
				Lot:             f.Lot,
			},
		})
	}
	return candidates
}

func expirySeverity(days int) Severity {
	switch {
	case days <= 7:
		return SeverityHigh
	case days <= 14:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Summary returns the human-readable line shown to recipients
func (c Candidate) Summary() string {
	name := c.SubjectName
	if name == "" {
		name = "Product " + c.SubjectID
	}

	switch c.RuleKind {
	case RuleCriticalStock:
		return fmt.Sprintf("Out of stock: %s has %d units left", name, c.Facts.CurrentQuantity)
	case RuleLowStock:
		return fmt.Sprintf("Low stock: %s has %d units left (reorder at %d)",
			name, c.Facts.CurrentQuantity, c.Facts.ReorderThreshold)
	case RuleExpiringSoon:
		days := 0
		if c.Facts.DaysUntilExpiry != nil {
			days = *c.Facts.DaysUntilExpiry
		}
		lot := ""
		if c.Facts.Lot != "" {
			lot = " (lot " + c.Facts.Lot + ")"
		}
		switch days {
		case 0:
			return fmt.Sprintf("Expiring soon: %s%s expires today", name, lot)
		case 1:
			return fmt.Sprintf("Expiring soon: %s%s expires tomorrow", name, lot)
		default:
			return fmt.Sprintf("Expiring soon: %s%s expires in %d days", name, lot, days)
		}
	default:
		return fmt.Sprintf("%s: %s", c.RuleKind, name)
	}
}
