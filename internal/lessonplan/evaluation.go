package lessonplan

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
)

// Band classifies an evaluation total for display.
type Band string

const (
	BandUnder    Band = "under"
	BandComplete Band = "complete"
	BandOver     Band = "over"
)

var hundred = decimal.NewFromInt(100)

// Evaluation manages a draft's weighted evaluation items. The total is
// recomputed from the list on every read.
type Evaluation struct {
	items *[]EvaluationItem
	newID func() string
}

// NewEvaluation operates on items in place.
func NewEvaluation(items *[]EvaluationItem) *Evaluation {
	return &Evaluation{items: items, newID: uuid.NewString}
}

// Add appends an item and returns the new total. It is rejected, and the
// list left unchanged, when the criterion is blank, the percentage is outside
// (0, 100], or the total would exceed 100.
func (e *Evaluation) Add(criterion string, percentage float64) (decimal.Decimal, error) {
	criterion = strings.TrimSpace(criterion)
	if criterion == "" || math.IsNaN(percentage) || math.IsInf(percentage, 0) || percentage <= 0 || percentage > 100 {
		return e.Total(), apperr.Invalid("evaluation", "Enter a criterion and a percentage between 0 and 100")
	}

	current := e.Total()
	if current.Add(decimal.NewFromFloat(percentage)).GreaterThan(hundred) {
		return current, apperr.Invalid("evaluation",
			fmt.Sprintf("Total percentage cannot exceed 100%%. Current total: %s%%", current.String()))
	}

	*e.items = append(*e.items, EvaluationItem{
		ID:         e.newID(),
		Criterion:  criterion,
		Percentage: percentage,
	})
	return e.Total(), nil
}

// Remove deletes the item with id. An unknown id is ignored.
func (e *Evaluation) Remove(id string) {
	items := *e.items
	for i, it := range items {
		if it.ID == id {
			*e.items = append(items[:i:i], items[i+1:]...)
			return
		}
	}
}

// Items returns a copy of the current items.
func (e *Evaluation) Items() []EvaluationItem {
	return append([]EvaluationItem{}, *e.items...)
}

// Total sums the percentages exactly.
func (e *Evaluation) Total() decimal.Decimal {
	return TotalOf(*e.items)
}

// Band reports whether the total is under, at or over 100.
func (e *Evaluation) Band() Band {
	return BandOf(e.Total())
}

// TotalOf sums item percentages using decimal arithmetic so that values like
// 33.3 + 33.3 + 33.4 add up to exactly 100.
func TotalOf(items []EvaluationItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(decimal.NewFromFloat(it.Percentage))
	}
	return total
}

// BandOf classifies total.
func BandOf(total decimal.Decimal) Band {
	switch total.Cmp(hundred) {
	case -1:
		return BandUnder
	case 0:
		return BandComplete
	default:
		return BandOver
	}
}
