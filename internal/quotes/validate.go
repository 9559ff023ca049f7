package quotes

import (
	"fmt"
	"math"

	"github.com/zulandar/rfqdesk/internal/models"
)

// tolerance absorbs rounding in supplier-entered amounts.
const tolerance = 0.01

// Validate reports arithmetic inconsistencies in a quote. Warnings never
// block comparison.
func Validate(q models.Quote) []string {
	var warnings []string
	itemsTotal := 0.0
	for i, it := range q.Items {
		itemsTotal += it.LineTotal
		if want := it.Quantity * it.UnitPrice; !near(want, it.LineTotal) {
			warnings = append(warnings, fmt.Sprintf("item %d (%s): %.2f x %.2f = %.2f, line total is %.2f",
				i+1, it.Description, it.Quantity, it.UnitPrice, want, it.LineTotal))
		}
	}
	if len(q.Items) > 0 && q.Subtotal != 0 && !near(itemsTotal, q.Subtotal) {
		warnings = append(warnings, fmt.Sprintf("line totals sum to %.2f, subtotal is %.2f", itemsTotal, q.Subtotal))
	}
	if q.Subtotal != 0 {
		if want := q.Subtotal + q.Taxes + q.Shipping; !near(want, q.Total) {
			warnings = append(warnings, fmt.Sprintf("subtotal + taxes + shipping = %.2f, total is %.2f", want, q.Total))
		}
	}
	if q.Total <= 0 {
		warnings = append(warnings, "total is not positive")
	}
	if q.DeliveryDays < 0 {
		warnings = append(warnings, "delivery days is negative")
	}
	return warnings
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}
