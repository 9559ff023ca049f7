package intake

import (
	"github.com/zulandar/rfqdesk/internal/extract"
	"github.com/zulandar/rfqdesk/internal/models"
	"github.com/zulandar/rfqdesk/internal/rules"
)

// DefaultReadyThreshold is the completeness at which a request is ready.
const DefaultReadyThreshold = 0.8

// DecideStatus picks INCOMPLETE or READY for an evaluation. A resolved rule
// with any missing field is always incomplete; without a rule the request is
// ready only when its category is known and something concrete was asked for.
func DecideStatus(res rules.Result, content extract.Content, category string, threshold float64) string {
	if threshold <= 0 {
		threshold = DefaultReadyThreshold
	}
	switch {
	case res.Rule != nil && len(res.Missing) > 0:
		return models.StatusIncomplete
	case res.Completeness >= threshold:
		return models.StatusReady
	case res.Rule != nil:
		// Resolved rule with nothing missing; only reachable when it has no
		// required fields.
		return models.StatusReady
	case category != "" && (len(content.LineItems) > 0 || len(content.Quantities) > 0):
		return models.StatusReady
	default:
		return models.StatusIncomplete
	}
}

// StageFor returns the pipeline stage shown for a status.
func StageFor(status string) string {
	if status == models.StatusReady {
		return models.StageFindingSuppliers
	}
	return models.StageNeedsInfo
}

// decidedByIntake reports whether intake owns status transitions from s.
func decidedByIntake(s string) bool {
	return s == "" || s == models.StatusIncomplete || s == models.StatusReady
}
