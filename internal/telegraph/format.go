package telegraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/intake"
	"github.com/zulandar/rfqdesk/internal/matching"
	"github.com/zulandar/rfqdesk/internal/models"
	"github.com/zulandar/rfqdesk/internal/quotes"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// statusLabel returns a short human label for a request status.
func statusLabel(status string) string {
	switch status {
	case models.StatusIncomplete:
		return "needs info"
	case models.StatusReady:
		return "ready"
	case models.StatusSuppliersContacted:
		return "suppliers contacted"
	case models.StatusQuotesReceived:
		return "quotes received"
	case models.StatusClosed:
		return "closed"
	default:
		return status
	}
}

// statusSeverity returns the severity for a request status.
func statusSeverity(status string) string {
	switch status {
	case models.StatusReady, models.StatusQuotesReceived:
		return "success"
	case models.StatusIncomplete:
		return "warning"
	default:
		return "info"
	}
}

// FormatRequestEvent formats a new-request or status-change event.
func FormatRequestEvent(event DetectedEvent, cat *catalog.Catalog) FormattedEvent {
	severity := statusSeverity(event.NewStatus)
	title := fmt.Sprintf("Request %s %s", shortID(event.RequestID), statusLabel(event.NewStatus))
	if event.Type == EventRequestCreated {
		title = fmt.Sprintf("New request %s (%s)", shortID(event.RequestID), statusLabel(event.NewStatus))
	}

	var bodyParts []string
	if event.OldStatus != "" && event.OldStatus != event.NewStatus {
		bodyParts = append(bodyParts, fmt.Sprintf("%s → %s", statusLabel(event.OldStatus), statusLabel(event.NewStatus)))
	}
	if event.NewStatus == models.StatusIncomplete {
		if missing := missingLabels(event.Missing, event.RuleID, cat); missing != "" {
			bodyParts = append(bodyParts, "Missing: "+missing)
		}
	}
	if len(event.Matches) > 0 {
		bodyParts = append(bodyParts, "Top suppliers:")
		for i, m := range event.Matches {
			if i == 3 {
				break
			}
			bodyParts = append(bodyParts, fmt.Sprintf("%d. %s (%.0f)", i+1, m.Supplier.Name, m.Score))
		}
	}

	fields := []Field{
		{Name: "Request", Value: event.RequestID, Short: true},
		{Name: "Channel", Value: event.Channel, Short: true},
	}
	if event.Category != "" {
		fields = append(fields, Field{Name: "Category", Value: event.Category, Short: true})
	}
	if event.Sender != "" {
		fields = append(fields, Field{Name: "Sender", Value: event.Sender, Short: true})
	}

	return FormattedEvent{
		Title:    title,
		Body:     strings.Join(bodyParts, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

// missingLabels renders encoded field IDs with their catalog labels.
func missingLabels(encoded, ruleID string, cat *catalog.Catalog) string {
	var rule *catalog.CategoryRule
	if cat != nil && ruleID != "" {
		rule = cat.Rule(ruleID)
	}
	ids := intake.DecodeFields(encoded)
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		label := string(id)
		if rule != nil {
			if f, ok := rule.Field(id); ok && f.Label != "" {
				label = f.Label
			}
		}
		labels = append(labels, label)
	}
	return strings.Join(labels, ", ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatStatusCounts renders request counts in pipeline order.
func formatStatusCounts(counts map[string]int, pendingOutbox int) string {
	order := []string{
		models.StatusIncomplete,
		models.StatusReady,
		models.StatusSuppliersContacted,
		models.StatusQuotesReceived,
		models.StatusClosed,
	}
	seen := make(map[string]bool, len(order))
	var b strings.Builder
	b.WriteString("**Requests**\n")
	for _, s := range order {
		seen[s] = true
		b.WriteString(fmt.Sprintf("%-22s %d\n", statusLabel(s), counts[s]))
	}
	var other []string
	for s := range counts {
		if !seen[s] {
			other = append(other, s)
		}
	}
	sort.Strings(other)
	for _, s := range other {
		b.WriteString(fmt.Sprintf("%-22s %d\n", s, counts[s]))
	}
	b.WriteString(fmt.Sprintf("\n**Outbox**: %d pending", pendingOutbox))
	return b.String()
}

// formatRequestTable formats a slice of requests as a markdown table.
func formatRequestTable(reqs []models.Request) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("**Requests** (%d)\n", len(reqs)))
	b.WriteString(fmt.Sprintf("%-10s %-20s %-10s %-16s %s\n",
		"ID", "STATUS", "CHANNEL", "CATEGORY", "SENDER"))
	for _, r := range reqs {
		category := r.Category
		if category == "" {
			category = "-"
		}
		b.WriteString(fmt.Sprintf("%-10s %-20s %-10s %-16s %s\n",
			shortID(r.ID), statusLabel(r.Status), r.Channel, category, r.SenderIdentity))
	}
	return b.String()
}

// formatRequestDetail formats a single request with its conversation.
func formatRequestDetail(r *models.Request) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("**%s** — %s\n", r.ID, statusLabel(r.Status)))
	b.WriteString(fmt.Sprintf("Channel: %s | Sender: %s | Urgency: %s\n", r.Channel, r.SenderIdentity, r.Urgency))
	if r.Category != "" {
		line := "Category: " + r.Category
		if r.Subcategory != nil {
			line += " / " + *r.Subcategory
		}
		b.WriteString(fmt.Sprintf("%s (confidence %.2f)\n", line, r.Confidence))
	}
	if r.CategoryRuleID != "" {
		b.WriteString(fmt.Sprintf("Rule: %s | Completeness: %.0f%%\n", r.CategoryRuleID, r.Completeness*100))
	}
	if missing := intake.DecodeFields(r.MissingFields); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, id := range missing {
			names[i] = string(id)
		}
		b.WriteString("Missing: " + strings.Join(names, ", ") + "\n")
	}
	if !r.AutoReplyEnabled {
		b.WriteString("Auto-reply: off\n")
	}
	if len(r.Messages) > 0 {
		b.WriteString(fmt.Sprintf("\n**Messages** (%d)\n", len(r.Messages)))
		for _, m := range r.Messages {
			marker := "<"
			if m.Direction == models.DirectionOutbound {
				marker = ">"
				if !m.Processed {
					marker = ">?"
				}
			}
			b.WriteString(fmt.Sprintf("%s %s %s\n", marker, m.CreatedAt.Format("01-02 15:04"), truncate(m.Content, 120)))
		}
	}
	return b.String()
}

// formatMatches formats ranked suppliers.
func formatMatches(ranked []matching.Ranked) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("**Suppliers** (%d)\n", len(ranked)))
	for i, r := range ranked {
		b.WriteString(fmt.Sprintf("%d. %s — %.1f", i+1, r.Supplier.Name, r.Score))
		if len(r.Reasons) > 0 {
			b.WriteString(" (" + strings.Join(r.Reasons, "; ") + ")")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatComparison formats a quote comparison, best first.
func formatComparison(c *quotes.Comparison) string {
	var b strings.Builder
	s := c.Summary
	b.WriteString(fmt.Sprintf("**Quotes** (%d) price %.2f–%.2f avg %.2f, delivery %d–%d days\n",
		s.Count, s.MinPrice, s.MaxPrice, s.AvgPrice, s.MinDelivery, s.MaxDelivery))
	if len(s.Currencies) > 1 {
		b.WriteString(fmt.Sprintf("Warning: mixed currencies %s\n", strings.Join(s.Currencies, ", ")))
	}
	b.WriteString(fmt.Sprintf("%-4s %-24s %10s %6s %6s %6s %6s\n", "#", "SUPPLIER", "TOTAL", "PRICE", "DELIV", "TERMS", "SCORE"))
	for _, sc := range c.Ranked {
		name := sc.Quote.SupplierName
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		b.WriteString(fmt.Sprintf("%-4d %-24s %10.2f %6.0f %6.0f %6.0f %6.1f\n",
			sc.Ranks[quotes.CriterionComposite], name, sc.Quote.Total, sc.Price, sc.Delivery, sc.Terms, sc.Composite))
	}
	return b.String()
}
