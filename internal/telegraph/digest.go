package telegraph

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/gorm"
)

// EventDigest is the scheduled pending-request digest.
const EventDigest EventType = "digest"

// DefaultStaleAfter is how long an incomplete request may sit without client
// activity before the digest calls it stale.
const DefaultStaleAfter = 72 * time.Hour

// PendingReport holds the metrics posted in the pending-request digest.
type PendingReport struct {
	PeriodStart   time.Time
	PeriodEnd     time.Time
	NewRequests   int
	Incomplete    int
	Ready         int
	Stale         int
	PendingOutbox int
	ByCategory    []CategoryDigest
}

// CategoryDigest holds per-category counts of open requests.
type CategoryDigest struct {
	Category   string
	Incomplete int
	Ready      int
}

// BuildDigest reports on the 24 hours before now. Returns nil when there is
// nothing pending.
func BuildDigest(db *gorm.DB, now time.Time, staleAfter time.Duration) (*DetectedEvent, error) {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	report, err := buildPendingReport(db, now.Add(-24*time.Hour), now, staleAfter)
	if err != nil {
		return nil, fmt.Errorf("telegraph: digest: %w", err)
	}

	// Suppress when nothing is pending.
	if report.NewRequests == 0 && report.Incomplete == 0 &&
		report.Ready == 0 && report.PendingOutbox == 0 {
		return nil, nil
	}

	formatted := FormatDigest(report)
	return &DetectedEvent{
		Type:      EventDigest,
		Timestamp: now,
		Title:     formatted.Title,
		Body:      formatted.Body,
	}, nil
}

// buildPendingReport queries the request store for digest metrics.
func buildPendingReport(db *gorm.DB, since, until time.Time, staleAfter time.Duration) (*PendingReport, error) {
	report := &PendingReport{PeriodStart: since, PeriodEnd: until}

	var n int64
	if err := db.Model(&models.Request{}).
		Where("created_at >= ? AND created_at < ?", since, until).
		Count(&n).Error; err != nil {
		return nil, fmt.Errorf("count new requests: %w", err)
	}
	report.NewRequests = int(n)

	if err := db.Model(&models.Request{}).
		Where("status = ? AND last_activity_at < ?", models.StatusIncomplete, until.Add(-staleAfter)).
		Count(&n).Error; err != nil {
		return nil, fmt.Errorf("count stale requests: %w", err)
	}
	report.Stale = int(n)

	if err := db.Model(&models.Message{}).
		Where("direction = ? AND processed = ?", models.DirectionOutbound, false).
		Count(&n).Error; err != nil {
		return nil, fmt.Errorf("count pending outbox: %w", err)
	}
	report.PendingOutbox = int(n)

	var rows []struct {
		Category string
		Status   string
		N        int
	}
	if err := db.Model(&models.Request{}).
		Select("category, status, COUNT(*) AS n").
		Where("status IN ?", []string{models.StatusIncomplete, models.StatusReady}).
		Group("category, status").
		Order("category").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	index := make(map[string]int)
	for _, r := range rows {
		cat := r.Category
		if cat == "" {
			cat = "unclassified"
		}
		i, ok := index[cat]
		if !ok {
			i = len(report.ByCategory)
			index[cat] = i
			report.ByCategory = append(report.ByCategory, CategoryDigest{Category: cat})
		}
		switch r.Status {
		case models.StatusIncomplete:
			report.ByCategory[i].Incomplete += r.N
			report.Incomplete += r.N
		case models.StatusReady:
			report.ByCategory[i].Ready += r.N
			report.Ready += r.N
		}
	}
	return report, nil
}

// FormatDigest formats a PendingReport for chat.
func FormatDigest(report *PendingReport) FormattedEvent {
	var lines []string
	lines = append(lines, fmt.Sprintf("**New (24h)**: %d", report.NewRequests))
	lines = append(lines, fmt.Sprintf("**Waiting on client**: %d (%d stale)", report.Incomplete, report.Stale))
	lines = append(lines, fmt.Sprintf("**Ready for matching**: %d", report.Ready))
	if report.PendingOutbox > 0 {
		lines = append(lines, fmt.Sprintf("**Undelivered replies**: %d", report.PendingOutbox))
	}
	if len(report.ByCategory) > 0 {
		lines = append(lines, "")
		for _, c := range report.ByCategory {
			lines = append(lines, fmt.Sprintf("• %s: %d needs info, %d ready", c.Category, c.Incomplete, c.Ready))
		}
	}

	severity := "info"
	if report.Stale > 0 || report.PendingOutbox > 0 {
		severity = "warning"
	}
	return FormattedEvent{
		Title:    fmt.Sprintf("Pending requests — %s", report.PeriodEnd.Format("Mon Jan 2")),
		Body:     strings.Join(lines, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
	}
}
