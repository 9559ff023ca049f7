// Package messaging stores request conversations and composes the follow-up
// and completion replies intake queues for delivery.
package messaging

import (
	"fmt"
	"time"

	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/gorm"
)

// OutboundOpts describes a reply to queue.
type OutboundOpts struct {
	RequestID string
	Source    string // channel the reply goes out on
	To        string
	From      string
	Subject   string
	Content   string
	Kind      string // models.KindFollowUp or models.KindCompletion
}

// QueueOutbound stores an undelivered outbound message. Delivery happens
// later through a channel adapter that calls MarkProcessed.
func QueueOutbound(db *gorm.DB, opts OutboundOpts) (*models.Message, error) {
	if opts.RequestID == "" {
		return nil, fmt.Errorf("messaging: request id is required")
	}
	if opts.Source == "" {
		return nil, fmt.Errorf("messaging: source is required")
	}
	if opts.To == "" {
		return nil, fmt.Errorf("messaging: to is required")
	}
	if opts.Content == "" {
		return nil, fmt.Errorf("messaging: content is required")
	}

	msg := models.Message{
		RequestID: opts.RequestID,
		Direction: models.DirectionOutbound,
		Kind:      opts.Kind,
		Source:    opts.Source,
		FromAddr:  opts.From,
		ToAddr:    opts.To,
		Subject:   opts.Subject,
		Content:   opts.Content,
		CreatedAt: time.Now(),
	}
	if err := db.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("messaging: queue outbound: %w", err)
	}
	return &msg, nil
}

// InboundOpts describes a received message.
type InboundOpts struct {
	RequestID string
	Source    string
	SourceID  string
	From      string
	To        string
	Subject   string
	Content   string
	At        time.Time
}

// RecordInbound appends an inbound message to a request's history.
func RecordInbound(db *gorm.DB, opts InboundOpts) (*models.Message, error) {
	if opts.RequestID == "" {
		return nil, fmt.Errorf("messaging: request id is required")
	}
	if opts.Source == "" {
		return nil, fmt.Errorf("messaging: source is required")
	}
	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}
	msg := models.Message{
		RequestID: opts.RequestID,
		Direction: models.DirectionInbound,
		Kind:      models.KindInbound,
		Source:    opts.Source,
		SourceID:  opts.SourceID,
		FromAddr:  opts.From,
		ToAddr:    opts.To,
		Subject:   opts.Subject,
		Content:   opts.Content,
		CreatedAt: at,
	}
	if err := db.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("messaging: record inbound: %w", err)
	}
	return &msg, nil
}

// PendingOpts filters the outbound queue.
type PendingOpts struct {
	Sources []string // empty means every source
	Limit   int      // 0 means no limit
}

// Pending returns undelivered outbound messages, oldest first.
func Pending(db *gorm.DB, opts PendingOpts) ([]models.Message, error) {
	q := db.Where("direction = ? AND processed = ?", models.DirectionOutbound, false)
	if len(opts.Sources) > 0 {
		q = q.Where("source IN ?", opts.Sources)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var msgs []models.Message
	if err := q.Order("created_at ASC").Order("id ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("messaging: pending: %w", err)
	}
	return msgs, nil
}

// MarkProcessed records that an outbound message was delivered. sourceID is
// the platform's identifier for the delivered message, if any.
func MarkProcessed(db *gorm.DB, messageID uint, sourceID string) error {
	now := time.Now()
	result := db.Model(&models.Message{}).
		Where("id = ? AND direction = ?", messageID, models.DirectionOutbound).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": now,
			"source_id":    sourceID,
		})
	if result.Error != nil {
		return fmt.Errorf("messaging: mark processed %d: %w", messageID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("messaging: message not found: %d", messageID)
	}
	return nil
}

// Inbound returns a request's inbound messages in arrival order.
func Inbound(db *gorm.DB, requestID string) ([]models.Message, error) {
	if requestID == "" {
		return nil, fmt.Errorf("messaging: request id is required")
	}
	var msgs []models.Message
	if err := db.Where("request_id = ? AND direction = ?", requestID, models.DirectionInbound).
		Order("created_at ASC").Order("id ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("messaging: inbound %s: %w", requestID, err)
	}
	return msgs, nil
}

// History returns the last limit messages of a request in both directions,
// oldest first. A non-positive limit returns everything.
func History(db *gorm.DB, requestID string, limit int) ([]models.Message, error) {
	if requestID == "" {
		return nil, fmt.Errorf("messaging: request id is required")
	}
	var msgs []models.Message
	q := db.Where("request_id = ?", requestID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("messaging: history %s: %w", requestID, err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountOutbound returns how many replies have been queued for a request.
func CountOutbound(db *gorm.DB, requestID string) (int, error) {
	var n int64
	if err := db.Model(&models.Message{}).
		Where("request_id = ? AND direction = ?", requestID, models.DirectionOutbound).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("messaging: count outbound %s: %w", requestID, err)
	}
	return int(n), nil
}
