package intake

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zulandar/rfqdesk/internal/catalog"
	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/gorm"
)

// ErrRequestNotFound is returned when a request ID does not exist.
var ErrRequestNotFound = errors.New("intake: request not found")

// candidateScan bounds how many recent requests are considered for continuation.
const candidateScan = 5

// GetRequest loads a request with its messages in arrival order.
func GetRequest(db *gorm.DB, id string) (*models.Request, error) {
	var req models.Request
	err := db.Preload("Messages", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at ASC").Order("id ASC")
	}).Where("id = ?", id).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("intake: get request %s: %w", id, err)
	}
	return &req, nil
}

// ListOpts filters ListRequests.
type ListOpts struct {
	Status  string
	Channel string
	Limit   int
}

// ListRequests returns requests by most recent activity.
func ListRequests(db *gorm.DB, opts ListOpts) ([]models.Request, error) {
	q := db.Model(&models.Request{})
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.Channel != "" {
		q = q.Where("channel = ?", opts.Channel)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var reqs []models.Request
	if err := q.Order("last_activity_at DESC").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("intake: list requests: %w", err)
	}
	return reqs, nil
}

// CountByStatus returns the number of requests in each status.
func CountByStatus(db *gorm.DB) (map[string]int, error) {
	var rows []struct {
		Status string
		N      int
	}
	if err := db.Model(&models.Request{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("intake: count by status: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// recentRequests returns a sender's most recently active requests on a channel.
func recentRequests(db *gorm.DB, channel, sender string) ([]models.Request, error) {
	var reqs []models.Request
	if err := db.Where("channel = ? AND sender_identity = ?", channel, sender).
		Order("last_activity_at DESC").
		Limit(candidateScan).
		Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("intake: find requests for %s: %w", sender, err)
	}
	return reqs, nil
}

// clientID looks up the registered client for a sender identity.
func clientID(db *gorm.DB, sender string) (*uint, error) {
	var c models.Client
	err := db.Where("identity = ?", sender).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("intake: lookup client %s: %w", sender, err)
	}
	return &c.ID, nil
}

// EncodeFields renders field IDs for a JSON column. Nil encodes as "[]".
func EncodeFields(ids []catalog.FieldID) string {
	if len(ids) == 0 {
		return "[]"
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// DecodeFields parses a JSON column written by EncodeFields.
func DecodeFields(s string) []catalog.FieldID {
	if s == "" {
		return nil
	}
	var ids []catalog.FieldID
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil
	}
	return ids
}
