package models

import "time"

// Request statuses. Only the first two are decided by intake; the others are
// written by downstream flows and preserved.
const (
	StatusIncomplete         = "INCOMPLETE_INFORMATION"
	StatusReady              = "READY_FOR_SUPPLIER_MATCHING"
	StatusSuppliersContacted = "SUPPLIERS_CONTACTED"
	StatusQuotesReceived     = "QUOTES_RECEIVED"
	StatusClosed             = "CLOSED"
)

// Pipeline stages shown to operators.
const (
	StageNeedsInfo        = "NEEDS_INFO"
	StageFindingSuppliers = "FINDING_SUPPLIERS"
)

// Message directions and kinds.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	KindInbound    = "inbound"
	KindFollowUp   = "follow_up"
	KindCompletion = "completion"
)

// Request is one client procurement inquiry. It accumulates every inbound
// message of its conversation and carries the latest rules snapshot.
type Request struct {
	ID               string  `gorm:"primaryKey;size:36"`
	Channel          string  `gorm:"size:32;not null;index:idx_request_sender"`
	SenderIdentity   string  `gorm:"size:255;not null;index:idx_request_sender"`
	ClientID         *uint   `gorm:"index"`
	Status           string  `gorm:"size:40;default:INCOMPLETE_INFORMATION;index"`
	PipelineStage    string  `gorm:"size:32;default:NEEDS_INFO"`
	Category         string  `gorm:"size:64;index"`
	Subcategory      *string `gorm:"size:64"`
	Urgency          string  `gorm:"size:16;default:normal"`
	Confidence       float64
	RawContent       string `gorm:"type:text"`
	CategoryRuleID   string `gorm:"size:64"`
	PresentFields    string `gorm:"type:json"`
	MissingFields    string `gorm:"type:json"`
	Completeness     float64
	AutoReplyEnabled bool      `gorm:"default:true"`
	CatalogVersion   string    `gorm:"size:32"`
	// Deadline is the latest one any inbound message named.
	Deadline         *time.Time
	LastActivityAt   time.Time `gorm:"index"`
	ClosedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Messages []Message `gorm:"foreignKey:RequestID"`
}

// Message is one inbound or outbound message of a Request. Rows are
// append-only; outbound rows flip Processed once a channel adapter delivers
// them.
type Message struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RequestID   string `gorm:"size:36;not null;index"`
	Direction   string `gorm:"size:8;not null;index"`
	Kind        string `gorm:"size:16"`
	Source      string `gorm:"size:32;not null"`
	SourceID    string `gorm:"size:128;index"`
	FromAddr    string `gorm:"size:255"`
	ToAddr      string `gorm:"size:255"`
	Subject     string `gorm:"size:255"`
	Content     string `gorm:"type:text"`
	Processed   bool   `gorm:"default:false;index"`
	ProcessedAt *time.Time
	CreatedAt   time.Time
}
