package models

import "time"

// Quote statuses. Only submitted and accepted quotes are compared.
const (
	QuoteDraft     = "draft"
	QuoteSubmitted = "submitted"
	QuoteAccepted  = "accepted"
	QuoteRejected  = "rejected"
)

// Quote is a supplier's answer to an RFQ.
type Quote struct {
	ID             uint    `gorm:"primaryKey;autoIncrement"`
	RFQID          string  `gorm:"size:36;not null;index"`
	SupplierID     uint    `gorm:"not null;index"`
	Status         string  `gorm:"size:16;default:draft;index"`
	Subtotal       float64
	Taxes          float64
	Shipping       float64
	Total          float64 `gorm:"not null"`
	Currency       string  `gorm:"size:3;default:MXN"`
	DeliveryDays   int
	PaymentTerms   string `gorm:"size:64"`
	WarrantyMonths int
	Availability   string `gorm:"size:32"`
	Notes          string `gorm:"type:text"`
	SubmittedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Supplier Supplier    `gorm:"foreignKey:SupplierID"`
	Items    []QuoteItem `gorm:"foreignKey:QuoteID"`
}

// QuoteItem is one priced line of a Quote.
type QuoteItem struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	QuoteID     uint   `gorm:"not null;index"`
	Description string `gorm:"size:255"`
	Quantity    float64
	Unit        string `gorm:"size:32"`
	UnitPrice   float64
	LineTotal   float64
}
