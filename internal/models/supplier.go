package models

import "time"

// Supplier is a vendor that can be matched against requests.
type Supplier struct {
	ID            uint    `gorm:"primaryKey;autoIncrement"`
	Name          string  `gorm:"size:128;not null;uniqueIndex"`
	Email         string  `gorm:"size:255"`
	Phone         string  `gorm:"size:32"`
	Categories    string  `gorm:"type:json"` // JSON array of category rule IDs
	Subcategories string  `gorm:"type:json"`
	Specialties   string  `gorm:"type:json"`
	Country       string  `gorm:"size:64"`
	State         string  `gorm:"size:64"`
	City          string  `gorm:"size:64"`
	OverallScore  float64 `gorm:"default:50"`
	Active        bool    `gorm:"default:true;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Client is a known requester, keyed by normalized sender identity.
type Client struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:128"`
	Identity  string `gorm:"size:255;not null;uniqueIndex"`
	Country   string `gorm:"size:64"`
	State     string `gorm:"size:64"`
	City      string `gorm:"size:64"`
	CreatedAt time.Time
}

// ClientOrder is a past purchase from a supplier.
type ClientOrder struct {
	ID         uint    `gorm:"primaryKey;autoIncrement"`
	ClientID   uint    `gorm:"not null;index"`
	SupplierID uint    `gorm:"not null;index"`
	Amount     float64 `gorm:"not null"`
	Currency   string  `gorm:"size:3;default:MXN"`
	OrderedAt  time.Time `gorm:"index"`
	CreatedAt  time.Time
}
