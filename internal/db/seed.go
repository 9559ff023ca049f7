package db

import (
	"fmt"
	"os"
	"time"

	"github.com/zulandar/rfqdesk/internal/models"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedFile is the YAML layout accepted by Seed.
type SeedFile struct {
	Suppliers []SupplierSeed `yaml:"suppliers"`
	Clients   []ClientSeed   `yaml:"clients"`
	Orders    []OrderSeed    `yaml:"orders"`
	Quotes    []QuoteSeed    `yaml:"quotes"`
}

// SupplierSeed describes one supplier row.
type SupplierSeed struct {
	Name          string   `yaml:"name"`
	Email         string   `yaml:"email"`
	Phone         string   `yaml:"phone"`
	Categories    []string `yaml:"categories"`
	Subcategories []string `yaml:"subcategories"`
	Specialties   []string `yaml:"specialties"`
	Country       string   `yaml:"country"`
	State         string   `yaml:"state"`
	City          string   `yaml:"city"`
	OverallScore  float64  `yaml:"overall_score"`
	Inactive      bool     `yaml:"inactive"`
}

// ClientSeed describes one client row.
type ClientSeed struct {
	Name     string `yaml:"name"`
	Identity string `yaml:"identity"`
	Country  string `yaml:"country"`
	State    string `yaml:"state"`
	City     string `yaml:"city"`
}

// OrderSeed is a past order referencing a client identity and supplier name.
type OrderSeed struct {
	Client    string    `yaml:"client"`
	Supplier  string    `yaml:"supplier"`
	Amount    float64   `yaml:"amount"`
	Currency  string    `yaml:"currency"`
	OrderedAt time.Time `yaml:"ordered_at"`
}

// QuoteSeed is a supplier quote for an RFQ.
type QuoteSeed struct {
	RFQ            string          `yaml:"rfq"`
	Supplier       string          `yaml:"supplier"`
	Status         string          `yaml:"status"`
	Subtotal       float64         `yaml:"subtotal"`
	Taxes          float64         `yaml:"taxes"`
	Shipping       float64         `yaml:"shipping"`
	Total          float64         `yaml:"total"`
	Currency       string          `yaml:"currency"`
	DeliveryDays   int             `yaml:"delivery_days"`
	PaymentTerms   string          `yaml:"payment_terms"`
	WarrantyMonths int             `yaml:"warranty_months"`
	Availability   string          `yaml:"availability"`
	Items          []QuoteItemSeed `yaml:"items"`
}

// QuoteItemSeed is one quote line.
type QuoteItemSeed struct {
	Description string  `yaml:"description"`
	Quantity    float64 `yaml:"quantity"`
	Unit        string  `yaml:"unit"`
	UnitPrice   float64 `yaml:"unit_price"`
	LineTotal   float64 `yaml:"line_total"`
}

// LoadSeedFile reads and parses a seed YAML file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("db: read seed %s: %w", path, err)
	}
	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("db: parse seed %s: %w", path, err)
	}
	return &sf, nil
}

// SeedCounts reports how many rows of each kind Seed wrote.
type SeedCounts struct {
	Suppliers, Clients, Orders, Quotes int
}

// Seed upserts suppliers and clients by their natural keys, then inserts
// orders and quotes referencing them. It runs in one transaction.
func Seed(db *gorm.DB, sf *SeedFile) (SeedCounts, error) {
	var counts SeedCounts
	err := db.Transaction(func(tx *gorm.DB) error {
		supplierIDs := make(map[string]uint)
		for _, s := range sf.Suppliers {
			id, err := seedSupplier(tx, s)
			if err != nil {
				return err
			}
			supplierIDs[s.Name] = id
			counts.Suppliers++
		}

		clientIDs := make(map[string]uint)
		for _, c := range sf.Clients {
			id, err := seedClient(tx, c)
			if err != nil {
				return err
			}
			clientIDs[c.Identity] = id
			counts.Clients++
		}

		for i, o := range sf.Orders {
			clientID, err := lookupID(tx, clientIDs, &models.Client{}, "identity", o.Client)
			if err != nil {
				return fmt.Errorf("db: seed orders[%d]: client %q: %w", i, o.Client, err)
			}
			supplierID, err := lookupID(tx, supplierIDs, &models.Supplier{}, "name", o.Supplier)
			if err != nil {
				return fmt.Errorf("db: seed orders[%d]: supplier %q: %w", i, o.Supplier, err)
			}
			row := models.ClientOrder{
				ClientID:   clientID,
				SupplierID: supplierID,
				Amount:     o.Amount,
				Currency:   defaultString(o.Currency, "MXN"),
				OrderedAt:  o.OrderedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("db: seed orders[%d]: %w", i, err)
			}
			counts.Orders++
		}

		for i, q := range sf.Quotes {
			supplierID, err := lookupID(tx, supplierIDs, &models.Supplier{}, "name", q.Supplier)
			if err != nil {
				return fmt.Errorf("db: seed quotes[%d]: supplier %q: %w", i, q.Supplier, err)
			}
			row := models.Quote{
				RFQID:          q.RFQ,
				SupplierID:     supplierID,
				Status:         defaultString(q.Status, models.QuoteSubmitted),
				Subtotal:       q.Subtotal,
				Taxes:          q.Taxes,
				Shipping:       q.Shipping,
				Total:          q.Total,
				Currency:       defaultString(q.Currency, "MXN"),
				DeliveryDays:   q.DeliveryDays,
				PaymentTerms:   q.PaymentTerms,
				WarrantyMonths: q.WarrantyMonths,
				Availability:   q.Availability,
			}
			for _, it := range q.Items {
				row.Items = append(row.Items, models.QuoteItem{
					Description: it.Description,
					Quantity:    it.Quantity,
					Unit:        it.Unit,
					UnitPrice:   it.UnitPrice,
					LineTotal:   it.LineTotal,
				})
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("db: seed quotes[%d]: %w", i, err)
			}
			counts.Quotes++
		}
		return nil
	})
	return counts, err
}

func seedSupplier(tx *gorm.DB, s SupplierSeed) (uint, error) {
	if s.Name == "" {
		return 0, fmt.Errorf("db: seed supplier: name is required")
	}
	cats, err := marshalJSON(s.Categories)
	if err != nil {
		return 0, fmt.Errorf("db: marshal categories for supplier %q: %w", s.Name, err)
	}
	subs, err := marshalJSON(s.Subcategories)
	if err != nil {
		return 0, fmt.Errorf("db: marshal subcategories for supplier %q: %w", s.Name, err)
	}
	specs, err := marshalJSON(s.Specialties)
	if err != nil {
		return 0, fmt.Errorf("db: marshal specialties for supplier %q: %w", s.Name, err)
	}
	score := s.OverallScore
	if score == 0 {
		score = 50
	}
	row := models.Supplier{
		Name:          s.Name,
		Email:         s.Email,
		Phone:         s.Phone,
		Categories:    cats,
		Subcategories: subs,
		Specialties:   specs,
		Country:       s.Country,
		State:         s.State,
		City:          s.City,
		OverallScore:  score,
		Active:        !s.Inactive,
	}
	result := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "phone", "categories", "subcategories", "specialties",
			"country", "state", "city", "overall_score", "active",
		}),
	}).Create(&row)
	if result.Error != nil {
		return 0, fmt.Errorf("db: seed supplier %q: %w", s.Name, result.Error)
	}
	// Active defaults to true in the schema, so a zero value is written explicitly.
	if s.Inactive {
		if err := tx.Model(&models.Supplier{}).Where("name = ?", s.Name).Update("active", false).Error; err != nil {
			return 0, fmt.Errorf("db: deactivate supplier %q: %w", s.Name, err)
		}
	}
	var saved models.Supplier
	if err := tx.Where("name = ?", s.Name).First(&saved).Error; err != nil {
		return 0, fmt.Errorf("db: reload supplier %q: %w", s.Name, err)
	}
	return saved.ID, nil
}

func seedClient(tx *gorm.DB, c ClientSeed) (uint, error) {
	if c.Identity == "" {
		return 0, fmt.Errorf("db: seed client: identity is required")
	}
	row := models.Client{
		Name:     c.Name,
		Identity: c.Identity,
		Country:  c.Country,
		State:    c.State,
		City:     c.City,
	}
	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "country", "state", "city"}),
	}).Create(&row)
	if result.Error != nil {
		return 0, fmt.Errorf("db: seed client %q: %w", c.Identity, result.Error)
	}
	var saved models.Client
	if err := tx.Where("identity = ?", c.Identity).First(&saved).Error; err != nil {
		return 0, fmt.Errorf("db: reload client %q: %w", c.Identity, err)
	}
	return saved.ID, nil
}

// lookupID resolves a natural key from the current seed batch or the database.
func lookupID(tx *gorm.DB, known map[string]uint, model interface{}, column, key string) (uint, error) {
	if id, ok := known[key]; ok {
		return id, nil
	}
	var row struct{ ID uint }
	if err := tx.Model(model).Select("id").Where(column+" = ?", key).Take(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
