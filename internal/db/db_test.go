package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/rfqdesk/internal/config"
	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

// --- DSN ---

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want []string
	}{
		{
			name: "mysql",
			cfg:  config.DatabaseConfig{Driver: "mysql", Host: "10.0.0.5", Port: 3307, User: "rfq", Password: "pw", Name: "rfq_prod"},
			want: []string{"rfq:pw@tcp(10.0.0.5:3307)/rfq_prod", "parseTime=true"},
		},
		{
			name: "postgres",
			cfg:  config.DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "rfq", Password: "pw", Name: "rfq", SSLMode: "disable"},
			want: []string{"host=db", "port=5432", "user=rfq", "dbname=rfq", "sslmode=disable"},
		},
		{
			name: "sqlite",
			cfg:  config.DatabaseConfig{Driver: "sqlite", Path: "/tmp/rfq.db"},
			want: []string{"/tmp/rfq.db"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DSN(tt.cfg)
			if err != nil {
				t.Fatalf("DSN: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("DSN() = %q, want to contain %q", got, w)
				}
			}
		})
	}
}

func TestDSN_Errors(t *testing.T) {
	if _, err := DSN(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
	if _, err := DSN(config.DatabaseConfig{Driver: "sqlite"}); err == nil {
		t.Error("expected error for sqlite without path")
	}
}

func TestConnect_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rfq.db")
	db, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("sqlite file not created: %v", err)
	}
}

func TestConnectAdmin_RequiresMySQL(t *testing.T) {
	_, err := ConnectAdmin(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err == nil || !strings.Contains(err.Error(), "only supported for mysql") {
		t.Errorf("err = %v, want mysql-only error", err)
	}
}

// --- Migrate ---

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 7 {
		t.Errorf("AllModels() returned %d models, want 7", got)
	}
}

func TestAutoMigrate_CreatesTables(t *testing.T) {
	db := testDB(t)
	for _, m := range AllModels() {
		if !db.Migrator().HasTable(m) {
			t.Errorf("table for %T missing", m)
		}
	}
}

func TestMarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  string
	}{
		{"nil returns empty array", nil, "[]"},
		{"empty slice", []string{}, "[]"},
		{"values", []string{"fasteners", "electrical"}, `["fasteners","electrical"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := marshalJSON(tt.input)
			if err != nil {
				t.Fatalf("marshalJSON: %v", err)
			}
			if got != tt.want {
				t.Errorf("marshalJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- Seed ---

const seedYAML = `
suppliers:
  - name: Tornillería del Norte
    categories: [fasteners]
    specialties: [tornillo]
    country: MX
    state: Nuevo Leon
    city: Monterrey
    overall_score: 80
  - name: Old Supply Co
    categories: [fasteners]
    inactive: true
clients:
  - name: Constructora Alfa
    identity: compras@alfa.mx
    country: MX
    state: Nuevo Leon
    city: Monterrey
orders:
  - client: compras@alfa.mx
    supplier: Tornillería del Norte
    amount: 12000
    ordered_at: 2024-05-01T00:00:00Z
quotes:
  - rfq: req-1
    supplier: Tornillería del Norte
    total: 100
    delivery_days: 5
    items:
      - description: tornillo M8
        quantity: 500
        unit: pieces
        unit_price: 0.2
        line_total: 100
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSeed(t *testing.T) {
	db := testDB(t)
	sf, err := LoadSeedFile(writeSeed(t, seedYAML))
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	counts, err := Seed(db, sf)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if counts != (SeedCounts{Suppliers: 2, Clients: 1, Orders: 1, Quotes: 1}) {
		t.Errorf("counts = %+v", counts)
	}

	var s models.Supplier
	db.Where("name = ?", "Tornillería del Norte").First(&s)
	if s.Categories != `["fasteners"]` || s.Subcategories != "[]" || s.OverallScore != 80 || !s.Active {
		t.Errorf("supplier = %+v", s)
	}
	var old models.Supplier
	db.Where("name = ?", "Old Supply Co").First(&old)
	if old.Active {
		t.Error("inactive supplier stored as active")
	}
	if old.OverallScore != 50 {
		t.Errorf("default overall score = %v, want 50", old.OverallScore)
	}

	var q models.Quote
	if err := db.Preload("Items").Where("rfq_id = ?", "req-1").First(&q).Error; err != nil {
		t.Fatalf("load quote: %v", err)
	}
	if q.Status != "submitted" || q.SupplierID != s.ID || len(q.Items) != 1 {
		t.Errorf("quote = %+v", q)
	}
}

func TestSeed_IsIdempotentForSuppliers(t *testing.T) {
	db := testDB(t)
	sf := &SeedFile{Suppliers: []SupplierSeed{{Name: "Acme", OverallScore: 60}}}
	if _, err := Seed(db, sf); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	sf.Suppliers[0].OverallScore = 70
	if _, err := Seed(db, sf); err != nil {
		t.Fatalf("Seed again: %v", err)
	}
	var all []models.Supplier
	db.Find(&all)
	if len(all) != 1 || all[0].OverallScore != 70 {
		t.Errorf("suppliers = %+v, want one row with score 70", all)
	}
}

func TestSeed_UnknownReferenceRollsBack(t *testing.T) {
	db := testDB(t)
	sf := &SeedFile{
		Suppliers: []SupplierSeed{{Name: "Acme"}},
		Orders:    []OrderSeed{{Client: "nobody@example.com", Supplier: "Acme", Amount: 10}},
	}
	_, err := Seed(db, sf)
	if err == nil || !strings.Contains(err.Error(), "nobody@example.com") {
		t.Fatalf("err = %v, want unknown client error", err)
	}
	var n int64
	db.Model(&models.Supplier{}).Count(&n)
	if n != 0 {
		t.Errorf("suppliers = %d after failed seed, want 0", n)
	}
}

func TestLoadSeedFile_Errors(t *testing.T) {
	if _, err := LoadSeedFile("/nonexistent/seed.yaml"); err == nil {
		t.Error("expected read error")
	}
	if _, err := LoadSeedFile(writeSeed(t, "suppliers: [unclosed")); err == nil {
		t.Error("expected parse error")
	}
}
