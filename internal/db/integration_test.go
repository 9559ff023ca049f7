//go:build integration

package db

import (
	"os"
	"strconv"
	"testing"

	"github.com/zulandar/rfqdesk/internal/config"
)

// mysqlConfig reads a MySQL server from RFQ_TEST_MYSQL_* variables and skips
// the test when none is configured.
func mysqlConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	host := os.Getenv("RFQ_TEST_MYSQL_HOST")
	if host == "" {
		t.Skip("RFQ_TEST_MYSQL_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("RFQ_TEST_MYSQL_PORT"))
	if port == 0 {
		port = 3306
	}
	return config.DatabaseConfig{
		Driver:   "mysql",
		Host:     host,
		Port:     port,
		User:     os.Getenv("RFQ_TEST_MYSQL_USER"),
		Password: os.Getenv("RFQ_TEST_MYSQL_PASSWORD"),
		Name:     "rfqdesk_integration",
	}
}

func TestIntegration_MySQLMigrateAndSeed(t *testing.T) {
	cfg := mysqlConfig(t)

	admin, err := ConnectAdmin(cfg)
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	if err := CreateDatabase(admin, cfg.Name); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	t.Cleanup(func() { admin.Exec("DROP DATABASE IF EXISTS `" + cfg.Name + "`") })

	db, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	counts, err := Seed(db, &SeedFile{
		Suppliers: []SupplierSeed{{Name: "Acme", Categories: []string{"fasteners"}}},
		Clients:   []ClientSeed{{Identity: "compras@alfa.mx"}},
	})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if counts.Suppliers != 1 || counts.Clients != 1 {
		t.Errorf("counts = %+v", counts)
	}
}
