package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/rfqdesk/internal/config"
	"github.com/zulandar/rfqdesk/internal/db"
	"github.com/zulandar/rfqdesk/internal/telegraph"
	"gorm.io/gorm"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "outbox.db")})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatal(err)
	}
	return gormDB
}

func TestOutboxCmds(t *testing.T) {
	flags := writeConfig(t, "telegraph:\n  commands:\n    email: \"cat > /dev/null\"\n")
	id := requestID(t, runIntake(t, flags, "ana@acme.mx", "Necesito", "500", "tornillos", "M8"))

	out, err := runCmd(t, append([]string{"outbox", "list"}, flags...)...)
	if err != nil {
		t.Fatalf("outbox list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "ana@acme.mx") {
		t.Errorf("queued reply not listed:\n%s", out)
	}

	out, err = runCmd(t, append([]string{"outbox", "flush"}, flags...)...)
	if err != nil {
		t.Fatalf("outbox flush: %v", err)
	}
	if !strings.Contains(out, "Delivered 1, failed 0") {
		t.Errorf("unexpected flush output:\n%s", out)
	}

	out, err = runCmd(t, append([]string{"outbox", "list"}, flags...)...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Outbox is empty.") {
		t.Errorf("reply still queued after flush:\n%s", out)
	}
}

func TestOutboxFlushCmd_FailedDeliveryStaysQueued(t *testing.T) {
	flags := writeConfig(t, "telegraph:\n  commands:\n    email: \"exit 3\"\n")
	runIntake(t, flags, "ana@acme.mx", "Necesito", "500", "tornillos", "M8")

	out, err := runCmd(t, append([]string{"outbox", "flush"}, flags...)...)
	if err != nil {
		t.Fatalf("outbox flush: %v", err)
	}
	if !strings.Contains(out, "Delivered 0, failed 1") {
		t.Errorf("unexpected flush output:\n%s", out)
	}
	out, _ = runCmd(t, append([]string{"outbox", "list"}, flags...)...)
	if strings.Contains(out, "Outbox is empty.") {
		t.Error("failed reply was dropped from the outbox")
	}
}

func TestOutboxFlushCmd_NoDelivery(t *testing.T) {
	flags := writeConfig(t, "")
	_, err := runCmd(t, append([]string{"outbox", "flush"}, flags...)...)
	if err == nil || !strings.Contains(err.Error(), "no delivery configured") {
		t.Errorf("err = %v, want no delivery configured", err)
	}
}

func TestNewAdapter(t *testing.T) {
	cfg := config.Default()
	a, err := newAdapter(cfg)
	if err != nil || a != nil {
		t.Fatalf("no platform: adapter = %v, err = %v", a, err)
	}

	cfg.Telegraph.Platform = "slack"
	cfg.Telegraph.Slack = config.SlackConfig{AppToken: "xapp-1", BotToken: "xoxb-1"}
	if a, err = newAdapter(cfg); err != nil || a == nil {
		t.Fatalf("slack: adapter = %v, err = %v", a, err)
	}

	cfg.Telegraph.Platform = "discord"
	cfg.Telegraph.Discord.BotToken = "token"
	if a, err = newAdapter(cfg); err != nil || a == nil {
		t.Fatalf("discord: adapter = %v, err = %v", a, err)
	}

	cfg.Telegraph.Platform = "irc"
	if _, err = newAdapter(cfg); err == nil {
		t.Fatal("expected error for unsupported platform")
	}
}

func TestNewOutbox_Sources(t *testing.T) {
	cfg := config.Default()
	cfg.Telegraph.Platform = "slack"
	cfg.Telegraph.Commands = map[string]string{"email": "true", "webform": "true"}
	cmd := newRootCmd()
	ob, err := newOutbox(cfg, testDB(t), telegraph.NewMockAdapter(), cmd)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(ob.Sources(), ",")
	if got != "email,slack,webform" {
		t.Errorf("Sources = %s", got)
	}
}
