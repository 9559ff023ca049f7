package main

import (
	"strings"
	"testing"
)

func TestRequestListCmd_Empty(t *testing.T) {
	flags := writeConfig(t, "")
	out, err := runCmd(t, append([]string{"request", "list"}, flags...)...)
	if err != nil {
		t.Fatalf("request list: %v", err)
	}
	if !strings.Contains(out, "No requests found.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestRequestCmds(t *testing.T) {
	flags := writeConfig(t, "")
	id := requestID(t, runIntake(t, flags, "ana@acme.mx", "Necesito", "500", "tornillos", "M8"))

	out, err := runCmd(t, append([]string{"req", "list", "--status", "INCOMPLETE_INFORMATION"}, flags...)...)
	if err != nil {
		t.Fatalf("request list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "ana@acme.mx") {
		t.Errorf("list missing request: %s", out)
	}

	out, err = runCmd(t, append([]string{"request", "list", "--channel", "whatsapp"}, flags...)...)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, id) {
		t.Errorf("channel filter ignored: %s", out)
	}

	out, err = runCmd(t, append([]string{"request", "show", id}, flags...)...)
	if err != nil {
		t.Fatalf("request show: %v", err)
	}
	for _, want := range []string{"Request:      " + id, "Missing:      Unit", "Auto-reply:   true", "Messages (2):", ">? "} {
		if !strings.Contains(out, want) {
			t.Errorf("show: expected %q in output:\n%s", want, out)
		}
	}

	out, err = runCmd(t, append([]string{"request", "autoreply", id, "off"}, flags...)...)
	if err != nil {
		t.Fatalf("request autoreply: %v", err)
	}
	if !strings.Contains(out, "Auto-reply off for "+id) {
		t.Errorf("unexpected output: %s", out)
	}
	out, _ = runCmd(t, append([]string{"request", "show", id}, flags...)...)
	if !strings.Contains(out, "Auto-reply:   false") {
		t.Errorf("autoreply not persisted: %s", out)
	}

	out, err = runCmd(t, append([]string{"request", "reevaluate", id}, flags...)...)
	if err != nil {
		t.Fatalf("request reevaluate: %v", err)
	}
	if !strings.Contains(out, "Re-evaluated request "+id) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestRequestAutoReplyCmd_BadValue(t *testing.T) {
	flags := writeConfig(t, "")
	_, err := runCmd(t, append([]string{"request", "autoreply", "abc", "maybe"}, flags...)...)
	if err == nil || !strings.Contains(err.Error(), "on or off") {
		t.Errorf("err = %v, want on/off error", err)
	}
}

func TestRequestShowCmd_NotFound(t *testing.T) {
	flags := writeConfig(t, "")
	if _, err := runCmd(t, append([]string{"request", "show", "does-not-exist"}, flags...)...); err == nil {
		t.Fatal("expected error for unknown request")
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("\n  hola\nsegunda"); got != "hola" {
		t.Errorf("firstLine = %q", got)
	}
}
