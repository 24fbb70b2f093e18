package infra

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseProjectID(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		return p
	}

	got, err := parseProjectID(write("ok.json", `{"type":"service_account","project_id":"school-bus-1"}`))
	if err != nil || got != "school-bus-1" {
		t.Errorf("parseProjectID = %q, %v", got, err)
	}
	if _, err := parseProjectID(write("empty.json", `{"type":"service_account"}`)); err == nil {
		t.Error("expected error for missing project_id")
	}
	if _, err := parseProjectID(write("bad.json", `{`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := parseProjectID(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
