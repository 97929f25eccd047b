package telemetry

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestWriteKeepsReservedKeys(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Warn("outbox.flush", map[string]any{"msg": "overridden", "pool_id": 7})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "outbox.flush" {
		t.Fatalf("expected msg to win over fields, got %v", entry["msg"])
	}
	if entry["level"] != "warn" {
		t.Fatalf("expected warn level, got %v", entry["level"])
	}
	if entry["pool_id"] != float64(7) {
		t.Fatalf("expected pool_id field, got %v", entry["pool_id"])
	}
}
