package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestJSONHandlerNormalizesRecordKeys(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)

	logger := slog.New(newJSONHandler(&buf, lvl, false))
	logger.Warn("upload stalled", String("remote_id", "obj-7"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v (%s)", err, buf.String())
	}
	if record["level"] != "warn" {
		t.Fatalf("level = %v, want lowercase warn", record["level"])
	}
	if record["msg"] != "upload stalled" {
		t.Fatalf("msg = %v", record["msg"])
	}
	if _, ok := record["ts"].(string); !ok {
		t.Fatalf("ts missing or not a string: %v", record["ts"])
	}
	if record["remote_id"] != "obj-7" {
		t.Fatalf("remote_id = %v", record["remote_id"])
	}
}
