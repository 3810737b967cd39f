package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		desc    string
		in      string
		want    Level
		wantErr bool
	}{
		{desc: "empty defaults to info", in: "", want: LevelInfo},
		{desc: "debug", in: "debug", want: LevelDebug},
		{desc: "case and spaces", in: " WARN ", want: LevelWarn},
		{desc: "warning alias", in: "warning", want: LevelWarn},
		{desc: "error", in: "error", want: LevelError},
		{desc: "unknown", in: "loud", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLogger_WritesStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "provisioner", func(context.Context) string { return "trace-1" })

	log.Debug(context.Background(), "dropped")
	log.With("component", "breaker").Warn(context.Background(), "threshold reached", "count", 3)

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1, "debug is below the minimum level")
	rec := recs[0]
	assert.Equal(t, "threshold reached", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "provisioner", rec["service"])
	assert.Equal(t, "breaker", rec["component"])
	assert.Equal(t, float64(3), rec["count"])
	assert.Equal(t, "trace-1", rec["trace_id"])
	assert.Contains(t, rec["file"], "logger_test.go")
}

func TestLoggerContext_AccumulatesKeys(t *testing.T) {
	var buf bytes.Buffer
	lc := NewLoggerContext(New(&buf, LevelDebug, "provisioner", nil))

	lc.Add("operation_id", "op-1")
	lc.Add("system_id", "sys-1", "dangling")
	lc.Info(context.Background(), "reconciled", "type", "UPDATE")
	lc.Clear()
	lc.Error(context.Background(), "failed")

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "op-1", recs[0]["operation_id"])
	assert.Equal(t, "sys-1", recs[0]["system_id"])
	assert.Equal(t, "UPDATE", recs[0]["type"])
	assert.NotContains(t, recs[0], "dangling")
	assert.NotContains(t, recs[1], "operation_id")
	assert.Equal(t, "ERROR", recs[1]["level"])
}
