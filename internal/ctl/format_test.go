package ctl

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/task-tracker/internal/protocol"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{2*time.Minute + 5*time.Second, "2m 5s"},
		{2*time.Hour + 14*time.Minute + 8*time.Second, "2h 14m 8s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "-", formatSeconds(nil))
	short := 2.5
	assert.Equal(t, "2.5s", formatSeconds(&short))
	long := 125.0
	assert.Equal(t, "2m 5s", formatSeconds(&long))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", formatTime("", time.TimeOnly))
	assert.Equal(t, "garbage", formatTime("garbage", time.TimeOnly))

	ts := "2026-03-01T12:30:45.123Z"
	want := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC).Local().Format(time.TimeOnly)
	assert.Equal(t, want, formatTime(ts, time.TimeOnly))

	// The API serialises naive UTC timestamps.
	naive := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC).Local().Format(time.DateTime)
	assert.Equal(t, naive, formatTime("2026-03-01T12:30:45.123456", time.DateTime))
}

func TestPadRightAndProgressBar(t *testing.T) {
	assert.Equal(t, "ab   ", padRight("ab", 5))
	assert.Equal(t, "abcdef", padRight("abcdef", 3))

	assert.Equal(t, "=====     ", progressBar(50, 10))
	assert.Equal(t, "==========", progressBar(150, 10))
	assert.Equal(t, "          ", progressBar(-5, 10))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "-", maskKey(""))
	assert.Equal(t, "***", maskKey("abc"))
	assert.Equal(t, "********3456", maskKey("sk-0123456"))
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	tw := newTable(&buf, "  ", "Name", "Count")
	tw.row("alpha", "1")
	tw.row("beta-project", "22")
	tw.flush()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "  "), "line %q is not indented", l)
	}
	assert.Contains(t, lines[0], "Name")
	assert.Contains(t, lines[2], "beta-project")
	// Columns line up.
	assert.Equal(t, strings.Index(lines[1], "1"), strings.Index(lines[2], "22"))
}

func render(t *testing.T, frame string) string {
	t.Helper()
	m, err := protocol.Decode([]byte(frame))
	require.NoError(t, err)

	var buf bytes.Buffer
	r := &eventRenderer{w: &buf}
	protocol.Dispatch(m, r.at(m))
	return buf.String()
}

func TestRenderEvents(t *testing.T) {
	out := render(t, `{"type":"task_started","timestamp":"2026-03-01T12:00:00Z","data":{"title":"build","agent_name":"coder","project_name":"alpha"}}`)
	assert.Contains(t, out, "STARTED")
	assert.Contains(t, out, "build  coder @ alpha")

	out = render(t, `{"type":"task_status_updated","data":{"title":"build","old_status":"pending","new_status":"running","progress":50}}`)
	assert.Contains(t, out, "pending -> running")
	assert.Contains(t, out, "[==========          ]  50%")

	out = render(t, `{"type":"task_finished","data":{"title":"build","status":"failed","error_message":"boom","duration_seconds":1.5}}`)
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "build  1.5s  boom")

	out = render(t, `{"type":"task_finished","data":{"title":"build","status":"completed"}}`)
	assert.Contains(t, out, "DONE")

	out = render(t, `{"type":"task_error","data":{"title":"build","error_message":"disk full","error_type":"IOError"}}`)
	assert.Contains(t, out, "build: disk full  (IOError)")

	out = render(t, `{"type":"connection","data":{"status":"authenticated","message":"Authenticated","project_name":"alpha"}}`)
	assert.Contains(t, out, "authenticated")
	assert.Contains(t, out, "project alpha")

	out = render(t, `{"type":"pong","timestamp":"x"}`)
	assert.Contains(t, out, "pong")
}

func TestRenderUnknownDumpsJSON(t *testing.T) {
	out := render(t, `{"type":"agent_registered","data":{"name":"coder"}}`)
	assert.Contains(t, out, `"type": "agent_registered"`)
	assert.Contains(t, out, `"name": "coder"`)
}
