package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Connection(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"connection","data":{"status":"authenticated","message":"ok","project_name":"alpha"},"timestamp":"2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)

	assert.Equal(t, TypeConnection, msg.Type)
	assert.Equal(t, "2024-01-01T00:00:00Z", msg.Timestamp)
	conn, ok := msg.Data.(Connection)
	require.True(t, ok)
	assert.Equal(t, ConnectionAuthenticated, conn.Status)
	assert.Equal(t, "ok", conn.Message)
	assert.Equal(t, "alpha", conn.ProjectName)
}

func TestDecode_TaskFinishedOptionalFields(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"task_finished","timestamp":"t","data":{"task_id":"t-1","title":"build","status":"failed","duration_seconds":12.5,"result":{"files":3},"error_message":"boom"}}`))
	require.NoError(t, err)

	ev, ok := As[TaskFinished](msg)
	require.True(t, ok)
	assert.Equal(t, TaskFailed, ev.Data.Status)
	require.NotNil(t, ev.Data.DurationSeconds)
	assert.InDelta(t, 12.5, *ev.Data.DurationSeconds, 0.001)
	assert.JSONEq(t, `{"files":3}`, string(ev.Data.Result))
	assert.Equal(t, "boom", ev.Data.ErrorMessage)
}

func TestDecode_UnknownTypeIsKept(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"task_progress","timestamp":"t","data":{"pct":10}}`))
	require.NoError(t, err)

	u, ok := msg.Data.(Unknown)
	require.True(t, ok)
	assert.Equal(t, Type("task_progress"), u.Kind)
	assert.Equal(t, Type("task_progress"), msg.Data.MessageType())
	assert.JSONEq(t, `{"pct":10}`, string(u.Data))
}

func TestDecode_PongWithoutData(t *testing.T) {
	// The tracker server replies with the ping frame in a top-level
	// timestamp and no data object.
	msg, err := Decode([]byte(`{"type":"pong","message":"pong","timestamp":"{\"type\":\"ping\"}"}`))
	require.NoError(t, err)
	assert.Equal(t, Pong{}, msg.Data)
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `not json`,
		"json string":   `"not json"`,
		"missing type":  `{"data":{}}`,
		"wrong shape":   `{"type":"task_started","data":[1,2,3]}`,
		"wrong field":   `{"type":"connection","data":{"status":7}}`,
		"truncated":     `{"type":"pong"`,
		"empty payload": ``,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(frame))
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecode_KeepsRawFrame(t *testing.T) {
	frame := []byte(`{"type":"pong","timestamp":"t","data":{"timestamp":"x"}}`)
	msg, err := Decode(frame)
	require.NoError(t, err)

	frame[2] = 'X'
	assert.JSONEq(t, `{"type":"pong","timestamp":"t","data":{"timestamp":"x"}}`, string(msg.Raw))
}

type recordingHandler struct {
	NopHandler
	seen []Type
}

func (r *recordingHandler) TaskStarted(m Message, _ TaskStarted) { r.seen = append(r.seen, m.Type) }
func (r *recordingHandler) Unknown(m Message, _ Unknown)         { r.seen = append(r.seen, m.Type) }

func TestDispatch_CallsMatchingMethod(t *testing.T) {
	h := &recordingHandler{}
	for _, frame := range []string{
		`{"type":"task_started","data":{"title":"a"}}`,
		`{"type":"pong"}`,
		`{"type":"something_new"}`,
	} {
		msg, err := Decode([]byte(frame))
		require.NoError(t, err)
		Dispatch(msg, h)
	}
	assert.Equal(t, []Type{TypeTaskStarted, "something_new"}, h.seen)
}

func TestAs_WrongType(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"task_error","data":{"error_message":"x"}}`))
	require.NoError(t, err)

	_, ok := As[TaskStarted](msg)
	assert.False(t, ok)
	ev, ok := As[TaskError](msg)
	assert.True(t, ok)
	assert.Equal(t, "x", ev.Data.ErrorMessage)
}

func TestPing_Envelope(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 30, 0, 0, time.FixedZone("X", 3600))
	b, err := json.Marshal(Ping(at))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping","timestamp":"2024-01-01T11:30:00.000Z"}`, string(b))
}
