package views_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/task-tracker/internal/hub"
	"github.com/large-farva/task-tracker/internal/protocol"
	"github.com/large-farva/task-tracker/internal/views"
	"github.com/large-farva/task-tracker/internal/wsclient"
	"github.com/large-farva/task-tracker/internal/wsclient/wstest"
)

func startHub(t *testing.T) (*hub.Hub, *wstest.FakeConn, context.CancelFunc) {
	t.Helper()

	d := wstest.NewFakeDialer()
	d.AutoAuth(true)
	h, err := hub.New(hub.Options{Stream: wsclient.Options{APIKey: "k", Dialer: d}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	require.Eventually(t, func() bool { return h.State().IsConnected() }, 2*time.Second, 5*time.Millisecond)
	return h, d.Last(), cancel
}

func TestLast_ScansHistory(t *testing.T) {
	h, c, _ := startHub(t)

	c.Emit(protocol.TypeTaskStarted, protocol.TaskStarted{TaskID: "t-1"})
	c.Emit(protocol.TypeTaskStarted, protocol.TaskStarted{TaskID: "t-2"})
	c.Emit(protocol.TypeTaskError, protocol.TaskError{TaskID: "t-2", ErrorMessage: "boom"})
	require.Eventually(t, func() bool { return h.Stats().MessagesReceived == 4 }, time.Second, 5*time.Millisecond)

	started, ok := views.Last[protocol.TaskStarted](h)
	require.True(t, ok)
	assert.Equal(t, "t-2", started.Data.TaskID)

	errEv, ok := views.Last[protocol.TaskError](h)
	require.True(t, ok)
	assert.Equal(t, "boom", errEv.Data.ErrorMessage)

	_, ok = views.Last[protocol.TaskFinished](h)
	assert.False(t, ok)
}

func TestLast_UsesLastMessageAfterClear(t *testing.T) {
	h, c, _ := startHub(t)
	c.Emit(protocol.TypeTaskFinished, protocol.TaskFinished{Title: "a", Status: protocol.TaskCompleted})
	require.Eventually(t, func() bool { return h.Stats().MessagesReceived == 2 }, time.Second, 5*time.Millisecond)

	h.ClearHistory()
	ev, ok := views.Last[protocol.TaskFinished](h)
	require.True(t, ok)
	assert.Equal(t, "a", ev.Data.Title)
}

func TestHistory_FiltersByType(t *testing.T) {
	h, c, _ := startHub(t)
	c.Emit(protocol.TypeTaskStarted, protocol.TaskStarted{TaskID: "a"})
	c.Emit(protocol.TypeTaskError, protocol.TaskError{TaskID: "a"})
	c.Emit(protocol.TypeTaskStarted, protocol.TaskStarted{TaskID: "b"})
	require.Eventually(t, func() bool { return h.Stats().MessagesReceived == 4 }, time.Second, 5*time.Millisecond)

	got := views.History[protocol.TaskStarted](h)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Data.TaskID)
	assert.Equal(t, "b", got[1].Data.TaskID)

	assert.Len(t, views.History[protocol.Connection](h), 1)
}

func TestConnection(t *testing.T) {
	h, _, _ := startHub(t)

	info := views.Connection(h)
	assert.Equal(t, wsclient.StatusConnected, info.Status)
	assert.True(t, info.IsConnected)
	assert.False(t, info.IsConnecting)
	assert.Equal(t, 1, info.MessagesReceived)
	assert.Equal(t, 1, info.HistoryLen)
	assert.False(t, info.LastConnectedAt.IsZero())
}

func TestPanicsOutsideLifetime(t *testing.T) {
	assert.PanicsWithValue(t, views.ErrNotLive, func() { views.Connection(nil) })
	assert.PanicsWithValue(t, views.ErrNotLive, func() { views.Last[protocol.Pong](nil) })

	h, _, cancel := startHub(t)
	cancel()
	<-h.Done()

	assert.PanicsWithValue(t, views.ErrNotLive, func() { views.History[protocol.TaskStarted](h) })
	assert.PanicsWithValue(t, views.ErrNotLive, func() { views.Connection(h) })
}
