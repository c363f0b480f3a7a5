package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/large-farva/task-tracker/internal/config"
	"github.com/large-farva/task-tracker/internal/credentials"
	"github.com/large-farva/task-tracker/internal/protocol"
	"github.com/large-farva/task-tracker/internal/wsclient"
	"github.com/large-farva/task-tracker/internal/wsclient/wstest"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testEnv(t *testing.T) (*Env, *syncBuffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Stream.APIKey = "secret"
	cfg.API.TimeoutSeconds = 3
	out := &syncBuffer{}
	return &Env{
		Config: cfg,
		Store:  credentials.FileStore{Path: filepath.Join(t.TempDir(), "credentials.toml")},
		Log:    zerolog.Nop(),
		Out:    out,
	}, out
}

// apiServer answers every request with reply and records the last one.
func apiServer(t *testing.T, env *Env, reply string) *http.Request {
	t.Helper()
	last := &http.Request{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*last = *r.Clone(context.Background())
		last.Body = io.NopCloser(bytes.NewReader(b))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	env.Config.API.BaseURL = srv.URL
	return last
}

func TestProjects(t *testing.T) {
	env, out := testEnv(t)
	req := apiServer(t, env, `{"items":[{"id":1,"name":"alpha","description":"first"},{"id":2,"name":"beta"}],"total":5,"limit":2,"offset":0}`)

	require.NoError(t, Projects(context.Background(), env, PageOptions{Limit: 2}))

	assert.Equal(t, "/api/projects", req.URL.Path)
	assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
	assert.Contains(t, out.String(), "PROJECTS")
	assert.Contains(t, out.String(), "alpha")
	assert.Contains(t, out.String(), "first")
	assert.Contains(t, out.String(), "showing 1-2 of 5  (next: --offset 2)")
}

func TestProjects_JSON(t *testing.T) {
	env, out := testEnv(t)
	env.JSON = true
	apiServer(t, env, `{"items":[{"id":1,"name":"alpha"}],"total":1}`)

	require.NoError(t, Projects(context.Background(), env, PageOptions{}))

	var got struct {
		Items []struct{ Name string } `json:"items"`
		Total int                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out.String()), &got))
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, "alpha", got.Items[0].Name)
}

func TestTasks(t *testing.T) {
	env, out := testEnv(t)
	req := apiServer(t, env, `{"items":[{"task_id":"t-1","title":"build","status":"running","progress":40,"agent":{"name":"coder"},"project":{"name":"alpha"}}],"total":1}`)

	require.NoError(t, Tasks(context.Background(), env, TasksOptions{Status: "running", Project: "alpha"}))

	assert.Equal(t, "running", req.URL.Query().Get("status"))
	assert.Equal(t, "alpha", req.URL.Query().Get("project_name"))
	assert.Contains(t, out.String(), "running 40%")
	assert.Contains(t, out.String(), "coder")
}

func TestTasks_RejectsUnknownStatus(t *testing.T) {
	env, _ := testEnv(t)
	err := Tasks(context.Background(), env, TasksOptions{Status: "paused"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown status "paused"`)
}

func TestSearch_NeedsCriteria(t *testing.T) {
	env, _ := testEnv(t)
	require.Error(t, Search(context.Background(), env, SearchOptions{}))
}

func TestStats(t *testing.T) {
	env, out := testEnv(t)
	apiServer(t, env, `{"total":3,"by_status":{"failed":1,"completed":2},"avg_duration":1.25,"last":null}`)

	require.NoError(t, Stats(context.Background(), env))

	s := out.String()
	assert.Contains(t, s, "TASK STATISTICS")
	assert.Contains(t, s, "total:")
	assert.Contains(t, s, "avg_duration: 1.25")
	assert.Contains(t, s, "last:")
	// Nested objects are indented under their key.
	assert.Contains(t, s, "    completed: 2")
}

func TestSetSetting_SendsJSONValues(t *testing.T) {
	env, out := testEnv(t)
	req := apiServer(t, env, `{"id":1,"key":"limit","value":5}`)

	require.NoError(t, SetSetting(context.Background(), env, "limit", "5", ""))
	b, _ := io.ReadAll(req.Body)
	assert.JSONEq(t, `{"key":"limit","value":5}`, string(b))
	assert.Contains(t, out.String(), "limit = 5")

	require.NoError(t, SetSetting(context.Background(), env, "theme", "dark", "UI theme"))
	b, _ = io.ReadAll(req.Body)
	assert.JSONEq(t, `{"key":"theme","value":"dark","description":"UI theme"}`, string(b))
}

func TestHealth(t *testing.T) {
	env, out := testEnv(t)
	req := apiServer(t, env, `{"status":"healthy"}`)

	require.NoError(t, Health(context.Background(), env))
	assert.Equal(t, "/health", req.URL.Path)
	assert.Contains(t, out.String(), "HEALTHY")
}

func TestHealth_UnreachableJSON(t *testing.T) {
	env, out := testEnv(t)
	env.JSON = true
	env.Config.API.BaseURL = "http://127.0.0.1:1"

	require.NoError(t, Health(context.Background(), env))
	assert.Contains(t, out.String(), `"healthy": false`)
}

func TestLoginLogout(t *testing.T) {
	env, out := testEnv(t)

	require.ErrorIs(t, Login(env, "  ", ""), credentials.ErrNoAPIKey)

	require.NoError(t, Login(env, "sk-stored", "alpha"))
	assert.Contains(t, out.String(), "credentials saved")

	c, err := env.Store.Credentials()
	require.NoError(t, err)
	assert.Equal(t, credentials.Credentials{APIKey: "sk-stored", Project: "alpha"}, c)

	// Stored credentials fill what the config leaves empty.
	env.Config.Stream.APIKey = ""
	opts := env.StreamOptions()
	m, err := wsclient.New(opts)
	require.NoError(t, err)
	assert.Equal(t, wsclient.StatusDisconnected, m.State().Status)

	require.NoError(t, Logout(env))
	_, err = env.Store.Credentials()
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestConfig_MasksKey(t *testing.T) {
	env, out := testEnv(t)
	env.Config.Stream.APIKey = "sk-0123456789"

	require.NoError(t, Config(env, "/etc/tracker.toml"))
	s := out.String()
	assert.Contains(t, s, "********6789")
	assert.NotContains(t, s, "sk-0123456789")
	assert.Contains(t, s, "[notifications]")
}

func TestConfig_JSONHidesKey(t *testing.T) {
	env, out := testEnv(t)
	env.JSON = true
	env.Config.Stream.APIKey = "sk-0123456789"

	require.NoError(t, Config(env, ""))
	assert.NotContains(t, out.String(), "sk-0123456789")
	assert.Contains(t, out.String(), `"has_api_key": true`)
}

func TestStreamOptions(t *testing.T) {
	env, _ := testEnv(t)
	env.Config.Stream.ReconnectAttempts = 0
	env.Config.Stream.PongTimeoutMS = 500

	opts := env.StreamOptions()
	assert.Equal(t, -1, opts.ReconnectAttempts)
	assert.Equal(t, 3*time.Second, opts.ReconnectInterval)
	assert.Equal(t, 500*time.Millisecond, opts.PongTimeout)
	assert.IsType(t, wsclient.GorillaDialer{}, opts.Dialer)

	env.Config.Stream.Driver = config.DriverCoder
	assert.IsType(t, wsclient.CoderDialer{}, env.StreamOptions().Dialer)
}

func TestSend_InvalidJSONNeverDials(t *testing.T) {
	env, _ := testEnv(t)
	d := wstest.NewFakeDialer()
	env.Dialer = d

	err := Send(context.Background(), env, `{"type":`)
	require.ErrorIs(t, err, wsclient.ErrInvalidJSON)
	assert.Zero(t, d.Dials())
}

func TestSend(t *testing.T) {
	srv, url := wstest.Start(t, "secret")
	env, out := testEnv(t)
	env.Config.Stream.URL = url

	require.NoError(t, Send(context.Background(), env, `{"type":"hello"}`))
	assert.Contains(t, out.String(), "SENT")

	require.Eventually(t, func() bool {
		for _, f := range srv.Received() {
			if string(f) == `{"type":"hello"}` {
				return true
			}
		}
		return false
	}, waitFor, tick)
}

func TestPing(t *testing.T) {
	_, url := wstest.Start(t, "secret")
	env, out := testEnv(t)
	env.Config.Stream.URL = url
	env.JSON = true

	require.NoError(t, Ping(context.Background(), env))

	var res PingResult
	require.NoError(t, json.Unmarshal([]byte(out.String()), &res))
	assert.Equal(t, url, res.URL)
	assert.Positive(t, res.RTT)
}

func TestStatus(t *testing.T) {
	_, url := wstest.Start(t, "secret")
	env, out := testEnv(t)
	env.Config.Stream.URL = url
	env.Config.Stream.Project = "alpha"
	env.JSON = true

	require.NoError(t, Status(context.Background(), env, StatusOptions{}))

	var rep StatusReport
	require.NoError(t, json.Unmarshal([]byte(out.String()), &rep))
	assert.Equal(t, "connected", rep.Status)
	assert.Equal(t, "alpha", rep.Project)
	assert.Equal(t, "user-1", rep.User)
	// Sessions are counted when they end.
	assert.Zero(t, rep.ConnectionCount)
	assert.GreaterOrEqual(t, rep.MessagesReceived, 2)
}

func TestStatus_RejectedKey(t *testing.T) {
	_, url := wstest.Start(t, "secret")
	env, _ := testEnv(t)
	env.Config.Stream.URL = url
	env.Config.Stream.APIKey = "wrong"

	err := Status(context.Background(), env, StatusOptions{})
	require.ErrorIs(t, err, wsclient.ErrAuthFailed)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestStatus_DialFailure(t *testing.T) {
	env, _ := testEnv(t)
	d := wstest.NewFakeDialer()
	d.FailWith(wstest.ErrDialRefused)
	env.Dialer = d

	err := Status(context.Background(), env, StatusOptions{})
	require.ErrorIs(t, err, wstest.ErrDialRefused)
	assert.Equal(t, 1, d.Dials())
}

func startWatch(t *testing.T, env *Env, opts WatchOptions) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Watch(ctx, env, opts) }()
	return func() error {
		stop()
		select {
		case err := <-errc:
			return err
		case <-time.After(waitFor):
			t.Fatal("watch did not return")
			return nil
		}
	}
}

func TestWatch(t *testing.T) {
	srv, url := wstest.Start(t, "secret")
	env, out := testEnv(t)
	env.Config.Stream.URL = url
	alerts := &syncBuffer{}

	stop := startWatch(t, env, WatchOptions{Notify: true, Alerts: alerts})

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "CONNECTED") }, waitFor, tick)

	srv.Emit(protocol.TypeTaskStarted, protocol.TaskStarted{Title: "build", AgentName: "coder", ProjectName: "alpha"})
	srv.Emit(protocol.TypeTaskFinished, protocol.TaskFinished{Title: "build", Status: protocol.TaskCompleted})

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "DONE") }, waitFor, tick)
	assert.Contains(t, out.String(), "STARTED")

	require.Eventually(t, func() bool {
		return strings.Contains(alerts.String(), `Task "build" completed successfully`)
	}, waitFor, tick)

	require.NoError(t, stop())
	assert.Contains(t, out.String(), "disconnecting...")
}

func TestWatch_FilterAndJSON(t *testing.T) {
	srv, url := wstest.Start(t, "secret")
	env, out := testEnv(t)
	env.Config.Stream.URL = url

	stop := startWatch(t, env, WatchOptions{JSON: true, Filter: []string{"task_error"}})
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, waitFor, tick)

	srv.Emit(protocol.TypeTaskStarted, protocol.TaskStarted{Title: "skipped"})
	srv.Emit(protocol.TypeTaskError, protocol.TaskError{Title: "build", ErrorMessage: "boom"})

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "boom") }, waitFor, tick)
	require.NoError(t, stop())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	m, err := protocol.Decode([]byte(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeTaskError, m.Type)
}

func TestWatch_RejectedKeyEnds(t *testing.T) {
	_, url := wstest.Start(t, "secret")
	env, _ := testEnv(t)
	env.Config.Stream.URL = url
	env.Config.Stream.APIKey = "wrong"

	err := Watch(context.Background(), env, WatchOptions{})
	require.ErrorIs(t, err, wsclient.ErrAuthFailed)
}
