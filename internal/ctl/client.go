package ctl

import (
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/large-farva/task-tracker/internal/api"
	"github.com/large-farva/task-tracker/internal/config"
	"github.com/large-farva/task-tracker/internal/credentials"
	"github.com/large-farva/task-tracker/internal/hub"
	"github.com/large-farva/task-tracker/internal/notify"
	"github.com/large-farva/task-tracker/internal/wsclient"
)

// Env carries what every command needs: the loaded configuration, the
// credentials store, a logger and the output stream.
type Env struct {
	Config config.Config
	Store  credentials.FileStore
	Log    zerolog.Logger
	JSON   bool
	Out    io.Writer

	// Dialer overrides the dialer chosen by stream.driver.
	Dialer wsclient.Dialer
}

func (e *Env) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

// credentials resolves the api key and project from the config, falling
// back to the credentials store.
func (e *Env) credentials() (credentials.Credentials, error) {
	return credentials.Resolve(credentials.Credentials{
		APIKey:  e.Config.Stream.APIKey,
		Project: e.Config.Stream.Project,
	}, e.Store)
}

// API returns a REST client. A missing api key is not an error here; the
// server decides which endpoints need one.
func (e *Env) API() (*api.Client, error) {
	creds, err := e.credentials()
	if err != nil && !errors.Is(err, credentials.ErrNoAPIKey) {
		return nil, err
	}
	return api.New(e.Config.API.BaseURL, creds.APIKey, e.Config.API.Timeout()), nil
}

// StreamOptions maps the stream section of the config onto manager
// options.
func (e *Env) StreamOptions() wsclient.Options {
	s := e.Config.Stream
	lg := e.Log

	return wsclient.Options{
		URL:               s.URL,
		APIKey:            s.APIKey,
		Project:           s.Project,
		Credentials:       e.Store,
		ReconnectAttempts: s.ReconnectAttemptsOption(),
		ReconnectInterval: s.ReconnectInterval(),
		PingInterval:      s.PingInterval(),
		ReconnectDelay:    s.ReconnectDelay(),
		PongTimeout:       s.PongTimeout(),
		Dialer:            e.dialer(),
		Logger:            &lg,
	}
}

func (e *Env) dialer() wsclient.Dialer {
	if e.Dialer != nil {
		return e.Dialer
	}
	if e.Config.Stream.Driver == config.DriverCoder {
		return wsclient.CoderDialer{}
	}
	return wsclient.GorillaDialer{}
}

// NewHub builds a hub from the config. Notifications go to sink when
// enabled in the config and sink is not nil.
func (e *Env) NewHub(stream wsclient.Options, sink notify.Sink, manual bool) (*hub.Hub, error) {
	lg := e.Log
	return hub.New(hub.Options{
		Stream:        stream,
		Notifications: e.Config.Notifications.Enabled && sink != nil,
		Sink:          sink,
		ManualConnect: manual,
		Logger:        &lg,
	})
}
