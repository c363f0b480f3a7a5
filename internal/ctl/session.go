package ctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/large-farva/task-tracker/internal/hub"
)

// session is a hub running for the length of one command.
type session struct {
	*hub.Hub
	failed chan error
	cancel context.CancelFunc
}

// openSession starts a hub and waits until the stream is connected. The
// first connection is never retried, so any error before that ends the
// wait.
func openSession(ctx context.Context, env *Env, timeout time.Duration) (*session, error) {
	s := &session{failed: make(chan error, 1)}

	stream := env.StreamOptions()
	stream.OnError = s.onError
	h, err := env.NewHub(stream, nil, false)
	if err != nil {
		return nil, err
	}
	s.Hub = h

	states, stop := h.SubscribeState(16)
	defer stop()

	rctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go h.Run(rctx)

	wait := time.NewTimer(timeout)
	defer wait.Stop()

	for {
		select {
		case st, ok := <-states:
			if !ok {
				return nil, errors.New("stream closed")
			}
			if st.IsConnected() {
				return s, nil
			}
		case err := <-s.failed:
			s.Close()
			return nil, err
		case <-wait.C:
			st := h.State()
			s.Close()
			if st.Error != "" {
				return nil, fmt.Errorf("not connected after %s: %s", timeout, st.Error)
			}
			return nil, fmt.Errorf("not connected after %s", timeout)
		case <-ctx.Done():
			s.Close()
			return nil, ctx.Err()
		}
	}
}

// onError runs on the manager loop.
func (s *session) onError(err error) {
	select {
	case s.failed <- err:
	default:
	}
}

// Close disconnects and waits for the hub to stop.
func (s *session) Close() {
	s.Disconnect()
	s.Flush()
	s.cancel()
	<-s.Done()
}
