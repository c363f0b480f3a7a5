package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/large-farva/task-tracker/internal/protocol"
	"github.com/large-farva/task-tracker/internal/wsclient"
)

// Send writes one raw JSON frame to the notification stream. Text that is
// not valid JSON is refused before any connection is made.
func Send(ctx context.Context, env *Env, text string) error {
	if !json.Valid([]byte(text)) {
		env.Log.Error().Msg("refusing to send invalid JSON")
		return wsclient.ErrInvalidJSON
	}

	s, err := openSession(ctx, env, env.Config.API.Timeout())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SendRaw(text); err != nil {
		return err
	}
	s.Flush()

	if env.JSON {
		return printJSON(env.out(), map[string]any{"sent": true, "bytes": len(text)})
	}
	fmt.Fprintf(env.out(), "  %s  %d bytes\n", colorize(green, "SENT"), len(text))
	return nil
}

// PingResult is the outcome of one ping round trip.
type PingResult struct {
	URL     string        `json:"url"`
	RTT     time.Duration `json:"rtt_ns"`
	Connect time.Duration `json:"connect_ns"`
}

// Ping connects, sends one heartbeat ping and reports how long the pong
// took to come back.
func Ping(ctx context.Context, env *Env) error {
	timeout := env.Config.API.Timeout()

	start := time.Now()
	s, err := openSession(ctx, env, timeout)
	if err != nil {
		return err
	}
	defer s.Close()
	connected := time.Since(start)

	msgs, stop := s.Subscribe(16)
	defer stop()

	sent := time.Now()
	s.SendPing()

	wait := time.NewTimer(timeout)
	defer wait.Stop()

	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return errors.New("stream closed before pong")
			}
			if _, ok := protocol.As[protocol.Pong](m); !ok {
				continue
			}
			res := PingResult{
				URL:     env.Config.Stream.URL,
				RTT:     time.Since(sent),
				Connect: connected,
			}
			return printPing(env, res)
		case <-wait.C:
			return fmt.Errorf("no pong after %s", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func printPing(env *Env, res PingResult) error {
	if env.JSON {
		return printJSON(env.out(), res)
	}
	w := env.out()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s  %s\n", colorize(green, "PONG"), colorize(dim, res.URL))
	fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "Round trip:"), res.RTT.Round(time.Microsecond))
	fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "Connect:"), res.Connect.Round(time.Microsecond))
	fmt.Fprintln(w)
	return nil
}
