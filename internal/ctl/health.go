package ctl

import (
	"context"
	"fmt"
)

// Health checks server liveness via GET /health.
func Health(ctx context.Context, env *Env) error {
	base := env.Config.API.BaseURL
	c, err := env.API()
	if err != nil {
		return err
	}

	h, err := c.Health(ctx)
	if err != nil {
		if env.JSON {
			return printJSON(env.out(), map[string]any{"healthy": false, "url": base, "error": err.Error()})
		}
		return err
	}

	healthy := h.Status == "healthy"

	if env.JSON {
		return printJSON(env.out(), map[string]any{"healthy": healthy, "status": h.Status, "url": base})
	}

	w := env.out()
	fmt.Fprintln(w)
	if healthy {
		fmt.Fprintf(w, "  %s  task tracker is reachable at %s\n", colorize(green, "HEALTHY"), colorize(dim, base))
	} else {
		fmt.Fprintf(w, "  %s  task tracker reported %q at %s\n", colorize(red, "UNHEALTHY"), h.Status, colorize(dim, base))
	}
	fmt.Fprintln(w)

	return nil
}
