package ctl

import (
	"context"
	"encoding/json"
	"fmt"
)

// Settings lists the caller's stored settings.
func Settings(ctx context.Context, env *Env) error {
	c, err := env.API()
	if err != nil {
		return err
	}
	settings, err := c.Settings(ctx)
	if err != nil {
		return err
	}

	if env.JSON {
		return printJSON(env.out(), settings)
	}

	w := env.out()
	fmt.Fprintln(w)
	fmt.Fprintln(w, header("  SETTINGS"))
	if len(settings) == 0 {
		fmt.Fprintln(w, colorize(dim, "  no settings"))
		fmt.Fprintln(w)
		return nil
	}

	t := newTable(w, "  ", "Key", "Value", "Description")
	for _, s := range settings {
		t.row(s.Key, string(s.Value), s.Description)
	}
	t.flush()
	fmt.Fprintln(w)
	return nil
}

// SetSetting stores one setting. A value that parses as JSON is sent as
// that JSON value; anything else is sent as a string.
func SetSetting(ctx context.Context, env *Env, key, value, description string) error {
	if key == "" {
		return fmt.Errorf("setting key must not be empty")
	}

	var v any = value
	if json.Valid([]byte(value)) {
		v = json.RawMessage(value)
	}

	c, err := env.API()
	if err != nil {
		return err
	}
	s, err := c.UpdateSetting(ctx, key, v, description)
	if err != nil {
		return err
	}

	if env.JSON {
		return printJSON(env.out(), s)
	}
	fmt.Fprintf(env.out(), "  %s  %s = %s\n", colorize(green, "SAVED"), s.Key, string(s.Value))
	return nil
}
