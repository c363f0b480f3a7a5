package ctl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/large-farva/task-tracker/internal/credentials"
)

// Login stores an api key and default project in the credentials file.
// Commands fall back to them when the config and flags leave them empty.
func Login(env *Env, apiKey, project string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return credentials.ErrNoAPIKey
	}
	if env.Store.Path == "" {
		return errors.New("no credentials path configured")
	}

	c := credentials.Credentials{APIKey: apiKey, Project: strings.TrimSpace(project)}
	if err := env.Store.Save(c); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	env.Log.Info().Str("path", env.Store.Path).Msg("credentials saved")

	if env.JSON {
		return printJSON(env.out(), map[string]any{"saved": true, "path": env.Store.Path, "project": c.Project})
	}
	fmt.Fprintf(env.out(), "  %s  credentials saved to %s\n", colorize(green, "OK"), colorize(dim, env.Store.Path))
	return nil
}

// Logout removes the stored credentials.
func Logout(env *Env) error {
	if err := env.Store.Clear(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	if env.JSON {
		return printJSON(env.out(), map[string]any{"cleared": true, "path": env.Store.Path})
	}
	fmt.Fprintf(env.out(), "  %s  credentials removed\n", colorize(green, "OK"))
	return nil
}
