package ctl

import (
	"context"
	"fmt"
	"runtime"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// GoVersion is the toolchain the binary was built with.
var GoVersion = runtime.Version()

// VersionInfo prints the CLI version and whether the server answers.
func VersionInfo(ctx context.Context, env *Env) error {
	var serverErr error
	c, err := env.API()
	if err == nil {
		_, serverErr = c.Health(ctx)
	} else {
		serverErr = err
	}

	if env.JSON {
		resp := map[string]any{
			"cli": map[string]any{
				"version":    Version,
				"go_version": GoVersion,
			},
			"server": env.Config.API.BaseURL,
		}
		if serverErr != nil {
			resp["server_error"] = serverErr.Error()
		}
		return printJSON(env.out(), resp)
	}

	w := env.out()
	fmt.Fprintln(w)
	fmt.Fprintln(w, header("  TASK TRACKER VERSION"))
	fmt.Fprintln(w, rule(38))
	fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "CLI:"), Version+" ("+GoVersion+")")
	if serverErr != nil {
		fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "Server:"), colorize(red, "unreachable: "+serverErr.Error()))
	} else {
		fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "Server:"), env.Config.API.BaseURL)
	}
	fmt.Fprintln(w)

	return nil
}
