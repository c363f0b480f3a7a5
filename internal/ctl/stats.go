package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Stats shows the project and task aggregates reported by the server.
func Stats(ctx context.Context, env *Env) error {
	c, err := env.API()
	if err != nil {
		return err
	}
	projects, err := c.ProjectStats(ctx)
	if err != nil {
		return err
	}
	tasks, err := c.TaskStats(ctx)
	if err != nil {
		return err
	}

	if env.JSON {
		return printJSON(env.out(), map[string]any{"projects": projects, "tasks": tasks})
	}

	w := env.out()
	fmt.Fprintln(w)
	fmt.Fprintln(w, header("  PROJECT STATISTICS"))
	fmt.Fprintln(w, rule(42))
	printStats(w, projects, "  ")

	fmt.Fprintln(w)
	fmt.Fprintln(w, header("  TASK STATISTICS"))
	fmt.Fprintln(w, rule(42))
	printStats(w, tasks, "  ")
	fmt.Fprintln(w)
	return nil
}

// printStats prints a decoded JSON object as an indented key list. The
// server does not fix the shape, so nested objects are walked as they come.
func printStats(w io.Writer, m map[string]any, indent string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	width := 0
	for _, k := range keys {
		width = max(width, len(k)+1)
	}

	for _, k := range keys {
		label := colorize(dim, padRight(k+":", width))
		switch v := m[k].(type) {
		case map[string]any:
			fmt.Fprintf(w, "%s%s\n", indent, label)
			printStats(w, v, indent+"  ")
		case float64:
			if v == float64(int64(v)) {
				fmt.Fprintf(w, "%s%s %d\n", indent, label, int64(v))
			} else {
				fmt.Fprintf(w, "%s%s %.2f\n", indent, label, v)
			}
		case nil:
			fmt.Fprintf(w, "%s%s -\n", indent, label)
		case string:
			fmt.Fprintf(w, "%s%s %s\n", indent, label, v)
		default:
			b, _ := json.Marshal(v)
			fmt.Fprintf(w, "%s%s %s\n", indent, label, strings.TrimSpace(string(b)))
		}
	}
}
