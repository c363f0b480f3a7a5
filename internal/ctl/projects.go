package ctl

import (
	"context"
	"fmt"
	"strconv"
)

// PageOptions selects one page of a listing.
type PageOptions struct {
	Limit  int
	Offset int
}

// Projects lists the projects visible to the api key.
func Projects(ctx context.Context, env *Env, opts PageOptions) error {
	c, err := env.API()
	if err != nil {
		return err
	}
	page, err := c.Projects(ctx, opts.Limit, opts.Offset)
	if err != nil {
		return err
	}

	if env.JSON {
		return printJSON(env.out(), page)
	}

	w := env.out()
	fmt.Fprintln(w)
	fmt.Fprintln(w, header("  PROJECTS"))
	if len(page.Items) == 0 {
		fmt.Fprintln(w, colorize(dim, "  no projects"))
		fmt.Fprintln(w)
		return nil
	}

	t := newTable(w, "  ", "Name", "Description", "Created")
	for _, p := range page.Items {
		t.row(p.Name, p.Description, formatTime(p.CreatedAt, "2006-01-02"))
	}
	t.flush()
	printPageFooter(w, page.Offset, len(page.Items), page.Total)
	return nil
}

// Project shows one project and its most recent tasks.
func Project(ctx context.Context, env *Env, name string, opts PageOptions) error {
	c, err := env.API()
	if err != nil {
		return err
	}
	p, err := c.Project(ctx, name)
	if err != nil {
		return err
	}
	tasks, err := c.ProjectTasks(ctx, name, "", opts.Limit, opts.Offset)
	if err != nil {
		return err
	}

	if env.JSON {
		return printJSON(env.out(), map[string]any{"project": p, "tasks": tasks})
	}

	w := env.out()
	fmt.Fprintln(w)
	fmt.Fprintln(w, header("  PROJECT "+p.Name))
	fmt.Fprintln(w, rule(38))
	if p.Description != "" {
		fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "About:"), p.Description)
	}
	fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "Created:"), formatTime(p.CreatedAt, "2006-01-02 15:04"))
	fmt.Fprintf(w, "  %-12s %s\n", colorize(dim, "Tasks:"), strconv.Itoa(tasks.Total))
	fmt.Fprintln(w)
	printTasks(w, tasks.Items)
	printPageFooter(w, tasks.Offset, len(tasks.Items), tasks.Total)
	return nil
}
