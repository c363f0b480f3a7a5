package ctl

import (
	"context"
	"fmt"
	"io"

	"github.com/large-farva/task-tracker/internal/api"
)

// TasksOptions controls the tasks command.
type TasksOptions struct {
	PageOptions
	Project string
	Status  string
}

// Tasks lists tasks, optionally narrowed to one project or status.
func Tasks(ctx context.Context, env *Env, opts TasksOptions) error {
	switch opts.Status {
	case "", api.TaskPending, api.TaskRunning, api.TaskCompleted, api.TaskFailed:
	default:
		return fmt.Errorf("unknown status %q", opts.Status)
	}

	c, err := env.API()
	if err != nil {
		return err
	}
	page, err := c.Tasks(ctx, api.TaskFilter{
		Project: opts.Project,
		Status:  opts.Status,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
	if err != nil {
		return err
	}
	return renderTaskPage(env, "  TASKS", page)
}

// SearchOptions controls the search command.
type SearchOptions struct {
	PageOptions
	Title string
	Agent string
}

// Search finds tasks by title and agent.
func Search(ctx context.Context, env *Env, opts SearchOptions) error {
	if opts.Title == "" && opts.Agent == "" {
		return fmt.Errorf("search needs a title or --agent")
	}
	c, err := env.API()
	if err != nil {
		return err
	}
	page, err := c.SearchTasks(ctx, opts.Title, opts.Agent, opts.Limit, opts.Offset)
	if err != nil {
		return err
	}
	return renderTaskPage(env, "  SEARCH RESULTS", page)
}

func renderTaskPage(env *Env, title string, page api.Page[api.Task]) error {
	if env.JSON {
		return printJSON(env.out(), page)
	}
	w := env.out()
	fmt.Fprintln(w)
	fmt.Fprintln(w, header(title))
	printTasks(w, page.Items)
	printPageFooter(w, page.Offset, len(page.Items), page.Total)
	return nil
}

func printTasks(w io.Writer, tasks []api.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, colorize(dim, "  no tasks"))
		return
	}

	t := newTable(w, "  ", "Task", "Title", "Status", "Agent", "Project", "Duration", "Updated")
	for _, task := range tasks {
		var agent, project string
		if task.Agent != nil {
			agent = task.Agent.Name
		}
		if task.Project != nil {
			project = task.Project.Name
		}
		status := task.Status
		if task.Status == api.TaskRunning && task.Progress != nil {
			status = fmt.Sprintf("%s %.0f%%", status, *task.Progress)
		}
		t.row(
			task.TaskID,
			task.Title,
			colorize(taskStatusStyle(task.Status), status),
			agent,
			project,
			formatSeconds(task.DurationSeconds),
			formatTime(task.UpdatedAt, "01-02 15:04"),
		)
	}
	t.flush()
}

func printPageFooter(w io.Writer, offset, n, total int) {
	if n == 0 {
		fmt.Fprintln(w)
		return
	}
	line := fmt.Sprintf("  showing %d-%d of %d", offset+1, offset+n, total)
	if offset+n < total {
		line += fmt.Sprintf("  (next: --offset %d)", offset+n)
	}
	fmt.Fprintln(w, colorize(dim, line))
	fmt.Fprintln(w)
}
