package wstest

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/large-farva/task-tracker/internal/protocol"
)

// Broadcaster receives generated events. *Server implements it.
type Broadcaster interface {
	Emit(typ protocol.Type, data any)
}

// Demo emits the lifecycle of simulated agent tasks: started, a few
// status updates, then finished or errored.
type Demo struct {
	Out      Broadcaster
	Project  string
	Interval time.Duration // time between simulated tasks
	Step     time.Duration // time between events within a task

	taskIndex int
}

var demoAgents = []string{"planner", "coder", "reviewer", "tester"}

var demoTitles = []string{
	"Index repository",
	"Generate migration",
	"Run integration suite",
	"Summarise review comments",
	"Refresh dependency graph",
}

// NewDemo returns a generator with short default timings.
func NewDemo(out Broadcaster, project string) *Demo {
	return &Demo{
		Out:      out,
		Project:  project,
		Interval: 5 * time.Second,
		Step:     200 * time.Millisecond,
	}
}

// Run emits one task immediately and then one per Interval until ctx is
// cancelled.
func (d *Demo) Run(ctx context.Context) {
	d.RunTask(ctx)

	t := time.NewTicker(d.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.RunTask(ctx)
		}
	}
}

// RunTask simulates one complete task and reports whether it ran to the
// end.
func (d *Demo) RunTask(ctx context.Context) bool {
	d.taskIndex++
	id := fmt.Sprintf("task-%04d", d.taskIndex)
	agent := demoAgents[rand.Intn(len(demoAgents))]
	title := demoTitles[(d.taskIndex-1)%len(demoTitles)]
	started := time.Now()

	d.Out.Emit(protocol.TypeTaskStarted, protocol.TaskStarted{
		TaskID:      id,
		ProjectName: d.Project,
		AgentName:   agent,
		Title:       title,
		StartedAt:   protocol.FormatTS(started),
	})

	old := "pending"
	for _, p := range []float64{25, 50, 75} {
		if !sleepOrCancel(ctx, d.Step) {
			return false
		}
		progress := p
		d.Out.Emit(protocol.TypeTaskStatusUpdated, protocol.TaskStatusUpdated{
			TaskID:      id,
			ProjectName: d.Project,
			AgentName:   agent,
			Title:       title,
			OldStatus:   old,
			NewStatus:   "running",
			Progress:    &progress,
			UpdatedAt:   protocol.NowTS(),
		})
		old = "running"
	}
	if !sleepOrCancel(ctx, d.Step) {
		return false
	}

	// Roughly one task in five fails.
	if rand.Intn(5) == 0 {
		d.Out.Emit(protocol.TypeTaskError, protocol.TaskError{
			TaskID:       id,
			ProjectName:  d.Project,
			AgentName:    agent,
			Title:        title,
			ErrorMessage: "agent exited with status 1",
			ErrorType:    "AgentCrash",
			OccurredAt:   protocol.NowTS(),
		})
		return true
	}

	dur := time.Since(started).Seconds()
	d.Out.Emit(protocol.TypeTaskFinished, protocol.TaskFinished{
		TaskID:          id,
		ProjectName:     d.Project,
		AgentName:       agent,
		Title:           title,
		Status:          protocol.TaskCompleted,
		FinishedAt:      protocol.NowTS(),
		DurationSeconds: &dur,
	})
	return true
}

func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
