// Trackerctl is the command-line client for the Agent Task Tracker. It
// queries the REST API and follows the live task notification stream,
// reconnecting on its own when the connection drops.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/large-farva/task-tracker/internal/config"
	"github.com/large-farva/task-tracker/internal/credentials"
	"github.com/large-farva/task-tracker/internal/ctl"
	"github.com/large-farva/task-tracker/internal/logging"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "Path to config TOML (default: user config dir)")
		apiURL     = pflag.String("api", "", "REST API base URL (e.g. http://localhost:8002)")
		wsURL      = pflag.String("ws", "", "Notification stream URL (e.g. ws://localhost:8002/ws)")
		apiKey     = pflag.String("api-key", os.Getenv("TASK_TRACKER_API_KEY"), "API key (default: $TASK_TRACKER_API_KEY or stored credentials)")
		project    = pflag.StringP("project", "p", "", "Project to follow")
		driver     = pflag.String("driver", "", "WebSocket driver: gorilla or coder")
		jsonOut    = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter     = pflag.StringSlice("filter", nil, "Message types to show in watch (e.g. --filter task_started,task_error)")
		noNotify   = pflag.Bool("no-notify", false, "Do not print task notifications in watch")
		logLevel   = pflag.String("log-level", "", "Log level: debug, info, warn, error, off")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --limit are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	path := *configPath
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		path = ""
		cfg, err = config.Load("")
	}
	if err != nil {
		fatal(fmt.Errorf("config: %w", err))
	}

	setIf(&cfg.API.BaseURL, *apiURL)
	setIf(&cfg.Stream.URL, *wsURL)
	setIf(&cfg.Stream.APIKey, *apiKey)
	setIf(&cfg.Stream.Project, *project)
	setIf(&cfg.Stream.Driver, *driver)
	setIf(&cfg.Logging.Level, *logLevel)
	if *noNotify {
		cfg.Notifications.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		fatal(fmt.Errorf("config: %w", err))
	}

	credPath := cfg.Credentials.Path
	if credPath == "" {
		credPath = credentials.DefaultPath()
	}

	env := &ctl.Env{
		Config: cfg,
		Store:  credentials.FileStore{Path: credPath},
		Log: logging.New(logging.Options{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			Component: "trackerctl",
		}),
		JSON: *jsonOut,
		Out:  os.Stdout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "health":
		err = ctl.Health(ctx, env)

	case "version":
		err = ctl.VersionInfo(ctx, env)

	case "config":
		err = ctl.Config(env, path)

	case "projects":
		var opts ctl.PageOptions
		fs := pflag.NewFlagSet("projects", pflag.ContinueOnError)
		pageFlags(fs, &opts)
		if err = fs.Parse(subArgs); err == nil {
			err = ctl.Projects(ctx, env, opts)
		}

	case "project":
		var opts ctl.PageOptions
		fs := pflag.NewFlagSet("project", pflag.ContinueOnError)
		pageFlags(fs, &opts)
		if err = fs.Parse(subArgs); err == nil {
			if fs.NArg() < 1 {
				err = errors.New("usage: trackerctl project NAME")
			} else {
				err = ctl.Project(ctx, env, fs.Arg(0), opts)
			}
		}

	case "tasks":
		var opts ctl.TasksOptions
		fs := pflag.NewFlagSet("tasks", pflag.ContinueOnError)
		pageFlags(fs, &opts.PageOptions)
		fs.StringVar(&opts.Project, "project", "", "Filter by project name")
		fs.StringVar(&opts.Status, "status", "", "Filter by status (pending, running, completed, failed)")
		if err = fs.Parse(subArgs); err == nil {
			err = ctl.Tasks(ctx, env, opts)
		}

	case "search":
		var opts ctl.SearchOptions
		fs := pflag.NewFlagSet("search", pflag.ContinueOnError)
		pageFlags(fs, &opts.PageOptions)
		fs.StringVar(&opts.Agent, "agent", "", "Filter by agent name")
		if err = fs.Parse(subArgs); err == nil {
			opts.Title = fs.Arg(0)
			err = ctl.Search(ctx, env, opts)
		}

	case "stats":
		err = ctl.Stats(ctx, env)

	case "settings":
		err = ctl.Settings(ctx, env)

	// ── Control commands ──────────────────────────────────────────
	case "set":
		var desc string
		fs := pflag.NewFlagSet("set", pflag.ContinueOnError)
		fs.StringVar(&desc, "description", "", "Description stored with the setting")
		if err = fs.Parse(subArgs); err == nil {
			if fs.NArg() < 2 {
				err = errors.New("usage: trackerctl set KEY VALUE")
			} else {
				err = ctl.SetSetting(ctx, env, fs.Arg(0), fs.Arg(1), desc)
			}
		}

	case "login":
		if len(subArgs) < 1 {
			err = errors.New("usage: trackerctl login API_KEY [PROJECT]")
			break
		}
		proj := cfg.Stream.Project
		if len(subArgs) > 1 {
			proj = subArgs[1]
		}
		err = ctl.Login(env, subArgs[0], proj)

	case "logout":
		err = ctl.Logout(env)

	// ── Live stream ───────────────────────────────────────────────
	case "status":
		var opts ctl.StatusOptions
		fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
		fs.DurationVar(&opts.Listen, "listen", 0, "Stay connected this long before reporting")
		if err = fs.Parse(subArgs); err == nil {
			err = ctl.Status(ctx, env, opts)
		}

	case "ping":
		err = ctl.Ping(ctx, env)

	case "send":
		if len(subArgs) < 1 {
			err = errors.New("usage: trackerctl send JSON")
			break
		}
		err = ctl.Send(ctx, env, subArgs[0])

	case "watch":
		err = ctl.Watch(ctx, env, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
			Notify: cfg.Notifications.Enabled,
			Alerts: os.Stderr,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func pageFlags(fs *pflag.FlagSet, opts *ctl.PageOptions) {
	fs.IntVar(&opts.Limit, "limit", 10, "Number of items per page")
	fs.IntVar(&opts.Offset, "offset", 0, "Number of items to skip")
}

func usage() {
	fmt.Print(`
  trackerctl - Agent Task Tracker CLI

  USAGE
    trackerctl [flags] <command> [command-flags]

  COMMANDS (query)
    health          Check that the server is up
    version         Show CLI version and server reachability
    config          Show the effective configuration
    projects        List projects
    project NAME    Show one project and its tasks
    tasks           List tasks
    search TITLE    Search tasks by title (and --agent)
    stats           Show project and task statistics
    settings        List stored settings

  COMMANDS (control)
    set KEY VALUE   Store a setting (JSON values are sent as JSON)
    login KEY [PROJECT]
                    Save an api key and default project
    logout          Remove saved credentials

  COMMANDS (live)
    status          Connect to the stream and summarise the connection
    ping            Measure one heartbeat round trip
    send JSON       Send one raw JSON frame on the stream
    watch           Stream live task events (Ctrl-C to stop)

  GLOBAL FLAGS
    -c, --config PATH    Config file (default: user config dir)
        --api URL        REST API base URL
        --ws URL         Notification stream URL
        --api-key KEY    API key (default: $TASK_TRACKER_API_KEY)
    -p, --project NAME   Project to follow
        --driver NAME    WebSocket driver: gorilla or coder
        --json           Output raw JSON instead of formatted text
        --filter TYPE    Message types to show in watch (comma-separated)
        --no-notify      Do not print task notifications in watch
        --log-level LVL  debug, info, warn, error or off

  COMMAND FLAGS
    projects, project, tasks, search:
        --limit N           Items per page (default: 10)
        --offset N          Items to skip

    tasks:
        --project NAME      Filter by project
        --status STATUS     pending, running, completed or failed

    search:
        --agent NAME        Filter by agent name

    set:
        --description TEXT  Description stored with the setting

    status:
        --listen DURATION   Stay connected before reporting (e.g. 10s)

  EXAMPLES
    trackerctl login sk-abc123 my-project
    trackerctl watch
    trackerctl --json watch --filter task_finished,task_error
    trackerctl tasks --status running
    trackerctl search build --agent coder
    trackerctl status --listen 10s
    trackerctl ping
    trackerctl send '{"type":"ping","timestamp":"2026-01-01T00:00:00.000Z"}'
    trackerctl set theme '"dark"'

`)
}
