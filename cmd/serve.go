package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/caseops/intake-console/internal/agent"
	"github.com/caseops/intake-console/internal/audit"
	"github.com/caseops/intake-console/internal/bus"
	"github.com/caseops/intake-console/internal/console"
	"github.com/caseops/intake-console/internal/feed"
	"github.com/caseops/intake-console/internal/ingest"
	"github.com/caseops/intake-console/internal/model"
	"github.com/caseops/intake-console/internal/server"
	"github.com/caseops/intake-console/internal/state"
	"github.com/caseops/intake-console/internal/ui"
)

var (
	noTUI bool

	serveSheetID   string
	serveSheetName string
	feedEnable     bool
	feedIntervalMs int

	httpEnable bool
	httpBind   string
	httpToken  string
	httpRPS    int
	httpBurst  int

	watchEnable bool
	watchDir    string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard and its background services",
	Long: `Start the Intake-Console server which includes:

1. Terminal dashboard for case intake and triage
2. Live-feed promotion of queued cases onto the board
3. HTTP API for automation and remote UIs
4. Drop-folder ingestion of local case batches
5. Redis Streams publishing and SQLite audit journaling

The serve command runs until interrupted (Ctrl+C).

Examples:
  # Start with the TUI (default)
  intake-console serve

  # Start headless with the HTTP API
  intake-console serve --no-tui --http-enable

  # Bind a sheet and start the live feed immediately
  intake-console serve --sheet 1AbC... --feed`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Run in headless mode without TUI")

	serveCmd.Flags().StringVar(&serveSheetID, "sheet", "", "Spreadsheet ID to import on startup")
	serveCmd.Flags().StringVar(&serveSheetName, "sheet-name", "", "Sheet tab to import (optional)")
	serveCmd.Flags().BoolVar(&feedEnable, "feed", false, "Enable the live feed on startup")
	serveCmd.Flags().IntVar(&feedIntervalMs, "feed-interval", 0, "Live feed period in milliseconds (0 = state-configured)")

	// HTTP API flags
	serveCmd.Flags().BoolVar(&httpEnable, "http-enable", false, "Enable the HTTP API server")
	serveCmd.Flags().StringVar(&httpBind, "http-bind", "127.0.0.1:8090", "Bind address for the HTTP API")
	serveCmd.Flags().StringVar(&httpToken, "http-token", "", "Bearer token required for the HTTP API (optional)")
	serveCmd.Flags().IntVar(&httpRPS, "http-rps", 10, "Max HTTP API requests per second")
	serveCmd.Flags().IntVar(&httpBurst, "http-burst", 20, "Burst size for the HTTP API rate limiter")

	// Drop-folder flags
	serveCmd.Flags().BoolVar(&watchEnable, "watch", false, "Watch a drop folder for case batches")
	serveCmd.Flags().StringVar(&watchDir, "watch-dir", "data/incoming", "Drop folder to watch")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	willUseTUI := !noTUI && isTerminal()

	// Silent TUI mode: logs go to a file so the screen stays clean.
	var logger *log.Logger
	if willUseTUI {
		if logFile := setupFileLogger(); logFile != nil {
			logger = log.New(logFile, "[serve] ", log.LstdFlags)
			defer logFile.Close()
		} else {
			logger = log.New(io.Discard, "", 0)
		}
	} else {
		logger = log.New(os.Stderr, "[serve] ", log.LstdFlags)
	}

	logger.Println("Starting Intake-Console server")

	initial := model.InitialState()
	if feedEnable {
		initial.LiveFeed.Enabled = true
	}
	if feedIntervalMs > 0 {
		initial.LiveFeed.IntervalMs = feedIntervalMs
	} else if config.Feed.IntervalMs > 0 {
		initial.LiveFeed.IntervalMs = config.Feed.IntervalMs
	}

	st := state.NewStore(state.Options{Initial: &initial, Logger: logger})

	agentClient := agent.NewClient(agent.Options{
		BaseURL: config.Agent.URL,
		Token:   config.Agent.Token,
		Logger:  logger,
	})

	logger.Println("Connecting to event bus...")
	eventBus := bus.NewBus(config.Redis.URL, logger)
	defer eventBus.Close()

	logger.Println("Opening audit journal...")
	dbPath := resolvePathRelativeToBase(getWorkingDir(), config.Database.Path)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	journal, err := audit.NewJournal(dbPath)
	if err != nil {
		return fmt.Errorf("open audit journal: %w", err)
	}
	defer journal.Close()

	c := console.New(console.Options{
		Store:   st,
		Agent:   agentClient,
		Bus:     eventBus,
		Journal: journal,
		Logger:  logger,
	})

	// Pull the collaborator profile before the first import so triage
	// preferences are in place. A failure is not fatal: defaults apply.
	if err := c.SyncProfile(ctx); err != nil {
		logger.Printf("profile sync failed, using defaults: %v", err)
	}

	if serveSheetID != "" {
		logger.Printf("Importing initial sheet %s...", serveSheetID)
		if _, err := c.ImportFromSheet(ctx, serveSheetID, serveSheetName); err != nil {
			logger.Printf("initial import failed: %v", err)
		}
	}

	simulator := feed.NewSimulator(st, feed.Options{Logger: logger})
	simulator.Start()
	defer simulator.Stop()

	if watchEnable {
		if err := os.MkdirAll(watchDir, 0755); err != nil {
			logger.Printf("Warning: could not create drop folder %s: %v", watchDir, err)
		}
		ingestor := ingest.NewFolderIngestor(st, ingest.FolderOptions{
			Dir:         watchDir,
			Watch:       true,
			Logger:      logger,
			TailFromEnd: true,
		})
		go func() {
			if err := ingestor.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("drop folder error: %v", err)
			}
		}()
	}

	if httpEnable {
		apiSrv := server.New(c, journal, server.Options{
			Bind:   httpBind,
			Token:  httpToken,
			RPS:    httpRPS,
			Burst:  httpBurst,
			Logger: logger,
			Bus:    eventBus,
		})
		if err := apiSrv.Start(ctx); err != nil {
			return fmt.Errorf("start HTTP API: %w", err)
		}
	}

	if willUseTUI {
		logger.Println("Starting TUI...")
		dashboard := ui.New(ui.Options{Console: c, Logger: logger})
		if err := dashboard.Run(ctx); err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
	} else {
		logger.Println("Running in headless mode...")
		<-ctx.Done()
		logger.Println("Received shutdown signal")
	}

	logger.Println("Intake-Console server stopped")
	return nil
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// setupFileLogger creates logs/intake-console.log for TUI-mode logging.
// Returns nil if the file cannot be created.
func setupFileLogger() *os.File {
	logDir := filepath.Join(getWorkingDir(), "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(logDir, "intake-console.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil
	}
	return f
}

// getWorkingDir returns the current working directory, falling back to the
// executable's directory if os.Getwd fails.
func getWorkingDir() string {
	if wd, err := os.Getwd(); err == nil && wd != "" {
		return wd
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	return "."
}

// resolvePathRelativeToBase resolves a possibly relative path against a base
// directory. Absolute paths are returned unchanged.
func resolvePathRelativeToBase(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, filepath.Clean(p))
}
