package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/craftherd"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	NoStart bool
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	serveFlags := &ServeFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createStatusCommand(globalFlags),
		createRosterCommand(globalFlags),
		createStartCommand(globalFlags),
		createStopCommand(globalFlags),
		createKillCommand(globalFlags),
		createSendCommand(globalFlags),
		createAutoRestartCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "craftherd",
		Short: "Game server supervision and auto-recovery daemon",
		Long: `Craftherd supervises a long-running Java game server: it spawns the
process, tracks the player roster from console output, classifies exits,
and restarts the server after crashes within a bounded retry policy.

Examples:
  craftherd serve --config=craftherd.toml   # Start the daemon
  craftherd status                          # Query the running daemon
  craftherd send "say restarting soon"      # Forward a console command`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon control API URL (e.g. http://host:8420/craftherd)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return root
}

func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the craftherd daemon",
		Long: `Start the craftherd daemon: load the TOML configuration, launch the
game server, and expose the control API.

Examples:
  craftherd serve --config=craftherd.toml
  craftherd serve craftherd.toml --no-start   # Daemon only, start later via API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeCommand(globalFlags, serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.NoStart, "no-start", false, "do not launch the game server on boot")
	return cmd
}

func runServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags, args []string) error {
	configPath := globalFlags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=craftherd.toml or provide as argument")
	}

	fc, err := craftherd.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	craftherd.SetupLogging(fc.Log.Level)

	hist, err := craftherd.NewHistorySink(fc.History.DSN)
	if err != nil {
		return fmt.Errorf("open history sink: %w", err)
	}

	mgr := craftherd.New(craftherd.Options{
		Supervisor: craftherd.SupervisorOptions{
			JavaBin:            fc.Server.JavaBin,
			RosterPollInterval: fc.Roster.PollInterval,
			MetricsInterval:    fc.Metrics.Interval,
			Roster:             craftherd.RosterOptions{MinRequestInterval: fc.Roster.MinRequestInterval},
			ConsoleLog:         fc.Log,
		},
		Launch: craftherd.LaunchParams{
			TargetPath:  fc.Server.TargetPath,
			Port:        fc.Server.Port,
			MaxMemoryGB: fc.Server.MaxMemoryGB,
			Artifact:    fc.Server.Artifact,
		},
		AutoRestart: fc.AutoRestart,
		PersistAutoRestart: func(c craftherd.AutoRestartConfig) error {
			return craftherd.SaveAutoRestart(configPath, c)
		},
		MetricsWindow: fc.Metrics.Throttle,
		History:       hist,
	})
	defer mgr.Close()

	if err := craftherd.RegisterMetricsDefault(); err != nil {
		fmt.Printf("Warning: failed to register metrics: %v\n", err)
	}

	srv, err := craftherd.NewHTTPServer(fc.HTTP.Listen, fc.HTTP.BasePath, mgr)
	if err != nil {
		return fmt.Errorf("start control API on %s: %w", fc.HTTP.Listen, err)
	}
	defer func() { _ = srv.Close() }()
	fmt.Printf("Control API listening on %s%s\n", fc.HTTP.Listen, fc.HTTP.BasePath)

	if !serveFlags.NoStart {
		if err := mgr.Start(craftherd.LaunchParams{}); err != nil {
			fmt.Printf("Warning: initial server start failed: %v\n", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("Shutting down...")
	if err := mgr.Stop(); err != nil && !errors.Is(err, craftherd.ErrNotRunning) {
		fmt.Printf("Warning: stop failed: %v\n", err)
	}
	return nil
}
