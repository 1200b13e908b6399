package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// StartFlags holds flags for the start command.
type StartFlags struct {
	TargetPath  string
	Port        int
	MaxMemoryGB int
	Artifact    string
}

// AutoRestartFlags holds flags for the autorestart set command.
type AutoRestartFlags struct {
	Enabled    bool
	Delay      int
	MaxCrashes int
}

func printJSON(raw json.RawMessage) error {
	var buf map[string]any
	if err := json.Unmarshal(raw, &buf); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server, roster, and auto-restart status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(globalFlags.APIUrl, globalFlags.APITimeout)
			raw, err := client.Status()
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	}
}

func createRosterCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "roster",
		Short: "Show the tracked player roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(globalFlags.APIUrl, globalFlags.APITimeout)
			raw, err := client.Roster()
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	}
}

func createStartCommand(globalFlags *GlobalFlags) *cobra.Command {
	startFlags := &StartFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the game server",
		Long: `Launch the game server via the daemon. With no flags the daemon's
configured launch parameters are used.

Examples:
  craftherd start
  craftherd start --target=/srv/mc --port=25565 --memory=8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(globalFlags.APIUrl, globalFlags.APITimeout)
			params := map[string]any{}
			if startFlags.TargetPath != "" {
				params["target_path"] = startFlags.TargetPath
			}
			if startFlags.Port != 0 {
				params["port"] = startFlags.Port
			}
			if startFlags.MaxMemoryGB != 0 {
				params["max_memory_gb"] = startFlags.MaxMemoryGB
			}
			if startFlags.Artifact != "" {
				params["artifact"] = startFlags.Artifact
			}
			if err := client.Start(params); err != nil {
				return err
			}
			fmt.Println("started")
			return nil
		},
	}
	cmd.Flags().StringVar(&startFlags.TargetPath, "target", "", "server directory (absolute path)")
	cmd.Flags().IntVar(&startFlags.Port, "port", 0, "listen port")
	cmd.Flags().IntVar(&startFlags.MaxMemoryGB, "memory", 0, "max heap size in GB")
	cmd.Flags().StringVar(&startFlags.Artifact, "artifact", "", "jar to launch (optional)")
	return cmd
}

func createStopCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Gracefully stop the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(globalFlags.APIUrl, globalFlags.APITimeout)
			if err := client.Stop(); err != nil {
				return err
			}
			fmt.Println("stopped")
			return nil
		},
	}
}

func createKillCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "kill",
		Short: "Forcefully terminate the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(globalFlags.APIUrl, globalFlags.APITimeout)
			if err := client.Kill(); err != nil {
				return err
			}
			fmt.Println("killed")
			return nil
		},
	}
}

func createSendCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <command...>",
		Short: "Forward a console command to the game server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(globalFlags.APIUrl, globalFlags.APITimeout)
			return client.SendCommand(strings.Join(args, " "))
		},
	}
}

func createAutoRestartCommand(globalFlags *GlobalFlags) *cobra.Command {
	arFlags := &AutoRestartFlags{}
	cmd := &cobra.Command{
		Use:   "autorestart",
		Short: "Show the auto-restart policy and crash counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(globalFlags.APIUrl, globalFlags.APITimeout)
			raw, err := client.GetAutoRestart()
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Update the auto-restart policy",
		Long: `Update and persist the auto-restart policy. Enabling resets the
crash counter.

Examples:
  craftherd autorestart set --enabled --delay=30 --max-crashes=5
  craftherd autorestart set --enabled=false --delay=30 --max-crashes=5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(globalFlags.APIUrl, globalFlags.APITimeout)
			raw, err := client.SetAutoRestart(map[string]any{
				"enabled":       arFlags.Enabled,
				"delay_seconds": arFlags.Delay,
				"max_crashes":   arFlags.MaxCrashes,
			})
			if err != nil {
				return err
			}
			return printJSON(raw)
		},
	}
	set.Flags().BoolVar(&arFlags.Enabled, "enabled", true, "enable automatic restart after crashes")
	set.Flags().IntVar(&arFlags.Delay, "delay", 0, "restart delay in seconds (required)")
	set.Flags().IntVar(&arFlags.MaxCrashes, "max-crashes", 0, "crash ceiling (required)")
	if err := set.MarkFlagRequired("delay"); err != nil {
		panic(err)
	}
	if err := set.MarkFlagRequired("max-crashes"); err != nil {
		panic(err)
	}
	cmd.AddCommand(set)
	return cmd
}
