package main

import (
	"fmt"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"github.com/smolgroot/skypier-blackhole/pkg/blocklist"
	"github.com/smolgroot/skypier-blackhole/pkg/config"
)

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Gracefully stop a running server (SIGTERM)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := signalRunningServer(cfg.Server.PidFile, syscall.SIGTERM); err != nil {
				return fmt.Errorf("stop: %w", err)
			}
			fmt.Println("sent SIGTERM")
			return nil
		},
	}
}

func reloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the blocklist from files on a running server (SIGHUP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := signalRunningServer(cfg.Server.PidFile, syscall.SIGHUP); err != nil {
				return fmt.Errorf("reload: %w", err)
			}
			fmt.Println("sent SIGHUP")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the server is running and for how long",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			running, pid := serverRunning(cfg.Server.PidFile)
			if !running {
				fmt.Println("status: not running")
				return nil
			}

			proc, err := process.NewProcess(int32(pid))
			if err != nil {
				fmt.Printf("status: running (pid %d, uptime unknown: %v)\n", pid, err)
				return nil
			}
			createdMs, err := proc.CreateTime()
			if err != nil {
				fmt.Printf("status: running (pid %d, uptime unknown: %v)\n", pid, err)
				return nil
			}
			uptime := time.Since(time.UnixMilli(createdMs)).Round(time.Second)
			fmt.Printf("status: running (pid %d, uptime %s)\n", pid, uptime)
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Add a domain to the custom blocklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			changed, err := blocklist.AddToCustomList(cfg.Blocklist.CustomList, args[0])
			if err != nil {
				return err
			}
			if changed {
				fmt.Printf("added %s\n", args[0])
			} else {
				fmt.Printf("%s already present\n", args[0])
			}
			if running, _ := serverRunning(cfg.Server.PidFile); running && changed {
				_ = signalRunningServer(cfg.Server.PidFile, syscall.SIGHUP)
			}
			return nil
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a domain from the custom blocklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			changed, err := blocklist.RemoveFromCustomList(cfg.Blocklist.CustomList, args[0])
			if err != nil {
				return err
			}
			if changed {
				fmt.Printf("removed %s\n", args[0])
			} else {
				fmt.Printf("%s not present\n", args[0])
			}
			if running, _ := serverRunning(cfg.Server.PidFile); running && changed {
				_ = signalRunningServer(cfg.Server.PidFile, syscall.SIGHUP)
			}
			return nil
		},
	}
}
