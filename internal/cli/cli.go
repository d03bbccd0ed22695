// ============================================================================
// Scheduler CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command tree for operating the scheduler from a terminal.
//
// Command Structure:
//   shardsched                      # Root command
//   ├── serve                       # Run the scheduler core as a daemon
//   │   └── --config, -c            # Specify config file
//   ├── submit-job                  # Submit a job configuration
//   │   └── --file, -f              # Job configuration YAML (or JSON) file
//   ├── kill-job                    # Kill a job's tasks (and cron entry)
//   │   └── --owner / --name
//   ├── restart-task                # Restart one or more tasks by id
//   │   └── --id (repeatable)
//   └── status                      # Print task/job counts
//
// Every command but `serve` operates directly on the persisted snapshot
// file: it restores a Core and performs one operation; submit-job,
// kill-job and restart-task then write the snapshot back out, while status
// only reads it. `serve` is the only long-running command and is the
// only one that periodically re-snapshots and drives the cron clock; no
// network RPC transport is wired in, so every other command is a local,
// direct submission against the snapshot on disk.
// ============================================================================

package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ethanzhu/shardsched/internal/config"
	"github.com/ethanzhu/shardsched/internal/cronclock"
	"github.com/ethanzhu/shardsched/internal/metrics"
	"github.com/ethanzhu/shardsched/internal/persistence"
	"github.com/ethanzhu/shardsched/internal/scheduler"
	"github.com/ethanzhu/shardsched/pkg/model"
)

var log = slog.Default()

var configFile string

// BuildCLI assembles the root command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shardsched",
		Short: "shardsched: a cluster job scheduler core",
		Long: `shardsched schedules sharded jobs (immediate and cron) over a
pool of offered cluster resources, tracking every task through its
lifecycle and reconciling state against slave reports.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildSubmitJobCommand())
	rootCmd.AddCommand(buildKillJobCommand())
	rootCmd.AddCommand(buildRestartTaskCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

// openCore loads the persisted snapshot into a fresh Core for a one-shot
// command, returning the Core and the store to re-snapshot back to.
func openCore(cfg *config.Config) (*scheduler.Core, *persistence.JSONFile, error) {
	store := persistence.NewJSONFile(cfg.Persistence.Path)
	snap, err := store.Restore()
	if err != nil {
		return nil, nil, fmt.Errorf("restore snapshot: %w", err)
	}

	clock := cronclock.New()
	core := scheduler.New(scheduler.Options{
		Clock:                clock,
		ReconcileGracePeriod: time.Duration(cfg.Scheduler.ReconcileGracePeriodSeconds) * time.Second,
		WorkQueueBuffer:      cfg.Scheduler.WorkQueueBuffer,
	})
	if err := core.Restore(snap); err != nil {
		return nil, nil, fmt.Errorf("apply restored snapshot: %w", err)
	}
	return core, store, nil
}

func closeCore(core *scheduler.Core, store *persistence.JSONFile) error {
	snap := core.Snapshot()
	core.Close()
	return store.Snapshot(snap)
}

func buildServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler core as a long-lived daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	return cmd
}

func runServe() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		go func() {
			log.Info("starting metrics server", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	store := persistence.NewJSONFile(cfg.Persistence.Path)
	snap, err := store.Restore()
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	clock := cronclock.New()
	core := scheduler.New(scheduler.Options{
		Clock:                clock,
		Metrics:              collector,
		ReconcileGracePeriod: time.Duration(cfg.Scheduler.ReconcileGracePeriodSeconds) * time.Second,
		WorkQueueBuffer:      cfg.Scheduler.WorkQueueBuffer,
	})
	if err := core.Restore(snap); err != nil {
		return fmt.Errorf("apply restored snapshot: %w", err)
	}
	clock.Start()

	snapshotTicker := time.NewTicker(30 * time.Second)
	defer snapshotTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("scheduler started", "config", configFile)
	for {
		select {
		case <-snapshotTicker.C:
			snap := core.Snapshot()
			if err := store.Snapshot(snap); err != nil {
				log.Error("periodic snapshot failed", "error", err)
			}
			if collector != nil {
				collector.SetTaskIDCounter(snap.TaskCounter)
				counts := make(map[string]int)
				for _, t := range core.GetTasks(model.GetAll()) {
					counts[string(t.Status)]++
				}
				collector.SetTasksByState(counts)
			}
		case <-sigCh:
			log.Info("shutdown signal received, snapshotting and stopping")
			clock.Stop()
			return closeCore(core, store)
		}
	}
}

func buildSubmitJobCommand() *cobra.Command {
	var jobFile string

	cmd := &cobra.Command{
		Use:   "submit-job",
		Short: "Submit a job configuration from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitJob(jobFile)
		},
	}
	cmd.Flags().StringVarP(&jobFile, "file", "f", "", "YAML file containing a job configuration")
	cmd.MarkFlagRequired("file")
	return cmd
}

func submitJob(jobFile string) error {
	data, err := os.ReadFile(jobFile)
	if err != nil {
		return fmt.Errorf("read job file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse job file: %w", err)
	}
	// JobConfiguration carries json tags only; round-trip through JSON so the
	// file's snake_case keys (shard_id, start_command, ...) map onto it.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("parse job file: %w", err)
	}
	var jobCfg model.JobConfiguration
	if err := json.Unmarshal(encoded, &jobCfg); err != nil {
		return fmt.Errorf("parse job file: %w", err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	core, store, err := openCore(cfg)
	if err != nil {
		return err
	}

	if err := core.CreateJob(jobCfg); err != nil {
		core.Close()
		return fmt.Errorf("create job: %w", err)
	}

	if err := closeCore(core, store); err != nil {
		return err
	}
	fmt.Printf("job %s/%s submitted\n", jobCfg.Owner, jobCfg.Name)
	return nil
}

func buildKillJobCommand() *cobra.Command {
	var owner, name string

	cmd := &cobra.Command{
		Use:   "kill-job",
		Short: "Kill a job's active tasks and its cron entry, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			return killJob(owner, name)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "job owner")
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.MarkFlagRequired("owner")
	cmd.MarkFlagRequired("name")
	return cmd
}

func killJob(owner, name string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	core, store, err := openCore(cfg)
	if err != nil {
		return err
	}

	if err := core.KillTasks(model.QueryByJob(model.JobKey{Owner: owner, Name: name})); err != nil {
		core.Close()
		return fmt.Errorf("kill job: %w", err)
	}

	if err := closeCore(core, store); err != nil {
		return err
	}
	fmt.Printf("job %s/%s killed\n", owner, name)
	return nil
}

func buildRestartTaskCommand() *cobra.Command {
	var ids []int64

	cmd := &cobra.Command{
		Use:   "restart-task",
		Short: "Restart one or more tasks by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return restartTasks(ids)
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "id", nil, "task id to restart (repeatable)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func restartTasks(ids []int64) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	core, store, err := openCore(cfg)
	if err != nil {
		return err
	}

	taskIDs := make([]model.TaskID, len(ids))
	for i, id := range ids {
		taskIDs[i] = model.TaskID(id)
	}
	accepted := core.RestartTasks(taskIDs)

	if err := closeCore(core, store); err != nil {
		return err
	}
	fmt.Printf("restarted %d of %d requested tasks\n", len(accepted), len(ids))
	return nil
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show task counts by status and cron job count",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	core, _, err := openCore(cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	tasks := core.GetTasks(model.GetAll())
	counts := make(map[model.TaskStatus]int)
	for _, t := range tasks {
		counts[t.Status]++
	}

	snap := core.Snapshot()
	fmt.Println("Scheduler status")
	fmt.Printf("  config file:   %s\n", configFile)
	fmt.Printf("  snapshot file: %s\n", cfg.Persistence.Path)
	fmt.Printf("  framework id:  %s\n", snap.FrameworkID)
	fmt.Printf("  total tasks:   %d\n", len(tasks))
	for _, status := range []model.TaskStatus{
		model.StatusPending, model.StatusStarting, model.StatusRunning,
		model.StatusFinished, model.StatusFailed, model.StatusKilled,
		model.StatusLost, model.StatusKilledByClient,
	} {
		fmt.Printf("    %-16s %d\n", status, counts[status])
	}
	fmt.Printf("  cron jobs:     %d\n", len(snap.CronJobs))
	return nil
}
