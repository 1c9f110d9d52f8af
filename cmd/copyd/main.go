// Command copyd runs the artifact-copy relay daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lei/simple-copy/internal/config"
	"github.com/lei/simple-copy/pkg/relay"
)

var (
	configPath string
	jobsPath   string
)

var rootCmd = &cobra.Command{
	Use:   "copyd",
	Short: "copyd - artifact copy relay for CI builds",
	Long: `copyd lets one CI build copy files produced by another job's
archived artifacts or workspace, selecting which historical build to
copy from via pluggable strategies (status, saved, specific number,
workspace, permalink).`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay service",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Env vars may also come from the environment directly.
		_ = godotenv.Load()

		r, err := relay.NewFromFiles(configPath, jobsPath)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return r.Start(ctx)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config and job definition files",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		if _, err := config.Load(configPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		defs, err := config.LoadJobs(jobsPath)
		if err != nil {
			return fmt.Errorf("jobs: %w", err)
		}
		fmt.Printf("ok: %d jobs, %d with copy steps\n", len(defs.Jobs), len(defs.Steps))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/copyd.yaml", "service config file")
	rootCmd.PersistentFlags().StringVarP(&jobsPath, "jobs", "j", "configs/jobs.yaml", "job definitions file")
	rootCmd.AddCommand(serveCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
