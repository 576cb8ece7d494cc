// Package cli provides the stackpilot command-line interface: a single-host
// deployment orchestrator that brings up a PostgreSQL-backed application
// stack behind a reverse proxy, with monitoring, through an ordered list of
// health-gated stages.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/common"
	"github.com/stackpilot/stackpilot/config"
	"github.com/stackpilot/stackpilot/version"
)

// dockerSession bundles the SDK client with its base context for the
// lifetime of one command.
type dockerSession struct {
	ctx context.Context
	cli *client.Client
}

func (s *dockerSession) Close() {
	s.cli.Close()
}

// cfgFile holds the path to the configuration file specified via the
// --config flag. When empty, the standard search paths apply.
var cfgFile string

// RootCmd is the stackpilot entry point. Subcommands do the actual work;
// the root only wires configuration, logging and version output.
var RootCmd = &cobra.Command{
	Use:   "stackpilot",
	Short: "Deploy and operate a containerized application stack on one host",
	Long: `stackpilot deploys a PostgreSQL-backed application stack onto a single
Docker host: database, application, reverse proxy, metrics exporter and
dashboard. A deployment run is a fixed sequence of health-gated stages;
every operation is idempotent so a rerun converges instead of failing.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: stackpilot.yaml in ., ./configs, ~/.stackpilot, /etc/stackpilot)")
	RootCmd.AddCommand(deployCmd)
	RootCmd.AddCommand(healthCmd)
	RootCmd.AddCommand(fixCmd)
	RootCmd.AddCommand(historyCmd)
}

// Execute runs the CLI and returns the process exit code. Deployment runs
// carry their own exit semantics (0 success, 1 fatal, 2 degraded) through
// exitCodeError.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		if ec, ok := err.(*exitCodeError); ok {
			return ec.code
		}
		common.Logger.Error(err)
		return 1
	}
	return 0
}

// exitCodeError carries a specific process exit code out of a subcommand.
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string { return e.msg }

// loadConfig loads and validates configuration, then applies logging
// settings and the optional image pin file. Every subcommand starts here.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	common.ConfigureLogger(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// connect builds the Docker client for the configured engine socket and
// verifies it is reachable before any stage runs.
func connect(cfg *config.Config) (*dockerSession, error) {
	ctx, cli, err := common.CtxCli(cfg.Deployment.DockerHost)
	if err != nil {
		return nil, err
	}
	if err := common.PingEngine(ctx, cli); err != nil {
		cli.Close()
		return nil, err
	}
	return &dockerSession{ctx: ctx, cli: cli}, nil
}

// historyPath is the bbolt file holding past run reports.
func historyPath(cfg *config.Config) string {
	return filepath.Join(cfg.Deployment.StateDir, "history.db")
}

func printf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}
