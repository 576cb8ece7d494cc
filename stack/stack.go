// Package stack turns a configuration into the concrete deployment plan: a
// fixed, ordered list of stages covering teardown, artifact rendering,
// unit starts, data store provisioning and the final report.
package stack

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/client"

	"github.com/stackpilot/stackpilot/common"
	"github.com/stackpilot/stackpilot/config"
	"github.com/stackpilot/stackpilot/health"
	"github.com/stackpilot/stackpilot/provision"
	"github.com/stackpilot/stackpilot/runner"
	"github.com/stackpilot/stackpilot/stage"
)

// Stack binds a configuration to the Docker engine and produces the stage
// list for one deployment run.
type Stack struct {
	Config *config.Config
	Client common.DockerClient
	Poller *health.Poller

	// EngineFactory builds the provisioning engine bound to the running
	// database unit. Tests replace it with one backed by a fake.
	EngineFactory func() (*provision.Engine, error)

	// sleep is the pause between monitoring unit starts
	sleep func(time.Duration)

	// run-scoped state handed from the provision stage to verify
	engine        *provision.Engine
	installedExts []string
}

// New creates a Stack for the given configuration and Docker client.
func New(cfg *config.Config, cli common.DockerClient) *Stack {
	s := &Stack{
		Config: cfg,
		Client: cli,
		Poller: health.NewPoller(cli),
		sleep:  time.Sleep,
	}
	s.EngineFactory = s.defaultEngine
	return s
}

// defaultEngine provisions through psql inside the database container.
// Exec needs the full SDK client; the interface used elsewhere only covers
// the container lifecycle surface.
func (s *Stack) defaultEngine() (*provision.Engine, error) {
	sdk, ok := s.Client.(*client.Client)
	if !ok {
		return nil, fmt.Errorf("provisioning requires the Docker SDK client, got %T", s.Client)
	}
	exec := &provision.PSQL{
		Runner: &runner.DockerExec{
			Client:    sdk,
			Container: s.Config.UnitName("postgres"),
		},
		SuperUser:     s.Config.Database.SuperUser,
		MaintenanceDB: "postgres",
	}
	return provision.NewEngine(exec, provision.Target{
		Database:        s.Config.Database.Name,
		User:            s.Config.Database.User,
		Password:        s.Config.Database.Password,
		Extensions:      s.Config.Database.Extensions,
		MetricsUser:     s.Config.Monitoring.MetricsUser,
		MetricsPassword: s.Config.Monitoring.MetricsPassword,
	}), nil
}

// BuildStages returns the deployment stage list in execution order. The
// stage runner is passed in so stages can attach warnings, endpoints and
// credentials to the run report.
func (s *Stack) BuildStages(r *stage.Runner) []stage.Stage {
	cfg := s.Config
	return []stage.Stage{
		{
			Name:        "teardown",
			Description: "stop and remove previous deployment units",
			Fatal:       true,
			Run: func(ctx context.Context) error {
				return Teardown(ctx, s.Client, cfg)
			},
		},
		{
			Name:        "render-artifacts",
			Description: "regenerate configuration artifacts from current settings",
			Fatal:       true,
			Run: func(ctx context.Context) error {
				return RenderArtifacts(cfg)
			},
		},
		{
			Name:        "start-postgres",
			Description: "start the database unit and wait for it to become healthy",
			Fatal:       true,
			Timeout:     cfg.Database.HealthTimeout + time.Minute,
			Hint:        "inspect the database logs with: stackpilot fix logs postgres",
			Run: func(ctx context.Context) error {
				if err := StartPostgres(ctx, s.Client, cfg); err != nil {
					return err
				}
				return s.waitUnit(ctx, "postgres", cfg.Database.HealthTimeout)
			},
		},
		{
			Name:        "provision",
			Description: "converge roles, database, grants and extensions",
			Fatal:       true,
			Run: func(ctx context.Context) error {
				engine, err := s.EngineFactory()
				if err != nil {
					return err
				}
				s.engine = engine
				outcome, err := engine.Provision(ctx)
				if outcome != nil {
					for _, w := range outcome.Warnings() {
						r.AddWarning("%s", w)
					}
					s.installedExts = outcome.InstalledExtensions
				}
				return err
			},
		},
		{
			Name:        "verify",
			Description: "confirm the provisioned credentials and extensions work",
			Fatal:       true,
			Hint:        "a role that predates this run may hold a different password; rerun provisioning after fixing the configured credentials",
			Run: func(ctx context.Context) error {
				if s.engine == nil {
					return fmt.Errorf("verify requires a completed provision stage")
				}
				_, err := s.engine.Verify(ctx, cfg.DSN(cfg.Database.User, cfg.Database.Password), s.installedExts)
				return err
			},
		},
		{
			Name:        "start-edge",
			Description: "start the reverse proxy",
			Run: func(ctx context.Context) error {
				return StartEdge(ctx, s.Client, cfg)
			},
		},
		{
			Name:        "start-app",
			Description: "start the application unit and wait for it to warm up",
			Timeout:     cfg.App.HealthTimeout + time.Minute,
			Run: func(ctx context.Context) error {
				if err := StartApp(ctx, s.Client, cfg); err != nil {
					return err
				}
				return s.waitUnit(ctx, "app", cfg.App.HealthTimeout)
			},
		},
		{
			Name:        "start-monitoring",
			Description: "start the metrics exporter and dashboard",
			Run: func(ctx context.Context) error {
				var failed []string
				if err := StartExporter(ctx, s.Client, cfg); err != nil {
					r.AddWarning("postgres-exporter failed to start: %v", err)
					failed = append(failed, "postgres-exporter")
				}
				s.sleep(cfg.Monitoring.StartupPause)
				if err := StartGrafana(ctx, s.Client, cfg); err != nil {
					r.AddWarning("grafana failed to start: %v", err)
					failed = append(failed, "grafana")
				}
				if len(failed) > 0 {
					return fmt.Errorf("monitoring units failed: %v", failed)
				}
				return nil
			},
		},
		{
			Name:        "report",
			Description: "summarize endpoints and accounts",
			AlwaysRun:   true,
			Run: func(ctx context.Context) error {
				s.fillReport(r)
				return nil
			},
		},
	}
}

// waitUnit polls the unit until healthy or the timeout expires. On timeout
// the last log lines are folded into the error so the operator sees the
// unit's own words.
func (s *Stack) waitUnit(ctx context.Context, unit string, timeout time.Duration) error {
	name := s.Config.UnitName(unit)
	state, err := s.Poller.WaitHealthy(ctx, name, timeout)
	if state == health.Healthy {
		return nil
	}
	waitErr := fmt.Errorf("%s did not become healthy within %s", name, timeout)
	if err != nil {
		waitErr = fmt.Errorf("%s did not become healthy within %s: %w", name, timeout, err)
	}
	if tail := s.Poller.LogTail(ctx, name, 20); tail != "" {
		return fmt.Errorf("%w\nlast log lines:\n%s", waitErr, tail)
	}
	return waitErr
}

func (s *Stack) fillReport(r *stage.Runner) {
	cfg := s.Config
	r.SetEndpoint("app", fmt.Sprintf("http://%s:%d", cfg.Deployment.Hostname, cfg.Edge.HTTPPort))
	r.SetEndpoint("grafana", fmt.Sprintf("http://%s:%d", cfg.Deployment.Hostname, cfg.Monitoring.GrafanaPort))
	r.SetEndpoint("postgres", fmt.Sprintf("postgresql://%s@%s:%d/%s",
		cfg.Database.User, cfg.Deployment.Hostname, cfg.Database.Port, cfg.Database.Name))

	r.SetCredential("database", fmt.Sprintf("%s / %s", cfg.Database.User, common.MaskSecret(cfg.Database.Password)))
	r.SetCredential("metrics", fmt.Sprintf("%s / %s", cfg.Monitoring.MetricsUser, common.MaskSecret(cfg.Monitoring.MetricsPassword)))
	r.SetCredential("grafana", fmt.Sprintf("%s / %s", cfg.Monitoring.GrafanaAdminUser, common.MaskSecret(cfg.Monitoring.GrafanaAdminPassword)))
	r.SetCredential("app-admin", fmt.Sprintf("%s / %s", cfg.App.AdminUser, common.MaskSecret(cfg.App.AdminPassword)))
}
