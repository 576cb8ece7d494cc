package stack

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"

	"github.com/stackpilot/stackpilot/common"
	"github.com/stackpilot/stackpilot/config"
)

// Unit names in start order. Teardown processes them in reverse.
var unitOrder = []string{"postgres", "edge", "app", "postgres-exporter", "grafana"}

// UnitNames returns the deployment's unit names in start order.
func UnitNames() []string {
	return append([]string(nil), unitOrder...)
}

// IsUnit reports whether name is one of the deployment's units.
func IsUnit(name string) bool {
	for _, u := range unitOrder {
		if u == name {
			return true
		}
	}
	return false
}

const stopTimeoutSeconds = 30

func hostPortMap(containerPort string, hostPort int) nat.PortMap {
	return nat.PortMap{
		nat.Port(containerPort): []nat.PortBinding{{
			HostIP:   "0.0.0.0",
			HostPort: strconv.Itoa(hostPort),
		}},
	}
}

func restartAlways() containertypes.RestartPolicy {
	return containertypes.RestartPolicy{Name: "unless-stopped"}
}

// startUnit pulls the unit's image and creates+starts its container on the
// deployment network. An existing container with the same name is removed
// first so a rerun converges instead of failing.
func startUnit(ctx context.Context, cli common.DockerClient, cfg *config.Config, name, image string, containerConfig containertypes.Config, hostConfig containertypes.HostConfig) error {
	unit := cfg.UnitName(name)

	if err := common.EnsureNetwork(ctx, cli, cfg.NetworkName()); err != nil {
		return err
	}
	if err := common.ImagePullWithClient(ctx, cli, image, &common.ImagePullOptions{Silent: true}); err != nil {
		return err
	}
	if err := common.StopAndRemoveContainerWithClient(ctx, cli, unit, stopTimeoutSeconds); err != nil {
		return err
	}
	if err := common.CreateAndStartContainerWithClient(ctx, cli, containerConfig, hostConfig, unit, cfg.NetworkName()); err != nil {
		return fmt.Errorf("failed to start %s: %w", unit, err)
	}
	common.Logger.Info("started ", unit, " (", image, ")")
	return nil
}

// StartPostgres starts the database unit with a persistent data volume and
// a pg_isready healthcheck.
func StartPostgres(ctx context.Context, cli common.DockerClient, cfg *config.Config) error {
	volumeName := cfg.UnitName("postgres") + "-data"
	if err := common.EnsureVolume(ctx, cli, volumeName); err != nil {
		return err
	}

	initSQL, err := filepath.Abs(filepath.Join(cfg.Deployment.StateDir, artifactInitSQL))
	if err != nil {
		return err
	}

	containerConfig := containertypes.Config{
		Image: cfg.Database.Image,
		Env: []string{
			fmt.Sprintf("POSTGRES_USER=%s", cfg.Database.SuperUser),
			fmt.Sprintf("POSTGRES_PASSWORD=%s", cfg.Database.SuperPassword),
			"POSTGRES_INITDB_ARGS=--auth-host=scram-sha-256",
			"PGDATA=/var/lib/postgresql/data/pgdata",
		},
		ExposedPorts: nat.PortSet{"5432/tcp": struct{}{}},
		Healthcheck: &containertypes.HealthConfig{
			Test:     []string{"CMD-SHELL", fmt.Sprintf("pg_isready -U %s", cfg.Database.SuperUser)},
			Interval: 5000000000,  // 5 seconds
			Timeout:  10000000000, // 10 seconds
			Retries:  3,
		},
	}
	hostConfig := containertypes.HostConfig{
		PortBindings: hostPortMap("5432/tcp", cfg.Database.Port),
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeVolume,
				Source: volumeName,
				Target: "/var/lib/postgresql/data",
			},
			{
				Type:     mount.TypeBind,
				Source:   initSQL,
				Target:   "/docker-entrypoint-initdb.d/00-init.sql",
				ReadOnly: true,
			},
		},
		RestartPolicy: restartAlways(),
	}
	return startUnit(ctx, cli, cfg, "postgres", cfg.Database.Image, containerConfig, hostConfig)
}

// StartApp starts the application unit with an HTTP healthcheck against
// its health path.
func StartApp(ctx context.Context, cli common.DockerClient, cfg *config.Config) error {
	probe := fmt.Sprintf("wget -q -O /dev/null http://localhost:%d%s || exit 1",
		cfg.App.Port, cfg.App.HealthPath)

	containerConfig := containertypes.Config{
		Image: cfg.App.Image,
		Env: []string{
			fmt.Sprintf("DATABASE_URL=postgresql://%s:%s@%s:5432/%s?sslmode=disable",
				cfg.Database.User, cfg.Database.Password, cfg.UnitName("postgres"), cfg.Database.Name),
			fmt.Sprintf("PORT=%d", cfg.App.Port),
			fmt.Sprintf("ADMIN_USER=%s", cfg.App.AdminUser),
			fmt.Sprintf("ADMIN_PASSWORD=%s", cfg.App.AdminPassword),
			fmt.Sprintf("PUBLIC_HOSTNAME=%s", cfg.Deployment.Hostname),
		},
		ExposedPorts: nat.PortSet{nat.Port(fmt.Sprintf("%d/tcp", cfg.App.Port)): struct{}{}},
		Healthcheck: &containertypes.HealthConfig{
			Test:     []string{"CMD-SHELL", probe},
			Interval: 10000000000, // 10 seconds
			Timeout:  10000000000, // 10 seconds
			Retries:  3,
			// Slow first boot runs migrations; don't count early probes
			StartPeriod: 30000000000, // 30 seconds
		},
	}
	hostConfig := containertypes.HostConfig{
		RestartPolicy: restartAlways(),
	}
	return startUnit(ctx, cli, cfg, "app", cfg.App.Image, containerConfig, hostConfig)
}

// StartEdge starts the reverse proxy with the rendered site config.
func StartEdge(ctx context.Context, cli common.DockerClient, cfg *config.Config) error {
	conf, err := filepath.Abs(filepath.Join(cfg.Deployment.StateDir, artifactEdgeConf))
	if err != nil {
		return err
	}

	containerConfig := containertypes.Config{
		Image:        cfg.Edge.Image,
		ExposedPorts: nat.PortSet{"80/tcp": struct{}{}},
	}
	hostConfig := containertypes.HostConfig{
		PortBindings: hostPortMap("80/tcp", cfg.Edge.HTTPPort),
		Mounts: []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   conf,
			Target:   "/etc/nginx/conf.d/default.conf",
			ReadOnly: true,
		}},
		RestartPolicy: restartAlways(),
	}
	return startUnit(ctx, cli, cfg, "edge", cfg.Edge.Image, containerConfig, hostConfig)
}

// StartExporter starts the postgres metrics exporter. Its connection string
// comes from the rendered exporter env artifact.
func StartExporter(ctx context.Context, cli common.DockerClient, cfg *config.Config) error {
	env, err := readEnvFile(filepath.Join(cfg.Deployment.StateDir, artifactExporterEnv))
	if err != nil {
		return err
	}

	containerConfig := containertypes.Config{
		Image: cfg.Monitoring.ExporterImage,
		Env:   env,
	}
	hostConfig := containertypes.HostConfig{
		RestartPolicy: restartAlways(),
	}
	return startUnit(ctx, cli, cfg, "postgres-exporter", cfg.Monitoring.ExporterImage, containerConfig, hostConfig)
}

// StartGrafana starts the dashboard with the rendered datasource
// provisioning file.
func StartGrafana(ctx context.Context, cli common.DockerClient, cfg *config.Config) error {
	datasource, err := filepath.Abs(filepath.Join(cfg.Deployment.StateDir, artifactGrafanaYAML))
	if err != nil {
		return err
	}

	containerConfig := containertypes.Config{
		Image: cfg.Monitoring.GrafanaImage,
		Env: []string{
			fmt.Sprintf("GF_SECURITY_ADMIN_USER=%s", cfg.Monitoring.GrafanaAdminUser),
			fmt.Sprintf("GF_SECURITY_ADMIN_PASSWORD=%s", cfg.Monitoring.GrafanaAdminPassword),
		},
		ExposedPorts: nat.PortSet{"3000/tcp": struct{}{}},
	}
	hostConfig := containertypes.HostConfig{
		PortBindings: hostPortMap("3000/tcp", cfg.Monitoring.GrafanaPort),
		Mounts: []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   datasource,
			Target:   "/etc/grafana/provisioning/datasources/default.yaml",
			ReadOnly: true,
		}},
		RestartPolicy: restartAlways(),
	}
	return startUnit(ctx, cli, cfg, "grafana", cfg.Monitoring.GrafanaImage, containerConfig, hostConfig)
}

// readEnvFile parses KEY=VALUE lines, skipping blanks and comments.
func readEnvFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	defer f.Close()

	var env []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		env = append(env, line)
	}
	return env, scanner.Err()
}
