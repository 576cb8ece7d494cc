package stack

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stackpilot/stackpilot/config"
)

// Artifact file names inside the deployment state directory. Artifacts are
// re-rendered on every run because credentials and ports may have changed
// in the configuration since the last run.
const (
	artifactInitSQL      = "init.sql"
	artifactExporterEnv  = "exporter.env"
	artifactEdgeConf     = "edge.conf"
	artifactGrafanaYAML  = "grafana-datasource.yaml"
	credentialFileMode   = 0600
	artifactFileMode     = 0644
)

var artifactNames = []string{
	artifactInitSQL,
	artifactExporterEnv,
	artifactEdgeConf,
	artifactGrafanaYAML,
}

// grafanaProvisioning mirrors Grafana's datasource provisioning file format.
type grafanaProvisioning struct {
	APIVersion  int                 `yaml:"apiVersion"`
	Datasources []grafanaDatasource `yaml:"datasources"`
}

type grafanaDatasource struct {
	Name           string            `yaml:"name"`
	Type           string            `yaml:"type"`
	URL            string            `yaml:"url"`
	User           string            `yaml:"user"`
	Database       string            `yaml:"database"`
	JSONData       grafanaJSONData   `yaml:"jsonData"`
	SecureJSONData grafanaSecureData `yaml:"secureJsonData"`
}

type grafanaJSONData struct {
	SSLMode         string `yaml:"sslmode"`
	PostgresVersion int    `yaml:"postgresVersion"`
}

type grafanaSecureData struct {
	Password string `yaml:"password"`
}

// RenderArtifacts materializes the generated files a run depends on into
// the state directory. Files holding credentials are written 0600.
func RenderArtifacts(cfg *config.Config) error {
	dir := cfg.Deployment.StateDir
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}

	if err := os.WriteFile(filepath.Join(dir, artifactInitSQL), []byte(renderInitSQL()), artifactFileMode); err != nil {
		return fmt.Errorf("failed to write init sql: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, artifactExporterEnv), []byte(renderExporterEnv(cfg)), credentialFileMode); err != nil {
		return fmt.Errorf("failed to write exporter env: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, artifactEdgeConf), []byte(renderEdgeConf(cfg)), artifactFileMode); err != nil {
		return fmt.Errorf("failed to write edge config: %w", err)
	}
	data, err := renderGrafanaDatasource(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, artifactGrafanaYAML), data, credentialFileMode); err != nil {
		return fmt.Errorf("failed to write grafana datasource: %w", err)
	}
	return nil
}

// RemoveArtifacts deletes the generated files. Missing files are fine.
func RemoveArtifacts(cfg *config.Config) error {
	for _, name := range artifactNames {
		if err := os.Remove(filepath.Join(cfg.Deployment.StateDir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove artifact %s: %w", name, err)
		}
	}
	return nil
}

// renderInitSQL produces the first-boot SQL fragment. It only runs when the
// data volume is fresh; converged state is handled by provisioning.
func renderInitSQL() string {
	return strings.Join([]string{
		"ALTER SYSTEM SET shared_preload_libraries = 'pg_stat_statements';",
		"ALTER SYSTEM SET track_io_timing = on;",
		"",
	}, "\n")
}

func renderExporterEnv(cfg *config.Config) string {
	dsn := fmt.Sprintf("postgresql://%s:%s@%s:5432/%s?sslmode=disable",
		cfg.Monitoring.MetricsUser, cfg.Monitoring.MetricsPassword,
		cfg.UnitName("postgres"), cfg.Database.Name)
	return "DATA_SOURCE_NAME=" + dsn + "\n"
}

func renderEdgeConf(cfg *config.Config) string {
	return fmt.Sprintf(`server {
    listen 80;
    server_name %s;

    location / {
        proxy_pass http://%s:%d;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }
}
`, cfg.Deployment.Hostname, cfg.UnitName("app"), cfg.App.Port)
}

func renderGrafanaDatasource(cfg *config.Config) ([]byte, error) {
	prov := grafanaProvisioning{
		APIVersion: 1,
		Datasources: []grafanaDatasource{{
			Name:     "PostgreSQL",
			Type:     "grafana-postgresql-datasource",
			URL:      cfg.UnitName("postgres") + ":5432",
			User:     cfg.Monitoring.MetricsUser,
			Database: cfg.Database.Name,
			JSONData: grafanaJSONData{
				SSLMode:         "disable",
				PostgresVersion: 1700,
			},
			SecureJSONData: grafanaSecureData{
				Password: cfg.Monitoring.MetricsPassword,
			},
		}},
	}

	data, err := yaml.Marshal(&prov)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal grafana datasource: %w", err)
	}
	return data, nil
}
