package stack

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stackpilot/stackpilot/common"
	"github.com/stackpilot/stackpilot/config"
)

// ImagePins is an optional override file fixing unit images to exact
// references, kept separate from the main configuration so operators can
// roll images forward or back without touching credentials.
type ImagePins struct {
	Postgres string `yaml:"postgres,omitempty"`
	App      string `yaml:"app,omitempty"`
	Edge     string `yaml:"edge,omitempty"`
	Exporter string `yaml:"exporter,omitempty"`
	Grafana  string `yaml:"grafana,omitempty"`
}

// ApplyImagePins loads the pin file and overrides the configured images.
// A missing file leaves the configuration untouched.
func ApplyImagePins(path string, cfg *config.Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read image pins %s: %w", path, err)
	}

	var pins ImagePins
	if err := yaml.Unmarshal(data, &pins); err != nil {
		return fmt.Errorf("failed to parse image pins %s: %w", path, err)
	}

	apply := func(target *string, pin, unit string) {
		if pin != "" && pin != *target {
			common.Logger.Info("image pin: ", unit, " -> ", pin)
			*target = pin
		}
	}
	apply(&cfg.Database.Image, pins.Postgres, "postgres")
	apply(&cfg.App.Image, pins.App, "app")
	apply(&cfg.Edge.Image, pins.Edge, "edge")
	apply(&cfg.Monitoring.ExporterImage, pins.Exporter, "postgres-exporter")
	apply(&cfg.Monitoring.GrafanaImage, pins.Grafana, "grafana")
	return nil
}
