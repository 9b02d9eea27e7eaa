package weather

import (
	"os"

	yaml "gopkg.in/yaml.v3"

	"fieldserve/internal/model"
)

// DefaultThresholds are used for businesses that have not saved their
// own configuration.
var DefaultThresholds = model.WeatherThresholds{
	RainProbabilityPercent: 70,
	MinTemperatureF:        32,
	MaxTemperatureF:        105,
	MaxWindSpeedMPH:        35,
	Enabled:                true,
}

// LoadThresholdsFile reads default thresholds from a YAML file, e.g.
// config/weather.yaml.
func LoadThresholdsFile(path string) (model.WeatherThresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WeatherThresholds{}, err
	}
	t := DefaultThresholds
	if err := yaml.Unmarshal(data, &t); err != nil {
		return model.WeatherThresholds{}, err
	}
	return t, nil
}
