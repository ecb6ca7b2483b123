package config

import "time"

// ObservabilityConfig configures the administrative server that exposes
// health probes and Prometheus metrics. It listens on its own port so
// operational traffic never competes with business traffic.
type ObservabilityConfig struct {
	Port          string        `envconfig:"PORT" default:"9091"`
	MetricsPath   string        `envconfig:"METRICS_PATH" default:"/metrics"`
	LivenessPath  string        `envconfig:"LIVENESS_PATH" default:"/health/live"`
	ReadinessPath string        `envconfig:"READINESS_PATH" default:"/health/ready"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

// Validate performs validation on the ObservabilityConfig.
func (c *ObservabilityConfig) Validate() error {
	return validatePort(c.Port, "observability")
}
