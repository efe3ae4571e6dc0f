// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import "time"

type Mode string

const (
	ModeDetect Mode = "detect"
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

type Config struct {
	ServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"aboba"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`
	Environment    string `env:"ENVIRONMENT" envDefault:"local"`

	// host:port or a full URL. Empty leaves the choice to the exporter,
	// which reads OTEL_EXPORTER_OTLP_ENDPOINT and falls back to localhost.
	TracesEndpoint  string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	MetricsEndpoint string `env:"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"`
	Insecure        bool   `env:"OTEL_EXPORTER_OTLP_INSECURE"`

	// "grpc" or "http/protobuf"; the per-signal value wins.
	Protocol        string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"http/protobuf"`
	TracesProtocol  string `env:"OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"`
	MetricsProtocol string `env:"OTEL_EXPORTER_OTLP_METRICS_PROTOCOL"`

	SamplerRatio   float64       `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1"`
	StartupTimeout time.Duration `env:"OTEL_STARTUP_TIMEOUT" envDefault:"5s"`
	Mode           Mode          `env:"OTEL_MODE" envDefault:"detect"`
	DisableMetrics bool          `env:"OTEL_METRICS_DISABLED"`

	ResourceAttrs map[string]string `env:"OTEL_RESOURCE_ATTRIBUTES" envSeparator:"," envKeyValSeparator:"="`
}

// ServiceNameFor is the service.name of role, e.g. "aboba-worker". Meters
// are named after it too, so api and worker series never mix.
func (c Config) ServiceNameFor(role Role) string {
	if role == "" {
		return c.ServiceName
	}
	return c.ServiceName + "-" + string(role)
}

func (c Config) protocol(signal string) string {
	if signal != "" {
		return signal
	}
	return c.Protocol
}

func (c Config) startupTimeout() time.Duration {
	if c.StartupTimeout <= 0 {
		return 5 * time.Second
	}
	return c.StartupTimeout
}
