package pipeline

import (
	"encoding/json"

	"github.com/cdcbridge/synchdb/pkg/pipeline/transform"
)

// PeerConfig is one fanout-sink peer's configuration as loaded from
// YAML/mapstructure: which registered Connector implementation to use,
// under what peer name, with what connector-specific settings.
type PeerConfig struct {
	Name          string          `mapstructure:"name"`
	ConnectorName string          `mapstructure:"connector"`
	Config        json.RawMessage `mapstructure:"config"`
}

// Config configures the optional CDC-event fanout-sink layer: peers and
// the pipelines routing events between them. Distinct from
// pkg/config.Config, which configures the bridge itself.
type Config struct {
	Peers     []PeerConfig `mapstructure:"peers"`
	Pipelines []Pipeline   `mapstructure:"pipelines"`
}

// Source is a pipeline input with its transformations.
type Source struct {
	// Name must match one of configured peers
	Name string `mapstructure:"name"`
	// Source transformations are applied (in the order specified) as soon as CDC event is received before any processing.
	Transformations []transform.Transformation `mapstructure:"transformations"`
}

// Sink is a pipeline output with its transformations.
type Sink struct {
	// Name must match one of configured peers
	Name string `mapstructure:"name"`
	// Sink-specific transformations are applied after source transformations, pipeline transformations and before sending to speceific sink
	Transformations []transform.Transformation `mapstructure:"transformations"`
}

// Pipeline configures a complete data processing pipeline.
type Pipeline struct {
	Name    string   `mapstructure:"name"`
	Sources []Source `mapstructure:"sources"`
	// Pipeline transformations are applied after source transformations and before sink transformations.
	// These are applied to all CDC events flowing through a pipeline from its all sources to all sinks
	Transformations []transform.Transformation `mapstructure:"transformations"`
	Sinks           []Sink                     `mapstructure:"sinks"`
}
