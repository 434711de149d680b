package filesystem

// yamlManifest is the YAML shape of platform.yaml.
type yamlManifest struct {
	Name      string             `yaml:"name"`
	Flags     []yamlFlag         `yaml:"flags,omitempty"`
	Scenarios []yamlPlatformScen `yaml:"scenarios,omitempty"`
}

type yamlFlag struct {
	Name        string `yaml:"name"`
	Default     bool   `yaml:"default,omitempty"`
	Description string `yaml:"description,omitempty"`
}

type yamlPlatformScen struct {
	ID              string          `yaml:"id"`
	Name            string          `yaml:"name"`
	PluginIDs       []string        `yaml:"plugin_ids,omitempty"`
	FlagOverrides   map[string]bool `yaml:"flag_overrides,omitempty"`
	StatusOverrides map[string]int  `yaml:"status_overrides,omitempty"`
}

// yamlEndpoint is the YAML shape of one endpoint definition.
type yamlEndpoint struct {
	ID             string             `yaml:"id"`
	Component      string             `yaml:"component"`
	Route          string             `yaml:"route"`
	Method         string             `yaml:"method"`
	DefaultStatus  int                `yaml:"default_status"`
	Responses      map[int]any        `yaml:"responses"`
	Flags          []string           `yaml:"flags,omitempty"`
	Scenarios      []yamlEndpointScen `yaml:"scenarios,omitempty"`
	QueryResponses map[string]any     `yaml:"query_responses,omitempty"`
	SwaggerURL     string             `yaml:"swagger_url,omitempty"`
	Disabled       bool               `yaml:"disabled,omitempty"`
	Transform      []yamlTransform    `yaml:"transform,omitempty"`
	Policy         *yamlPolicy        `yaml:"policy,omitempty"`
}

type yamlEndpointScen struct {
	ID        string      `yaml:"id"`
	Label     string      `yaml:"label"`
	Responses map[int]any `yaml:"responses"`
}

type yamlTransform struct {
	When     string            `yaml:"when,omitempty"`
	Set      map[string]string `yaml:"set,omitempty"`
	Template string            `yaml:"template,omitempty"`
	Engine   string            `yaml:"engine,omitempty"`
}

type yamlPolicy struct {
	RateLimit *yamlRateLimit `yaml:"rate_limit,omitempty"`
	Latency   *yamlLatency   `yaml:"latency,omitempty"`
}

type yamlRateLimit struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
	Key   string  `yaml:"key,omitempty"`
}

type yamlLatency struct {
	FixedMs  int `yaml:"fixed_ms,omitempty"`
	JitterMs int `yaml:"jitter_ms,omitempty"`
}

// yamlState is the YAML shape of a persisted overlay file.
type yamlState struct {
	Flags             map[string]bool   `yaml:"flags,omitempty"`
	Statuses          map[string]int    `yaml:"statuses,omitempty"`
	ActiveScenario    *string           `yaml:"active_scenario,omitempty"`
	EndpointScenarios map[string]string `yaml:"endpoint_scenarios,omitempty"`
}
