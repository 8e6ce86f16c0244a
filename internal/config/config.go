package config

type Config struct {
	Server     ServerConfig
	Ollama     OllamaConfig
	Intent     IntentConfig
	Federation FederationConfig
	Sources    SourcesConfig
	Storage    StorageConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port  int
	Token string // optional bearer token for management endpoints
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type IntentConfig struct {
	UseLLM            bool
	ExtractionTimeout string
}

type FederationConfig struct {
	SourceTimeout     string
	PipelineTimeout   string
	RecommendationCap int
	CacheTTL          string
}

type SourcesConfig struct {
	MembersBaseURL string
	TWFYBaseURL    string
	TWFYAPIKey     string
	HansardBaseURL string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4200,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "phi3.5",
		},
		Intent: IntentConfig{
			UseLLM:            true,
			ExtractionTimeout: "3s",
		},
		Federation: FederationConfig{
			SourceTimeout:     "5s",
			PipelineTimeout:   "30s",
			RecommendationCap: 3,
			CacheTTL:          "15m",
		},
		Sources: SourcesConfig{
			MembersBaseURL: "https://members-api.parliament.uk/api",
			TWFYBaseURL:    "https://www.theyworkforyou.com/api",
			HansardBaseURL: "https://hansard.parliament.uk",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/parlq/config.json, then applies PARLQ_* environment
// variable overrides. Missing file or keys fall back to defaults; nothing
// in the config is required for startup (sources without credentials are
// reported as degraded rather than failing the load).
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
