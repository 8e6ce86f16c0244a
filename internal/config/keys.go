package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PARLQ_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "PARLQ_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "ollama.base_url", typ: kString, env: "PARLQ_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "PARLQ_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "intent.use_llm", typ: kBool, env: "PARLQ_INTENT_USE_LLM",
		apply:   func(cfg *Config, v any) { cfg.Intent.UseLLM = v.(bool) },
		extract: func(cfg Config) any { return cfg.Intent.UseLLM },
	},
	{
		key: "intent.extraction_timeout", typ: kString, env: "PARLQ_INTENT_EXTRACTION_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Intent.ExtractionTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Intent.ExtractionTimeout },
	},
	{
		key: "federation.source_timeout", typ: kString, env: "PARLQ_FEDERATION_SOURCE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Federation.SourceTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Federation.SourceTimeout },
	},
	{
		key: "federation.pipeline_timeout", typ: kString, env: "PARLQ_FEDERATION_PIPELINE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Federation.PipelineTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Federation.PipelineTimeout },
	},
	{
		key: "federation.recommendation_cap", typ: kInt, env: "PARLQ_FEDERATION_RECOMMENDATION_CAP",
		apply:   func(cfg *Config, v any) { cfg.Federation.RecommendationCap = v.(int) },
		extract: func(cfg Config) any { return cfg.Federation.RecommendationCap },
	},
	{
		key: "federation.cache_ttl", typ: kString, env: "PARLQ_FEDERATION_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Federation.CacheTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Federation.CacheTTL },
	},
	{
		key: "sources.members_base_url", typ: kString, env: "PARLQ_SOURCES_MEMBERS_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Sources.MembersBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.MembersBaseURL },
	},
	{
		key: "sources.twfy_base_url", typ: kString, env: "PARLQ_SOURCES_TWFY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Sources.TWFYBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.TWFYBaseURL },
	},
	{
		key: "sources.twfy_api_key", typ: kString, env: "PARLQ_SOURCES_TWFY_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Sources.TWFYAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.TWFYAPIKey },
	},
	{
		key: "sources.hansard_base_url", typ: kString, env: "PARLQ_SOURCES_HANSARD_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Sources.HansardBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Sources.HansardBaseURL },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PARLQ_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "PARLQ_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
