// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 从 configs 目录加载配置
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	return LoadFrom("configs")
}

// LoadFrom 从指定目录加载配置
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), false); err != nil {
		return nil, err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(&cfg)

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	reader := strings.NewReader(expandEnv(string(content)))
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		v.SetConfigFile(path)
		return nil
	}
	if err := v.MergeConfig(reader); err != nil {
		return fmt.Errorf("failed to merge processed config %s: %w", path, err)
	}
	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符
// 未定义且无默认值的变量原样保留，便于 IsPlaceholder 识别
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		if sub[2] != "" {
			return sub[3]
		}
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// normalize 清理 viper 无法表达的字段
func normalize(cfg *Config) {
	cfg.Vector.Backend = strings.ToLower(strings.TrimSpace(cfg.Vector.Backend))
	chain := make([]string, 0, len(cfg.LLM.FallbackChain))
	for _, name := range cfg.LLM.FallbackChain {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			chain = append(chain, name)
		}
	}
	cfg.LLM.FallbackChain = chain
	for name, p := range cfg.LLM.Providers {
		p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
		if p.Kind == "" {
			p.Kind = "openai"
		}
		cfg.LLM.Providers[name] = p
	}
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cbc-curriculum-chatbot")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8000)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "120s")
	v.SetDefault("server.http.idle_timeout", "120s")

	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 20)
	v.SetDefault("cache.redis.min_idle_conns", 2)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")

	v.SetDefault("vector.backend", "chroma")
	v.SetDefault("vector.collection", "Curriculumnpdfs")
	v.SetDefault("vector.chroma.host", "https://api.trychroma.com")
	v.SetDefault("vector.chroma.tenant", "default_tenant")
	v.SetDefault("vector.chroma.database", "default_database")
	v.SetDefault("vector.chroma.timeout", "20s")
	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.dimension", 384)
	v.SetDefault("vector.milvus.hnsw_m", 16)
	v.SetDefault("vector.milvus.hnsw_ef_construction", 200)
	v.SetDefault("vector.milvus.search_ef", 128)

	v.SetDefault("embedding.provider", "huggingface")
	v.SetDefault("embedding.endpoint", "https://router.huggingface.co/hf-inference/models/BAAI/bge-small-en-v1.5")
	v.SetDefault("embedding.model", "BAAI/bge-small-en-v1.5")
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.text_prefix", "")
	v.SetDefault("embedding.retry_attempts", 3)
	v.SetDefault("embedding.retry_base", "500ms")
	v.SetDefault("embedding.cache_size", 2048)
	v.SetDefault("embedding.cache_ttl", "1h")

	v.SetDefault("retrieval.n_results", 10)
	v.SetDefault("retrieval.broad_n_results", 15)
	v.SetDefault("retrieval.max_keywords", 4)
	v.SetDefault("retrieval.min_word_length", 4)
	v.SetDefault("retrieval.follow_up_max_words", 3)
	v.SetDefault("retrieval.fingerprint_length", 100)
	v.SetDefault("retrieval.max_variants", 8)

	v.SetDefault("chat.timezone", "Africa/Nairobi")
	v.SetDefault("chat.fallback_message", DefaultFallbackMessage)
	v.SetDefault("chat.greeting_max_tokens", 3)

	v.SetDefault("ingestion.chunk_size", 1500)
	v.SetDefault("ingestion.chunk_overlap", 200)
	v.SetDefault("ingestion.max_upload_bytes", 20<<20)
	v.SetDefault("ingestion.blob_ttl", "1h")
	v.SetDefault("ingestion.job_ttl", "72h")
	v.SetDefault("ingestion.inline_worker", true)
	v.SetDefault("ingestion.docs_dir", "data")

	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.claim_interval", "30s")
	v.SetDefault("messaging.redis_stream.retry_limit", 3)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "2s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "1m")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.limit", 30)
	v.SetDefault("security.rate_limit.window", "1m")
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
}

// DefaultFallbackMessage 所有生成后端均失败时返回给用户的固定文案
const DefaultFallbackMessage = "I apologize, but I encountered a network error while generating a response. Please try again."
