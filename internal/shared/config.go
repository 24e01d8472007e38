package shared

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	AppName   = "mongo-safe"
	EnvPrefix = "MONGOSAFE_"
)

type Config struct {
	Database struct {
		DSN string `koanf:"dsn"` // SQLite file path
	} `koanf:"database"`

	Analysis struct {
		Sources           []string `koanf:"sources"`
		Extensions        []string `koanf:"extensions"`
		Exclude           []string `koanf:"exclude"`
		Workers           int      `koanf:"workers"`
		SeverityThreshold string   `koanf:"severity_threshold"` // low|medium|high
		DisabledRules     []string `koanf:"disabled_rules"`
		RulePacks         []string `koanf:"rule_packs"` // YAML/TOML packs appended to the catalog
		MaxFileBytes      int64    `koanf:"max_file_bytes"`
	} `koanf:"analysis"`

	Reporting struct {
		OutDir  string   `koanf:"out_dir"`
		Formats []string `koanf:"formats"` // json|html|sarif|checkstyle
	} `koanf:"reporting"`

	Logging struct {
		Format string `koanf:"format"` // "json"|"text"
		Level  string `koanf:"level"`  // "debug"|"info"|"warn"|"error"
	} `koanf:"logging"`

	Server struct {
		Addr           string        `koanf:"addr"`
		AllowedOrigins []string      `koanf:"allowed_origins"`
		SessionTTL     time.Duration `koanf:"session_ttl"`
	} `koanf:"server"`
}

func defaults() map[string]any {
	return map[string]any{
		"database.dsn":                filepath.Join(xdg.DataHome, AppName, AppName+".db"),
		"analysis.sources":            []string{"."},
		"analysis.extensions":         []string{".js", ".mjs", ".cjs", ".ts", ".tsx", ".jsx", ".py", ".go", ".java", ".rb", ".php", ".cs", ".kt"},
		"analysis.exclude":            []string{"node_modules", ".git", "vendor", "dist", "build"},
		"analysis.workers":            4,
		"analysis.severity_threshold": "low",
		"analysis.disabled_rules":     []string{},
		"analysis.rule_packs":         []string{},
		"analysis.max_file_bytes":     int64(2 << 20),
		"reporting.out_dir":           "./reports",
		"reporting.formats":           []string{"json", "html"},
		"logging.format":              "text",
		"logging.level":               "info",
		"server.addr":                 "127.0.0.1:8080",
		"server.allowed_origins":      []string{},
		"server.session_ttl":          "12h",
	}
}

func DefaultConfig() Config {
	c, err := load(koanf.New("."), "")
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return c
}

// DefaultConfigPath is $XDG_CONFIG_HOME/mongo-safe/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// LoadConfig layers, lowest first: defaults, the config file at path (or
// the XDG default when path is empty and that file exists), .env, then
// MONGOSAFE_* environment variables. Flags are applied by the caller.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if path == "" {
		if _, err := os.Stat(DefaultConfigPath()); err == nil {
			path = DefaultConfigPath()
		}
	}
	// a missing .env is normal
	_ = godotenv.Load()
	return load(k, path)
}

func load(k *koanf.Koanf, path string) (Config, error) {
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		var parser koanf.Parser = yaml.Parser()
		if strings.EqualFold(filepath.Ext(path), ".toml") {
			parser = toml.Parser()
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	// MONGOSAFE_ANALYSIS_SEVERITY_THRESHOLD -> analysis.severity_threshold
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var c Config
	uc := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &c,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &c, uc); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}
