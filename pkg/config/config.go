/*
Package config manages TOML config for geosift services.
*/
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/geosift/geosift/internal/utils"
	"github.com/geosift/geosift/pkg/dataset"
	"github.com/geosift/geosift/pkg/recent"
	"github.com/geosift/geosift/pkg/search"
	"github.com/geosift/geosift/pkg/storage"
)

// Config holds the entire config structure.
type Config struct {
	Search    SearchConfig    `toml:"search"`
	Cache     CacheConfig     `toml:"cache"`
	Storage   StorageConfig   `toml:"storage"`
	Processor ProcessorConfig `toml:"processor"`
	Datasets  []DatasetConfig `toml:"dataset"`
}

// SearchConfig has scoring and ranking options.
type SearchConfig struct {
	DebounceMs     int     `toml:"debounce_ms"`
	MaxResults     int     `toml:"max_results"`
	ScoreThreshold float64 `toml:"score_threshold"`
	Fuzzy          bool    `toml:"fuzzy"`
	MaxRecent      int     `toml:"max_recent"`
}

// CacheConfig holds dataset cache options.
type CacheConfig struct {
	TTLMinutes int `toml:"ttl_minutes"`
	// MaxBytes caps persisted bytes; zero disables the quota.
	MaxBytes int `toml:"max_bytes"`
}

// StorageConfig selects where the key-value store lives.
type StorageConfig struct {
	Dir      string `toml:"dir"`
	InMemory bool   `toml:"in_memory"`
}

// ProcessorConfig tunes the dataset processing strategies.
type ProcessorConfig struct {
	SyncThreshold     int `toml:"sync_threshold"`
	WorkerTimeoutSecs int `toml:"worker_timeout_secs"`
	PoolSize          int `toml:"pool_size"`
}

// DatasetConfig names one remote feature collection to load.
type DatasetConfig struct {
	Type string `toml:"type"`
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// DebounceDuration converts the configured debounce to a duration.
func (s SearchConfig) DebounceDuration() time.Duration {
	return time.Duration(s.DebounceMs) * time.Millisecond
}

// WorkerTimeout converts the configured task timeout to a duration.
func (p ProcessorConfig) WorkerTimeout() time.Duration {
	return time.Duration(p.WorkerTimeoutSecs) * time.Second
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Search: SearchConfig{
			DebounceMs:     50,
			MaxResults:     search.DefaultMaxResults,
			ScoreThreshold: search.DefaultScoreThreshold,
			Fuzzy:          true,
			MaxRecent:      recent.DefaultMaxEntries,
		},
		Cache: CacheConfig{
			TTLMinutes: storage.DefaultTTLMinutes,
			MaxBytes:   0,
		},
		Storage: StorageConfig{
			Dir:      "data/",
			InMemory: false,
		},
		Processor: ProcessorConfig{
			SyncThreshold:     dataset.DefaultSyncThreshold,
			WorkerTimeoutSecs: int(dataset.DefaultWorkerTimeout / time.Second),
			PoolSize:          0,
		},
	}
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/geosift
// 2. ~/Library/Application Support/geosift (macOS)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.GetExecutableDir()
	}
	primaryPath := filepath.Join(homeDir, ".config", "geosift")
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", "geosift")
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml.
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/geosift/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			cfg, err := LoadConfig(customConfigPath)
			if err == nil {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return cfg, customConfigPath, nil
			}
			log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}

	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using builtin defaults...", err)
		return DefaultConfig(), "", nil
	}

	cfg, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return cfg, defaultPath, nil
}

// InitConfig loads config from file or creates a default one if missing.
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using builtin defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using builtin defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return cfg, nil
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using builtin defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return cfg, nil
}

// LoadConfig loads from a TOML file, recovering sections individually when
// the file only partially parses.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if err := utils.LoadTOMLFile(configPath, cfg); err != nil {
		return tryPartialParse(configPath)
	}
	return cfg, nil
}

func tryPartialParse(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	loose, err := utils.ParseTOMLLoose(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return cfg, nil
	}

	if section, ok := utils.ExtractSection(loose, "search"); ok {
		extractSearchConfig(section, &cfg.Search)
	}
	if section, ok := utils.ExtractSection(loose, "cache"); ok {
		extractCacheConfig(section, &cfg.Cache)
	}
	if section, ok := utils.ExtractSection(loose, "processor"); ok {
		extractProcessorConfig(section, &cfg.Processor)
	}
	if section, ok := utils.ExtractSection(loose, "storage"); ok {
		extractStorageConfig(section, &cfg.Storage)
	}
	return cfg, nil
}

func extractSearchConfig(data map[string]any, s *SearchConfig) {
	if val, ok := utils.ExtractInt(data, "debounce_ms"); ok {
		s.DebounceMs = val
	}
	if val, ok := utils.ExtractInt(data, "max_results"); ok {
		s.MaxResults = val
	}
	if val, ok := utils.ExtractFloat(data, "score_threshold"); ok {
		s.ScoreThreshold = val
	}
	if val, ok := utils.ExtractBool(data, "fuzzy"); ok {
		s.Fuzzy = val
	}
	if val, ok := utils.ExtractInt(data, "max_recent"); ok {
		s.MaxRecent = val
	}
}

func extractCacheConfig(data map[string]any, c *CacheConfig) {
	if val, ok := utils.ExtractInt(data, "ttl_minutes"); ok {
		c.TTLMinutes = val
	}
	if val, ok := utils.ExtractInt(data, "max_bytes"); ok {
		c.MaxBytes = val
	}
}

func extractProcessorConfig(data map[string]any, p *ProcessorConfig) {
	if val, ok := utils.ExtractInt(data, "sync_threshold"); ok {
		p.SyncThreshold = val
	}
	if val, ok := utils.ExtractInt(data, "worker_timeout_secs"); ok {
		p.WorkerTimeoutSecs = val
	}
	if val, ok := utils.ExtractInt(data, "pool_size"); ok {
		p.PoolSize = val
	}
}

func extractStorageConfig(data map[string]any, s *StorageConfig) {
	if val, ok := data["dir"].(string); ok {
		s.Dir = val
	}
	if val, ok := utils.ExtractBool(data, "in_memory"); ok {
		s.InMemory = val
	}
}

// SaveConfig saves into a TOML file.
func SaveConfig(cfg *Config, configPath string) error {
	return utils.SaveTOMLFile(cfg, configPath)
}

// GetActiveConfigPath returns the absolute path of the loaded config file.
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.GetAbsolutePath(configPath)
}
