package sources

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type Cache struct {
	sourcesDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewCache(sourcesDir string) *Cache {
	return &Cache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Config),
	}
}

func (c *Cache) Run() error {
	if _, err := os.Stat(c.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(c.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := c.LoadConfig(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source configuration loaded", "category", name,
			"enabled", config.Settings.Enabled, "kind", config.Settings.Kind)
	}

	return nil
}

func (c *Cache) LoadConfig(name string) (*Config, error) {
	configFile := filepath.Join(c.sourcesDir, name+".yml")
	config, err := c.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	config.Name = name

	if err := c.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[config.Name] = config

	return config, nil
}

func (c *Cache) GetConfig(name string) (*Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	config, ok := c.cache[name]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", name)
	}
	return config, nil
}

// GetEnabledConfigs returns enabled categories in name order, so a run
// always iterates categories deterministically.
func (c *Cache) GetEnabledConfigs() []*Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	enabled := make([]*Config, 0, len(c.cache))
	for _, v := range c.cache {
		if v.Settings.Enabled {
			enabled = append(enabled, v)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })
	return enabled
}

func (c *Cache) GetConfigCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *Cache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Settings.Kind == "" {
		config.Settings.Kind = KindArticle
	}

	return &config, nil
}

func (c *Cache) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if config.Name == "" {
		return fmt.Errorf("category name is required")
	}
	if config.Settings.ListingURL == "" {
		return fmt.Errorf("listing URL is required")
	}

	if config.Settings.Kind != KindArticle && config.Settings.Kind != KindForum {
		return fmt.Errorf("invalid kind: %s", config.Settings.Kind)
	}

	if config.Settings.PageCap < 0 {
		return fmt.Errorf("page cap must be non-negative")
	}

	return nil
}
