// Package config loads rdfsearch configuration. Sources are applied in order
// of increasing precedence: defaults, the user config, the project config
// and RDFSEARCH_* environment variables. RDFSEARCH_CONFIG names a file that
// replaces the project config and must exist.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/rdfsearch/internal/errors"
	"github.com/Aman-CERP/rdfsearch/internal/logging"
	"github.com/Aman-CERP/rdfsearch/internal/rdf"
	"github.com/Aman-CERP/rdfsearch/internal/sail"
	"github.com/Aman-CERP/rdfsearch/internal/search"
)

// DataDir is the directory, relative to the project, holding the default
// store and index.
const DataDir = ".rdfsearch"

// Config represents the complete rdfsearch configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
}

// IndexConfig configures the search index and query interpretation.
type IndexConfig struct {
	// Path is the bleve index directory. Relative paths are resolved
	// against the project directory; empty keeps the index in memory.
	Path string `yaml:"path" json:"path"`
	// MaxDocuments caps hits per search; 0 means all documents.
	MaxDocuments int `yaml:"max_documents" json:"max_documents"`
	// WKTFields lists geometry predicates. Changing it requires a reindex.
	WKTFields []string `yaml:"wkt_fields" json:"wkt_fields"`
	// IndexedLanguages restricts literals to these language tags.
	IndexedLanguages []string `yaml:"indexed_languages" json:"indexed_languages"`
	// IndexedTypes maps a type predicate to the types that make a subject indexable.
	IndexedTypes map[string][]string `yaml:"indexed_types" json:"indexed_types"`
	// IndexedFields restricts indexing to these predicates.
	IndexedFields []string `yaml:"indexed_fields" json:"indexed_fields"`
	// FieldMapping renames predicates before indexing.
	FieldMapping map[string]string `yaml:"field_mapping" json:"field_mapping"`
	// IndexID restricts text searches to queries naming this index.
	IndexID string `yaml:"index_id" json:"index_id"`
	// IncompleteQueryFails rejects malformed search patterns instead of ignoring them.
	IncompleteQueryFails bool `yaml:"incomplete_query_fails" json:"incomplete_query_fails"`
	// TypeBacktrace is none, insert or complete.
	TypeBacktrace string `yaml:"type_backtrace" json:"type_backtrace"`
	// GeoCacheSize is the number of parsed geometries cached; 0 disables the cache.
	GeoCacheSize int `yaml:"geo_cache_size" json:"geo_cache_size"`
}

// StoreConfig configures the quad store.
type StoreConfig struct {
	// Path is the SQLite file; empty keeps the store in memory.
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// TelemetryConfig configures metrics and the query log.
type TelemetryConfig struct {
	// QueryLog is a SQLite file recording evaluated searches. Empty disables it.
	QueryLog string `yaml:"query_log" json:"query_log"`
	// MetricsAddr serves Prometheus metrics during watch, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// WatchConfig configures dataset watching.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Path:          filepath.Join(DataDir, "index"),
			WKTFields:     []string{string(rdf.GeoAsWKT)},
			TypeBacktrace: string(sail.BacktraceNone),
			GeoCacheSize:  1024,
		},
		Store: StoreConfig{
			Path: filepath.Join(DataDir, "store.db"),
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
	}
}

// GetUserConfigPath returns the user configuration file:
// $XDG_CONFIG_HOME/rdfsearch/config.yaml or ~/.config/rdfsearch/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rdfsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "rdfsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "rdfsearch", "config.yaml")
}

// ProjectConfigPath returns the project config file in dir, preferring
// .rdfsearch.yaml over .rdfsearch.yml. The .yaml path is returned when neither exists.
func ProjectConfigPath(dir string) string {
	yamlPath := filepath.Join(dir, ".rdfsearch.yaml")
	if fileExists(yamlPath) {
		return yamlPath
	}
	if ymlPath := filepath.Join(dir, ".rdfsearch.yml"); fileExists(ymlPath) {
		return ymlPath
	}
	return yamlPath
}

// Load builds the configuration for the project in dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if explicit := os.Getenv("RDFSEARCH_CONFIG"); explicit != "" {
		if !fileExists(explicit) {
			return nil, errors.New(errors.ErrCodeConfigNotFound, "config file not found: "+explicit, nil).
				WithSuggestion("unset RDFSEARCH_CONFIG or run 'rdfsearch config init'")
		}
		if err := cfg.loadYAML(explicit); err != nil {
			return nil, err
		}
	} else if projectPath := ProjectConfigPath(dir); fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML merges the non-zero values of the file at path into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	o := other.Index
	if o.Path != "" {
		c.Index.Path = o.Path
	}
	if o.MaxDocuments != 0 {
		c.Index.MaxDocuments = o.MaxDocuments
	}
	if len(o.WKTFields) > 0 {
		c.Index.WKTFields = o.WKTFields
	}
	if len(o.IndexedLanguages) > 0 {
		c.Index.IndexedLanguages = o.IndexedLanguages
	}
	if len(o.IndexedTypes) > 0 {
		c.Index.IndexedTypes = o.IndexedTypes
	}
	if len(o.IndexedFields) > 0 {
		c.Index.IndexedFields = o.IndexedFields
	}
	if len(o.FieldMapping) > 0 {
		c.Index.FieldMapping = o.FieldMapping
	}
	if o.IndexID != "" {
		c.Index.IndexID = o.IndexID
	}
	if o.IncompleteQueryFails {
		c.Index.IncompleteQueryFails = true
	}
	if o.TypeBacktrace != "" {
		c.Index.TypeBacktrace = o.TypeBacktrace
	}
	if o.GeoCacheSize != 0 {
		c.Index.GeoCacheSize = o.GeoCacheSize
	}

	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}

	if other.Telemetry.QueryLog != "" {
		c.Telemetry.QueryLog = other.Telemetry.QueryLog
	}
	if other.Telemetry.MetricsAddr != "" {
		c.Telemetry.MetricsAddr = other.Telemetry.MetricsAddr
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
}

// applyEnvOverrides applies RDFSEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v, ok := os.LookupEnv("RDFSEARCH_INDEX_PATH"); ok {
		c.Index.Path = v
	}
	if v, ok := os.LookupEnv("RDFSEARCH_STORE_PATH"); ok {
		c.Store.Path = v
	}
	if v := os.Getenv("RDFSEARCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RDFSEARCH_STRICT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RDFSEARCH_STRICT: %w", err)
		}
		c.Index.IncompleteQueryFails = b
	}
	if v := os.Getenv("RDFSEARCH_TYPE_BACKTRACE"); v != "" {
		c.Index.TypeBacktrace = v
	}
	if v := os.Getenv("RDFSEARCH_MAX_DOCUMENTS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("RDFSEARCH_MAX_DOCUMENTS: %w", err)
		}
		c.Index.MaxDocuments = n
	}
	if v := os.Getenv("RDFSEARCH_METRICS_ADDR"); v != "" {
		c.Telemetry.MetricsAddr = v
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Index.MaxDocuments < 0 {
		return fmt.Errorf("index.max_documents must be non-negative, got %d", c.Index.MaxDocuments)
	}
	if c.Index.GeoCacheSize < 0 {
		return fmt.Errorf("index.geo_cache_size must be non-negative, got %d", c.Index.GeoCacheSize)
	}
	if _, err := sail.ParseBacktraceMode(c.Index.TypeBacktrace); err != nil {
		return fmt.Errorf("index.type_backtrace: %w", err)
	}
	for pred, types := range c.Index.IndexedTypes {
		if pred == "" {
			return fmt.Errorf("index.indexed_types has an empty predicate")
		}
		if len(types) == 0 {
			return fmt.Errorf("index.indexed_types[%s] lists no types", pred)
		}
	}
	for _, f := range c.Index.WKTFields {
		if f == "" {
			return fmt.Errorf("index.wkt_fields contains an empty predicate")
		}
	}
	for from, to := range c.Index.FieldMapping {
		if from == "" || to == "" {
			return fmt.Errorf("index.field_mapping entries need both predicates, got %q -> %q", from, to)
		}
	}
	if err := logging.ValidLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Watch.Debounce != "" {
		d, err := time.ParseDuration(c.Watch.Debounce)
		if err != nil || d < 0 {
			return fmt.Errorf("watch.debounce must be a non-negative duration, got %q", c.Watch.Debounce)
		}
	}
	return nil
}

// WatchDebounce returns the parsed debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	d, _ := time.ParseDuration(c.Watch.Debounce)
	return d
}

// SailOptions converts the configuration into sail options. Relative paths
// are resolved against dir.
func (c *Config) SailOptions(dir string) (sail.Options, error) {
	mode, err := sail.ParseBacktraceMode(c.Index.TypeBacktrace)
	if err != nil {
		return sail.Options{}, err
	}
	opts := sail.Options{
		IndexPath:    resolve(dir, c.Index.Path),
		StorePath:    resolve(dir, c.Store.Path),
		QueryLogPath: resolve(dir, c.Telemetry.QueryLog),
		GeoCacheSize: c.Index.GeoCacheSize,
		Search:       c.SearchOptions(),
		IndexID:      rdf.IRI(c.Index.IndexID),
		Strict:       c.Index.IncompleteQueryFails,
		Backtrace:    mode,
	}
	for _, f := range c.Index.IndexedFields {
		opts.IndexedFields = append(opts.IndexedFields, rdf.IRI(f))
	}
	if len(c.Index.FieldMapping) > 0 {
		opts.FieldMapping = make(map[rdf.IRI]rdf.IRI, len(c.Index.FieldMapping))
		for from, to := range c.Index.FieldMapping {
			opts.FieldMapping[rdf.IRI(from)] = rdf.IRI(to)
		}
	}
	return opts, nil
}

// SearchOptions converts the index section into search options.
func (c *Config) SearchOptions() search.Options {
	opts := search.Options{
		MaxDocuments:     c.Index.MaxDocuments,
		IndexedLanguages: c.Index.IndexedLanguages,
	}
	if c.Index.WKTFields != nil {
		opts.WKTFields = make([]rdf.IRI, len(c.Index.WKTFields))
		for i, f := range c.Index.WKTFields {
			opts.WKTFields[i] = rdf.IRI(f)
		}
	}
	if len(c.Index.IndexedTypes) > 0 {
		opts.IndexedTypes = make(map[rdf.IRI][]rdf.IRI, len(c.Index.IndexedTypes))
		for pred, types := range c.Index.IndexedTypes {
			for _, t := range types {
				opts.IndexedTypes[rdf.IRI(pred)] = append(opts.IndexedTypes[rdf.IRI(pred)], rdf.IRI(t))
			}
		}
	}
	return opts
}

// LogConfig converts the logging section. An empty file means the
// default log path.
func (c *Config) LogConfig(debug bool) logging.Config {
	cfg := logging.Config{
		Level:         c.Logging.Level,
		FilePath:      c.Logging.File,
		MaxSizeMB:     c.Logging.MaxSizeMB,
		MaxFiles:      c.Logging.MaxFiles,
		WriteToStderr: false,
	}
	if cfg.FilePath == "" {
		cfg.FilePath = logging.DefaultLogPath()
	}
	if debug {
		cfg.Level = "debug"
		cfg.WriteToStderr = true
	}
	return cfg
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
