// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/yumchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete yumchat configuration.
type Config struct {
	// OllamaURL is the base URL of the Ollama server.
	OllamaURL string `toml:"ollama_url" json:"ollama_url"`
	// DefaultModel is used for new conversations.
	DefaultModel string `toml:"default_model" json:"default_model"`
	// RequestTimeout bounds one generate request, in seconds.
	RequestTimeout int `toml:"request_timeout" json:"request_timeout"`
	// ShowThinking is the initial reasoning visibility.
	ShowThinking bool `toml:"show_thinking" json:"show_thinking"`
	// ContextWindow is used for models missing from models.json.
	ContextWindow int `toml:"context_window" json:"context_window"`
	// SystemPrompt is sent with every request when set.
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`

	Stream  StreamConfig  `toml:"stream" json:"stream"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Log     LogConfig     `toml:"log" json:"log"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`
	Theme   ThemeConfig   `toml:"theme" json:"theme"`
}

// StreamConfig tunes the response pipeline.
type StreamConfig struct {
	// SkipMalformedRecords drops undecodable records instead of failing the
	// turn.
	SkipMalformedRecords bool `toml:"skip_malformed_records" json:"skip_malformed_records"`
	// ChannelBuffer is the capacity of the producer's event channel.
	ChannelBuffer int `toml:"channel_buffer" json:"channel_buffer"`
}

// StorageConfig selects where conversations are saved.
type StorageConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `toml:"backend" json:"backend"`
	// Dir overrides the default <config dir>/chats.
	Dir string `toml:"dir" json:"dir"`
	// Disabled turns off saving.
	Disabled bool `toml:"disabled" json:"disabled"`
}

// LogConfig controls the log file.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level"`
	// File overrides the default <config dir>/yumchat.log.
	File string `toml:"file" json:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:9464". Empty disables it.
	Addr string `toml:"addr" json:"addr"`
}

// ThemeConfig holds message colors. Values are ANSI color names, 0-255
// palette indexes or #RRGGBB.
type ThemeConfig struct {
	UserMessageColor      string `toml:"user_message_color" json:"user_message_color"`
	AssistantMessageColor string `toml:"assistant_message_color" json:"assistant_message_color"`
	BorderColor           string `toml:"border_color" json:"border_color"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		OllamaURL:      "http://localhost:11434",
		DefaultModel:   "qwen3:4b",
		RequestTimeout: 600,
		ShowThinking:   false,
		ContextWindow:  4096,

		Stream: StreamConfig{
			SkipMalformedRecords: false,
			ChannelBuffer:        256,
		},

		Storage: StorageConfig{
			Backend: "file",
		},

		Log: LogConfig{
			Level: "info",
		},

		Theme: ThemeConfig{
			UserMessageColor:      "blue",
			AssistantMessageColor: "green",
			BorderColor:           "cyan",
		},
	}
}

// Timeout returns RequestTimeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the yumchat configuration directory. YUMCHAT_CONFIG_DIR
// overrides the platform default.
func ConfigDir() (string, error) {
	if dir := os.Getenv("YUMCHAT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine config directory: %w", err)
	}
	return filepath.Join(base, "yumchat"), nil
}

// ConfigPath returns the path to config.toml.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// StorageDir returns the conversation directory.
func (c *Config) StorageDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chats"), nil
}

// LogPath returns the log file path.
func (c *Config) LogPath() (string, error) {
	if c.Log.File != "" {
		return c.Log.File, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "yumchat.log"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the configuration from the default path, writing a default
// file first if none exists.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from path. A missing file is created
// with defaults. Environment overrides are applied last.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := SaveTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	} else {
		cfg = &Config{}
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path into cfg. Unknown keys are rejected.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// SetDefaults fills zero-valued fields. Booleans are left as decoded.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.OllamaURL == "" {
		c.OllamaURL = defaults.OllamaURL
	}
	c.OllamaURL = strings.TrimRight(c.OllamaURL, "/")
	if c.DefaultModel == "" {
		c.DefaultModel = defaults.DefaultModel
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = defaults.ContextWindow
	}

	if c.Stream.ChannelBuffer == 0 {
		c.Stream.ChannelBuffer = defaults.Stream.ChannelBuffer
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}

	if c.Theme.UserMessageColor == "" {
		c.Theme.UserMessageColor = defaults.Theme.UserMessageColor
	}
	if c.Theme.AssistantMessageColor == "" {
		c.Theme.AssistantMessageColor = defaults.Theme.AssistantMessageColor
	}
	if c.Theme.BorderColor == "" {
		c.Theme.BorderColor = defaults.Theme.BorderColor
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path atomically with a short header.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# yumchat configuration file\n")
	buf.WriteString("# Environment overrides: YUMCHAT_OLLAMA_URL, OLLAMA_HOST, YUMCHAT_MODEL, YUMCHAT_LOG_LEVEL\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0o600, 0o700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns all problems found.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.OllamaURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("ollama_url", "invalid URL '%s', must be http(s)://host[:port]", c.OllamaURL)
	}
	if strings.TrimSpace(c.DefaultModel) == "" {
		add("default_model", "must not be empty")
	}
	if c.RequestTimeout < 1 || c.RequestTimeout > 86400 {
		add("request_timeout", "must be between 1 and 86400 seconds, got %d", c.RequestTimeout)
	}
	if c.ContextWindow < 0 {
		add("context_window", "must not be negative, got %d", c.ContextWindow)
	}

	if c.Stream.ChannelBuffer < 1 || c.Stream.ChannelBuffer > 65536 {
		add("stream.channel_buffer", "must be between 1 and 65536, got %d", c.Stream.ChannelBuffer)
	}

	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		add("storage.backend", "invalid backend '%s', must be one of: file, sqlite", c.Storage.Backend)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}

	for field, color := range map[string]string{
		"theme.user_message_color":      c.Theme.UserMessageColor,
		"theme.assistant_message_color": c.Theme.AssistantMessageColor,
		"theme.border_color":            c.Theme.BorderColor,
	} {
		if !ValidColor(color) {
			add(field, "invalid color '%s'", color)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ColorNames are the ANSI color names accepted in [theme].
var ColorNames = []string{
	"black", "red", "green", "yellow", "blue", "magenta", "cyan", "white",
	"bright_black", "bright_red", "bright_green", "bright_yellow",
	"bright_blue", "bright_magenta", "bright_cyan", "bright_white",
}

// ValidColor reports whether s is a color name, a 0-255 palette index or
// #RRGGBB.
func ValidColor(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, name := range ColorNames {
		if s == name {
			return true
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n >= 0 && n <= 255
	}
	if len(s) == 7 && s[0] == '#' {
		_, err := strconv.ParseUint(s[1:], 16, 32)
		return err == nil
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - YUMCHAT_OLLAMA_URL: overrides ollama_url
//   - OLLAMA_HOST: overrides ollama_url when YUMCHAT_OLLAMA_URL is unset;
//     a bare host[:port] gets an http:// scheme
//   - YUMCHAT_MODEL: overrides default_model
//   - YUMCHAT_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("YUMCHAT_OLLAMA_URL"); u != "" {
		c.OllamaURL = u
	} else if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		c.OllamaURL = host
	}

	if model := os.Getenv("YUMCHAT_MODEL"); model != "" {
		c.DefaultModel = model
	}

	if level := os.Getenv("YUMCHAT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "stream.channel_buffer").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the dotted key through nested structs by toml tag.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	parts := strings.Split(key, ".")
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("toml") == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && field.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return collectKeys(reflect.TypeOf(Config{}), "")
}

func collectKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := prefix + f.Tag.Get("toml")
		if f.Type.Kind() == reflect.Struct {
			keys = append(keys, collectKeys(f.Type, name+".")...)
			continue
		}
		keys = append(keys, name)
	}
	return keys
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns an indented JSON rendering for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
