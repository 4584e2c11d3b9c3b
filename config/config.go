package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	loadOnce sync.Once
	fileMu   sync.RWMutex
	fileVars map[string]string
)

// Config returns the value for key. The process environment wins, then the
// flat YAML file named by CONFIG_FILE, then "".
func Config(key string) string {
	loadOnce.Do(load)

	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	fileMu.RLock()
	defer fileMu.RUnlock()
	return fileVars[key]
}

// Int returns key parsed as an int, or def when unset or malformed.
func Int(key string, def int) int {
	value := strings.TrimSpace(Config(key))
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}

// Float returns key parsed as a float64, or def when unset or malformed.
func Float(key string, def float64) float64 {
	value := strings.TrimSpace(Config(key))
	if value == "" {
		return def
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return f
}

// Duration accepts Go duration strings ("15s", "24h").
func Duration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(Config(key))
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

func Bool(key string, def bool) bool {
	value := strings.TrimSpace(Config(key))
	if value == "" {
		return def
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return b
}

func load() {
	// .env is optional in containers
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return
	}
	vars, err := LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return
	}
	fileMu.Lock()
	fileVars = vars
	fileMu.Unlock()
}

// LoadFile parses a flat YAML document of KEY: value pairs. Scalars of any
// type are kept in their textual form.
func LoadFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	vars := make(map[string]string, len(doc))
	for key, node := range doc {
		if node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("config key %s: expected a scalar value", key)
		}
		vars[key] = node.Value
	}
	return vars, nil
}
