package ratelimit

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig limits one method on a path. A Path ending in "/" covers
// every path below it.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int // requests per Window; 0 means unlimited
	Window time.Duration
	Burst  int // defaults to Limit
}

// exempt is returned for requests that are never limited.
var exempt = EndpointConfig{}

// LoadConfig reads RATE_LIMIT_* environment variables. The processing
// endpoints can be tuned with RATE_LIMIT_PROCESS_LIMIT and
// RATE_LIMIT_PROCESS_WINDOW.
func LoadConfig() *Config {
	if !envBool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	endpoints := DefaultEndpointConfigs()
	processLimit := envInt("RATE_LIMIT_PROCESS_LIMIT", 0)
	processWindow := envDuration("RATE_LIMIT_PROCESS_WINDOW", 0)
	for i := range endpoints {
		if !strings.HasPrefix(endpoints[i].Path, "/process-") {
			continue
		}
		if processLimit > 0 {
			endpoints[i].Limit = processLimit
		}
		if processWindow > 0 {
			endpoints[i].Window = processWindow
		}
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    envInt("RATE_LIMIT_DEFAULT_LIMIT", 1000),
		DefaultWindow:   envDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: envDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       splitSet(os.Getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       splitSet(os.Getenv("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: endpoints,
	}
}

// DefaultEndpointConfigs returns the per-endpoint limits. Endpoints that call
// the model are the strictest; reads fall back to the default limit.
func DefaultEndpointConfigs() []EndpointConfig {
	write := func(path, method string) EndpointConfig {
		return EndpointConfig{Path: path, Method: method, Limit: 100, Window: time.Minute, Burst: 10}
	}
	return []EndpointConfig{
		{Path: "/process-document", Method: http.MethodPost, Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/process-document/stream", Method: http.MethodPost, Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/process-local-pdf", Method: http.MethodPost, Limit: 60, Window: time.Hour, Burst: 10},
		write("/templates", http.MethodPost),
		write("/templates/", http.MethodPost),
		write("/templates/", http.MethodPut),
		write("/templates/", http.MethodDelete),
		write("/generate-excel", http.MethodPost),
		write("/metadata", http.MethodDelete),
	}
}

// MatchEndpoint returns the config for a request, or nil when the default
// limit applies. Exact paths win over prefixes and longer prefixes win over
// shorter ones. Health checks and CORS preflights are exempt.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if (path == "/health" && method == http.MethodGet) || method == http.MethodOptions {
		e := exempt
		return &e
	}

	var best *EndpointConfig
	for i := range configs {
		c := &configs[i]
		if c.Method != method {
			continue
		}
		if c.Path == path {
			return c
		}
		if strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) &&
			(best == nil || len(c.Path) > len(best.Path)) {
			best = c
		}
	}
	return best
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}

// splitSet parses a comma-separated list into a set.
func splitSet(list string) map[string]bool {
	set := make(map[string]bool)
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = true
		}
	}
	return set
}
