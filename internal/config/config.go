// Package config holds the memory engine's tunable constants and the
// thin CLI-flag surface that assembles a Config at process start.
//
// Following the teacher's internal/memory.DefaultConfig convention, the
// process has one Config struct and one DefaultConfig function rather
// than a general-purpose configuration framework — the CLI surface is
// deliberately thin (§6 of the specification).
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Embedding / vector constants (specification §6).
const (
	VectorDim = 384

	// TopicDedupThreshold is the cosine distance below which two topic
	// names are considered the same topic.
	TopicDedupThreshold = 0.20

	// TopicMatchThreshold is the cosine distance above which a query
	// context is considered unrelated to any known topic (cold start).
	TopicMatchThreshold = 0.40

	// MergeThreshold is the default cosine distance used to connect
	// two QA records in the merge similarity graph.
	MergeThreshold = 0.15

	// MergeSuggestThreshold is the cosine distance used by store_qa to
	// surface non-binding merge candidates.
	MergeSuggestThreshold = 0.15

	// DefaultSearchLimit is the default result-set size for query_qa
	// and the recall endpoint.
	DefaultSearchLimit = 5
)

// Transport selects how the MCP server is exposed.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// Config is the fully resolved process configuration.
type Config struct {
	Transport Transport
	Port      int
	HookPort  int
	DBPath    string
	ModelDir  string
	Debug     bool
}

// DefaultDBPath returns "~/.memorize-mcp" expanded to the real home
// directory, matching the default named in the specification.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memorize-mcp"
	}
	return filepath.Join(home, ".memorize-mcp")
}

// DefaultConfig returns the configuration used when no flags are given.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportStdio,
		Port:      8787,
		HookPort:  0,
		DBPath:    DefaultDBPath(),
		ModelDir:  "",
		Debug:     false,
	}
}

// ParseFlags builds a Config from the given argument list (normally
// os.Args[1:]). It returns a dedicated error for bad arguments so the
// caller can map it to the CLI's exit code 2.
func ParseFlags(args []string) (*Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("memorize-mcp", flag.ContinueOnError)
	transport := fs.String("transport", string(cfg.Transport), "transport to serve the MCP protocol over: stdio or http")
	port := fs.Int("port", cfg.Port, "port to listen on when --transport=http")
	hookPort := fs.Int("hook-port", cfg.HookPort, "port for the recall HTTP endpoint (0 disables it)")
	dbPath := fs.String("db-path", cfg.DBPath, "directory holding the vector store and JSON snapshot")
	modelDir := fs.String("model-dir", cfg.ModelDir, "directory holding the embedding model's vocabulary and weights")
	debug := fs.Bool("debug", cfg.Debug, "enable debug-level logging")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	switch strings.ToLower(*transport) {
	case string(TransportStdio):
		cfg.Transport = TransportStdio
	case string(TransportHTTP):
		cfg.Transport = TransportHTTP
	default:
		return nil, fmt.Errorf("config: unknown --transport %q (want stdio or http)", *transport)
	}

	if *port < 0 || *port > 65535 {
		return nil, fmt.Errorf("config: --port %d out of range", *port)
	}
	if *hookPort < 0 || *hookPort > 65535 {
		return nil, fmt.Errorf("config: --hook-port %d out of range", *hookPort)
	}

	cfg.Port = *port
	cfg.HookPort = *hookPort
	cfg.DBPath = expandHome(*dbPath)
	cfg.ModelDir = expandHome(*modelDir)
	cfg.Debug = *debug

	return cfg, nil
}

// expandHome expands a leading "~/" to the user's home directory,
// matching the teacher's expandPath convention used across its storage
// backends.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
