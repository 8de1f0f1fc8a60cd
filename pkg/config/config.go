// Package config provides the Options record that parameterizes a loom
// Runtime: thread counts, barrier and termination-detector selection, and
// the statistics subsystem's two environment-variable toggles. Precedence:
// environment variables override a loaded file, which overrides the
// built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// BarrierKind selects which Barrier implementation a Runtime constructs.
type BarrierKind string

const (
	BarrierTopo   BarrierKind = "topo"
	BarrierSimple BarrierKind = "simple"
)

// TerminationTopology selects the order in which the termination detector
// checks worker activity: ring or k-ary tree, chosen at runtime rather
// than fixed at build time.
type TerminationTopology string

const (
	TerminationRing TerminationTopology = "ring"
	TerminationTree TerminationTopology = "tree"
)

// Options configures a Runtime. Zero value is invalid; use Default() or
// Load() to obtain a validated Options.
type Options struct {
	MaxThreads           int                 `json:"max_threads"`
	DefaultActiveThreads int                 `json:"default_active_threads"`
	Sockets              int                 `json:"sockets"`
	BarrierKind          BarrierKind         `json:"barrier_kind"`
	TerminationTopology  TerminationTopology `json:"termination_topology"`
	TerminationArity     int                 `json:"termination_arity"`
	ChunkSize            uint32              `json:"chunk_size"`
	HugePages            bool                `json:"huge_pages"`
	StatFile             string              `json:"stat_file"`
	PrintPerThreadStats  bool                `json:"print_per_thread_stats"`
	ParameterOutfile     string              `json:"parameter_outfile"`
}

// Default returns secure, runnable defaults: one logical lane per detected
// CPU, the fast-path topo barrier, ring-topology termination detection,
// and a 64-item chunk size.
func Default() Options {
	n := runtime.NumCPU()
	return Options{
		MaxThreads:           n,
		DefaultActiveThreads: n,
		Sockets:              1,
		BarrierKind:          BarrierTopo,
		TerminationTopology:  TerminationRing,
		TerminationArity:     2,
		ChunkSize:            64,
		HugePages:            true,
		StatFile:             "",
		PrintPerThreadStats:  false,
		ParameterOutfile:     "",
	}
}

// Load builds Options from defaults, an optional JSON file, and then
// environment variable overrides, in that precedence order (env wins).
func Load(path string) (Options, error) {
	opts := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Options{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &opts); err != nil {
			return Options{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	applyEnvOverrides(&opts)
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func applyEnvOverrides(o *Options) {
	if v, ok := os.LookupEnv("LOOM_MAX_THREADS"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			o.MaxThreads = n
		}
	}
	if v, ok := os.LookupEnv("LOOM_ACTIVE_THREADS"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			o.DefaultActiveThreads = n
		}
	}
	if v, ok := os.LookupEnv("LOOM_SOCKETS"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			o.Sockets = n
		}
	}
	if v, ok := os.LookupEnv("LOOM_BARRIER_KIND"); ok {
		o.BarrierKind = BarrierKind(v)
	}
	if v, ok := os.LookupEnv("LOOM_TERMINATION_TOPOLOGY"); ok {
		o.TerminationTopology = TerminationTopology(v)
	}
	if v, ok := os.LookupEnv("LOOM_CHUNK_SIZE"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
			o.ChunkSize = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("LOOM_STAT_FILE"); ok {
		o.StatFile = v
	}
	// PRINT_PER_THREAD_STATS is the statistics subsystem's debug toggle;
	// the name is kept uppercase and unprefixed to match existing
	// operator tooling.
	if _, ok := os.LookupEnv("PRINT_PER_THREAD_STATS"); ok {
		o.PrintPerThreadStats = true
	}
	if v, ok := os.LookupEnv("LOOM_PARAMETER_OUTFILE"); ok {
		o.ParameterOutfile = v
	}
}

// Validate returns a descriptive error for any field combination that
// would make Runtime construction unsafe.
func (o Options) Validate() error {
	if o.MaxThreads <= 0 {
		return fmt.Errorf("config: max_threads must be positive, got %d", o.MaxThreads)
	}
	if o.DefaultActiveThreads <= 0 || o.DefaultActiveThreads > o.MaxThreads {
		return fmt.Errorf("config: default_active_threads %d must be in (0, max_threads=%d]", o.DefaultActiveThreads, o.MaxThreads)
	}
	if o.Sockets <= 0 || o.Sockets > o.MaxThreads {
		return fmt.Errorf("config: sockets %d must be in (0, max_threads=%d]", o.Sockets, o.MaxThreads)
	}
	if o.BarrierKind != BarrierTopo && o.BarrierKind != BarrierSimple {
		return fmt.Errorf("config: unknown barrier_kind %q", o.BarrierKind)
	}
	if o.TerminationTopology != TerminationRing && o.TerminationTopology != TerminationTree {
		return fmt.Errorf("config: unknown termination_topology %q", o.TerminationTopology)
	}
	if o.ChunkSize == 0 {
		return fmt.Errorf("config: chunk_size must be positive")
	}
	return nil
}

// SaveToFile writes Options as indented JSON.
func (o Options) SaveToFile(path string) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
