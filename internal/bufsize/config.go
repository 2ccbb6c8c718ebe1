package bufsize

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// KnownLimit seeds the persisted limiter table: Data is the normalized
// limiter identity ("(struct S)->member", "static n", "global n"), Array
// the array identity it bounds; empty Array limits everything.
type KnownLimit struct {
	Data  string `yaml:"data"`
	Array string `yaml:"array"`
}

// Config selects the recognizer tables. Allocators maps allocator name to
// the index of its size argument, Callocs to the index of the count
// argument (element size follows it).
type Config struct {
	Kernel      bool           `yaml:"kernel"`
	Allocators  map[string]int `yaml:"allocators"`
	Callocs     map[string]int `yaml:"callocs"`
	CopyFuncs   []string       `yaml:"copy_functions"`
	KnownLimits []KnownLimit   `yaml:"known_limits"`
}

// DefaultConfig is the built-in allocator table; kernel mode adds the
// kernel allocation and user-copy surface.
func DefaultConfig(kernel bool) *Config {
	cfg := &Config{
		Kernel: kernel,
		Allocators: map[string]int{
			"malloc":  0,
			"memdup":  1,
			"realloc": 1,
		},
		Callocs: map[string]int{
			"calloc": 0,
		},
	}
	if kernel {
		for name, arg := range map[string]int{
			"kmalloc":            0,
			"kzalloc":            0,
			"vmalloc":            0,
			"__vmalloc":          0,
			"sock_kmalloc":       1,
			"kmemdup":            1,
			"memdup_user":        1,
			"dma_alloc_attrs":    1,
			"dma_alloc_coherent": 1,
			"devm_kmalloc":       1,
			"devm_kzalloc":       1,
			"krealloc":           1,
		} {
			cfg.Allocators[name] = arg
		}
		cfg.Callocs["kcalloc"] = 0
		cfg.Callocs["devm_kcalloc"] = 1
		cfg.Callocs["kmalloc_array"] = 0
		cfg.CopyFuncs = []string{"copy_from_user", "__copy_from_user"}
	}
	return cfg
}

// LoadConfig reads a YAML override file and merges it over the defaults.
// Table entries add to (or re-point) the built-ins rather than replacing
// the whole table.
func LoadConfig(fs afero.Fs, path string, kernel bool) (*Config, error) {
	cfg := DefaultConfig(kernel)
	if path == "" {
		return cfg, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if override.Kernel && !cfg.Kernel {
		// upgrading to kernel mode pulls in the kernel tables first
		cfg = DefaultConfig(true)
	}
	for name, arg := range override.Allocators {
		cfg.Allocators[name] = arg
	}
	for name, arg := range override.Callocs {
		cfg.Callocs[name] = arg
	}
	cfg.CopyFuncs = append(cfg.CopyFuncs, override.CopyFuncs...)
	cfg.KnownLimits = append(cfg.KnownLimits, override.KnownLimits...)
	return cfg, nil
}
