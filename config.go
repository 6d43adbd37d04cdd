package simstate

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// Default option values.
const (
	DefaultMaxStrlen        = 15
	DefaultMaxBufferSize    = 256
	DefaultMaxSymbolicAddrs = 256
	DefaultSolverCacheSize  = 1024
)

// Options configures the bounds used when exploring symbolic values.
type Options struct {
	// Architecture name used by drivers that construct states.
	Arch string `yaml:"arch"`

	// Largest length reported by a string scan. Scans inspect at most
	// MaxStrlen bytes before reporting an unterminated string.
	MaxStrlen uint `yaml:"max-strlen"`

	// Largest number of bytes touched by a buffer operation with a
	// symbolic size.
	MaxBufferSize uint `yaml:"max-buffer-size"`

	// Largest number of concrete addresses a symbolic load is split into.
	MaxSymbolicAddrs int `yaml:"max-symbolic-addrs"`

	// Solver timeout in milliseconds. Zero disables the timeout.
	SolverTimeout uint `yaml:"solver-timeout"`

	// Number of solver results kept by the query cache.
	SolverCacheSize int `yaml:"solver-cache-size"`
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		Arch:             "amd64",
		MaxStrlen:        DefaultMaxStrlen,
		MaxBufferSize:    DefaultMaxBufferSize,
		MaxSymbolicAddrs: DefaultMaxSymbolicAddrs,
		SolverCacheSize:  DefaultSolverCacheSize,
	}
}

// Validate returns an error if any option is out of range.
func (o Options) Validate() error {
	if _, err := ArchByName(o.Arch); err != nil {
		return err
	} else if o.MaxStrlen == 0 {
		return fmt.Errorf("max-strlen must be positive")
	} else if o.MaxBufferSize == 0 {
		return fmt.Errorf("max-buffer-size must be positive")
	} else if o.MaxSymbolicAddrs <= 0 {
		return fmt.Errorf("max-symbolic-addrs must be positive")
	} else if o.SolverCacheSize < 0 {
		return fmt.Errorf("solver-cache-size cannot be negative")
	}
	return nil
}

// ParseOptions decodes YAML data on top of the default options.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("unable to decode options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// LoadOptions reads options from a YAML file.
func LoadOptions(path string) (Options, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	return ParseOptions(data)
}

// SaveOptions writes options to a YAML file.
func SaveOptions(path string, opts Options) error {
	data, err := yaml.Marshal(opts)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, data, 0644)
}
