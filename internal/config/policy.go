package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PolicyFile is the static limiter configuration loaded at startup.
type PolicyFile struct {
	Policies []WindowPolicy   `yaml:"policies"`
	Burst    []BurstPolicy    `yaml:"burst"`
	Quotas   map[string]int64 `yaml:"quotas"`
}

type WindowPolicy struct {
	EndpointClass string        `yaml:"endpoint_class"`
	Window        time.Duration `yaml:"window"`
	MaxRequests   int64         `yaml:"max_requests"`
}

type BurstPolicy struct {
	EndpointClass string  `yaml:"endpoint_class"`
	BurstLimit    int64   `yaml:"burst_limit"`
	RefillRate    float64 `yaml:"refill_rate"`
}

const gib = int64(1) << 30

// DefaultPolicyFile is used when no policy file is configured.
func DefaultPolicyFile() *PolicyFile {
	return &PolicyFile{
		Policies: []WindowPolicy{
			{EndpointClass: "default", Window: time.Minute, MaxRequests: 100},
			{EndpointClass: "products:create", Window: time.Minute, MaxRequests: 20},
			{EndpointClass: "products:list", Window: time.Minute, MaxRequests: 300},
			{EndpointClass: "orders:create", Window: time.Minute, MaxRequests: 30},
			{EndpointClass: "media:upload", Window: time.Minute, MaxRequests: 10},
		},
		Burst: []BurstPolicy{
			{EndpointClass: "media:upload", BurstLimit: 5, RefillRate: 1},
			{EndpointClass: "social:post", BurstLimit: 10, RefillRate: 0.5},
		},
		Quotas: map[string]int64{
			"api_calls": 10000,
			"storage":   5 * gib,
			"bandwidth": 50 * gib,
		},
	}
}

// LoadPolicyFile reads a YAML policy file. An empty path returns the defaults.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	if path == "" {
		return DefaultPolicyFile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicyFile(data)
}

// ParsePolicyFile decodes YAML policy data. Sections left out of the document
// keep their default values.
func ParsePolicyFile(data []byte) (*PolicyFile, error) {
	var pf PolicyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	defaults := DefaultPolicyFile()
	if pf.Policies == nil {
		pf.Policies = defaults.Policies
	}
	if pf.Burst == nil {
		pf.Burst = defaults.Burst
	}
	if pf.Quotas == nil {
		pf.Quotas = defaults.Quotas
	}
	return &pf, nil
}
