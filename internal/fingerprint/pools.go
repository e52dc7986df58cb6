// Package fingerprint synthesises per-session browser identities and the
// header tables consistent with them.
package fingerprint

import (
	"embed"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var defaultProfilesFS embed.FS

// LocaleProfile pairs a locale with its canonical timezone and language list.
type LocaleProfile struct {
	Locale    string   `yaml:"locale"`
	Timezone  string   `yaml:"timezone"`
	Languages []string `yaml:"languages"`
}

// WebGLProfile is a plausible desktop GPU identification pair.
type WebGLProfile struct {
	Vendor   string `yaml:"vendor"`
	Renderer string `yaml:"renderer"`
}

// Pools holds the curated identity pools. Immutable after load.
type Pools struct {
	UserAgents          []string        `yaml:"user_agents"`
	Locales             []LocaleProfile `yaml:"locales"`
	WebGL               []WebGLProfile  `yaml:"webgl"`
	HardwareConcurrency []int           `yaml:"hardware_concurrency"`
	DeviceMemoryGb      []int           `yaml:"device_memory_gb"`
}

var (
	instance *Pools
	once     sync.Once
	loadErr  error
)

// Get returns the singleton embedded Pools instance.
func Get() *Pools {
	once.Do(func() {
		instance, loadErr = load()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("Failed to load fingerprint pools, using defaults")
			instance = defaultPools()
		}
	})
	return instance
}

// load reads pools from the embedded YAML file.
func load() (*Pools, error) {
	data, err := defaultProfilesFS.ReadFile("profiles.yaml")
	if err != nil {
		return nil, err
	}

	var p Pools
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Int("user_agents", len(p.UserAgents)).
		Int("locales", len(p.Locales)).
		Int("webgl", len(p.WebGL)).
		Msg("Fingerprint pools loaded")

	return &p, nil
}

// Validate checks that every pool has at least one entry.
func (p *Pools) Validate() error {
	switch {
	case len(p.UserAgents) == 0:
		return fmt.Errorf("fingerprint pools: user_agents is empty")
	case len(p.Locales) == 0:
		return fmt.Errorf("fingerprint pools: locales is empty")
	case len(p.WebGL) == 0:
		return fmt.Errorf("fingerprint pools: webgl is empty")
	case len(p.HardwareConcurrency) == 0:
		return fmt.Errorf("fingerprint pools: hardware_concurrency is empty")
	case len(p.DeviceMemoryGb) == 0:
		return fmt.Errorf("fingerprint pools: device_memory_gb is empty")
	}
	return nil
}

// defaultPools returns hardcoded fallback pools.
func defaultPools() *Pools {
	return &Pools{
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36 Edg/132.0.0.0",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:134.0) Gecko/20100101 Firefox/134.0",
		},
		Locales: []LocaleProfile{
			{Locale: "en-US", Timezone: "America/New_York", Languages: []string{"en-US", "en"}},
			{Locale: "en-GB", Timezone: "Europe/London", Languages: []string{"en-GB", "en"}},
		},
		WebGL: []WebGLProfile{
			{
				Vendor:   "Google Inc. (Intel)",
				Renderer: "ANGLE (Intel, Intel(R) UHD Graphics 630 (0x00003E92) Direct3D11 vs_5_0 ps_5_0, D3D11)",
			},
			{
				Vendor:   "Google Inc. (NVIDIA)",
				Renderer: "ANGLE (NVIDIA, NVIDIA GeForce GTX 1660 SUPER Direct3D11 vs_5_0 ps_5_0, D3D11)",
			},
		},
		HardwareConcurrency: []int{4, 6, 8, 12, 16},
		DeviceMemoryGb:      []int{4, 8, 16, 32},
	}
}
