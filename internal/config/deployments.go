package config

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Deployment is the set of messenger contracts on one network
type Deployment struct {
	Domain                     uint32   `yaml:"domain" json:"domain"`
	ChainID                    uint64   `yaml:"chain_id" json:"chain_id"`
	Name                       string   `yaml:"name" json:"name"`
	Explorer                   string   `yaml:"explorer" json:"explorer"`
	RPCUrls                    []string `yaml:"rpc_urls" json:"rpc_urls"`
	TokenMessenger             string   `yaml:"token_messenger" json:"token_messenger"`
	TokenMessengerWithMetadata string   `yaml:"token_messenger_with_metadata" json:"token_messenger_with_metadata"`
	USDC                       string   `yaml:"usdc" json:"usdc"`
}

// DeploymentsConfig is the layout of deployments.yaml
type DeploymentsConfig struct {
	Version  string                `yaml:"version" json:"version"`
	Networks map[string]Deployment `yaml:"networks" json:"networks"`
}

// DeploymentRegistry answers lookups over a DeploymentsConfig
type DeploymentRegistry struct {
	config DeploymentsConfig
	mu     sync.RWMutex
}

// LoadDeployments reads path. A missing file falls back to the built-in
// networks.
func LoadDeployments(path string) (*DeploymentRegistry, error) {
	r := &DeploymentRegistry{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Warnf("⚠️ Deployments file %s not found, using built-in networks", path)
			r.config = defaultDeployments()
			return r, nil
		}
		return nil, fmt.Errorf("failed to read deployments file: %w", err)
	}
	if err := yaml.Unmarshal(data, &r.config); err != nil {
		return nil, fmt.Errorf("failed to parse deployments file: %w", err)
	}
	return r, nil
}

// NewDeploymentRegistry wraps an already decoded configuration.
func NewDeploymentRegistry(cfg DeploymentsConfig) *DeploymentRegistry {
	return &DeploymentRegistry{config: cfg}
}

func defaultDeployments() DeploymentsConfig {
	return DeploymentsConfig{
		Version: "1",
		Networks: map[string]Deployment{
			"ethereum": {
				Domain:         0,
				ChainID:        1,
				Name:           "Ethereum",
				Explorer:       "https://etherscan.io",
				TokenMessenger: "0xBd3fa81B58Ba92a82136038B25aDec7066af3155",
				USDC:           "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			},
			"sepolia": {
				Domain:         0,
				ChainID:        11155111,
				Name:           "Ethereum Sepolia",
				Explorer:       "https://sepolia.etherscan.io",
				TokenMessenger: "0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5",
				USDC:           "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
			},
		},
	}
}

// Get returns the deployment named network.
func (r *DeploymentRegistry) Get(network string) (Deployment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.config.Networks[network]
	return d, ok
}

// ByChainID finds the deployment for an EVM chain id.
func (r *DeploymentRegistry) ByChainID(chainID uint64) (string, Deployment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, d := range r.config.Networks {
		if d.ChainID == chainID {
			return name, d, true
		}
	}
	return "", Deployment{}, false
}

// Networks lists the known network names, sorted.
func (r *DeploymentRegistry) Networks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.config.Networks))
	for name := range r.config.Networks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ApplyDeployment fills chain settings left empty in c from the deployment
// named c.Chain.Network. Explicit settings win.
func (c *Config) ApplyDeployment(reg *DeploymentRegistry) error {
	d, ok := reg.Get(c.Chain.Network)
	if !ok {
		return fmt.Errorf("unknown network %q (known: %v)", c.Chain.Network, reg.Networks())
	}

	if c.Chain.ChainID == 0 {
		c.Chain.ChainID = d.ChainID
	}
	if len(c.Chain.RPCEndpoints) == 0 {
		c.Chain.RPCEndpoints = d.RPCUrls
	}
	if c.Chain.TokenMessenger == "" {
		c.Chain.TokenMessenger = d.TokenMessenger
	}
	if c.Chain.TokenMessengerWithMetadata == "" {
		c.Chain.TokenMessengerWithMetadata = d.TokenMessengerWithMetadata
	}
	if c.Chain.BurnToken == "" {
		c.Chain.BurnToken = d.USDC
	}
	c.Dispatcher.LocalDomain = d.Domain
	return nil
}
