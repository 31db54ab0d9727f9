package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trove-io/trove/pkg/types"
)

// Config is a server's full startup configuration.
type Config struct {
	SID      string         `yaml:"sid"`
	Alias    string         `yaml:"alias,omitempty"`
	Roles    []RoleBinding  `yaml:"roles"`
	Address  string         `yaml:"address"`
	Storage  StorageConfig  `yaml:"storage"`
	Gossip   GossipConfig   `yaml:"gossip"`
	Flow     FlowConfig     `yaml:"flow"`
	Collections []CollectionConfig `yaml:"collections"`
}

// RoleBinding is one (role, fs_id) this server advertises in the SID
// cache.
type RoleBinding struct {
	Role types.Role `yaml:"role"`
	FSID uint32     `yaml:"fs_id"`
}

// StorageConfig names the three independently-configured on-disk roots:
// data_space for Trove bstream files, meta_space for keyval stores and
// the collection registry's own metadata, and config_space for this
// server's config file and SID snapshot.
type StorageConfig struct {
	DataSpace   string `yaml:"data_space"`
	MetaSpace   string `yaml:"meta_space"`
	ConfigSpace string `yaml:"config_space"`
}

// GossipConfig configures the SID cache's peer gossip listener.
type GossipConfig struct {
	ListenAddr string        `yaml:"listen_addr"`
	Peers      []string      `yaml:"peers"`
	Interval   time.Duration `yaml:"interval"`
}

// FlowConfig tunes the flow engine's buffer pool, plus the capability
// selections that are fixed once at mount time rather than renegotiated
// per I/O.
type FlowConfig struct {
	BufferCount int                    `yaml:"buffer_count"`
	BufferSize  int                    `yaml:"buffer_size"`
	Proto       types.FlowProto        `yaml:"proto"`
	Encoding    types.Encoding         `yaml:"encoding"`
}

// CollectionConfig describes one filesystem this server hosts.
type CollectionConfig struct {
	Name        string           `yaml:"name"`
	FSID        uint32           `yaml:"fs_id"`
	HandleStart uint64           `yaml:"handle_start"`
	HandleEnd   uint64           `yaml:"handle_end"`
	RootHandle  uint64           `yaml:"root_handle"`
	Striping    types.StripingDefaults `yaml:"striping"`
}

// Load reads and parses a server configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Flow.BufferCount == 0 {
		c.Flow.BufferCount = 4
	}
	if c.Flow.BufferSize == 0 {
		c.Flow.BufferSize = 1 << 20
	}
	if c.Flow.Proto == "" {
		c.Flow.Proto = types.FlowProtoBmiTrove
	}
	if c.Flow.Encoding == "" {
		c.Flow.Encoding = types.EncodingDirect
	}
	if c.Gossip.Interval == 0 {
		c.Gossip.Interval = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.SID == "" {
		return fmt.Errorf("sid is required")
	}
	if c.Storage.DataSpace == "" || c.Storage.MetaSpace == "" {
		return fmt.Errorf("storage.data_space and storage.meta_space are required")
	}
	seen := make(map[uint32]bool)
	for _, coll := range c.Collections {
		if coll.Name == "" {
			return fmt.Errorf("collection with fs_id %d has no name", coll.FSID)
		}
		if seen[coll.FSID] {
			return fmt.Errorf("duplicate fs_id %d across hosted collections", coll.FSID)
		}
		seen[coll.FSID] = true
		if coll.HandleEnd < coll.HandleStart {
			return fmt.Errorf("collection %q: handle_end < handle_start", coll.Name)
		}
	}
	for _, rb := range c.Roles {
		if !types.ValidRole(rb.Role) {
			return fmt.Errorf("unknown role %q", rb.Role)
		}
	}
	return nil
}
