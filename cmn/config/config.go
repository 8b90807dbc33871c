// Package config loads the per-node startup configuration (spec §6).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package config

import (
	"os"
	"path/filepath"

	"github.com/ShisoftResearch/hivemind-go/cmn/cos"
)

// Config is the recognized set of per-node startup options (spec §6).
type Config struct {
	Processors  uint16   `json:"processors"`   // worker-pool size for the block service
	Storage     string   `json:"storage"`      // block spill directory
	Address     string   `json:"address"`      // RPC bind address
	GroupName   string   `json:"group_name"`   // membership group
	MetaMembers []string `json:"meta_members"` // initial consensus bootstrap peers

	// ECDataShards/ECParityShards enable cmd/hivenode's startup pass that
	// erasure-codes each spill file found (SPEC_FULL §3); the shards are not
	// stored. Zero in either disables it.
	ECDataShards   int `json:"ec_data_shards"`
	ECParityShards int `json:"ec_parity_shards"`

	// KubeDiscovery enables resolving MetaMembers from a k8s headless
	// Service's EndpointSlices instead of the static list above.
	KubeDiscovery    bool   `json:"kube_discovery"`
	KubeNamespace    string `json:"kube_namespace"`
	KubeServiceLabel string `json:"kube_service_label"`
}

// ECEnabled reports whether spill-file erasure coding is configured.
func (c *Config) ECEnabled() bool { return c.ECDataShards > 0 && c.ECParityShards > 0 }

const defaultProcessors = 16

// Load reads a JSON config file and fills defaults, creating the storage
// directory if it does not already exist.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, cos.ErrIOf("config.Load", err)
	}
	c := &Config{}
	if err := cos.JSON.Unmarshal(b, c); err != nil {
		return nil, cos.ErrTypeMismatchf("config.Load: %v", err)
	}
	c.fillDefaults()
	if err := os.MkdirAll(c.Storage, 0o755); err != nil {
		return nil, cos.ErrIOf("config.Load: mkdir storage", err)
	}
	return c, nil
}

func (c *Config) fillDefaults() {
	if c.Processors == 0 {
		c.Processors = detectProcessors()
	}
	if c.Storage == "" {
		c.Storage = filepath.Join(os.TempDir(), "hivemind")
	}
	if c.Address == "" {
		c.Address = "127.0.0.1:0"
	}
	if c.GroupName == "" {
		c.GroupName = "default"
	}
}

// SpillPath returns the on-disk path for a block's spill file (spec §6:
// "<storage_root>/<block_uuid>.bin").
func (c *Config) SpillPath(block cos.UUID) string {
	return filepath.Join(c.Storage, block.String()+".bin")
}
