// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lxd

import (
	"github.com/juju/errors"
	"gopkg.in/yaml.v2"
)

// The preseed types mirror the document accepted by "lxd init --preseed".

type preseedDoc struct {
	Networks     []network     `yaml:"networks"`
	StoragePools []storagePool `yaml:"storage_pools"`
	Profiles     []profile     `yaml:"profiles"`
}

type network struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Config map[string]string `yaml:"config"`
}

type storagePool struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`
}

type profile struct {
	Name    string                       `yaml:"name"`
	Devices map[string]map[string]string `yaml:"devices"`
}

// preseed returns the document initializing LXD with the jujushell bridge,
// the storage pool and a default profile wiring both into new containers.
func preseed() ([]byte, error) {
	data, err := yaml.Marshal(preseedDoc{
		Networks: []network{{
			Name: BridgeName,
			Type: "bridge",
			Config: map[string]string{
				"ipv4.address": "auto",
				"ipv6.address": "none",
			},
		}},
		StoragePools: []storagePool{{
			Name:   PoolName,
			Driver: "zfs",
		}},
		Profiles: []profile{{
			Name: "default",
			Devices: map[string]map[string]string{
				"root": {
					"path": "/",
					"pool": PoolName,
					"type": "disk",
				},
				"eth0": {
					"name":    "eth0",
					"nictype": "bridged",
					"parent":  BridgeName,
					"type":    "nic",
				},
			},
		}},
	})
	return data, errors.Trace(err)
}
