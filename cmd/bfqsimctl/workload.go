package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WorkloadSpec is a bfqsimctl workload file: a named set of producers to
// replay against one Root. Shaped after the teacher's apiVersion/kind/
// metadata/spec resource envelope (cmd/warren's WarrenResource).
type WorkloadSpec struct {
	APIVersion string         `yaml:"apiVersion"`
	Kind       string         `yaml:"kind"`
	Metadata   WorkloadMeta   `yaml:"metadata"`
	Spec       WorkloadDetail `yaml:"spec"`
}

// WorkloadMeta names the workload for display.
type WorkloadMeta struct {
	Name string `yaml:"name"`
}

// WorkloadDetail describes the device and producers to simulate.
type WorkloadDetail struct {
	Rotational   bool           `yaml:"rotational"`
	TunablesFile string         `yaml:"tunablesFile,omitempty"`
	Producers    []ProducerSpec `yaml:"producers"`
}

// ProducerSpec is one synthetic producer: its priority class, weight, and
// a run of evenly-spaced requests to preload before dispatch begins.
type ProducerSpec struct {
	Name          string `yaml:"name,omitempty"`
	Class         string `yaml:"class"` // rt | be | idle
	Weight        uint64 `yaml:"weight"`
	Sync          bool   `yaml:"sync"`
	RequestCount  int    `yaml:"requestCount"`
	RequestLength uint64 `yaml:"requestLength"`
	SectorStart   uint64 `yaml:"sectorStart"`
}

func loadWorkload(path string) (*WorkloadSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload file: %w", err)
	}

	var w WorkloadSpec
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse workload file: %w", err)
	}

	if w.Kind != "" && w.Kind != "Workload" {
		return nil, fmt.Errorf("unsupported workload kind: %s (expected Workload)", w.Kind)
	}
	if len(w.Spec.Producers) == 0 {
		return nil, fmt.Errorf("workload must declare at least one producer")
	}
	for i, p := range w.Spec.Producers {
		if p.RequestCount <= 0 {
			return nil, fmt.Errorf("producer %d: requestCount must be > 0", i)
		}
		if p.RequestLength == 0 {
			return nil, fmt.Errorf("producer %d: requestLength must be > 0", i)
		}
		if p.Weight == 0 {
			return nil, fmt.Errorf("producer %d: weight must be > 0", i)
		}
	}

	return &w, nil
}
