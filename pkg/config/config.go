// Package config holds the scheduler's runtime-adjustable tunables (spec §6).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tunables mirrors the §6 tunables table. All fields are runtime-adjustable;
// the scheduler reads a *Tunables snapshot without locking, so callers must
// not mutate a Tunables value shared with a running Root after InitQueue.
type Tunables struct {
	SliceIdle         time.Duration `yaml:"sliceIdle"`
	BackMax           uint64        `yaml:"backMax"`
	BackPenalty       uint64        `yaml:"backPenalty"`
	TimeoutSync       time.Duration `yaml:"timeoutSync"`
	TimeoutAsync      time.Duration `yaml:"timeoutAsync"`
	DefaultMaxBudget  uint64        `yaml:"defaultMaxBudget"`
	WRCoeff           uint64        `yaml:"wrCoeff"`
	WRMinIdleTime     time.Duration `yaml:"wrMinIdleTime"`
	BurstInterval     time.Duration `yaml:"burstInterval"`
	LargeBurstThresh  int           `yaml:"largeBurstThresh"`
	AsyncChargeFactor uint64        `yaml:"asyncChargeFactor"`
	LowLatency        bool          `yaml:"lowLatency"`

	// FIFOExpireSync/FIFOExpireAsync bound how long a request may sit at
	// the head of its queue's arrival order before the oldest pending
	// request overrides the seek-distance chooser (spec §5 "FIFO
	// expiration forces the oldest request of an expired FIFO to be
	// picked next regardless of seek distance").
	FIFOExpireSync  time.Duration `yaml:"fifoExpireSync"`
	FIFOExpireAsync time.Duration `yaml:"fifoExpireAsync"`

	// QueueGCGrace is how long a queue must sit idle, off both service
	// trees, and hold no pending requests before its arena slot and
	// owning-context map entries are reclaimed (spec §3 "destroyed when
	// idle beyond a grace period and holding no references").
	QueueGCGrace time.Duration `yaml:"queueGCGrace"`
}

// Default returns the §6 default tunables.
func Default() *Tunables {
	return &Tunables{
		SliceIdle:         8 * time.Millisecond,
		BackMax:           16 * 1024 * 1024 / 512, // 16 MiB expressed in 512-byte sectors
		BackPenalty:       2,
		TimeoutSync:       125 * time.Millisecond,
		TimeoutAsync:      40 * time.Millisecond,
		DefaultMaxBudget:  16000,
		WRCoeff:           30,
		WRMinIdleTime:     2 * time.Second,
		BurstInterval:     128 * time.Millisecond,
		LargeBurstThresh:  8,
		AsyncChargeFactor: 10,
		LowLatency:        true,
		FIFOExpireSync:    125 * time.Millisecond,
		FIFOExpireAsync:   250 * time.Millisecond,
		QueueGCGrace:      30 * time.Second,
	}
}

// LoadFile reads and validates a YAML tunables file, starting from Default()
// for any field the file omits.
func LoadFile(path string) (*Tunables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tunables file: %w", err)
	}

	t := Default()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse tunables file: %w", err)
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tunables: %w", err)
	}

	return t, nil
}

// Validate checks that tunables fall within sane ranges.
func (t *Tunables) Validate() error {
	if t.BackPenalty == 0 {
		return fmt.Errorf("backPenalty must be >= 1")
	}
	if t.DefaultMaxBudget == 0 {
		return fmt.Errorf("defaultMaxBudget must be > 0")
	}
	if t.WRCoeff < 1 {
		return fmt.Errorf("wrCoeff must be >= 1")
	}
	if t.LargeBurstThresh < 1 {
		return fmt.Errorf("largeBurstThresh must be >= 1")
	}
	if t.SliceIdle < 0 || t.TimeoutSync < 0 || t.TimeoutAsync < 0 || t.WRMinIdleTime < 0 || t.BurstInterval < 0 {
		return fmt.Errorf("duration tunables must be non-negative")
	}
	if t.FIFOExpireSync < 0 || t.FIFOExpireAsync < 0 || t.QueueGCGrace < 0 {
		return fmt.Errorf("duration tunables must be non-negative")
	}
	return nil
}
