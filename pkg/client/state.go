package client

import "sync/atomic"

// ReloadState tracks counters that must persist across runtime reloads.
type ReloadState struct {
	configReloads atomic.Int64
}

// IncrementConfigReloads increments the config reload counter.
func (s *ReloadState) IncrementConfigReloads() {
	if s == nil {
		return
	}

	s.configReloads.Add(1)
}

// ConfigReloads returns the number of config reloads applied.
func (s *ReloadState) ConfigReloads() int64 {
	if s == nil {
		return 0
	}

	return s.configReloads.Load()
}
