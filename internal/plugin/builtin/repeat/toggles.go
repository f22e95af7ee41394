package repeat

import "sync"

// Feature names one per-group switch.
type Feature string

const (
	FeatureRepeat    Feature = "repeat"
	FeatureBroadcast Feature = "broadcast"
)

// ToggleStore holds per-group feature switches. Groups are enabled unless
// explicitly turned off.
type ToggleStore interface {
	Enabled(f Feature, group string) bool
	SetEnabled(f Feature, group string, enabled bool)
}

// MemoryToggles keeps one disabled-set per feature for the life of the process.
type MemoryToggles struct {
	mu       sync.RWMutex
	disabled map[Feature]map[string]struct{}
}

func NewMemoryToggles() *MemoryToggles {
	return &MemoryToggles{disabled: map[Feature]map[string]struct{}{}}
}

func (t *MemoryToggles) Enabled(f Feature, group string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, off := t.disabled[f][group]
	return !off
}

func (t *MemoryToggles) SetEnabled(f Feature, group string, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if enabled {
		delete(t.disabled[f], group)
		return
	}
	set := t.disabled[f]
	if set == nil {
		set = map[string]struct{}{}
		t.disabled[f] = set
	}
	set[group] = struct{}{}
}
