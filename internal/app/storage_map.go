package app

import (
	"fmt"
	"strings"
	"time"

	"followbot/internal/storage"
)

// storageSettings is the resolved storage section: backend config plus pruning policy.
type storageSettings struct {
	Store         storage.Config
	Retention     time.Duration
	PruneSchedule string
}

func mapStorageConfig(cfg *Config) (storageSettings, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storageSettings{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storageSettings{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	retention, err := parseDurationOrDefault("storage.retention", sc.Retention, 0)
	if err != nil {
		return storageSettings{}, false, err
	}
	out := storageSettings{Retention: retention, PruneSchedule: strings.TrimSpace(sc.PruneSchedule)}

	switch driver {
	case "file":
		out.Store = storage.Config{Driver: "file", Path: path}
	case "sqlite", "sqlite3":
		if path == "" {
			return storageSettings{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storageSettings{}, false, err
		}
		out.Store = storage.Config{Driver: driver, Path: path, BusyTimeout: busy}
	default:
		return storageSettings{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	return out, true, nil
}
