package app

import (
	"time"

	"followbot/internal/config"
	"followbot/internal/plugin"
	"followbot/internal/runtime/supervisor"
	"followbot/internal/transport/router"
)

// ---- Config ----

type Config = config.Config

type ConfigManager = config.ConfigManager

var NewConfigManager = config.NewConfigManager

var SummarizeConfigChange = config.SummarizeConfigChange

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(path, raw, def)
}

// ---- Runtime ----

type Supervisor = supervisor.Supervisor

var NewSupervisor = supervisor.NewSupervisor

var WithLogger = supervisor.WithLogger

var WithCancelOnError = supervisor.WithCancelOnError

// ---- Router ----

type CommandManager = router.CommandManager

var NewCommandManager = router.NewCommandManager

// ---- Plugin ----

type PluginManager = plugin.PluginManager

type PluginDeps = plugin.PluginDeps

type StopReason = plugin.StopReason

const StopShutdown = plugin.StopShutdown

var NewPluginManager = plugin.NewPluginManager
