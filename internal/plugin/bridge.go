package plugin

import (
	"followbot/internal/config"
	"followbot/internal/runtime/supervisor"
	"followbot/internal/transport/router"
)

// ---- Config ----

type Config = config.Config

type ConfigManager = config.ConfigManager

// PluginConfigRaw is the raw per-plugin config blob inside config.Config.
type PluginConfigRaw = config.PluginConfigRaw

// ---- Runtime ----

type Supervisor = supervisor.Supervisor

var NewSupervisor = supervisor.NewSupervisor

var WithLogger = supervisor.WithLogger

var WithCancelOnError = supervisor.WithCancelOnError

// ---- Router API ----

type Command = router.Command

type Listener = router.Listener

type Request = router.Request

type HandlerFunc = router.HandlerFunc

type CommandManager = router.CommandManager
