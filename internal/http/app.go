// Package http wires board modules into one gin engine: the App handed over
// by main, the Module contract and background workers.
package http

import (
	"context"

	"dealership_portal/platform/config"
	"dealership_portal/platform/events"
	"dealership_portal/platform/logger"
)

// RouterConfig is the configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs /api/health. The CRM client implements it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is built by main and passed to router.New.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	Health HealthChecker
	// EventBus carries realtime push events to every pipeline view.
	EventBus events.Bus
	Modules  []Module
}
