// Package board hosts pipeline views on the server, one per browser session,
// and exposes them over REST plus a Server-Sent Events stream.
package board

import (
	"context"

	"dealership_portal/internal/board/handler"
	"dealership_portal/internal/board/session"
	"dealership_portal/internal/board/sse"
	apphttp "dealership_portal/internal/http"
	"dealership_portal/internal/pipeline"
	"dealership_portal/internal/pipeline/ports"
	"dealership_portal/platform/config"
	"dealership_portal/platform/events"
	"dealership_portal/platform/logger"
	"dealership_portal/platform/validator"
)

// Config combines the config interfaces the board needs.
type Config interface {
	config.PipelineConfig
	config.SessionConfig
}

var (
	_ apphttp.Module = (*Module)(nil)
	_ apphttp.Worker = (*Module)(nil)
)

// Module owns the session registry and its routes.
type Module struct {
	handler  *handler.Handler
	sessions *session.Registry
	sse      *sse.Service
}

// NewModule creates the board module. Every session gets its own view over
// the shared CRM client and event bus.
func NewModule(api ports.LeadAPI, bus events.Bus, cfg Config, val *validator.Validator, log *logger.Logger) *Module {
	opts := pipeline.OptionsFromConfig(cfg)
	factory := func() *pipeline.View {
		return pipeline.NewView(pipeline.Deps{API: api, Bus: bus, Log: log}, opts)
	}

	sessions := session.NewRegistry(factory, cfg, log)
	stream := sse.New(log)

	return &Module{
		handler:  handler.New(sessions, stream, val),
		sessions: sessions,
		sse:      stream,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "board"
}

// RegisterRoutes mounts the session routes under the authenticated group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/pipeline/sessions"))
}

// Run reaps idle sessions until ctx is cancelled.
func (m *Module) Run(ctx context.Context) {
	m.sessions.Run(ctx)
}

// Sessions exposes the registry.
func (m *Module) Sessions() *session.Registry {
	return m.sessions
}
