package http

import (
	"context"
	"sync"

	"dealership_portal/platform/logger"

	"github.com/gin-gonic/gin"
)

// Module is an HTTP-facing bounded context.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// Worker is implemented by modules that also own a background loop, such as
// the board's idle-session reaper. Run returns once ctx is cancelled.
type Worker interface {
	Run(ctx context.Context)
}

// RouterContext is what a module gets to mount its routes on.
type RouterContext struct {
	Engine *gin.Engine
	// V1 is /api/v1 without authentication.
	V1 *gin.RouterGroup
	// Protected is /api/v1 behind AuthRequired and the per-caller rate limit.
	Protected *gin.RouterGroup
	Logger    *logger.Logger
}

// StartWorkers runs every module that is a Worker in its own goroutine. The
// returned func blocks until all of them have returned.
func (a *App) StartWorkers(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	for _, m := range a.Modules {
		w, ok := m.(Worker)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			a.Logger.Info("module worker started", "module", name)
			w.Run(ctx)
			a.Logger.Info("module worker stopped", "module", name)
		}(m.Name())
	}
	return wg.Wait
}
