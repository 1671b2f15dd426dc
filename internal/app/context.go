package app

import (
	"github.com/datallboy/gofetch/internal/domain"
	"github.com/datallboy/gofetch/internal/infra/config"
	"github.com/datallboy/gofetch/internal/infra/logger"
)

// Context holds the core environment and shared resources for gofetch.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	// Group is the active download, set once a transfer starts. The status
	// API reads progress snapshots from it.
	Group *domain.RequestGroup
}

func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}

// Snapshot returns the active download's progress, or an empty snapshot
// when nothing is running.
func (c *Context) Snapshot() domain.Progress {
	if c.Group == nil {
		return domain.Progress{}
	}
	return c.Group.Snapshot()
}
