package handlers

import (
	"io"
	"os"

	"github.com/user/crmassist/internal/config"
	"github.com/user/crmassist/internal/logging"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	Config *config.Config
	Logger *logging.Logger
	Out    io.Writer
}

// NewBaseHandler creates a new base handler writing to stdout
func NewBaseHandler(cfg *config.Config, logger *logging.Logger) *BaseHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &BaseHandler{
		Config: cfg,
		Logger: logger,
		Out:    os.Stdout,
	}
}
