package env

import (
	"github.com/thatsimonsguy/mixvalve/internal/config"
)

// Cfg is set once in main before any service starts.
var Cfg *config.Config
