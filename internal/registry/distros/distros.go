package distros

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/airone01/isod/internal/registry"
)

// builders lists every built-in definition constructor.
var builders = []func(*http.Client, *slog.Logger) (*registry.DistroDefinition, error){
	Ubuntu,
	Fedora,
	Debian,
	Arch,
}

// RegisterBuiltins installs every built-in distribution into the registry,
// using the registry's own HTTP client for the detectors.
func RegisterBuiltins(r *registry.Registry, logger *slog.Logger) error {
	for _, build := range builders {
		def, err := build(r.Client(), logger)
		if err != nil {
			return fmt.Errorf("building distro definition: %w", err)
		}
		r.Register(def)
	}
	return nil
}
