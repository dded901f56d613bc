package telemetry

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/strata/internal/core/ports"
)

// TracerNodeID is the unique identifier for the Telemetry adapter Graft node.
const TracerNodeID graft.ID = "adapter.telemetry"

// DisableEnv turns span creation off entirely when set to "off".
const DisableEnv = "STRATA_TRACING"

func init() {
	graft.Register(graft.Node[ports.Tracer]{
		ID:        TracerNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Tracer, error) {
			return NewTracer(os.Getenv(DisableEnv)), nil
		},
	})
}

// NewTracer returns the no-op tracer for mode "off" and the OpenTelemetry
// tracer otherwise.
func NewTracer(mode string) ports.Tracer {
	if mode == "off" {
		return NewNoOpTracer()
	}
	return NewOTelTracer(InstrumentationName)
}
