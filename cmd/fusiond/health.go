package main

import (
	"fmt"

	"github.com/c360/sensorfusion/bus"
	"github.com/c360/sensorfusion/framing"
	"github.com/c360/sensorfusion/health"
	"github.com/c360/sensorfusion/input/tcp"
	"github.com/c360/sensorfusion/messages"
)

func halted(c component) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

func subscriberProbe(sub *bus.Subscriber) health.Probe {
	return func() health.Status {
		st := sub.Stats()
		return health.FromChannel(sub.Name(), sub.State(), st.Dispatched, st.Errors)
	}
}

func publisherProbe(pub *bus.Publisher) health.Probe {
	return func() health.Status {
		st := pub.Stats()
		return health.FromChannel(pub.Name(), pub.State(), st.Sent, st.Errors)
	}
}

// serverProbe reports a listening server without a tablet as degraded.
func serverProbe(srv *tcp.Server) health.Probe {
	return func() health.Status {
		st := srv.Stats()
		var s health.Status
		switch {
		case halted(srv):
			s = health.NewUnhealthy("", "server stopped")
		case srv.Addr() == nil:
			s = health.NewDegraded("", "rebinding listener")
		case srv.Session() == "":
			s = health.NewDegraded("", "no tablet attached")
		default:
			s = health.NewHealthy("", "tablet attached")
		}
		return s.WithMetrics(&health.Metrics{ErrorCount: st.Errors, MessagesProcessed: st.Chunks})
	}
}

func extractorProbe(ext *framing.Extractor[messages.TabletEnvelope]) health.Probe {
	return func() health.Status {
		st := ext.Stats()
		var s health.Status
		if halted(ext) {
			s = health.NewUnhealthy("", "parser stopped")
		} else {
			s = health.NewHealthy("", fmt.Sprintf("%d resyncs, %d overflows", st.Resyncs, st.Overflows))
		}
		return s.WithMetrics(&health.Metrics{ErrorCount: st.Rejected, MessagesProcessed: st.Dispatched})
	}
}
