package core

import "github.com/rs/zerolog"

// Delivery is the outcome of a unicast attempt.
type Delivery int

const (
	// Delivered means the single send succeeded.
	Delivered Delivery = iota
	// TargetOffline means the target has no registered connection.
	TargetOffline
	// DeliveryFailed means the send to a registered connection errored.
	// The registry entry is left untouched; a later send may succeed.
	DeliveryFailed
)

// Router delivers formatted lines to registered connections.
type Router struct {
	reg *Registry
	log *zerolog.Logger
}

// NewRouter constructs a router over the presence registry.
func NewRouter(reg *Registry, logger *zerolog.Logger) *Router {
	return &Router{reg: reg, log: logger}
}

// Broadcast sends line to every registered connection except exclude.
// Delivery is best effort: a failed send to one recipient never aborts
// the rest. The number of failed recipients is returned; the issuing
// client is not told about individual failures.
func (ro *Router) Broadcast(line string, exclude *Conn) (failed int) {
	for _, conn := range ro.reg.Connections(exclude) {
		if err := conn.Send(line); err != nil {
			failed++
			ro.log.Warn().Err(err).Msg("broadcast send failed")
		}
	}
	return failed
}

// Unicast sends line to the named recipient's registered connection.
func (ro *Router) Unicast(target, line string) Delivery {
	conn, ok := ro.reg.Lookup(target)
	if !ok {
		return TargetOffline
	}
	if err := conn.Send(line); err != nil {
		ro.log.Warn().Err(err).Str("target", target).Msg("unicast send failed")
		return DeliveryFailed
	}
	return Delivered
}
