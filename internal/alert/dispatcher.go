package alert

// Dispatcher fans out oversight events to matching webhook configurations.
type Dispatcher struct {
	configs []Config
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{configs: configs}
}

// Dispatch sends the event to all webhooks whose Events list matches its
// type. Fires goroutines and does not block the caller.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	for _, cfg := range d.configs {
		if matches(cfg.Events, event) {
			go Send(cfg, event)
		}
	}
}

// DispatchSync sends the event to all matching webhooks and returns only
// after every delivery attempt has finished. For one-shot callers that
// exit right after dispatching.
func (d *Dispatcher) DispatchSync(event Event) {
	if d == nil {
		return
	}
	for _, cfg := range d.configs {
		if matches(cfg.Events, event) {
			Send(cfg, event)
		}
	}
}

func matches(events []string, event Event) bool {
	// No explicit subscription means breach-only.
	if len(events) == 0 {
		return event.Type == "breach"
	}
	for _, e := range events {
		if e == event.Type {
			return true
		}
	}
	return false
}
