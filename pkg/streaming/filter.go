package streaming

// Filter selects which events a subscriber receives.
type Filter struct {
	// EventTypes restricts delivery to the listed type tags. Empty
	// means all types.
	EventTypes []string `json:"event_types,omitempty"`

	// ServerIDs restricts server-scoped events to the listed backend
	// ids. Empty means all backends. Events with no server id are
	// unaffected.
	ServerIDs []string `json:"server_ids,omitempty"`

	// IncludeSystem opts in to system_health events.
	IncludeSystem bool `json:"include_system"`
}

// ShouldSend reports whether an event passes the filter.
func (f *Filter) ShouldSend(e Event) bool {
	if len(f.EventTypes) > 0 && !contains(f.EventTypes, e.Type) {
		return false
	}
	if e.Type == EventSystemHealth && !f.IncludeSystem {
		return false
	}
	if e.ServerID != "" && len(f.ServerIDs) > 0 && !contains(f.ServerIDs, e.ServerID) {
		return false
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
