package widget

import "maps"

// Phase is how much a Tracker knows about a resource.
type Phase int

const (
	// PhaseUnloaded: nothing fetched or rendered yet.
	PhaseUnloaded Phase = iota
	// PhaseLoadedNoBaseline: messages are on screen, from an optimistic send
	// or another view, but no poll has recorded which inbound ids exist.
	PhaseLoadedNoBaseline
	// PhaseLoadedWithBaseline: later polls are compared against Seen.
	PhaseLoadedWithBaseline
)

func (p Phase) String() string {
	switch p {
	case PhaseLoadedNoBaseline:
		return "loaded-no-baseline"
	case PhaseLoadedWithBaseline:
		return "loaded-with-baseline"
	default:
		return "unloaded"
	}
}

// Tracker remembers the inbound message ids observed for a thread or group.
type Tracker struct {
	Phase Phase
	Seen  map[string]struct{}
}

// MarkLoaded records that content is shown without a baseline.
func (t *Tracker) MarkLoaded() {
	if t.Phase == PhaseUnloaded {
		t.Phase = PhaseLoadedNoBaseline
	}
}

// Observe records the inbound ids of a poll and returns those not seen
// before. The first observation only seeds the baseline and returns nothing.
func (t *Tracker) Observe(inboundIDs []string) []string {
	if t.Phase != PhaseLoadedWithBaseline {
		t.Seen = make(map[string]struct{}, len(inboundIDs))
		for _, id := range inboundIDs {
			t.Seen[id] = struct{}{}
		}
		t.Phase = PhaseLoadedWithBaseline
		return nil
	}
	var fresh []string
	for _, id := range inboundIDs {
		if _, ok := t.Seen[id]; ok {
			continue
		}
		t.Seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	return fresh
}

func tracker(m map[string]*Tracker, key string) *Tracker {
	t, ok := m[key]
	if !ok {
		t = &Tracker{}
		m[key] = t
	}
	return t
}

func cloneTrackers(m map[string]*Tracker) map[string]*Tracker {
	out := make(map[string]*Tracker, len(m))
	for k, t := range m {
		out[k] = &Tracker{Phase: t.Phase, Seen: maps.Clone(t.Seen)}
	}
	return out
}
