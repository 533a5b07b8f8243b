package fetchonce

// Observer receives engine lifecycle events. Implementations must be
// safe for concurrent use: events are emitted from the goroutines that
// submit references.
type Observer interface {
	On(eventData EventData)
}

// Event represents an engine event type.
type Event int

const (
	// EventHit is emitted when a submitted reference is served from
	// the session cache.
	EventHit Event = iota
	// EventMiss is emitted when a submitted reference starts a new
	// fetch.
	EventMiss
	// EventCoalesced is emitted when a submitted reference attaches to
	// an already-in-flight fetch instead of starting a new one.
	EventCoalesced
)

// EventData carries the details of an engine event.
type EventData struct {
	Event       Event
	Session     string
	Fingerprint Fingerprint
	Target      string
}
