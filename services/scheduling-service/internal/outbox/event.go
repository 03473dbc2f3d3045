package outbox

// Event is the envelope written to outbox_events in the same transaction as
// the state change it describes. The Kafka topic equals EventType.
// DedupKey, when set, makes the insert a no-op if the same key was already
// written.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	DedupKey      string
	Payload       []byte
}
