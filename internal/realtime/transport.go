package realtime

// Transport carries JSON events to and from the realtime peer. The concrete
// implementation is the WebRTC data channel; tests substitute an in-memory
// pair.
type Transport interface {
	// Send marshals and writes one event. Returns a transport-stage error
	// once the channel has closed.
	Send(msg any) error

	// Events yields raw inbound event payloads.
	Events() <-chan []byte

	// Opened closes once the channel is open for sending.
	Opened() <-chan struct{}

	// Done closes when the transport has shut down.
	Done() <-chan struct{}

	// Close tears the transport down. Safe to call more than once.
	Close() error
}
