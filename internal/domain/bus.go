package domain

// EventQueue carries normalized events from the transport to the single consumer.
type EventQueue interface {
	Publish(ev MessageEvent)
	Subscribe() <-chan MessageEvent
	Close()
}
