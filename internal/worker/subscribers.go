package worker

// Subscriber attaches its handlers to the event dispatcher.
type Subscriber interface {
	RegisterHandlers()
}

// StartSubscribers registers handlers for every non-nil subscriber.
func StartSubscribers(subs ...Subscriber) {
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		sub.RegisterHandlers()
	}
}
