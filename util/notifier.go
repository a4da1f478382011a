package util

// Notifier wakes a single waiter after one or more Notify calls. Repeated
// notifications before the waiter runs collapse into one.
type Notifier struct {
	c chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{c: make(chan struct{}, 1)}
}

// Notify never blocks.
func (n *Notifier) Notify() {
	select {
	case n.c <- struct{}{}:
	default:
	}
}

func (n *Notifier) C() <-chan struct{} {
	return n.c
}
