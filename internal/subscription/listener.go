package subscription

import "github.com/rickgao/linkpulse/internal/model"

// Listener is a registered event callback. Its identity is the pointer: the
// same *Listener subscribed twice to one topic is registered once, while two
// Listeners wrapping the same function are distinct.
type Listener struct {
	fn func(model.ClickEvent)
}

// NewListener wraps fn in a new Listener.
func NewListener(fn func(model.ClickEvent)) *Listener {
	return &Listener{fn: fn}
}

// Handle invokes the wrapped function.
func (l *Listener) Handle(ev model.ClickEvent) {
	if l == nil || l.fn == nil {
		return
	}
	l.fn(ev)
}
