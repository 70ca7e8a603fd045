package selection

// Highlighter shows which object is selected, e.g. by outlining it.
type Highlighter[T comparable] interface {
	Highlight(obj T)
	Unhighlight(obj T)
}

// Highlight returns a listener that moves the highlight from the previously
// selected object to the new one.
func Highlight[T comparable](h Highlighter[T]) Listener[T] {
	return func(previous, current Result[T]) {
		if previous.Found {
			h.Unhighlight(previous.Object)
		}
		if current.Found {
			h.Highlight(current.Object)
		}
	}
}
