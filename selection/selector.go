package selection

// Listener is called when the selected object changes. previous or current
// have Found set to false when nothing was or is selected.
type Listener[T comparable] func(previous, current Result[T])

// Selector tracks the object selected by successive queries and notifies
// listeners only when it changes.
//
// A Selector is not safe for concurrent use.
type Selector[T comparable] struct {
	source       Source[T]
	strategy     Strategy
	current      Result[T]
	listeners    []listener[T]
	lastListener uint64
}

type listener[T comparable] struct {
	id     uint64
	notify Listener[T]
}

func NewSelector[T comparable](src Source[T], s Strategy) *Selector[T] {
	if s == nil {
		s = Presence{}
	}

	return &Selector[T]{
		source:   src,
		strategy: s,
	}
}

func (s *Selector[T]) Strategy() Strategy {
	return s.strategy
}

// OnChange registers a listener. The returned function removes it.
func (s *Selector[T]) OnChange(l Listener[T]) (remove func()) {
	s.lastListener++
	id := s.lastListener
	s.listeners = append(s.listeners, listener[T]{id: id, notify: l})

	return func() {
		for i, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Tick runs a selection and reports whether the selected object changed. An
// invalid query leaves the selection untouched.
func (s *Selector[T]) Tick(q Query) (Result[T], bool, error) {
	res, err := Best(s.source, q, s.strategy)
	if err != nil {
		return s.current, false, err
	}

	changed := s.set(res)
	return res, changed, nil
}

// Current returns the selected object.
func (s *Selector[T]) Current() (T, bool) {
	return s.current.Object, s.current.Found
}

// Clear drops the selection, notifying listeners if something was selected.
func (s *Selector[T]) Clear() bool {
	return s.set(Result[T]{})
}

func (s *Selector[T]) set(res Result[T]) bool {
	prev := s.current
	s.current = res

	if prev.Found == res.Found && (!res.Found || prev.Object == res.Object) {
		return false
	}

	for _, l := range s.listeners {
		l.notify(prev, res)
	}
	return true
}
