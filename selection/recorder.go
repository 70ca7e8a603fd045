package selection

import (
	"time"
)

// HoverRecord is a selection change. Timestamp is in seconds since the
// recording started.
type HoverRecord[T comparable] struct {
	Object    T       `json:"object"`
	Selected  bool    `json:"selected"`
	Timestamp float64 `json:"timestamp"`
}

// Recorder logs selection changes while it is recording.
type Recorder[T comparable] struct {
	now       func() time.Time
	start     time.Time
	recording bool
	records   []HoverRecord[T]
}

// NewRecorder returns a recorder reading the time from now, time.Now when nil.
func NewRecorder[T comparable](now func() time.Time) *Recorder[T] {
	if now == nil {
		now = time.Now
	}
	return &Recorder[T]{now: now}
}

// Start clears previous records and starts recording.
func (r *Recorder[T]) Start() {
	r.records = nil
	r.start = r.now()
	r.recording = true
}

func (r *Recorder[T]) Stop() {
	r.recording = false
}

func (r *Recorder[T]) Recording() bool {
	return r.recording
}

// Listener returns the listener feeding the recorder. A deselection is
// recorded with the object that lost the selection.
func (r *Recorder[T]) Listener() Listener[T] {
	return func(previous, current Result[T]) {
		if !r.recording {
			return
		}

		rec := HoverRecord[T]{
			Object:    current.Object,
			Selected:  current.Found,
			Timestamp: r.now().Sub(r.start).Seconds(),
		}
		if !current.Found {
			rec.Object = previous.Object
		}
		r.records = append(r.records, rec)
	}
}

func (r *Recorder[T]) Records() []HoverRecord[T] {
	records := make([]HoverRecord[T], len(r.records))
	copy(records, r.records)
	return records
}
