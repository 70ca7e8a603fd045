package scene

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/sowilo/selection"
)

// Replay plays a gaze trace on the scene frame loop and returns the selection
// changes recorded while it was playing. Frames are picked by the time elapsed
// since the call, so the frame loop must be dispatching. Queries take their
// settings from base and their pose from the trace.
func (s *Scene) Replay(ctx context.Context, trace selection.Trace, sel *selection.Selector[ObjectID], base selection.Query) ([]selection.HoverRecord[ObjectID], error) {
	if len(trace.Frames) == 0 {
		return nil, nil
	}

	recorder := selection.NewRecorder[ObjectID](time.Now)
	removeListener := sel.OnChange(recorder.Listener())
	defer removeListener()

	done := make(chan []selection.HoverRecord[ObjectID], 1)
	var finished bool

	recorder.Start()
	defer recorder.Stop()
	start := time.Now()

	cancel := s.TrackSelection(sel, func() (selection.Query, bool) {
		if finished {
			if recorder.Recording() {
				recorder.Stop()
				done <- recorder.Records()
			}
			return selection.Query{}, false
		}

		frame, ok := trace.At(time.Since(start).Seconds())
		if !ok {
			return selection.Query{}, false
		}

		finished = frame.Time >= trace.Duration()
		return frame.Query(base), true
	})
	defer cancel()

	logs.WithTag("scene", s.ID).
		WithTag("frames", len(trace.Frames)).
		WithTag("duration", trace.Duration()).
		Info("replaying trace")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case records := <-done:
		return records, nil
	}
}
