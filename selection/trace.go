package selection

import (
	"io"
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/sowilo/spatial"
	"github.com/segmentio/encoding/json"
)

const ErrTypeInvalidTrace = "invalid-trace"

// TraceFrame is a recorded head or controller pose. Time is in seconds since
// the recording started.
type TraceFrame struct {
	Time    float64      `json:"time"`
	Origin  spatial.Vec3 `json:"origin"`
	Forward spatial.Vec3 `json:"forward"`
}

// Trace is a recorded sequence of poses, replayed to drive a Selector.
type Trace struct {
	Frames []TraceFrame `json:"frames"`
}

// DecodeTrace reads a JSON trace. Frames are sorted by time.
func DecodeTrace(r io.Reader) (Trace, error) {
	var t Trace
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return Trace{}, errors.New("decoding trace failed").
			WithType(ErrTypeInvalidTrace).
			Wrap(err)
	}

	for i, f := range t.Frames {
		if f.Forward.Vector().Norm2() == 0 {
			return Trace{}, errors.New("trace frame has no forward direction").
				WithType(ErrTypeInvalidTrace).
				WithTag("frame", i).
				WithTag("time", f.Time)
		}
	}

	sort.SliceStable(t.Frames, func(i, j int) bool {
		return t.Frames[i].Time < t.Frames[j].Time
	})
	return t, nil
}

// Duration returns the time of the last frame.
func (t Trace) Duration() float64 {
	if len(t.Frames) == 0 {
		return 0
	}
	return t.Frames[len(t.Frames)-1].Time
}

// At returns the last frame recorded at or before elapsed seconds.
func (t Trace) At(elapsed float64) (TraceFrame, bool) {
	i := sort.Search(len(t.Frames), func(i int) bool {
		return t.Frames[i].Time > elapsed
	})
	if i == 0 {
		return TraceFrame{}, false
	}
	return t.Frames[i-1], true
}

// Query returns the query looking from the frame pose with the settings of
// base.
func (f TraceFrame) Query(base Query) Query {
	base.Origin = f.Origin.Vector()
	base.Forward = f.Forward.Vector()
	return base
}
