package selection

import (
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/sowilo/spatial"
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
	"github.com/stretchr/testify/require"
)

func newTestSelector(t *testing.T) *Selector[string] {
	idx := newTestIndex(t, map[string]spatial.Bounds{
		"a": spatial.CubeBounds(r3.Vector{Z: 5}, 0.5),
		"b": spatial.CubeBounds(r3.Vector{X: 5}, 0.5),
	}, "a", "b")
	return NewSelector[string](idx, Presence{})
}

func lookAt(forward r3.Vector) Query {
	return ConeQuery(r3.Vector{}, forward, 15*s1.Degree, 10)
}

func TestSelectorTick(t *testing.T) {
	t.Run("notifications are edge triggered", func(t *testing.T) {
		s := newTestSelector(t)

		var changes []Result[string]
		s.OnChange(func(previous, current Result[string]) {
			changes = append(changes, current)
		})

		ticks := []struct {
			forward r3.Vector
			want    string
		}{
			{forward: forwardZ, want: "a"},
			{forward: forwardZ, want: "a"},
			{forward: forwardZ, want: "a"},
			{forward: r3.Vector{X: 1}, want: "b"},
			{forward: r3.Vector{X: 1}, want: "b"},
		}

		for _, tick := range ticks {
			res, _, err := s.Tick(lookAt(tick.forward))
			require.NoError(t, err)
			require.True(t, res.Found)
			require.Equal(t, tick.want, res.Object)
		}

		require.Len(t, changes, 2)
		require.Equal(t, "a", changes[0].Object)
		require.Equal(t, "b", changes[1].Object)
	})

	t.Run("losing the selection notifies", func(t *testing.T) {
		s := newTestSelector(t)

		var previous, current []Result[string]
		s.OnChange(func(p, c Result[string]) {
			previous = append(previous, p)
			current = append(current, c)
		})

		_, changed, err := s.Tick(lookAt(forwardZ))
		require.NoError(t, err)
		require.True(t, changed)

		_, changed, err = s.Tick(lookAt(r3.Vector{Z: -1}))
		require.NoError(t, err)
		require.True(t, changed)

		_, changed, err = s.Tick(lookAt(r3.Vector{Z: -1}))
		require.NoError(t, err)
		require.False(t, changed)

		require.Len(t, current, 2)
		require.False(t, previous[0].Found)
		require.True(t, current[0].Found)
		require.Equal(t, "a", previous[1].Object)
		require.False(t, current[1].Found)

		_, ok := s.Current()
		require.False(t, ok)
	})

	t.Run("invalid query keeps the selection", func(t *testing.T) {
		s := newTestSelector(t)

		_, _, err := s.Tick(lookAt(forwardZ))
		require.NoError(t, err)

		_, changed, err := s.Tick(lookAt(r3.Vector{}))
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidQuery, errors.Type(err))
		require.False(t, changed)

		obj, ok := s.Current()
		require.True(t, ok)
		require.Equal(t, "a", obj)
	})

	t.Run("clear", func(t *testing.T) {
		s := newTestSelector(t)
		require.False(t, s.Clear())

		_, _, err := s.Tick(lookAt(forwardZ))
		require.NoError(t, err)
		require.True(t, s.Clear())

		_, ok := s.Current()
		require.False(t, ok)
	})

	t.Run("removed listener is not notified", func(t *testing.T) {
		s := newTestSelector(t)

		var kept, removed int
		s.OnChange(func(previous, current Result[string]) { kept++ })
		remove := s.OnChange(func(previous, current Result[string]) { removed++ })

		_, _, err := s.Tick(lookAt(forwardZ))
		require.NoError(t, err)

		remove()
		remove()

		_, _, err = s.Tick(lookAt(r3.Vector{X: 1}))
		require.NoError(t, err)

		require.Equal(t, 2, kept)
		require.Equal(t, 1, removed)
		require.Len(t, s.listeners, 1)
	})

	t.Run("default strategy", func(t *testing.T) {
		s := NewSelector[string](newTestIndex(t, nil), nil)
		require.Equal(t, StrategyPresence, s.Strategy().Name())
	})
}

type testHighlighter struct {
	calls []string
}

func (h *testHighlighter) Highlight(obj string) {
	h.calls = append(h.calls, "+"+obj)
}

func (h *testHighlighter) Unhighlight(obj string) {
	h.calls = append(h.calls, "-"+obj)
}

func TestHighlight(t *testing.T) {
	s := newTestSelector(t)
	h := &testHighlighter{}
	s.OnChange(Highlight[string](h))

	for _, forward := range []r3.Vector{forwardZ, forwardZ, {X: 1}, {Y: 1}, forwardZ} {
		_, _, err := s.Tick(lookAt(forward))
		require.NoError(t, err)
	}

	require.Equal(t, []string{"+a", "-a", "+b", "-b", "+a"}, h.calls)
}

func TestRecorder(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		return now
	}

	s := newTestSelector(t)
	r := NewRecorder[string](clock)
	s.OnChange(r.Listener())

	t.Run("nothing is recorded before start", func(t *testing.T) {
		_, _, err := s.Tick(lookAt(forwardZ))
		require.NoError(t, err)
		require.Empty(t, r.Records())
		require.False(t, r.Recording())
	})

	t.Run("changes are recorded", func(t *testing.T) {
		r.Start()
		require.True(t, r.Recording())

		now = now.Add(500 * time.Millisecond)
		_, _, err := s.Tick(lookAt(r3.Vector{X: 1}))
		require.NoError(t, err)

		now = now.Add(time.Second)
		_, _, err = s.Tick(lookAt(r3.Vector{Y: 1}))
		require.NoError(t, err)

		require.Equal(t, []HoverRecord[string]{
			{Object: "b", Selected: true, Timestamp: 0.5},
			{Object: "b", Selected: false, Timestamp: 1.5},
		}, r.Records())
	})

	t.Run("stop", func(t *testing.T) {
		r.Stop()
		_, _, err := s.Tick(lookAt(forwardZ))
		require.NoError(t, err)
		require.Len(t, r.Records(), 2)
	})

	t.Run("start clears records", func(t *testing.T) {
		r.Start()
		require.Empty(t, r.Records())
	})
}
