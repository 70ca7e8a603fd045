package scene

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/sowilo/selection"
	"github.com/aukilabs/sowilo/spatial"
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
	"github.com/google/uuid"
)

const (
	ErrTypeInvalidObject = "invalid-object"

	// The world size of the octree created when a scene is given no index.
	DefaultWorldSize = 32

	// Moves smaller than this are ignored.
	moveEpsilon = 1e-6
)

const (
	opInsert = "insert"
	opRemove = "remove"
	opUpdate = "update"
)

// Scene tracks objects in a spatial index and runs per frame handlers such as
// gaze selection.
//
// Each index call happens under the scene lock, so a scene can be shared
// between its frame loop and admin handlers.
type Scene struct {
	ID string

	objectIDs   SequentialIDGenerator
	objectMutex sync.RWMutex
	objects     map[ObjectID]*Object
	unsized     map[ObjectID]struct{}
	index       spatial.Index[ObjectID]
	indexKind   string

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[uint32]func()
	frameMutex      sync.RWMutex

	closeOnce sync.Once
}

// New creates a scene backed by the given index. A nil index is replaced by
// an octree.
func New(index spatial.Index[ObjectID], frameDuration time.Duration) *Scene {
	if index == nil {
		index = spatial.NewOctree[ObjectID](spatial.OctreeOptions{
			WorldSize: DefaultWorldSize,
		})
	}

	return &Scene{
		ID:             uuid.New().String(),
		objects:        make(map[ObjectID]*Object),
		unsized:        make(map[ObjectID]struct{}),
		index:          index,
		indexKind:      indexKind(index),
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(frameDuration),
		frameHandlers:  make(map[uint32]func()),
	}
}

func (s *Scene) Close() {
	s.closeOnce.Do(func() {
		s.frameTicker.Stop()
		s.closeFrameChan <- struct{}{}
	})
}

// Register starts tracking the given object and sets its ID. Objects with an
// unusable size are tracked by their position only.
func (s *Scene) Register(o *Object) (ObjectID, error) {
	t := o.Transform()
	if !isFinite(t.Position) {
		return 0, errors.New("object position is not finite").
			WithType(ErrTypeInvalidObject).
			WithTag("name", o.Name).
			WithTag("position", t.Position)
	}

	b, sized, valid := t.Bounds()
	if !valid {
		logs.WithTag("scene", s.ID).
			WithTag("name", o.Name).
			WithTag("size", t.Size).
			Warn("invalid object size, tracking its position only")
	}

	s.objectMutex.Lock()
	defer s.objectMutex.Unlock()

	if o.ID != 0 && s.objects[o.ID] == o {
		return 0, errors.New("object is already registered").
			WithType(ErrTypeInvalidObject).
			WithTag("id", o.ID).
			WithTag("name", o.Name)
	}

	id := ObjectID(s.objectIDs.New())
	if err := s.index.Insert(id, b); err != nil {
		instrumentIndexOperation(s.indexKind, opInsert, resultError)
		return 0, errors.New("registering object failed").
			WithType(errors.Type(err)).
			WithTag("name", o.Name).
			WithTag("bounds", b).
			Wrap(err)
	}

	o.ID = id
	s.objects[id] = o
	if !sized {
		s.unsized[id] = struct{}{}
	}

	instrumentIndexOperation(s.indexKind, opInsert, resultOK)
	instrumentIncreaseObjectGauge(s.indexKind)
	s.instrumentNodes()
	return id, nil
}

// Deregister stops tracking an object. Its ID is not handed out again.
func (s *Scene) Deregister(id ObjectID) bool {
	s.objectMutex.Lock()
	defer s.objectMutex.Unlock()

	if !s.index.Remove(id) {
		instrumentIndexOperation(s.indexKind, opRemove, resultMiss)
		return false
	}

	delete(s.objects, id)
	delete(s.unsized, id)

	instrumentIndexOperation(s.indexKind, opRemove, resultOK)
	instrumentDecreaseObjectGauge(s.indexKind)
	s.instrumentNodes()
	return true
}

// NotifyMoved updates the placement of a tracked object. Unknown objects and
// placements that did not change are ignored. When the index rejects the new bounds, the object keeps its
// previous placement.
func (s *Scene) NotifyMoved(id ObjectID, position, size r3.Vector) error {
	s.objectMutex.Lock()
	defer s.objectMutex.Unlock()

	o, ok := s.objects[id]
	if !ok {
		instrumentIndexOperation(s.indexKind, opUpdate, resultMiss)
		logs.WithTag("scene", s.ID).
			WithTag("id", id).
			Debug("moved object is not tracked")
		return nil
	}

	if !isFinite(position) {
		return errors.New("object position is not finite").
			WithType(ErrTypeInvalidObject).
			WithTag("id", id).
			WithTag("position", position)
	}

	current := o.Transform()
	if spatial.VectorEqualWithEpsilon(current.Position, position, moveEpsilon) &&
		spatial.VectorEqualWithEpsilon(current.Size, size, moveEpsilon) {
		instrumentIndexOperation(s.indexKind, opUpdate, resultUnchanged)
		return nil
	}

	t := Transform{Position: position, Size: size}
	b, sized, valid := t.Bounds()
	if !valid {
		logs.WithTag("scene", s.ID).
			WithTag("id", id).
			WithTag("size", size).
			Warn("invalid object size, tracking its position only")
	}

	if _, err := s.index.Update(id, b); err != nil {
		instrumentIndexOperation(s.indexKind, opUpdate, resultError)
		return errors.New("moving object failed").
			WithType(errors.Type(err)).
			WithTag("id", id).
			WithTag("bounds", b).
			Wrap(err)
	}

	o.setPlacement(position, size)
	if sized {
		delete(s.unsized, id)
	} else {
		s.unsized[id] = struct{}{}
	}

	instrumentIndexOperation(s.indexKind, opUpdate, resultOK)
	s.instrumentNodes()
	return nil
}

// FindInCone returns the object with the highest presence in the given view
// cone.
func (s *Scene) FindInCone(origin, forward r3.Vector, halfAngle s1.Angle, maxDistance float64) (ObjectID, bool) {
	defer instrumentQueryLatency(s.indexKind, "cone", time.Now())

	s.objectMutex.RLock()
	defer s.objectMutex.RUnlock()

	q := selection.ConeQuery(origin, forward, halfAngle, maxDistance)
	res, err := selection.Best[ObjectID](indexSource{scene: s}, q, selection.Presence{})
	if err != nil {
		logs.WithTag("scene", s.ID).Debug(err)
		return 0, false
	}
	return res.Object, res.Found
}

// FindInRadius returns the objects intersecting the sphere at point.
func (s *Scene) FindInRadius(point r3.Vector, radius float64) []ObjectID {
	defer instrumentQueryLatency(s.indexKind, "radius", time.Now())

	s.objectMutex.RLock()
	defer s.objectMutex.RUnlock()

	return s.index.QueryRadius(point, radius)
}

// Nearby returns the objects intersecting the cube of the given half size
// around the position of another object, which is left out.
func (s *Scene) Nearby(id ObjectID, radius float64) []ObjectID {
	defer instrumentQueryLatency(s.indexKind, "nearby", time.Now())

	s.objectMutex.RLock()
	defer s.objectMutex.RUnlock()

	o, ok := s.objects[id]
	if !ok || radius < 0 || math.IsNaN(radius) {
		return nil
	}

	around := s.index.QueryRegion(spatial.CubeBounds(o.Transform().Position, radius))
	nearby := make([]ObjectID, 0, len(around))
	for _, other := range around {
		if other != id {
			nearby = append(nearby, other)
		}
	}
	return nearby
}

// QueryRadius, Bounds and Sized make the scene a selection source. They lock
// the scene on each call.

func (s *Scene) QueryRadius(point r3.Vector, radius float64) []ObjectID {
	s.objectMutex.RLock()
	defer s.objectMutex.RUnlock()

	return indexSource{scene: s}.QueryRadius(point, radius)
}

func (s *Scene) Bounds(id ObjectID) (spatial.Bounds, bool) {
	s.objectMutex.RLock()
	defer s.objectMutex.RUnlock()

	return indexSource{scene: s}.Bounds(id)
}

func (s *Scene) Sized(id ObjectID) bool {
	s.objectMutex.RLock()
	defer s.objectMutex.RUnlock()

	return indexSource{scene: s}.Sized(id)
}

func (s *Scene) Object(id ObjectID) (*Object, bool) {
	s.objectMutex.RLock()
	defer s.objectMutex.RUnlock()

	o, ok := s.objects[id]
	return o, ok
}

// Objects returns the tracked objects ordered by ID.
func (s *Scene) Objects() []*Object {
	s.objectMutex.RLock()
	defer s.objectMutex.RUnlock()

	objects := make([]*Object, 0, len(s.objects))
	for _, o := range s.objects {
		objects = append(objects, o)
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].ID < objects[j].ID
	})
	return objects
}

func (s *Scene) Len() int {
	s.objectMutex.RLock()
	defer s.objectMutex.RUnlock()

	return s.index.Len()
}

func (s *Scene) DebugInfo() spatial.DebugInfo {
	s.objectMutex.RLock()
	defer s.objectMutex.RUnlock()

	return s.index.DebugInfo()
}

// NewSelector returns a selector over the scene that counts selection
// changes.
func (s *Scene) NewSelector(strategy selection.Strategy) *selection.Selector[ObjectID] {
	sel := selection.NewSelector[ObjectID](s, strategy)
	name := sel.Strategy().Name()

	sel.OnChange(func(previous, current selection.Result[ObjectID]) {
		instrumentCountSelectionChange(name)
		logs.WithTag("scene", s.ID).
			WithTag("strategy", name).
			WithTag("previous", previous.Object).
			WithTag("current", current.Object).
			WithTag("found", current.Found).
			Debug("selection changed")
	})
	return sel
}

// TrackSelection ticks the selector on each frame with the query returned by
// pose. Frames where pose returns false are skipped.
func (s *Scene) TrackSelection(sel *selection.Selector[ObjectID], pose func() (selection.Query, bool)) (cancel func()) {
	return s.HandleFrame(func() {
		q, ok := pose()
		if !ok {
			return
		}

		start := time.Now()
		if _, _, err := sel.Tick(q); err != nil {
			logs.WithTag("scene", s.ID).Debug(err)
		}
		instrumentQueryLatency(s.indexKind, sel.Strategy().Name(), start)
	})
}

func (s *Scene) HandleFrame(h func()) (cancel func()) {
	s.frameMutex.Lock()
	defer s.frameMutex.Unlock()

	id := s.frameHandlerIDs.New()
	s.frameHandlers[id] = h

	return func() {
		s.frameMutex.Lock()
		defer s.frameMutex.Unlock()

		delete(s.frameHandlers, id)
		s.frameHandlerIDs.Reuse(id)
	}
}

func (s *Scene) StartDispatchFrames() {
	s.startFrameOnce.Do(func() {
		for {
			select {
			case <-s.closeFrameChan:
				return

			case <-s.frameTicker.C:
				s.frameMutex.RLock()
				for _, h := range s.frameHandlers {
					h()
				}
				s.frameMutex.RUnlock()
			}
		}
	})
}

func (s *Scene) instrumentNodes() {
	if c, ok := s.index.(interface{ NodeCount() int }); ok {
		instrumentNodeGauge(s.indexKind, c.NodeCount())
	}
}

// indexSource reads the index without locking. Callers hold the scene lock.
type indexSource struct {
	scene *Scene
}

func (src indexSource) QueryRadius(point r3.Vector, radius float64) []ObjectID {
	return src.scene.index.QueryRadius(point, radius)
}

func (src indexSource) Bounds(id ObjectID) (spatial.Bounds, bool) {
	return src.scene.index.Bounds(id)
}

func (src indexSource) Sized(id ObjectID) bool {
	_, unsized := src.scene.unsized[id]
	return !unsized
}

func indexKind(index spatial.Index[ObjectID]) string {
	switch index.(type) {
	case *spatial.Octree[ObjectID]:
		return "octree"
	case *spatial.Grid[ObjectID]:
		return "grid"
	default:
		return "custom"
	}
}

func isFinite(v r3.Vector) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
