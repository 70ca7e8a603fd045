package scene

import (
	"sort"
	"sync"
)

// A sequential id generator.
type SequentialIDGenerator struct {
	mutex     sync.Mutex
	currentID uint32
	released  []uint32
}

// New returns a sequential id. Released ids are handed out first, lowest
// first.
func (g *SequentialIDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.released) != 0 {
		id := g.released[0]
		g.released = g.released[1:]
		return id
	}

	g.currentID++
	return g.currentID
}

// Reuse marks the given id as reusable. Ids that were never generated or that
// are already reusable are ignored.
func (g *SequentialIDGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 || id > g.currentID {
		return
	}

	i := sort.Search(len(g.released), func(i int) bool {
		return g.released[i] >= id
	})
	if i < len(g.released) && g.released[i] == id {
		return
	}

	g.released = append(g.released, 0)
	copy(g.released[i+1:], g.released[i:])
	g.released[i] = id
}
