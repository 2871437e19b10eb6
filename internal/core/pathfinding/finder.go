package pathfinding

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/cubenav/internal/core/observability/log"
	"github.com/zeusync/cubenav/pkg/generic"
	"github.com/zeusync/cubenav/pkg/sequence"
)

// Node is what the finder needs from a graph vertex.
type Node[K comparable] interface {
	Key() K
	// Connections lists the keys of adjacent nodes. A stable order keeps
	// searches reproducible.
	Connections() []K
	Position() mgl64.Vec3
	// Invalid nodes are never entered and never valid endpoints.
	Invalid() bool
}

type Status uint8

const (
	Found Status = iota
	NoPath
	SameNode
	InvalidEndpoint
	StaleEndpoint
	Truncated
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NoPath:
		return "no_path"
	case SameNode:
		return "same_node"
	case InvalidEndpoint:
		return "invalid_endpoint"
	case StaleEndpoint:
		return "stale_endpoint"
	case Truncated:
		return "truncated"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome of one search. Path includes start and goal and is
// empty unless Status is Found.
type Result[K comparable] struct {
	Path     []K     `json:"path"`
	Status   Status  `json:"status"`
	Expanded int     `json:"expanded"`
	Cost     float64 `json:"cost"`
}

const DefaultMaxExpanded = 4096

type options struct {
	maxExpanded int
	logger      log.Log
}

type Option func(*options)

// WithMaxExpanded bounds the number of nodes one search may close.
func WithMaxExpanded(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxExpanded = n
		}
	}
}

func WithLogger(l log.Log) Option {
	return func(o *options) { o.logger = l }
}

type scratch[K comparable] struct {
	g      map[K]float64
	parent map[K]K
	closed map[K]struct{}
	queued map[K]*sequence.PriorityItem[K]
	open   *sequence.PriorityQueue[K]
}

func (s *scratch[K]) reset() {
	clear(s.g)
	clear(s.parent)
	clear(s.closed)
	clear(s.queued)
	s.open.Reset()
}

// Finder runs A* searches over a live graph reached through lookup. It never
// mutates the graph and keeps no state between calls, so it may be used from
// several goroutines at once as long as the graph is not being written.
type Finder[K comparable, N Node[K]] struct {
	lookup      func(K) (N, bool)
	maxExpanded int
	logger      log.Log
	pool        *generic.Pool[*scratch[K]]
}

func NewFinder[K comparable, N Node[K]](lookup func(K) (N, bool), opts ...Option) *Finder[K, N] {
	o := options{maxExpanded: DefaultMaxExpanded}
	for _, opt := range opts {
		opt(&o)
	}
	return &Finder[K, N]{
		lookup:      lookup,
		maxExpanded: o.maxExpanded,
		logger:      log.OrNop(o.logger).With(log.String("component", "pathfinding")),
		pool: generic.NewResetPool(func() *scratch[K] {
			return &scratch[K]{
				g:      make(map[K]float64),
				parent: make(map[K]K),
				closed: make(map[K]struct{}),
				queued: make(map[K]*sequence.PriorityItem[K]),
				open:   sequence.NewPriorityQueue[K](),
			}
		}, (*scratch[K]).reset),
	}
}

// FindPath returns the route from start to goal, both inclusive, or nil.
func (f *Finder[K, N]) FindPath(start, goal K) []K {
	return f.Find(start, goal).Path
}

// Find runs one A* search with Euclidean edge costs and heuristic. Ties on
// f = g + h are broken by insertion order.
func (f *Finder[K, N]) Find(start, goal K) Result[K] {
	sn, ok := f.lookup(start)
	if !ok {
		return Result[K]{Status: StaleEndpoint}
	}
	gn, ok := f.lookup(goal)
	if !ok {
		return Result[K]{Status: StaleEndpoint}
	}
	if sn.Invalid() || gn.Invalid() {
		return Result[K]{Status: InvalidEndpoint}
	}
	if start == goal {
		return Result[K]{Status: SameNode}
	}

	s := f.pool.Get()
	defer f.pool.Put(s)

	target := gn.Position()
	s.g[start] = 0
	s.queued[start] = s.open.Enqueue(start, sn.Position().Sub(target).Len())

	expanded := 0
	for !s.open.IsEmpty() {
		cur, _ := s.open.Dequeue()
		delete(s.queued, cur)
		s.closed[cur] = struct{}{}
		expanded++

		if cur == goal {
			return Result[K]{
				Path:     reconstruct(s.parent, start, goal),
				Status:   Found,
				Expanded: expanded,
				Cost:     s.g[goal],
			}
		}
		if expanded >= f.maxExpanded {
			f.logger.Warn("search truncated",
				log.Int("expanded", expanded),
				log.Int("limit", f.maxExpanded),
			)
			return Result[K]{Status: Truncated, Expanded: expanded}
		}

		cn, ok := f.lookup(cur)
		if !ok {
			continue
		}
		from := cn.Position()
		base := s.g[cur]
		for _, next := range cn.Connections() {
			if _, done := s.closed[next]; done {
				continue
			}
			nn, ok := f.lookup(next)
			if !ok || nn.Invalid() {
				continue
			}
			p := nn.Position()
			tentative := base + p.Sub(from).Len()
			if best, seen := s.g[next]; seen && tentative >= best {
				continue
			}
			s.g[next] = tentative
			s.parent[next] = cur
			// a node sits in the open set at most once, a better route moves it up
			if item, queued := s.queued[next]; queued {
				s.open.Update(item, next, tentative+p.Sub(target).Len())
			} else {
				s.queued[next] = s.open.Enqueue(next, tentative+p.Sub(target).Len())
			}
		}
	}
	return Result[K]{Status: NoPath, Expanded: expanded}
}

func reconstruct[K comparable](parent map[K]K, start, goal K) []K {
	var rev []K
	for cur := goal; ; {
		rev = append(rev, cur)
		if cur == start {
			break
		}
		cur = parent[cur]
	}
	path := make([]K, len(rev))
	for i, k := range rev {
		path[len(rev)-1-i] = k
	}
	return path
}
