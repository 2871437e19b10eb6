package connectivity

import (
	"github.com/zeusync/cubenav/internal/core/observability/log"
	"github.com/zeusync/cubenav/internal/core/tiles"
	"github.com/zyedidia/generic/mapset"
)

// Bridges is the part of the bridge resolver the scanner drives.
type Bridges interface {
	// IsConnector reports whether h is the backing tile of a registered
	// connector.
	IsConnector(h tiles.Handle) bool
	// FindSibling resolves the tile reached by crossing connector from from,
	// registering the splice on success.
	FindSibling(connector, from tiles.Handle) (tiles.Handle, bool)
	// Revalidate re-derives the splices of h and returns the surviving far
	// ends.
	Revalidate(h tiles.Handle) []tiles.Handle
	// InvalidateConnector drops every splice routed through the connector.
	InvalidateConnector(h tiles.Handle) int
}

// TickStats summarises one drain of the dirty queue.
type TickStats struct {
	Scanned int `json:"scanned"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
	// Pending is the number of tiles dirtied during this tick, to be scanned
	// on the next one.
	Pending int `json:"pending"`
}

// Scanner recomputes adjacency for dirty tiles.
type Scanner struct {
	reg     *tiles.Registry
	bridges Bridges
	radius  float64
	logger  log.Log
}

// NewScanner creates a scanner over reg. bridges may be nil, in which case
// connector tiles are skipped.
func NewScanner(reg *tiles.Registry, bridges Bridges, radius float64, logger log.Log) *Scanner {
	return &Scanner{
		reg:     reg,
		bridges: bridges,
		radius:  radius,
		logger:  log.OrNop(logger).With(log.String("component", "connectivity")),
	}
}

// Tick drains the dirty queue once and scans every drained tile. Tiles
// dirtied while the tick runs are left for the next one.
func (s *Scanner) Tick() TickStats {
	var stats TickStats
	for _, h := range s.reg.DrainDirty() {
		added, removed, ok := s.Scan(h)
		if !ok {
			continue
		}
		stats.Scanned++
		stats.Added += added
		stats.Removed += removed
	}
	stats.Pending = s.reg.DirtyCount()
	return stats
}

// Scan recomputes the adjacency of one tile, updates the far side of every
// changed edge and marks it dirty, then clears the tile's dirty flag. It
// reports false for stale handles.
func (s *Scanner) Scan(h tiles.Handle) (added, removed int, ok bool) {
	t, ok := s.reg.Lookup(h)
	if !ok {
		return 0, 0, false
	}

	if t.IsConnector() {
		if s.bridges != nil && s.bridges.IsConnector(h) {
			s.bridges.InvalidateConnector(h)
		}
		s.reg.MarkClean(h)
		return 0, 0, true
	}

	next := s.candidates(t)

	addedHs, removedHs, err := s.reg.SetAdjacency(h, next)
	if err != nil {
		return 0, 0, false
	}
	for _, far := range removedHs {
		s.reg.Disconnect(far, h)
		s.reg.MarkDirty(far)
	}
	for _, far := range addedHs {
		s.reg.Connect(far, h)
		s.reg.MarkDirty(far)
	}
	s.reg.MarkClean(h)

	if len(addedHs) > 0 || len(removedHs) > 0 {
		s.logger.Debug("adjacency changed",
			log.Stringer("tile", h),
			log.Int("added", len(addedHs)),
			log.Int("removed", len(removedHs)),
			log.Int("degree", len(next)),
		)
	}
	return len(addedHs), len(removedHs), true
}

func (s *Scanner) candidates(t *tiles.Tile) []tiles.Handle {
	if t.Invalid() || !t.Orientation().Valid() {
		return nil
	}
	h := t.Handle()
	set := mapset.New[tiles.Handle]()
	var out []tiles.Handle
	put := func(c tiles.Handle) {
		if c != h && !set.Has(c) {
			set.Put(c)
			out = append(out, c)
		}
	}

	if s.bridges != nil {
		for _, sib := range s.bridges.Revalidate(h) {
			put(sib)
		}
	}

	near := s.reg.QueryRadius(t.Position(), s.radius, func(o *tiles.Tile) bool {
		return o.Handle() != h && !tiles.Excludes(t, o)
	})
	for _, o := range near {
		if o.IsConnector() {
			if s.bridges == nil || !s.bridges.IsConnector(o.Handle()) {
				continue
			}
			if sib, found := s.bridges.FindSibling(o.Handle(), h); found {
				put(sib)
			}
			continue
		}
		if o.Invalid() || o.Orientation() != t.Orientation() {
			continue
		}
		put(o.Handle())
	}
	return out
}
