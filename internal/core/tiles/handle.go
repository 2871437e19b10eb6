package tiles

import (
	"fmt"
	"strconv"
	"strings"
)

// Handle identifies a tile slot in the registry arena. The generation is
// bumped every time the slot is freed, so a handle that outlives its tile
// stops resolving instead of aliasing the next occupant. The zero Handle never
// refers to a tile.
type Handle struct {
	index uint32
	gen   uint32
}

func (h Handle) Index() uint32      { return h.index }
func (h Handle) Generation() uint32 { return h.gen }
func (h Handle) IsZero() bool       { return h.gen == 0 }

// Less orders handles by slot then generation.
func (h Handle) Less(o Handle) bool {
	if h.index != o.index {
		return h.index < o.index
	}
	return h.gen < o.gen
}

func (h Handle) String() string {
	return strconv.FormatUint(uint64(h.index), 10) + ":" + strconv.FormatUint(uint64(h.gen), 10)
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(text []byte) error {
	idx, gen, ok := strings.Cut(string(text), ":")
	if !ok {
		return fmt.Errorf("tile handle %q: missing generation", text)
	}
	i, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return fmt.Errorf("tile handle %q: %w", text, err)
	}
	g, err := strconv.ParseUint(gen, 10, 32)
	if err != nil {
		return fmt.Errorf("tile handle %q: %w", text, err)
	}
	*h = Handle{index: uint32(i), gen: uint32(g)}
	return nil
}
