package procmem

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"offsetdump/internal/memory"
)

// region is one line of /proc/<pid>/maps.
type region struct {
	start, end uint64
	readable   bool
	path       string
}

// parseMaps reads the /proc/<pid>/maps format.
func parseMaps(r io.Reader) ([]region, error) {
	var regions []region
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 5 {
			return nil, fmt.Errorf("maps line %d: %d fields", line, len(fields))
		}

		lo, hi, ok := strings.Cut(fields[0], "-")
		if !ok {
			return nil, fmt.Errorf("maps line %d: bad range %q", line, fields[0])
		}
		start, err := strconv.ParseUint(lo, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("maps line %d: %w", line, err)
		}
		end, err := strconv.ParseUint(hi, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("maps line %d: %w", line, err)
		}

		reg := region{start: start, end: end, readable: strings.HasPrefix(fields[1], "r")}
		if len(fields) >= 6 {
			reg.path = strings.Join(fields[5:], " ")
		}
		regions = append(regions, reg)
	}
	return regions, sc.Err()
}

// modulesFromRegions groups file backed mappings by path. A module spans from
// its lowest mapping to the end of its highest one.
func modulesFromRegions(regions []region) []memory.ModuleInfo {
	var mods []memory.ModuleInfo
	index := make(map[string]int)

	for _, r := range regions {
		if !strings.HasPrefix(r.path, "/") {
			continue
		}
		i, ok := index[r.path]
		if !ok {
			index[r.path] = len(mods)
			mods = append(mods, memory.ModuleInfo{Name: path.Base(r.path), Base: r.start, Size: r.end - r.start})
			continue
		}
		m := &mods[i]
		end := max(m.Base+m.Size, r.end)
		m.Base = min(m.Base, r.start)
		m.Size = end - m.Base
	}
	return mods
}

// chunk is a piece of a read request that falls in one mapping.
type chunk struct {
	addr uint64
	off  int
	n    int
}

// plan splits [addr, addr+n) into readable chunks. Gaps between mappings
// and unreadable mappings such as guard pages are skipped and read as zero.
// A request that touches no readable mapping is an error.
func plan(regions []region, addr uint64, n int) ([]chunk, error) {
	end := addr + uint64(n)
	if end < addr {
		return nil, fmt.Errorf("read %#x+%#x overflows", addr, n)
	}

	var chunks []chunk
	for _, r := range regions {
		if r.end <= addr || r.start >= end {
			continue
		}
		if !r.readable {
			continue
		}
		lo, hi := max(r.start, addr), min(r.end, end)
		chunks = append(chunks, chunk{addr: lo, off: int(lo - addr), n: int(hi - lo)})
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("nothing readable at %#x+%#x", addr, n)
	}
	return chunks, nil
}
