package shard

import (
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/nickcecere/fpstore/internal/fingerprint"
)

// candidate is a file whose name places it inside a query window.
type candidate struct {
	path     string
	side     fingerprint.Side
	value    float64
	distance float64
}

// FindByRange returns records whose upper fingerprint lies within
// tolerance of upperTarget, or whose lower fingerprint lies within
// tolerance of lowerTarget. The two copies of one record are returned
// once. Results are ordered by distance to the matching target.
func (s *Store) FindByRange(upperTarget, lowerTarget, tolerance float64, limit int) ([]Match, error) {
	if math.IsNaN(tolerance) || tolerance < 0 {
		return nil, fmt.Errorf("invalid tolerance: %v", tolerance)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	targets := map[fingerprint.Side]float64{
		fingerprint.SideUpper: upperTarget,
		fingerprint.SideLower: lowerTarget,
	}

	found := make([][]candidate, len(fingerprint.Sides))
	var g errgroup.Group
	for i, side := range fingerprint.Sides {
		g.Go(func() error {
			found[i] = s.scanTree(side, targets[side], tolerance, limit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []candidate
	for _, c := range found {
		all = append(all, c...)
	}
	sortByDistance(all)

	seenPath := make(map[string]bool)
	seenID := make(map[string]bool)
	var matches []Match
	for _, c := range all {
		if len(matches) >= limit {
			break
		}
		if seenPath[c.path] {
			continue
		}
		seenPath[c.path] = true

		rec, ok := s.GetByPath(c.path)
		if !ok {
			continue
		}
		if seenID[rec.ID] {
			continue
		}
		seenID[rec.ID] = true

		matches = append(matches, Match{
			Record:   rec,
			Side:     c.side,
			Value:    c.value,
			Distance: c.distance,
		})
	}

	log.Debug("Range scan complete",
		"upper", upperTarget, "lower", lowerTarget, "tolerance", tolerance, "results", len(matches))
	return matches, nil
}

// scanTree collects the limit in-range candidates of one tree closest to
// target, using the range index when it is in sync with the tree.
func (s *Store) scanTree(side fingerprint.Side, target, tolerance float64, limit int) []candidate {
	lo, hi := target-tolerance, target+tolerance

	if s.RangeIndexSynced() {
		paths, err := s.index.PathsInRange(side, lo, hi, limit)
		if err == nil {
			return s.filterPaths(side, paths, target, tolerance, limit)
		}
		log.Warn("Range index query failed, scanning tree", "side", side, "error", err)
	}

	// Coarse window on the two-decimal filename prefix. Truncation moves a
	// value by less than 0.01, so widening by 0.01 keeps every true match.
	coarseLo := math.Trunc(lo*100)/100 - 0.01
	coarseHi := math.Trunc(hi*100)/100 + 0.01

	var out []candidate
	root := s.TreeRoot(side)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !isRecordFile(d.Name()) {
			return nil
		}

		fixed, _, ok := strings.Cut(d.Name(), "_")
		if !ok {
			return nil
		}
		if coarse, ok := coarsePrefix(fixed); !ok || coarse < coarseLo || coarse > coarseHi {
			return nil
		}

		if c, ok := inRange(path, side, target, tolerance); ok {
			out = append(out, c)
			if len(out) >= 2*limit {
				out = nearest(out, limit)
			}
		}
		return nil
	})
	if err != nil {
		log.Warn("Range scan aborted", "side", side, "error", err)
	}
	return nearest(out, limit)
}

// filterPaths re-checks index candidates against their file names.
func (s *Store) filterPaths(side fingerprint.Side, paths []string, target, tolerance float64, limit int) []candidate {
	var out []candidate
	for _, path := range paths {
		if c, ok := inRange(path, side, target, tolerance); ok {
			out = append(out, c)
		}
	}
	return nearest(out, limit)
}

// nearest sorts candidates by distance and keeps the first limit.
func nearest(cs []candidate, limit int) []candidate {
	sortByDistance(cs)
	if len(cs) > limit {
		cs = cs[:limit]
	}
	return cs
}

func sortByDistance(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].distance != cs[j].distance {
			return cs[i].distance < cs[j].distance
		}
		if cs[i].side != cs[j].side {
			return cs[i].side == fingerprint.SideUpper
		}
		return cs[i].path < cs[j].path
	})
}

func inRange(path string, side fingerprint.Side, target, tolerance float64) (candidate, bool) {
	value, ok := ValueFromName(filepath.Base(path))
	if !ok {
		return candidate{}, false
	}
	distance := math.Abs(value - target)
	if distance > tolerance {
		return candidate{}, false
	}
	return candidate{path: path, side: side, value: value, distance: distance}, true
}
