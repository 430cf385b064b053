package shard

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nickcecere/fpstore/internal/fingerprint"
)

// negativeDir prefixes the digit path of negative fingerprints.
const negativeDir = "neg"

// ShardPath returns the digit path of n under root, one directory per
// decimal digit: ShardPath(12345, "data") == "data/1/2/3/4/5".
func ShardPath(n int64, root string) string {
	parts := []string{root}
	s := strconv.FormatInt(n, 10)
	if strings.HasPrefix(s, "-") {
		parts = append(parts, negativeDir)
		s = s[1:]
	}
	return filepath.Join(append(parts, digitDirs(s)...)...)
}

// DigitPath returns the directory names for value formatted with places
// decimals: sign and separator removed, one digit per level.
// 0.2604972083 at 10 places yields 0,2,6,0,4,9,7,2,0,8,3.
func DigitPath(value float64, places int) []string {
	return fixedDigitPath(fingerprint.FormatString(value, places))
}

// fixedDigitPath splits an already formatted fixed-decimal string.
func fixedDigitPath(fixed string) []string {
	var parts []string
	if strings.HasPrefix(fixed, "-") {
		parts = append(parts, negativeDir)
		fixed = fixed[1:]
	}
	return append(parts, digitDirs(strings.Replace(fixed, ".", "", 1))...)
}

func digitDirs(digits string) []string {
	dirs := make([]string, 0, len(digits))
	for _, r := range digits {
		dirs = append(dirs, string(r))
	}
	return dirs
}

// truncateDecimals cuts a fixed-decimal string to at most n decimals
// without rounding.
func truncateDecimals(fixed string, n int) string {
	dot := strings.IndexByte(fixed, '.')
	if dot < 0 {
		return fixed
	}
	if n <= 0 {
		return fixed[:dot]
	}
	if end := dot + 1 + n; end < len(fixed) {
		return fixed[:end]
	}
	return fixed
}

// coarsePrefix is the filename prefix heuristic: the value truncated to
// two decimals (three significant digits for values below ten).
func coarsePrefix(fixed string) (float64, bool) {
	v, err := strconv.ParseFloat(truncateDecimals(fixed, 2), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
