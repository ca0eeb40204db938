package stream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"vidsafe/media"
)

// ErrUnsatisfiable means the range is well formed but cannot be served for
// the file, either because start > end or start is past the last byte.
var ErrUnsatisfiable = errors.New("requested range not satisfiable")

// Range is an inclusive byte range.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange parses a single "bytes=start-end" or "bytes=start-" header for a
// file of size bytes. Malformed headers, suffix ranges and multi-range
// requests yield a RangeParse failure. An end past the file is clamped to
// the last byte.
func ParseRange(header string, size int64) (Range, error) {
	unit, ranges, ok := strings.Cut(strings.TrimSpace(header), "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return Range{}, media.Failuref(media.RangeParse, "unsupported range %q", header)
	}
	ranges = strings.TrimSpace(ranges)
	if strings.Contains(ranges, ",") {
		return Range{}, media.Failuref(media.RangeParse, "multiple ranges are not supported: %q", header)
	}

	first, last, ok := strings.Cut(ranges, "-")
	if !ok {
		return Range{}, media.Failuref(media.RangeParse, "missing '-' in range %q", header)
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if first == "" {
		return Range{}, media.Failuref(media.RangeParse, "suffix ranges are not supported: %q", header)
	}

	start, err := parseOffset(first)
	if err != nil {
		return Range{}, media.Failuref(media.RangeParse, "bad range start in %q: %v", header, err)
	}
	end := size - 1
	if last != "" {
		if end, err = parseOffset(last); err != nil {
			return Range{}, media.Failuref(media.RangeParse, "bad range end in %q: %v", header, err)
		}
	}

	if start > end || start >= size {
		return Range{}, fmt.Errorf("%w: %q for %d bytes", ErrUnsatisfiable, header, size)
	}
	if end >= size {
		end = size - 1
	}
	return Range{Start: start, End: end}, nil
}

func parseOffset(s string) (int64, error) {
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%q is not a byte offset", s)
		}
	}
	return strconv.ParseInt(s, 10, 64)
}
