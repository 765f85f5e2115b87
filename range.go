package alarik

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRangeHeader parses a single-range "bytes=a-b" / "bytes=a-" /
// "bytes=-n" Range header against an object of the given size. A missing
// header, a malformed header, or a multi-range header (unsupported) all
// return (nil, nil): the caller should then serve the full object, exactly
// as real S3 does for a Range it declines to honor.
func ParseRangeHeader(header string, size int64) (*ObjectRange, error) {
	if header == "" {
		return nil, nil
	}
	if !strings.HasPrefix(header, "bytes=") {
		return nil, nil
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		return nil, nil // multi-range not supported; fall back to whole object
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, nil
	}

	startStr, endStr := parts[0], parts[1]

	if startStr == "" {
		// suffix range: last n bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil, nil // malformed spec, fall back to a full read
		}
		if size == 0 {
			return nil, rangeNotSatisfiable(size)
		}
		if n > size {
			n = size
		}
		return &ObjectRange{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, nil // malformed spec, fall back to a full read
	}
	if start >= size {
		return nil, rangeNotSatisfiable(size)
	}

	if endStr == "" {
		return &ObjectRange{Start: start, End: size - 1}, nil
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return nil, nil // malformed spec, fall back to a full read
	}
	if end >= size {
		end = size - 1
	}
	return &ObjectRange{Start: start, End: end}, nil
}

// rangeNotSatisfiable reports a Range header that is well-formed but
// describes an offset outside the object's actual size; unlike a malformed
// spec, this is a real client error and is rendered as 416.
func rangeNotSatisfiable(size int64) *ErrorResponse {
	return &ErrorResponse{
		Code:    ErrInvalidRange,
		Message: "The requested range is not satisfiable",
	}
}

// ContentRangeHeader formats the Content-Range response header for a
// satisfied range over an object of the given total size.
func ContentRangeHeader(rnge ObjectRange, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", rnge.Start, rnge.End, size)
}
