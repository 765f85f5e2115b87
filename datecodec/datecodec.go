// Package datecodec centralises the handful of date formats the gateway has
// to understand: the three legal HTTP date formats for conditional
// requests, the compact AWS signing format, and the millisecond-precision
// timestamp stored in object metadata.
package datecodec

import "time"

const (
	// RFC1123Layout is also what we write back out in Last-Modified and Date
	// response headers: FormatHTTPDate appends a literal " GMT" rather than
	// relying on MST substitution.
	RFC1123Layout = "Mon, 02 Jan 2006 15:04:05"
	RFC850Layout  = "Monday, 02-Jan-06 15:04:05 MST"
	ANSICLayout   = "Mon Jan _2 15:04:05 2006"

	// AWSLayout is the x-amz-date / X-Amz-Date format: YYYYMMDDTHHMMSSZ.
	AWSLayout = "20060102T150405Z"
	// AWSDateLayout is the date-only component used in credential scopes.
	AWSDateLayout = "20060102"

	// ISO8601MilliLayout is used for the updatedAt field stored in object
	// metadata. The ".000" (rather than ".999") keeps trailing zeros so
	// on-disk timestamps sort and compare consistently.
	ISO8601MilliLayout = "2006-01-02T15:04:05.000Z"
)

// ParseHTTPDate parses a header value in any of the three HTTP-legal date
// formats, always returning UTC. ok is false if none of them match.
func ParseHTTPDate(s string) (t time.Time, ok bool) {
	if t, err := time.Parse(RFC1123Layout+" MST", s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(RFC850Layout, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(ANSICLayout, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// FormatHTTPDate renders t the way Last-Modified and Date headers are
// written: always GMT, never the host's local offset.
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(RFC1123Layout) + " GMT"
}

// ParseAWS parses an x-amz-date value (YYYYMMDDTHHMMSSZ).
func ParseAWS(s string) (time.Time, error) {
	return time.Parse(AWSLayout, s)
}

// FormatAWS renders t in the x-amz-date format, in UTC.
func FormatAWS(t time.Time) string {
	return t.UTC().Format(AWSLayout)
}

// FormatISO8601Milli renders t with millisecond precision in UTC, the format
// used for the updatedAt field in object metadata records.
func FormatISO8601Milli(t time.Time) string {
	return t.UTC().Format(ISO8601MilliLayout)
}

// ParseISO8601Milli parses a value produced by FormatISO8601Milli.
func ParseISO8601Milli(s string) (time.Time, error) {
	return time.Parse(ISO8601MilliLayout, s)
}
