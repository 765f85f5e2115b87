package alarik

import (
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/achtungsoftware/alarik/datecodec"
)

// CopySource is a parsed x-amz-copy-source header: /bucket/key, optionally
// suffixed with ?versionId=....
type CopySource struct {
	Bucket    string
	Key       string
	VersionID string
}

// ParseCopySource parses the x-amz-copy-source header value. Real S3 accepts
// both a raw "/bucket/key" form and a URL-encoded one; clients disagree on
// whether the leading slash and the key itself are escaped, so this
// decodes permissively rather than requiring one exact form.
func ParseCopySource(header string) (CopySource, error) {
	if header == "" {
		return CopySource{}, ErrorMessage(ErrInvalidArgument, "x-amz-copy-source is required")
	}

	raw := header
	var versionID string
	if idx := strings.Index(raw, "?"); idx >= 0 {
		query := raw[idx+1:]
		raw = raw[:idx]
		if v, err := url.ParseQuery(query); err == nil {
			versionID = v.Get("versionId")
		}
	}

	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		decoded = raw
	}
	decoded = strings.TrimPrefix(decoded, "/")

	parts := strings.SplitN(decoded, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return CopySource{}, ErrorMessage(ErrInvalidArgument, "x-amz-copy-source must be /bucket/key")
	}
	return CopySource{Bucket: parts[0], Key: parts[1], VersionID: versionID}, nil
}

// MetadataDirective is the x-amz-metadata-directive header: whether a copy
// keeps the source object's user metadata or replaces it with the request's.
type MetadataDirective string

const (
	MetadataDirectiveCopy    MetadataDirective = "COPY"
	MetadataDirectiveReplace MetadataDirective = "REPLACE"
)

// ParseMetadataDirective defaults an empty/unrecognized header to COPY,
// matching S3's documented default.
func ParseMetadataDirective(header string) MetadataDirective {
	if strings.EqualFold(header, string(MetadataDirectiveReplace)) {
		return MetadataDirectiveReplace
	}
	return MetadataDirectiveCopy
}

// EvaluateCopyPreconditions checks the copy-source-if-* family of headers
// against the source object's current ETag and modification time, mirroring
// the ordinary conditional-GET rules (match headers take precedence over
// the *-since headers) but keyed to these copy-specific header names.
func EvaluateCopyPreconditions(h http.Header, etag string, lastModified time.Time) error {
	if match := h.Get("x-amz-copy-source-if-match"); match != "" {
		if !etagMatchesAny(match, etag) {
			return ErrorMessage(ErrPreconditionFailed, "At least one of the copy-source pre-conditions you specified did not hold")
		}
	} else if since := h.Get("x-amz-copy-source-if-unmodified-since"); since != "" {
		if t, ok := datecodec.ParseHTTPDate(since); ok && lastModified.After(t) {
			return ErrorMessage(ErrPreconditionFailed, "At least one of the copy-source pre-conditions you specified did not hold")
		}
	}
	if none := h.Get("x-amz-copy-source-if-none-match"); none != "" {
		if etagMatchesAny(none, etag) {
			return ErrorMessage(ErrPreconditionFailed, "At least one of the copy-source pre-conditions you specified did not hold")
		}
	} else if since := h.Get("x-amz-copy-source-if-modified-since"); since != "" {
		if t, ok := datecodec.ParseHTTPDate(since); ok && !lastModified.After(t) {
			return ErrorMessage(ErrPreconditionFailed, "At least one of the copy-source pre-conditions you specified did not hold")
		}
	}
	return nil
}

func etagMatchesAny(headerValue, etag string) bool {
	for _, candidate := range strings.Split(headerValue, ",") {
		if strings.Trim(strings.TrimSpace(candidate), `"`) == strings.Trim(etag, `"`) {
			return true
		}
	}
	return false
}

// CopyObject implements the CopyEngine: it reads the source object (a
// specific version if requested, otherwise its bucket's current version),
// evaluates copy-source-if-* preconditions against it, resolves the
// destination metadata per directive, and writes the result into the
// destination bucket/key honoring that bucket's own versioning status.
func CopyObject(root string, src CopySource, srcStatus VersioningStatus, dstBucket, dstKey string, dstStatus VersioningStatus, directive MetadataDirective, replacementContentType string, replacementMeta map[string]string, condHeader http.Header, now time.Time) (CopyObjectResult, string, error) {
	var meta ObjectMetadata
	var payload []byte
	var err error

	if srcStatus == VersioningDisabled {
		path, perr := StoragePath(root, src.Bucket, src.Key)
		if perr != nil {
			return CopyObjectResult{}, "", perr
		}
		meta, payload, err = ReadObjectFile(path, true, nil)
		if os.IsNotExist(err) {
			err = KeyNotFound(src.Key)
		}
	} else {
		meta, payload, err = ReadVersion(root, src.Bucket, src.Key, src.VersionID, true, nil)
	}
	if err != nil {
		return CopyObjectResult{}, "", err
	}
	if meta.IsDeleteMarker {
		return CopyObjectResult{}, "", KeyNotFound(src.Key)
	}

	srcModified, _ := datecodec.ParseISO8601Milli(meta.UpdatedAt)
	if err := EvaluateCopyPreconditions(condHeader, meta.ETag, srcModified); err != nil {
		return CopyObjectResult{}, "", err
	}

	contentType := meta.ContentType
	userMeta := meta.UserMetadata
	if directive == MetadataDirectiveReplace {
		contentType = replacementContentType
		userMeta = replacementMeta
	}

	versionID, err := WriteVersioned(root, dstBucket, dstKey, dstStatus, contentType, userMeta, payload, meta.ETag, now)
	if err != nil {
		return CopyObjectResult{}, "", err
	}

	return CopyObjectResult{
		Xmlns:        xmlns,
		LastModified: NewISOTime(now),
		ETag:         meta.ETag,
	}, versionID, nil
}
