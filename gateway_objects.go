package alarik

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"net/textproto"
	"os"
	"strconv"
	"strings"

	"github.com/achtungsoftware/alarik/datecodec"
	"github.com/achtungsoftware/alarik/signature"
)

const metaHeaderPrefix = "X-Amz-Meta-"

// extractUserMetadata lifts every x-amz-meta-* header into a plain map,
// keyed by the header's canonical suffix (so "x-amz-meta-Foo-Bar" becomes
// "Foo-Bar"), and enforces the aggregate size ceiling S3 applies to
// user-supplied metadata.
func extractUserMetadata(h http.Header, limit int) (map[string]string, error) {
	out := map[string]string{}
	total := 0
	for k, v := range h {
		canon := textproto.CanonicalMIMEHeaderKey(k)
		if !strings.HasPrefix(canon, metaHeaderPrefix) {
			continue
		}
		name := strings.TrimPrefix(canon, metaHeaderPrefix)
		value := strings.Join(v, ",")
		total += len(name) + len(value)
		if total > limit {
			return nil, ErrorMessage(ErrMetadataTooLarge, "Your metadata headers exceed the maximum allowed metadata size.")
		}
		out[name] = value
	}
	return out, nil
}

func (g *Gateway) getObject(bucket, key string, versionID VersionID, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureBucketExists(bucket); err != nil {
		return err
	}

	status := g.caches.BucketVersioning(bucket)
	meta, _, err := g.readObjectMeta(bucket, key, versionID, status)
	if err != nil {
		return err
	}
	if meta.IsDeleteMarker {
		w.Header().Set("x-amz-version-id", meta.VersionID)
		w.Header().Set("x-amz-delete-marker", "true")
		return KeyNotFound(key)
	}

	if err := evaluateConditionalHeaders(r.Header, meta); err != nil {
		return err
	}

	var rnge *ObjectRange
	if h := r.Header.Get("Range"); h != "" {
		rnge, err = ParseRangeHeader(h, meta.Size)
		if err != nil {
			return err
		}
	}

	_, payload, err := g.readObjectBody(bucket, key, versionID, status, rnge)
	if err != nil {
		return err
	}

	writeObjectHeaders(w, meta)
	if rnge != nil {
		w.Header().Set("Content-Range", ContentRangeHeader(*rnge, meta.Size))
		w.Header().Set("Content-Length", strconv.FormatInt(rnge.End-rnge.Start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}

	_, err = w.Write(payload)
	return err
}

func (g *Gateway) headObject(bucket, key string, versionID VersionID, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureBucketExists(bucket); err != nil {
		return err
	}

	status := g.caches.BucketVersioning(bucket)
	meta, _, err := g.readObjectMeta(bucket, key, versionID, status)
	if err != nil {
		return err
	}
	if meta.IsDeleteMarker {
		w.Header().Set("x-amz-version-id", meta.VersionID)
		w.Header().Set("x-amz-delete-marker", "true")
		return KeyNotFound(key)
	}
	if err := evaluateConditionalHeaders(r.Header, meta); err != nil {
		return err
	}

	writeObjectHeaders(w, meta)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	return nil
}

func (g *Gateway) readObjectMeta(bucket, key string, versionID VersionID, status VersioningStatus) (ObjectMetadata, []byte, error) {
	if status == VersioningDisabled && versionID == "" {
		path, err := StoragePath(g.root, bucket, key)
		if err != nil {
			return ObjectMetadata{}, nil, err
		}
		meta, _, err := ReadObjectFile(path, false, nil)
		if err != nil {
			if os.IsNotExist(err) {
				return ObjectMetadata{}, nil, KeyNotFound(key)
			}
			return ObjectMetadata{}, nil, err
		}
		return meta, nil, nil
	}
	return ReadVersion(g.root, bucket, key, string(versionID), false, nil)
}

func (g *Gateway) readObjectBody(bucket, key string, versionID VersionID, status VersioningStatus, rnge *ObjectRange) (ObjectMetadata, []byte, error) {
	if status == VersioningDisabled && versionID == "" {
		path, err := StoragePath(g.root, bucket, key)
		if err != nil {
			return ObjectMetadata{}, nil, err
		}
		meta, payload, err := ReadObjectFile(path, true, rnge)
		if err != nil && os.IsNotExist(err) {
			return ObjectMetadata{}, nil, KeyNotFound(key)
		}
		return meta, payload, err
	}
	return ReadVersion(g.root, bucket, key, string(versionID), true, rnge)
}

func writeObjectHeaders(w http.ResponseWriter, meta ObjectMetadata) {
	for k, v := range meta.UserMetadata {
		w.Header().Set(metaHeaderPrefix+k, v)
	}
	if meta.VersionID != "" {
		w.Header().Set("x-amz-version-id", meta.VersionID)
	}
	w.Header().Set("ETag", meta.ETag)
	w.Header().Set("Content-Type", meta.ContentType)
	if t, err := datecodec.ParseISO8601Milli(meta.UpdatedAt); err == nil {
		w.Header().Set("Last-Modified", datecodec.FormatHTTPDate(t))
	}
	w.Header().Set("Accept-Ranges", "bytes")
}

// evaluateConditionalHeaders implements the standard If-Match/If-None-Match/
// If-Modified-Since/If-Unmodified-Since precedence: match headers are
// authoritative over the *-Since headers when both are present, mirroring
// RFC 7232 and the behavior S3 clients rely on.
func evaluateConditionalHeaders(h http.Header, meta ObjectMetadata) error {
	lastModified, _ := datecodec.ParseISO8601Milli(meta.UpdatedAt)

	if match := h.Get("If-Match"); match != "" {
		if !etagMatchesAny(match, meta.ETag) {
			return ErrorMessage(ErrPreconditionFailed, "At least one of the pre-conditions you specified did not hold")
		}
	} else if since := h.Get("If-Unmodified-Since"); since != "" {
		if t, ok := datecodec.ParseHTTPDate(since); ok && lastModified.After(t) {
			return ErrorMessage(ErrPreconditionFailed, "At least one of the pre-conditions you specified did not hold")
		}
	}

	if none := h.Get("If-None-Match"); none != "" {
		if etagMatchesAny(none, meta.ETag) {
			return ErrNotModifiedResponse
		}
	} else if since := h.Get("If-Modified-Since"); since != "" {
		if t, ok := datecodec.ParseHTTPDate(since); ok && !lastModified.After(t) {
			return ErrNotModifiedResponse
		}
	}
	return nil
}

func (g *Gateway) createObject(bucket, key string, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureBucketExists(bucket); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	if err := ValidateContentType(contentType); err != nil {
		return err
	}

	userMeta, err := extractUserMetadata(r.Header, 2*1024)
	if err != nil {
		return err
	}

	var size int64
	var reader io.Reader = r.Body

	if r.Header.Get("X-Amz-Content-Sha256") == "STREAMING-AWS4-HMAC-SHA256-PAYLOAD" {
		decoded := r.Header.Get("X-Amz-Decoded-Content-Length")
		size, err = strconv.ParseInt(decoded, 10, 64)
		if err != nil {
			return ErrorMessage(ErrInvalidArgument, "invalid X-Amz-Decoded-Content-Length")
		}
		if !g.caches.HasAnyKeys() {
			// signature.Verify did not run, so the body still carries its
			// aws-chunked framing.
			reader = signature.NewChunkDecoder(r.Body)
		}
	} else {
		cl := r.Header.Get("Content-Length")
		if cl == "" {
			return ErrorMessage(ErrMissingContentLength, "You must provide the Content-Length HTTP header.")
		}
		size, err = strconv.ParseInt(cl, 10, 64)
		if err != nil || size < 0 {
			return ErrorMessage(ErrInvalidArgument, "invalid Content-Length")
		}
	}

	payload, err := io.ReadAll(io.LimitReader(reader, size+1))
	if err != nil {
		return err
	}
	if int64(len(payload)) != size {
		return ErrorMessage(ErrIncompleteBody, "You did not provide the number of bytes specified by the Content-Length HTTP header.")
	}

	if declared := r.Header.Get("Content-MD5"); declared != "" {
		sum := md5.Sum(payload)
		if base64.StdEncoding.EncodeToString(sum[:]) != declared {
			return ErrorMessage(ErrBadDigest, "The Content-MD5 you specified did not match what we received.")
		}
	}

	etag := computeETag(payload)
	status := g.caches.BucketVersioning(bucket)
	versionID, err := WriteVersioned(g.root, bucket, key, status, contentType, userMeta, payload, etag, g.now())
	if err != nil {
		return err
	}

	if versionID != "" {
		w.Header().Set("x-amz-version-id", versionID)
	}
	w.Header().Set("ETag", etag)
	return nil
}

func computeETag(payload []byte) string {
	sum := md5.Sum(payload)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (g *Gateway) copyObject(bucket, key string, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureBucketExists(bucket); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	src, err := ParseCopySource(r.Header.Get("x-amz-copy-source"))
	if err != nil {
		return err
	}
	if err := g.ensureBucketExists(src.Bucket); err != nil {
		return err
	}

	directive := ParseMetadataDirective(r.Header.Get("x-amz-metadata-directive"))
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	if directive == MetadataDirectiveReplace {
		if err := ValidateContentType(contentType); err != nil {
			return err
		}
	}
	userMeta, err := extractUserMetadata(r.Header, 2*1024)
	if err != nil {
		return err
	}

	srcStatus := g.caches.BucketVersioning(src.Bucket)
	dstStatus := g.caches.BucketVersioning(bucket)

	result, versionID, err := CopyObject(g.root, src, srcStatus, bucket, key, dstStatus, directive, contentType, userMeta, r.Header, g.now())
	if err != nil {
		return err
	}

	if src.VersionID != "" {
		w.Header().Set("x-amz-copy-source-version-id", src.VersionID)
	}
	if versionID != "" {
		w.Header().Set("x-amz-version-id", versionID)
	}
	return g.xmlEncoder(w).Encode(result)
}

func (g *Gateway) deleteObject(bucket, key string, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureBucketExists(bucket); err != nil {
		return err
	}

	status := g.caches.BucketVersioning(bucket)
	switch status {
	case VersioningDisabled:
		if err := DeleteObjectFile(g.root, bucket, key); err != nil {
			return err
		}
		w.Header().Set("x-amz-delete-marker", "false")
	case VersioningSuspended:
		if err := DeleteVersion(g.root, bucket, key, NullVersionID); err != nil {
			return err
		}
		w.Header().Set("x-amz-delete-marker", "false")
	default: // Enabled
		versionID, err := CreateDeleteMarker(g.root, bucket, key, g.now())
		if err != nil {
			return err
		}
		w.Header().Set("x-amz-version-id", versionID)
		w.Header().Set("x-amz-delete-marker", "true")
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (g *Gateway) deleteObjectVersion(bucket, key string, versionID VersionID, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureBucketExists(bucket); err != nil {
		return err
	}

	meta, _, err := ReadVersion(g.root, bucket, key, string(versionID), false, nil)
	wasMarker := err == nil && meta.IsDeleteMarker

	if err := DeleteVersion(g.root, bucket, key, string(versionID)); err != nil {
		return err
	}

	w.Header().Set("x-amz-version-id", string(versionID))
	if wasMarker {
		w.Header().Set("x-amz-delete-marker", "true")
	} else {
		w.Header().Set("x-amz-delete-marker", "false")
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// deleteMulti implements POST /<bucket>?delete: a best-effort batch delete
// where an individual key's failure is reported in the response body rather
// than failing the whole request.
func (g *Gateway) deleteMulti(bucket string, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureBucketExists(bucket); err != nil {
		return err
	}

	var in DeleteRequest
	if err := g.xmlDecodeBody(r.Body, &in); err != nil {
		return ErrorMessage(ErrMalformedXML, "The XML you provided was not well-formed.")
	}

	status := g.caches.BucketVersioning(bucket)
	result := newMultiDeleteResult()

	for _, obj := range in.Objects {
		if obj.VersionID != "" {
			if err := DeleteVersion(g.root, bucket, obj.Key, obj.VersionID); err != nil {
				result.Error = append(result.Error, DeleteError{Key: obj.Key, Code: string(errorCodeOf(err)), Message: err.Error()})
				continue
			}
			if !in.Quiet {
				result.Deleted = append(result.Deleted, DeletedObject{Key: obj.Key, VersionID: obj.VersionID})
			}
			continue
		}

		var delErr error
		switch status {
		case VersioningDisabled:
			delErr = DeleteObjectFile(g.root, bucket, obj.Key)
		case VersioningSuspended:
			delErr = DeleteVersion(g.root, bucket, obj.Key, NullVersionID)
		default:
			_, delErr = CreateDeleteMarker(g.root, bucket, obj.Key, g.now())
		}
		if delErr != nil {
			result.Error = append(result.Error, DeleteError{Key: obj.Key, Code: string(errorCodeOf(delErr)), Message: delErr.Error()})
			continue
		}
		if !in.Quiet {
			result.Deleted = append(result.Deleted, DeletedObject{Key: obj.Key})
		}
	}

	return g.xmlEncoder(w).Encode(result)
}

func errorCodeOf(err error) ErrorCode {
	if e, ok := err.(Error); ok {
		return e.ErrorCode()
	}
	return ErrInternal
}

const maxBrowserUploadMemory = (1 << 20) * 24

// createObjectBrowserUpload implements POST /<bucket>, the multipart/form
// flow browsers use to upload directly to S3 from an HTML form.
func (g *Gateway) createObjectBrowserUpload(bucket string, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureBucketExists(bucket); err != nil {
		return err
	}

	if err := r.ParseMultipartForm(maxBrowserUploadMemory); err != nil {
		return ErrorMessage(ErrMalformedXML, "The request body is malformed.")
	}

	keys := r.MultipartForm.Value["key"]
	if len(keys) != 1 {
		return ErrorMessage(ErrInvalidArgument, "exactly one 'key' field is required")
	}
	key := keys[0]
	if err := ValidateKey(key); err != nil {
		return err
	}

	files := r.MultipartForm.File["file"]
	if len(files) != 1 {
		return ErrorMessage(ErrInvalidArgument, "exactly one 'file' field is required")
	}
	fh := files[0]

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer CheckClose(f, &err)

	payload, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	etag := computeETag(payload)
	status := g.caches.BucketVersioning(bucket)
	versionID, err := WriteVersioned(g.root, bucket, key, status, contentType, nil, payload, etag, g.now())
	if err != nil {
		return err
	}

	if versionID != "" {
		w.Header().Set("x-amz-version-id", versionID)
	}
	w.Header().Set("ETag", etag)
	return nil
}
