package alarik

import (
	"encoding/xml"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/achtungsoftware/alarik/signature"
)

// Gateway is the S3 request dispatcher: it owns the root storage
// directory, the AccountStore and AuthCaches, and routes incoming requests
// to the object/bucket/copy operations, shaping their responses the way
// real S3 does.
type Gateway struct {
	root string

	accounts AccountStore
	caches   *AuthCaches

	log        Logger
	timeSource func() time.Time

	requestID uint64
}

// NewGateway constructs a Gateway rooted at storageRoot (an existing,
// writable directory where every bucket's files will live).
func NewGateway(storageRoot string, caches *AuthCaches, opts ...Option) *Gateway {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	signature.SetUnsortedQueryFallback(cfg.unsortedQueryFallback)

	return &Gateway{
		root:       storageRoot,
		accounts:   cfg.accountStore,
		caches:     caches,
		log:        cfg.logger,
		timeSource: cfg.timeSource,
	}
}

func (g *Gateway) nextRequestID() uint64 {
	return atomic.AddUint64(&g.requestID, 1)
}

func (g *Gateway) now() time.Time {
	return g.timeSource()
}

// Server wraps the Gateway's routing handler with the authentication
// middleware every request passes through (clock skew is checked inside
// signature.Verify, not by a separate middleware).
func (g *Gateway) Server() http.Handler {
	var handler http.Handler = http.HandlerFunc(g.route)
	return g.authMiddleware(handler)
}

// authMiddleware rejects any request whose SigV4 signature doesn't verify
// against a known access key, stamping the resolved identity onto the
// request context for downstream ownership checks.
func (g *Gateway) authMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, rq *http.Request) {
		if !g.caches.HasAnyKeys() {
			handler.ServeHTTP(w, rq)
			return
		}

		result, errno := signature.Verify(rq)
		if errno != signature.ErrNone {
			g.log.Print(LogWarn, "access denied:", rq.RemoteAddr, "=>", rq.URL, "reason:", errno.String())
			apiErr := signature.GetAPIError(errno)
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(apiErr.HTTPStatusCode)
			_, _ = w.Write(signature.EncodeAPIErrorToResponse(apiErr))
			return
		}

		userID, _ := g.caches.UserForAccessKey(result.AccessKey)
		ctx := withCallerContext(rq.Context(), callerIdentity{AccessKey: result.AccessKey, UserID: userID})
		handler.ServeHTTP(w, rq.WithContext(ctx))
	})
}

func (g *Gateway) httpError(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	resp := ensureErrorResponse(err, requestID)
	if resp.ErrorCode() == ErrInternal {
		g.log.Print(LogErr, err)
	}
	EncodeErrorResponse(w, r, resp, requestID)
}

func (g *Gateway) xmlEncoder(w http.ResponseWriter) *xml.Encoder {
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc
}

func (g *Gateway) xmlDecodeBody(rdr io.ReadCloser, into interface{}) (err error) {
	defer CheckClose(rdr, &err)
	return xml.NewDecoder(rdr).Decode(into)
}

// CheckClose records a deferred Close's error into err, without clobbering
// an error the caller already produced.
func CheckClose(c io.Closer, err *error) {
	cerr := c.Close()
	if *err == nil {
		*err = cerr
	}
}

// route is the Gateway's sole entry point once a request has passed
// authentication. It splits the URL into bucket/key, dispatches on method
// plus the handful of subresource query parameters S3 overloads GET/PUT/
// POST with, and always renders the handler's returned error (if any)
// through httpError.
func (g *Gateway) route(w http.ResponseWriter, r *http.Request) {
	requestID := strconv.FormatUint(g.nextRequestID(), 10)
	w.Header().Set("x-amz-request-id", requestID)

	bucket, key := splitBucketKey(r.URL.Path)
	q := r.URL.Query()

	var err error
	switch {
	case bucket == "" && r.Method == http.MethodGet:
		err = g.listBuckets(w, r)
	case bucket == "":
		err = ErrorMessage(ErrMethodNotAllowed, "The specified method is not allowed against this resource.")

	case key == "" && r.Method == http.MethodPut && !q.Has("versioning"):
		err = g.createBucket(bucket, w, r)
	case key == "" && r.Method == http.MethodDelete:
		err = g.deleteBucket(bucket, w, r)
	case key == "" && r.Method == http.MethodHead:
		err = g.headBucket(bucket, w, r)
	case key == "" && r.Method == http.MethodGet && q.Has("location"):
		err = g.getBucketLocation(bucket, w, r)
	case key == "" && r.Method == http.MethodGet && q.Has("versioning"):
		err = g.getBucketVersioning(bucket, w, r)
	case key == "" && r.Method == http.MethodPut && q.Has("versioning"):
		err = g.putBucketVersioning(bucket, w, r)
	case key == "" && r.Method == http.MethodGet && q.Has("versions"):
		err = g.listBucketVersions(bucket, w, r)
	case key == "" && r.Method == http.MethodPost && q.Has("delete"):
		err = g.deleteMulti(bucket, w, r)
	case key == "" && r.Method == http.MethodGet:
		err = g.listBucket(bucket, w, r)
	case key == "" && r.Method == http.MethodPost:
		err = g.createObjectBrowserUpload(bucket, w, r)

	case r.Method == http.MethodPut && r.Header.Get("x-amz-copy-source") != "":
		err = g.copyObject(bucket, key, w, r)
	case r.Method == http.MethodPut:
		err = g.createObject(bucket, key, w, r)
	case r.Method == http.MethodGet:
		err = g.getObject(bucket, key, VersionID(q.Get("versionId")), w, r)
	case r.Method == http.MethodHead:
		err = g.headObject(bucket, key, VersionID(q.Get("versionId")), w, r)
	case r.Method == http.MethodDelete && q.Get("versionId") != "":
		err = g.deleteObjectVersion(bucket, key, VersionID(q.Get("versionId")), w, r)
	case r.Method == http.MethodDelete:
		err = g.deleteObject(bucket, key, w, r)

	default:
		err = ErrorMessage(ErrMethodNotAllowed, "The specified method is not allowed against this resource.")
	}

	if err != nil {
		g.httpError(w, r, requestID, err)
	}
}

// VersionID is an opaque, possibly-empty version identifier lifted from a
// versionId query parameter.
type VersionID string

func splitBucketKey(path string) (bucket, key string) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func (g *Gateway) ensureBucketExists(bucket string) error {
	if _, ok := g.accounts.BucketOwner(bucket); !ok {
		return BucketNotFound(bucket)
	}
	return nil
}

// ensureOwner checks both that bucket exists and that the caller on ctx is
// its recorded owner, returning AccessDenied on a mismatch. Used by the
// bucket operations that mutate or disclose bucket-level configuration
// (delete, versioning get/put); plain existence checks (HeadBucket,
// GetBucketLocation) stay on ensureBucketExists alone.
func (g *Gateway) ensureOwner(bucket string, r *http.Request) error {
	owner, ok := g.accounts.BucketOwner(bucket)
	if !ok {
		return BucketNotFound(bucket)
	}
	if caller := callerFromContext(r.Context()); caller.UserID != owner {
		return ResourceError(ErrAccessDenied, bucket)
	}
	return nil
}

func (g *Gateway) listBuckets(w http.ResponseWriter, r *http.Request) error {
	caller := callerFromContext(r.Context())
	records, err := g.accounts.ListBucketsForUser(caller.UserID)
	if err != nil {
		return err
	}

	infos := make([]BucketInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, BucketInfo{Name: rec.Name, CreationDate: NewISOTime(rec.CreatedAt)})
	}

	s := Storage{
		Xmlns:   xmlns,
		Owner:   defaultOwner,
		Buckets: Buckets{Bucket: infos},
	}
	return g.xmlEncoder(w).Encode(s)
}

func (g *Gateway) createBucket(bucket string, w http.ResponseWriter, r *http.Request) error {
	if err := ValidateBucketName(bucket); err != nil {
		return err
	}
	caller := callerFromContext(r.Context())
	if err := g.accounts.RecordBucketCreated(bucket, caller.UserID, g.now()); err != nil {
		return err
	}
	w.Header().Set("Location", "/"+bucket)
	w.WriteHeader(http.StatusOK)
	return nil
}

func (g *Gateway) deleteBucket(bucket string, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureOwner(bucket, r); err != nil {
		return err
	}

	hasObjects, err := HasAnyObject(g.root, bucket)
	if err != nil {
		return err
	}
	hasVersions, err := BucketHasAnyVersionHistory(g.root, bucket)
	if err != nil {
		return err
	}
	if hasObjects || hasVersions {
		return ResourceError(ErrBucketNotEmpty, bucket)
	}

	if err := DeleteBucketRoot(g.root, bucket); err != nil {
		return err
	}
	if err := g.accounts.RecordBucketDeleted(bucket); err != nil {
		return err
	}
	g.caches.ForgetBucket(bucket)

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (g *Gateway) headBucket(bucket string, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureBucketExists(bucket); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (g *Gateway) getBucketLocation(bucket string, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureBucketExists(bucket); err != nil {
		return err
	}
	return g.xmlEncoder(w).Encode(GetBucketLocation{Xmlns: xmlns})
}

func (g *Gateway) getBucketVersioning(bucket string, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureOwner(bucket, r); err != nil {
		return err
	}
	status := g.caches.BucketVersioning(bucket)
	return g.xmlEncoder(w).Encode(VersioningConfiguration{Xmlns: xmlns, Status: status})
}

func (g *Gateway) putBucketVersioning(bucket string, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureOwner(bucket, r); err != nil {
		return err
	}

	var cfg VersioningConfiguration
	if err := g.xmlDecodeBody(r.Body, &cfg); err != nil {
		return ErrorMessage(ErrMalformedXML, "The XML you provided was not well-formed.")
	}
	if cfg.Status != VersioningEnabled && cfg.Status != VersioningSuspended && cfg.Status != VersioningDisabled {
		return ErrorMessage(ErrInvalidArgument, "The versioning status you specified is not valid.")
	}

	g.caches.SetBucketVersioning(bucket, cfg.Status)
	w.WriteHeader(http.StatusOK)
	return nil
}
