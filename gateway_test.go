package alarik

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	dir := t.TempDir()
	caches := NewAuthCaches()
	return NewGateway(dir, caches, WithTimeSource(func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
}

func mustCreateBucket(t *testing.T, gw *Gateway, bucket string) {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/"+bucket, nil)
	gw.Server().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestGatewayBucketLifecycle(t *testing.T) {
	gw := newTestGateway(t)
	mustCreateBucket(t, gw, "bucket-one")

	rr := httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, httptest.NewRequest(http.MethodHead, "/bucket-one", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/bucket-one", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, httptest.NewRequest(http.MethodHead, "/bucket-one", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGatewayPutGetObject(t *testing.T) {
	gw := newTestGateway(t)
	mustCreateBucket(t, gw, "b")

	body := []byte("hello, object store")
	put := httptest.NewRequest(http.MethodPut, "/b/greeting.txt", bytes.NewReader(body))
	put.Header.Set("Content-Type", "text/plain")
	put.ContentLength = int64(len(body))
	put.Header.Set("Content-Length", "19")
	rr := httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, put)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	etag := rr.Header().Get("ETag")
	require.NotEmpty(t, etag)

	get := httptest.NewRequest(http.MethodGet, "/b/greeting.txt", nil)
	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, get)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, body, rr.Body.Bytes())
	assert.Equal(t, etag, rr.Header().Get("ETag"))
}

func TestGatewayGetObjectRange(t *testing.T) {
	gw := newTestGateway(t)
	mustCreateBucket(t, gw, "b")

	body := []byte("0123456789")
	put := httptest.NewRequest(http.MethodPut, "/b/k", bytes.NewReader(body))
	put.Header.Set("Content-Length", "10")
	rr := httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, put)
	require.Equal(t, http.StatusOK, rr.Code)

	get := httptest.NewRequest(http.MethodGet, "/b/k", nil)
	get.Header.Set("Range", "bytes=2-4")
	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, get)
	assert.Equal(t, http.StatusPartialContent, rr.Code)
	assert.Equal(t, "234", rr.Body.String())
	assert.Equal(t, "bytes 2-4/10", rr.Header().Get("Content-Range"))
}

func TestGatewayVersioningLifecycle(t *testing.T) {
	gw := newTestGateway(t)
	mustCreateBucket(t, gw, "b")

	putVersioning := httptest.NewRequest(http.MethodPut, "/b?versioning", bytes.NewReader(
		[]byte(`<VersioningConfiguration><Status>Enabled</Status></VersioningConfiguration>`)))
	rr := httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, putVersioning)
	require.Equal(t, http.StatusOK, rr.Code)

	put1 := httptest.NewRequest(http.MethodPut, "/b/k", bytes.NewReader([]byte("v1")))
	put1.Header.Set("Content-Length", "2")
	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, put1)
	require.Equal(t, http.StatusOK, rr.Code)
	v1 := rr.Header().Get("x-amz-version-id")
	require.NotEmpty(t, v1)

	put2 := httptest.NewRequest(http.MethodPut, "/b/k", bytes.NewReader([]byte("v2")))
	put2.Header.Set("Content-Length", "2")
	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, put2)
	require.Equal(t, http.StatusOK, rr.Code)
	v2 := rr.Header().Get("x-amz-version-id")
	require.NotEmpty(t, v2)
	assert.NotEqual(t, v1, v2)

	getOld := httptest.NewRequest(http.MethodGet, "/b/k?versionId="+v1, nil)
	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, getOld)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "v1", rr.Body.String())

	del := httptest.NewRequest(http.MethodDelete, "/b/k", nil)
	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, del)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "true", rr.Header().Get("x-amz-delete-marker"))

	getAfterDelete := httptest.NewRequest(http.MethodGet, "/b/k", nil)
	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, getAfterDelete)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	getOldStillThere := httptest.NewRequest(http.MethodGet, "/b/k?versionId="+v1, nil)
	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, getOldStillThere)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGatewayConditionalGetIfNoneMatch(t *testing.T) {
	gw := newTestGateway(t)
	mustCreateBucket(t, gw, "b")

	put := httptest.NewRequest(http.MethodPut, "/b/k", bytes.NewReader([]byte("x")))
	put.Header.Set("Content-Length", "1")
	rr := httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, put)
	etag := rr.Header().Get("ETag")

	get := httptest.NewRequest(http.MethodGet, "/b/k", nil)
	get.Header.Set("If-None-Match", etag)
	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, get)
	assert.Equal(t, http.StatusNotModified, rr.Code)
}

func TestGatewayCopyObject(t *testing.T) {
	gw := newTestGateway(t)
	mustCreateBucket(t, gw, "src")
	mustCreateBucket(t, gw, "dst")

	put := httptest.NewRequest(http.MethodPut, "/src/k", bytes.NewReader([]byte("copy-me")))
	put.Header.Set("Content-Length", "7")
	rr := httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, put)
	require.Equal(t, http.StatusOK, rr.Code)

	copyReq := httptest.NewRequest(http.MethodPut, "/dst/copied", nil)
	copyReq.Header.Set("x-amz-copy-source", "/src/k")
	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, copyReq)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	get := httptest.NewRequest(http.MethodGet, "/dst/copied", nil)
	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, get)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "copy-me", rr.Body.String())
}

func TestGatewayListBucketWithDelimiter(t *testing.T) {
	gw := newTestGateway(t)
	mustCreateBucket(t, gw, "b")

	for _, key := range []string{"dir/a.txt", "dir/b.txt", "top.txt"} {
		put := httptest.NewRequest(http.MethodPut, "/b/"+key, bytes.NewReader([]byte("x")))
		put.Header.Set("Content-Length", "1")
		rr := httptest.NewRecorder()
		gw.Server().ServeHTTP(rr, put)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	list := httptest.NewRequest(http.MethodGet, "/b?delimiter=/", nil)
	rr := httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, list)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<CommonPrefixes>")
	assert.Contains(t, rr.Body.String(), "dir/")
	assert.Contains(t, rr.Body.String(), "top.txt")
}

func TestGatewayDeleteNonEmptyBucketFails(t *testing.T) {
	gw := newTestGateway(t)
	mustCreateBucket(t, gw, "b")

	put := httptest.NewRequest(http.MethodPut, "/b/k", bytes.NewReader([]byte("x")))
	put.Header.Set("Content-Length", "1")
	rr := httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, put)
	require.Equal(t, http.StatusOK, rr.Code)

	del := httptest.NewRequest(http.MethodDelete, "/b", nil)
	rr = httptest.NewRecorder()
	gw.Server().ServeHTTP(rr, del)
	assert.Equal(t, http.StatusConflict, rr.Code)
}
