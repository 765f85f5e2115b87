package alarik

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCopySource(t *testing.T) {
	src, err := ParseCopySource("/my-bucket/path/to/key.txt")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", src.Bucket)
	assert.Equal(t, "path/to/key.txt", src.Key)
	assert.Empty(t, src.VersionID)

	src, err = ParseCopySource("my-bucket/key.txt?versionId=abc123")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", src.Bucket)
	assert.Equal(t, "key.txt", src.Key)
	assert.Equal(t, "abc123", src.VersionID)
}

func TestParseCopySourceRejectsMalformed(t *testing.T) {
	_, err := ParseCopySource("")
	assert.Error(t, err)
	_, err = ParseCopySource("/just-a-bucket")
	assert.Error(t, err)
}

func TestParseMetadataDirectiveDefaultsToCopy(t *testing.T) {
	assert.Equal(t, MetadataDirectiveCopy, ParseMetadataDirective(""))
	assert.Equal(t, MetadataDirectiveReplace, ParseMetadataDirective("REPLACE"))
	assert.Equal(t, MetadataDirectiveCopy, ParseMetadataDirective("COPY"))
}

func TestEvaluateCopyPreconditions(t *testing.T) {
	now := time.Now()
	h := http.Header{}
	h.Set("x-amz-copy-source-if-match", `"etag1"`)
	assert.NoError(t, EvaluateCopyPreconditions(h, `"etag1"`, now))

	h = http.Header{}
	h.Set("x-amz-copy-source-if-match", `"other"`)
	assert.Error(t, EvaluateCopyPreconditions(h, `"etag1"`, now))

	h = http.Header{}
	h.Set("x-amz-copy-source-if-none-match", `"etag1"`)
	assert.Error(t, EvaluateCopyPreconditions(h, `"etag1"`, now))
}

func TestCopyObjectWritesDestination(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	_, err := WriteVersioned(dir, "src", "key.txt", VersioningDisabled, "text/plain", map[string]string{"Foo": "bar"}, []byte("hello"), `"e1"`, now)
	require.NoError(t, err)

	result, versionID, err := CopyObject(dir, CopySource{Bucket: "src", Key: "key.txt"}, VersioningDisabled, "dst", "copied.txt", VersioningDisabled, MetadataDirectiveCopy, "", nil, http.Header{}, now)
	require.NoError(t, err)
	assert.Empty(t, versionID)
	assert.Equal(t, `"e1"`, result.ETag)

	meta, payload, err := ReadObjectFile(mustStoragePath(t, dir, "dst", "copied.txt"), true, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(payload))
	assert.Equal(t, "bar", meta.UserMetadata["Foo"])
}

func mustStoragePath(t *testing.T, root, bucket, key string) string {
	t.Helper()
	p, err := StoragePath(root, bucket, key)
	require.NoError(t, err)
	return p
}
