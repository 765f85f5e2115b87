package alarik

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadObjectFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, err := StoragePath(dir, "mybucket", "a/b/c.txt")
	require.NoError(t, err)

	meta := ObjectMetadata{
		BucketName:  "mybucket",
		Key:         "a/b/c.txt",
		ContentType: "text/plain",
		ETag:        `"abc123"`,
		UpdatedAt:   "2026-01-01T00:00:00.000Z",
	}
	require.NoError(t, WriteObjectFile(path, meta, []byte("hello world")))

	got, payload, err := ReadObjectFile(path, true, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(payload))
	assert.Equal(t, int64(len("hello world")), got.Size)
	assert.Equal(t, `"abc123"`, got.ETag)
}

func TestReadObjectFileRange(t *testing.T) {
	dir := t.TempDir()
	path, err := StoragePath(dir, "b", "key")
	require.NoError(t, err)
	require.NoError(t, WriteObjectFile(path, ObjectMetadata{}, []byte("0123456789")))

	_, payload, err := ReadObjectFile(path, true, &ObjectRange{Start: 2, End: 4})
	require.NoError(t, err)
	assert.Equal(t, "234", string(payload))
}

func TestReadObjectFileDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path, err := StoragePath(dir, "b", "key")
	require.NoError(t, err)
	require.NoError(t, WriteObjectFile(path, ObjectMetadata{}, []byte("hello")))

	// truncate the payload out from under the declared size.
	require.NoError(t, os.Truncate(path, 6))

	_, _, err = ReadObjectFile(path, true, nil)
	assert.Error(t, err)
}

func TestStoragePathConfinesTraversal(t *testing.T) {
	dir := t.TempDir()
	path, err := StoragePath(dir, "b", "../../etc/passwd")
	require.NoError(t, err)
	assert.Contains(t, path, bucketRoot(dir, "b"))
}

func TestHasAnyObject(t *testing.T) {
	dir := t.TempDir()
	has, err := HasAnyObject(dir, "empty-bucket")
	require.NoError(t, err)
	assert.False(t, has)

	path, err := StoragePath(dir, "b", "k")
	require.NoError(t, err)
	require.NoError(t, WriteObjectFile(path, ObjectMetadata{}, []byte("x")))

	has, err = HasAnyObject(dir, "b")
	require.NoError(t, err)
	assert.True(t, has)
}
