package alarik

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putPlain(t *testing.T, root, bucket, key string) {
	t.Helper()
	_, err := WriteVersioned(root, bucket, key, VersioningDisabled, "text/plain", nil, []byte(key), `"`+key+`"`, time.Now())
	require.NoError(t, err)
}

func TestListBucketGroupsCommonPrefixes(t *testing.T) {
	dir := t.TempDir()
	putPlain(t, dir, "b", "photos/2024/a.jpg")
	putPlain(t, dir, "b", "photos/2024/b.jpg")
	putPlain(t, dir, "b", "photos/2025/c.jpg")
	putPlain(t, dir, "b", "readme.txt")

	result, err := ListBucket(dir, "b", ListPrefix{Prefix: "photos/", Delimiter: "/"}, ListPage{MaxKeys: 100})
	require.NoError(t, err)
	assert.Empty(t, result.Contents)
	assert.ElementsMatch(t, []string{"photos/2024/", "photos/2025/"}, result.CommonPrefixes)
}

func TestListBucketPaginates(t *testing.T) {
	dir := t.TempDir()
	for _, k := range []string{"a", "b", "c", "d"} {
		putPlain(t, dir, "b", k)
	}

	page1, err := ListBucket(dir, "b", ListPrefix{}, ListPage{MaxKeys: 2})
	require.NoError(t, err)
	require.Len(t, page1.Contents, 2)
	assert.True(t, page1.IsTruncated)

	page2, err := ListBucket(dir, "b", ListPrefix{}, ListPage{MaxKeys: 2, Marker: page1.NextMarker})
	require.NoError(t, err)
	assert.False(t, page2.IsTruncated)
	assert.Len(t, page2.Contents, 2)
}

func TestListBucketEmpty(t *testing.T) {
	dir := t.TempDir()
	result, err := ListBucket(dir, "nonexistent", ListPrefix{}, ListPage{MaxKeys: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Contents)
	assert.False(t, result.IsTruncated)
}
