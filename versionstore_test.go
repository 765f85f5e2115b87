package alarik

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteVersionedDisabled(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	versionID, err := WriteVersioned(dir, "b", "k", VersioningDisabled, "text/plain", nil, []byte("v1"), `"e1"`, now)
	require.NoError(t, err)
	assert.Empty(t, versionID)

	meta, payload, err := ReadVersion(dir, "b", "k", "", true, nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(payload))
	assert.Equal(t, `"e1"`, meta.ETag)
}

func TestWriteVersionedEnabledTracksLatest(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	v1, err := WriteVersioned(dir, "b", "k", VersioningEnabled, "text/plain", nil, []byte("v1"), `"e1"`, now)
	require.NoError(t, err)
	v2, err := WriteVersioned(dir, "b", "k", VersioningEnabled, "text/plain", nil, []byte("v2"), `"e2"`, now.Add(time.Second))
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	meta, payload, err := ReadVersion(dir, "b", "k", "", true, nil)
	require.NoError(t, err)
	assert.Equal(t, v2, meta.VersionID)
	assert.Equal(t, "v2", string(payload))

	_, payload, err = ReadVersion(dir, "b", "k", v1, true, nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(payload))
}

func TestWriteVersionedSuspendedUsesNullID(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	versionID, err := WriteVersioned(dir, "b", "k", VersioningSuspended, "text/plain", nil, []byte("v1"), `"e1"`, now)
	require.NoError(t, err)
	assert.Equal(t, NullVersionID, versionID)

	versionID, err = WriteVersioned(dir, "b", "k", VersioningSuspended, "text/plain", nil, []byte("v2"), `"e2"`, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, NullVersionID, versionID)

	_, payload, err := ReadVersion(dir, "b", "k", "", true, nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(payload))
}

func TestCreateDeleteMarkerBecomesLatest(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	_, err := WriteVersioned(dir, "b", "k", VersioningEnabled, "text/plain", nil, []byte("v1"), `"e1"`, now)
	require.NoError(t, err)

	markerID, err := CreateDeleteMarker(dir, "b", "k", now.Add(time.Second))
	require.NoError(t, err)

	meta, _, err := ReadVersion(dir, "b", "k", "", false, nil)
	require.NoError(t, err)
	assert.True(t, meta.IsDeleteMarker)
	assert.Equal(t, markerID, meta.VersionID)
}

func TestDeleteVersionRecoversLatestPointer(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	v1, err := WriteVersioned(dir, "b", "k", VersioningEnabled, "text/plain", nil, []byte("v1"), `"e1"`, now)
	require.NoError(t, err)
	v2, err := WriteVersioned(dir, "b", "k", VersioningEnabled, "text/plain", nil, []byte("v2"), `"e2"`, now.Add(time.Second))
	require.NoError(t, err)

	require.NoError(t, DeleteVersion(dir, "b", "k", v2))

	meta, _, err := ReadVersion(dir, "b", "k", "", false, nil)
	require.NoError(t, err)
	assert.Equal(t, v1, meta.VersionID)
}

func TestListAllVersionsOrdersNewestFirstWithTieBreak(t *testing.T) {
	dir := t.TempDir()
	sameInstant := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := WriteVersioned(dir, "b", "k", VersioningEnabled, "text/plain", nil, []byte("a"), `"ea"`, sameInstant)
	require.NoError(t, err)
	_, err = WriteVersioned(dir, "b", "k", VersioningEnabled, "text/plain", nil, []byte("b"), `"eb"`, sameInstant)
	require.NoError(t, err)

	versions, err := ListAllVersions(dir, "b", "k")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.True(t, versions[0].VersionID < versions[1].VersionID, "ties should break by ascending version id")
}

func TestBucketHasAnyVersionHistory(t *testing.T) {
	dir := t.TempDir()
	has, err := BucketHasAnyVersionHistory(dir, "b")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = WriteVersioned(dir, "b", "k", VersioningEnabled, "text/plain", nil, []byte("a"), `"ea"`, time.Now())
	require.NoError(t, err)

	has, err = BucketHasAnyVersionHistory(dir, "b")
	require.NoError(t, err)
	assert.True(t, has)
}
