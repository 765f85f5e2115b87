package alarik

import (
	"crypto/rand"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/achtungsoftware/alarik/datecodec"
	"github.com/achtungsoftware/alarik/hexcodec"
)

// VersioningStatus is a bucket's versioning configuration, as reported by
// GET ?versioning and accepted by PUT ?versioning.
type VersioningStatus string

const (
	VersioningDisabled  VersioningStatus = ""
	VersioningEnabled   VersioningStatus = "Enabled"
	VersioningSuspended VersioningStatus = "Suspended"
)

// NullVersionID is the version id S3 assigns to objects written while
// versioning is Suspended, and the id GoFakeS3-style listings mask in for
// objects written before versioning was ever enabled.
const NullVersionID = "null"

const latestPointerFile = ".latest"

// NewVersionID generates a 128-bit random version id, hex-encoded. No
// UUID-style library appears anywhere in the dependency set this module was
// built from, so this is a deliberate, narrow use of the standard library
// (see DESIGN.md).
func NewVersionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hexcodec.Encode(b[:]), nil
}

func versionFilePath(dir, versionID string) string {
	return filepath.Join(dir, versionID+".obj")
}

// WriteVersioned writes payload as a new version of bucket/key, honoring
// status:
//
//   - Disabled: writes the plain (non-versioned) object record directly;
//     no .versions directory is touched.
//   - Suspended: writes under the "null" version id, overwriting any
//     previous null version; other retained versions are kept, the previous
//     latest one only having its isLatest flag cleared.
//   - Enabled: mints a fresh random version id and installs it as latest.
//
// It returns the version id assigned ("" for Disabled).
func WriteVersioned(root, bucket, key string, status VersioningStatus, contentType string, userMeta map[string]string, payload []byte, etag string, now time.Time) (string, error) {
	if status == VersioningDisabled {
		path, err := StoragePath(root, bucket, key)
		if err != nil {
			return "", err
		}
		meta := ObjectMetadata{
			BucketName:   bucket,
			Key:          key,
			ContentType:  contentType,
			ETag:         etag,
			UserMetadata: userMeta,
			UpdatedAt:    datecodec.FormatISO8601Milli(now),
			IsLatest:     true,
		}
		return "", WriteObjectFile(path, meta, payload)
	}

	dir, err := VersionsDir(root, bucket, key)
	if err != nil {
		return "", err
	}

	versionID := NullVersionID
	if status == VersioningEnabled {
		versionID, err = NewVersionID()
		if err != nil {
			return "", err
		}
	}

	if oldLatest, latestErr := currentLatest(dir); latestErr == nil && oldLatest != versionID {
		if err := demoteLatest(dir, oldLatest); err != nil && !os.IsNotExist(err) {
			return "", err
		}
	}

	meta := ObjectMetadata{
		BucketName:   bucket,
		Key:          key,
		ContentType:  contentType,
		ETag:         etag,
		UserMetadata: userMeta,
		UpdatedAt:    datecodec.FormatISO8601Milli(now),
		VersionID:    versionID,
		IsLatest:     true,
	}
	if err := WriteObjectFile(versionFilePath(dir, versionID), meta, payload); err != nil {
		return "", err
	}
	if err := setLatestPointer(dir, versionID); err != nil {
		return "", err
	}
	return versionID, nil
}

func setLatestPointer(dir, versionID string) error {
	return WriteObjectFile(filepath.Join(dir, latestPointerFile), ObjectMetadata{VersionID: versionID}, nil)
}

// demoteLatest clears IsLatest on the version record currently installed as
// latest, so that at most one retained version ever carries isLatest:true on
// disk; it is rewritten in place before the new version takes over the
// .latest pointer.
func demoteLatest(dir, versionID string) error {
	meta, payload, err := ReadObjectFile(versionFilePath(dir, versionID), true, nil)
	if err != nil {
		return err
	}
	meta.IsLatest = false
	return WriteObjectFile(versionFilePath(dir, versionID), meta, payload)
}

// currentLatest resolves the .latest pointer, falling back to a scan for
// the newest updatedAt among retained versions if the pointer is missing or
// corrupt (e.g. the process crashed between writing a version and updating
// the pointer).
func currentLatest(dir string) (string, error) {
	meta, _, err := ReadObjectFile(filepath.Join(dir, latestPointerFile), false, nil)
	if err == nil {
		return meta.VersionID, nil
	}
	// pointer is missing or corrupt; recover by scanning.
	return recoverLatestByScan(dir)
}

func recoverLatestByScan(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var bestID, bestUpdated string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".obj") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".obj")
		meta, _, err := ReadObjectFile(filepath.Join(dir, e.Name()), false, nil)
		if err != nil {
			continue
		}
		if meta.UpdatedAt > bestUpdated {
			bestUpdated = meta.UpdatedAt
			bestID = id
		}
	}
	if bestID == "" {
		return "", os.ErrNotExist
	}
	return bestID, nil
}

// ReadVersion reads a specific version (or, if versionID is "", the
// current latest) of bucket/key. loadPayload/rnge behave as in
// ReadObjectFile.
func ReadVersion(root, bucket, key, versionID string, loadPayload bool, rnge *ObjectRange) (ObjectMetadata, []byte, error) {
	dir, err := VersionsDir(root, bucket, key)
	if err != nil {
		return ObjectMetadata{}, nil, err
	}

	if versionID == "" {
		versionID, err = currentLatest(dir)
		if err != nil {
			if os.IsNotExist(err) {
				// no version history: fall back to the plain object record.
				path, perr := StoragePath(root, bucket, key)
				if perr != nil {
					return ObjectMetadata{}, nil, perr
				}
				meta, payload, rerr := ReadObjectFile(path, loadPayload, rnge)
				if rerr != nil {
					if os.IsNotExist(rerr) {
						return ObjectMetadata{}, nil, KeyNotFound(key)
					}
					return ObjectMetadata{}, nil, rerr
				}
				return meta, payload, nil
			}
			return ObjectMetadata{}, nil, err
		}
	}

	meta, payload, err := ReadObjectFile(versionFilePath(dir, versionID), loadPayload, rnge)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectMetadata{}, nil, ErrorMessage(ErrNoSuchVersion, "The specified version does not exist.")
		}
		return ObjectMetadata{}, nil, err
	}
	return meta, payload, nil
}

// CreateDeleteMarker installs a delete marker as the new latest version of
// bucket/key (only meaningful when versioning is Enabled; Suspended
// deletion instead removes the null version directly, matching real S3).
func CreateDeleteMarker(root, bucket, key string, now time.Time) (string, error) {
	dir, err := VersionsDir(root, bucket, key)
	if err != nil {
		return "", err
	}
	versionID, err := NewVersionID()
	if err != nil {
		return "", err
	}
	if oldLatest, latestErr := currentLatest(dir); latestErr == nil {
		if err := demoteLatest(dir, oldLatest); err != nil && !os.IsNotExist(err) {
			return "", err
		}
	}
	meta := ObjectMetadata{
		BucketName:     bucket,
		Key:            key,
		UpdatedAt:      datecodec.FormatISO8601Milli(now),
		VersionID:      versionID,
		IsLatest:       true,
		IsDeleteMarker: true,
	}
	if err := WriteObjectFile(versionFilePath(dir, versionID), meta, nil); err != nil {
		return "", err
	}
	if err := setLatestPointer(dir, versionID); err != nil {
		return "", err
	}
	return versionID, nil
}

// DeleteVersion permanently removes a specific version record, and, if it
// was the latest, recomputes the pointer from what remains.
func DeleteVersion(root, bucket, key, versionID string) error {
	dir, err := VersionsDir(root, bucket, key)
	if err != nil {
		return err
	}

	latest, latestErr := currentLatest(dir)

	if err := os.Remove(versionFilePath(dir, versionID)); err != nil && !os.IsNotExist(err) {
		return err
	}

	if latestErr == nil && latest == versionID {
		next, err := recoverLatestByScan(dir)
		if err != nil {
			if os.IsNotExist(err) {
				os.Remove(filepath.Join(dir, latestPointerFile))
				return nil
			}
			return err
		}
		return setLatestPointer(dir, next)
	}
	return nil
}

// VersionSummary is one entry in a ListVersions response: either a real
// version record or a delete marker.
type VersionSummary struct {
	Key            string
	VersionID      string
	IsLatest       bool
	IsDeleteMarker bool
	Size           int64
	ETag           string
	LastModified   time.Time
}

// ListAllVersions returns every retained version of bucket/key, newest
// first. Ties in updatedAt (possible when multiple versions are written
// within the same millisecond) are broken by ascending lexicographic
// version id, giving a total order without relying on filesystem mtimes.
func ListAllVersions(root, bucket, key string) ([]VersionSummary, error) {
	dir, err := VersionsDir(root, bucket, key)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	latest, _ := currentLatest(dir)

	var out []VersionSummary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".obj") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".obj")
		meta, _, err := ReadObjectFile(filepath.Join(dir, e.Name()), false, nil)
		if err != nil {
			continue
		}
		updated, _ := datecodec.ParseISO8601Milli(meta.UpdatedAt)
		out = append(out, VersionSummary{
			Key:            key,
			VersionID:      id,
			IsLatest:       id == latest,
			IsDeleteMarker: meta.IsDeleteMarker,
			Size:           meta.Size,
			ETag:           meta.ETag,
			LastModified:   updated,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].LastModified.After(out[j].LastModified)
		}
		return out[i].VersionID < out[j].VersionID
	})
	return out, nil
}

// HasVersionsDir reports whether key has ever been written under
// versioning (Enabled or Suspended), i.e. whether it has a .versions
// directory alongside (or instead of) its flat object record.
func HasVersionsDir(root, bucket, key string) bool {
	dir, err := VersionsDir(root, bucket, key)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// BucketHasAnyVersionHistory reports whether bucket contains any
// .versions directory at all, so that a bucket holding only
// delete-marker-only version histories is still considered non-empty by
// DeleteBucket (matching S3: a bucket with version history is never
// "empty" even if every key's current version is a delete marker).
func BucketHasAnyVersionHistory(root, bucket string) (bool, error) {
	found := false
	err := filepath.WalkDir(bucketRoot(root, bucket), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() && strings.HasSuffix(path, ".versions") {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
