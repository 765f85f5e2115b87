package alarik

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const defaultContentType = "application/octet-stream"

// ObjectMetadata is the JSON document stored alongside an object's payload
// in every .obj record, whether it's a bucket's plain object or one frozen
// inside a key's .versions directory.
type ObjectMetadata struct {
	BucketName     string            `json:"bucketName"`
	Key            string            `json:"key"`
	Size           int64             `json:"size"`
	ContentType    string            `json:"contentType"`
	ETag           string            `json:"etag"`
	UserMetadata   map[string]string `json:"metadata,omitempty"`
	UpdatedAt      string            `json:"updatedAt"`
	VersionID      string            `json:"versionId,omitempty"`
	IsLatest       bool              `json:"isLatest,omitempty"`
	IsDeleteMarker bool              `json:"isDeleteMarker,omitempty"`
}

// ObjectRange is an inclusive byte range, already clamped to a known
// object size.
type ObjectRange struct {
	Start, End int64
}

// sanitizeKey strips ".." substrings from every '/'-separated segment of
// key, a single non-recursive pass per segment — enough to deny path
// traversal without trying to be a general path canonicalizer.
func sanitizeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = strings.ReplaceAll(s, "..", "")
	}
	return strings.Join(segments, "/")
}

func bucketRoot(root, bucket string) string {
	return filepath.Join(root, "buckets", url.PathEscape(bucket))
}

// StoragePath maps a (bucket, key) pair to the on-disk path of its .obj
// record, sanitizing the key and then verifying, as defense in depth, that
// the resulting path did not escape the bucket's root directory.
func StoragePath(root, bucket, key string) (string, error) {
	root2 := bucketRoot(root, bucket)
	safeKey := sanitizeKey(key)
	full := filepath.Join(root2, filepath.FromSlash(safeKey)+".obj")

	cleanRoot := filepath.Clean(root2) + string(filepath.Separator)
	if !strings.HasPrefix(filepath.Clean(full)+string(filepath.Separator), cleanRoot) {
		return "", ErrorMessage(ErrInvalidArgument, "invalid key")
	}
	return full, nil
}

// VersionsDir maps a (bucket, key) pair to the directory holding its
// version records and .latest pointer.
func VersionsDir(root, bucket, key string) (string, error) {
	root2 := bucketRoot(root, bucket)
	safeKey := sanitizeKey(key)
	dir := filepath.Join(root2, filepath.FromSlash(safeKey)+".versions")

	cleanRoot := filepath.Clean(root2) + string(filepath.Separator)
	if !strings.HasPrefix(filepath.Clean(dir)+string(filepath.Separator), cleanRoot) {
		return "", ErrorMessage(ErrInvalidArgument, "invalid key")
	}
	return dir, nil
}

// WriteObjectFile serializes meta and payload into the on-disk record
// format ([4-byte BE length][metadata JSON][payload]), installing it
// atomically at path via a sibling temp file, fsync, then rename.
func WriteObjectFile(path string, meta ObjectMetadata, payload []byte) error {
	if meta.ContentType == "" {
		meta.ContentType = defaultContentType
	}
	meta.Size = int64(len(payload))

	body, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	writeErr := writeObjectRecord(tmp, body, payload)
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpPath)
		return writeErr
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func writeObjectRecord(f *os.File, meta, payload []byte) error {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(meta)))
	if _, err := f.Write(lenPrefix[:]); err != nil {
		return err
	}
	if _, err := f.Write(meta); err != nil {
		return err
	}
	if _, err := f.Write(payload); err != nil {
		return err
	}
	return f.Sync()
}

var errCorrupt = ErrorMessage(ErrInternal, "object record is corrupt")

// ReadObjectFile reads the metadata and, if loadPayload is set, the payload
// (or a byte range of it) from the record at path.
func ReadObjectFile(path string, loadPayload bool, rnge *ObjectRange) (ObjectMetadata, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return ObjectMetadata{}, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ObjectMetadata{}, nil, err
	}
	size := info.Size()

	var lenPrefix [4]byte
	if _, err := io.ReadFull(f, lenPrefix[:]); err != nil {
		return ObjectMetadata{}, nil, errCorrupt
	}
	metaLen := int64(binary.BigEndian.Uint32(lenPrefix[:]))
	if metaLen < 0 || metaLen > size-4 {
		return ObjectMetadata{}, nil, errCorrupt
	}

	metaBuf := make([]byte, metaLen)
	if _, err := io.ReadFull(f, metaBuf); err != nil {
		return ObjectMetadata{}, nil, errCorrupt
	}

	var meta ObjectMetadata
	if err := json.Unmarshal(metaBuf, &meta); err != nil {
		return ObjectMetadata{}, nil, errCorrupt
	}

	payloadOffset := int64(4) + metaLen
	if size-payloadOffset != meta.Size {
		return ObjectMetadata{}, nil, errCorrupt
	}

	if !loadPayload {
		return meta, nil, nil
	}

	if rnge != nil {
		if rnge.Start < 0 || rnge.End < rnge.Start || rnge.End >= meta.Size {
			return ObjectMetadata{}, nil, ErrorMessage(ErrInvalidArgument, "invalid range")
		}
		if _, err := f.Seek(payloadOffset+rnge.Start, io.SeekStart); err != nil {
			return ObjectMetadata{}, nil, err
		}
		buf := make([]byte, rnge.End-rnge.Start+1)
		if _, err := io.ReadFull(f, buf); err != nil {
			return ObjectMetadata{}, nil, err
		}
		return meta, buf, nil
	}

	if _, err := f.Seek(payloadOffset, io.SeekStart); err != nil {
		return ObjectMetadata{}, nil, err
	}
	payload, err := io.ReadAll(f)
	if err != nil {
		return ObjectMetadata{}, nil, err
	}
	return meta, payload, nil
}

// KeyExists reports whether bucket/key has a plain (non-versioned) object
// record on disk.
func KeyExists(root, bucket, key string) (bool, error) {
	path, err := StoragePath(root, bucket, key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// HasAnyObject reports whether bucket contains at least one object record,
// used to decide whether DeleteBucket may proceed.
func HasAnyObject(root, bucket string) (bool, error) {
	found := false
	err := filepath.WalkDir(bucketRoot(root, bucket), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".obj") {
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

// DeleteObjectFile removes the plain object record for bucket/key, if any.
func DeleteObjectFile(root, bucket, key string) error {
	path, err := StoragePath(root, bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DeleteBucketRoot removes an entire (assumed-empty) bucket's directory
// tree.
func DeleteBucketRoot(root, bucket string) error {
	return os.RemoveAll(bucketRoot(root, bucket))
}
