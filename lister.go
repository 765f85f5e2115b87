package alarik

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/achtungsoftware/alarik/datecodec"
	"github.com/ryszard/goskiplist/skiplist"
)

// ListPrefix is the prefix/delimiter pair a listing request filters and
// groups by.
type ListPrefix struct {
	Prefix    string
	Delimiter string
}

// ListPage bounds one page of a listing: everything strictly after Marker,
// up to MaxKeys entries.
type ListPage struct {
	Marker  string
	MaxKeys int64
}

// ObjectSummary is one plain object entry in a listing response.
type ObjectSummary struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ListResult is the outcome of ListBucket: the merged, budgeted page of
// objects and common prefixes, with pagination state for the next call.
type ListResult struct {
	Contents       []ObjectSummary
	CommonPrefixes []string
	IsTruncated    bool
	NextMarker     string
}

// ListBucket implements the Lister component. It walks the bucket's flat
// key space once, applying prefix/marker filtering and delimiter-based
// common-prefix grouping as it goes, collects the two resulting key
// streams (objects, prefixes) into goskiplist ordered maps, then performs
// a lexicographic merge of the two streams bounded by page.MaxKeys.
func ListBucket(root, bucket string, prefix ListPrefix, page ListPage) (ListResult, error) {
	objects := skiplist.NewStringMap()
	prefixes := skiplist.NewStringMap()

	root2 := bucketRoot(root, bucket)
	err := filepath.WalkDir(root2, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".obj") {
			return nil
		}
		rel, err := filepath.Rel(root2, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), ".obj")
		if strings.Contains(key, ".versions/") || strings.HasSuffix(key, ".versions") {
			return nil // version histories are not part of the plain listing
		}
		if !strings.HasPrefix(key, prefix.Prefix) {
			return nil
		}
		if key <= page.Marker {
			return nil
		}

		if len(prefix.Delimiter) == 1 {
			rest := key[len(prefix.Prefix):]
			if idx := strings.Index(rest, prefix.Delimiter); idx >= 0 {
				prefixes.Set(prefix.Prefix+rest[:idx+len(prefix.Delimiter)], struct{}{})
				return nil
			}
		}

		meta, _, rerr := ReadObjectFile(path, false, nil)
		if rerr != nil {
			return rerr
		}
		updated, _ := datecodec.ParseISO8601Milli(meta.UpdatedAt)
		objects.Set(key, ObjectSummary{
			Key:          key,
			Size:         meta.Size,
			ETag:         meta.ETag,
			LastModified: updated,
		})
		return nil
	})
	if err != nil {
		return ListResult{}, err
	}

	return mergeListing(objects, prefixes, page.MaxKeys), nil
}

func mergeListing(objects, prefixes *skiplist.SkipList, maxKeys int64) ListResult {
	oi := objects.Iterator()
	pi := prefixes.Iterator()
	hasO := oi.Next()
	hasP := pi.Next()

	var result ListResult
	var count int64
	var lastEmitted string

	for (hasO || hasP) && count < maxKeys {
		takeObject := hasO && (!hasP || oi.Key().(string) <= pi.Key().(string))

		if takeObject {
			result.Contents = append(result.Contents, oi.Value().(ObjectSummary))
			lastEmitted = oi.Key().(string)
			hasO = oi.Next()
		} else {
			result.CommonPrefixes = append(result.CommonPrefixes, pi.Key().(string))
			lastEmitted = pi.Key().(string)
			hasP = pi.Next()
		}
		count++
	}

	if hasO || hasP {
		result.IsTruncated = true
		result.NextMarker = lastEmitted
	}
	return result
}

// VersionListResult is the outcome of ListBucketVersionKeys: the merged,
// budgeted page of keys ListObjectVersions needs to expand, tagged by
// whether each one has a .versions history (and so needs ListAllVersions)
// or is a plain, never-versioned object (reported as a single synthetic
// "null" version).
type VersionListResult struct {
	Keys           []string
	VersionedKeys  map[string]bool
	CommonPrefixes []string
	IsTruncated    bool
	NextMarker     string
}

// ListBucketVersionKeys walks bucket's storage tree once, collecting every
// key ListObjectVersions must consider: both plain object records and keys
// that carry a .versions history. ListBucket deliberately skips .versions
// directories since a versioned key never has a flat .obj record once it
// has been written under Enabled/Suspended versioning, so it cannot be used
// to discover those keys; this is the dedicated walk for that case.
func ListBucketVersionKeys(root, bucket string, prefix ListPrefix, page ListPage) (VersionListResult, error) {
	keys := skiplist.NewStringMap()
	prefixes := skiplist.NewStringMap()
	versionedKeys := map[string]bool{}

	root2 := bucketRoot(root, bucket)
	err := filepath.WalkDir(root2, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		var key string
		var isVersioned bool
		switch {
		case d.IsDir() && strings.HasSuffix(path, ".versions"):
			rel, rerr := filepath.Rel(root2, path)
			if rerr != nil {
				return rerr
			}
			key = strings.TrimSuffix(filepath.ToSlash(rel), ".versions")
			isVersioned = true
		case !d.IsDir() && strings.HasSuffix(path, ".obj"):
			rel, rerr := filepath.Rel(root2, path)
			if rerr != nil {
				return rerr
			}
			key = strings.TrimSuffix(filepath.ToSlash(rel), ".obj")
		default:
			return nil
		}

		if !strings.HasPrefix(key, prefix.Prefix) {
			return nil
		}
		if key <= page.Marker {
			return nil
		}

		if len(prefix.Delimiter) == 1 {
			rest := key[len(prefix.Prefix):]
			if idx := strings.Index(rest, prefix.Delimiter); idx >= 0 {
				prefixes.Set(prefix.Prefix+rest[:idx+len(prefix.Delimiter)], struct{}{})
				if isVersioned {
					return fs.SkipDir
				}
				return nil
			}
		}

		keys.Set(key, struct{}{})
		if isVersioned {
			versionedKeys[key] = true
			return fs.SkipDir // don't descend into the version records themselves
		}
		return nil
	})
	if err != nil {
		return VersionListResult{}, err
	}

	ki := keys.Iterator()
	pi := prefixes.Iterator()
	hasK := ki.Next()
	hasP := pi.Next()

	var result VersionListResult
	var count int64
	var lastEmitted string

	for (hasK || hasP) && count < page.MaxKeys {
		takeKey := hasK && (!hasP || ki.Key().(string) <= pi.Key().(string))

		if takeKey {
			k := ki.Key().(string)
			result.Keys = append(result.Keys, k)
			lastEmitted = k
			hasK = ki.Next()
		} else {
			p := pi.Key().(string)
			result.CommonPrefixes = append(result.CommonPrefixes, p)
			lastEmitted = p
			hasP = pi.Next()
		}
		count++
	}

	if hasK || hasP {
		result.IsTruncated = true
		result.NextMarker = lastEmitted
	}
	result.VersionedKeys = versionedKeys
	return result, nil
}
