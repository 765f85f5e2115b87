package alarik

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"

	"github.com/achtungsoftware/alarik/datecodec"
)

const defaultMaxKeys = 1000

func prefixFromQuery(q url.Values) ListPrefix {
	return ListPrefix{Prefix: q.Get("prefix"), Delimiter: q.Get("delimiter")}
}

func pageFromQuery(q url.Values) (ListPage, error) {
	maxKeys := int64(defaultMaxKeys)
	if raw := q.Get("max-keys"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return ListPage{}, ErrorMessage(ErrInvalidArgument, "max-keys must be a non-negative integer")
		}
		if n < maxKeys {
			maxKeys = n
		}
	}

	marker := q.Get("marker")
	if marker == "" {
		// List Objects V2 uses either continuation-token (an opaque,
		// base64-encoded NextMarker we handed back ourselves) or start-after.
		if tok := q.Get("continuation-token"); tok != "" {
			if decoded, err := base64.URLEncoding.DecodeString(tok); err == nil {
				marker = string(decoded)
			}
		} else {
			marker = q.Get("start-after")
		}
	}

	return ListPage{Marker: marker, MaxKeys: maxKeys}, nil
}

// listBucket implements GET /<bucket>, handling both the List Objects V1
// and V2 response shapes (selected by list-type=2) the way S3 overloads a
// single verb+path across two wire formats.
func (g *Gateway) listBucket(bucket string, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureBucketExists(bucket); err != nil {
		return err
	}

	q := r.URL.Query()
	prefix := prefixFromQuery(q)
	page, err := pageFromQuery(q)
	if err != nil {
		return err
	}
	isV2 := q.Get("list-type") == "2"

	result, err := ListBucket(g.root, bucket, prefix, page)
	if err != nil {
		return err
	}

	contents := make([]Content, 0, len(result.Contents))
	for _, o := range result.Contents {
		contents = append(contents, Content{
			Key:          o.Key,
			LastModified: NewISOTime(o.LastModified),
			ETag:         o.ETag,
			Size:         o.Size,
			StorageClass: "STANDARD",
			Owner:        defaultOwner,
		})
	}
	prefixes := make([]CommonPrefix, 0, len(result.CommonPrefixes))
	for _, p := range result.CommonPrefixes {
		prefixes = append(prefixes, CommonPrefix{Prefix: p})
	}

	base := ListBucketResultBase{
		Xmlns:          xmlns,
		Name:           bucket,
		Prefix:         prefix.Prefix,
		Delimiter:      prefix.Delimiter,
		MaxKeys:        page.MaxKeys,
		IsTruncated:    result.IsTruncated,
		Contents:       contents,
		CommonPrefixes: prefixes,
	}

	if !isV2 {
		resp := ListBucketResult{ListBucketResultBase: base, Marker: page.Marker}
		if len(prefix.Delimiter) == 1 {
			resp.NextMarker = result.NextMarker
		}
		return g.xmlEncoder(w).Encode(resp)
	}

	resp := ListBucketResultV2{
		ListBucketResultBase: base,
		KeyCount:              int64(len(contents) + len(prefixes)),
		StartAfter:            q.Get("start-after"),
		ContinuationToken:     q.Get("continuation-token"),
	}
	if result.NextMarker != "" {
		resp.NextContinuationToken = base64.URLEncoding.EncodeToString([]byte(result.NextMarker))
	}
	if _, ok := q["fetch-owner"]; !ok {
		for i := range resp.Contents {
			resp.Contents[i].Owner = nil
		}
	}
	return g.xmlEncoder(w).Encode(resp)
}

// listBucketVersions implements GET /<bucket>?versions. Unlike listBucket,
// version listing is scoped by key rather than by a flat walk of the whole
// bucket's keyspace: real S3 paginates by (key, version-id) pairs across
// the entire bucket, but alarik's on-disk layout keys version history per
// object, so this walks for every key with either a plain object record or
// a .versions history (ListBucketVersionKeys, which — unlike ListBucket —
// does not skip .versions directories) and expands each key's version
// history in turn.
func (g *Gateway) listBucketVersions(bucket string, w http.ResponseWriter, r *http.Request) error {
	if err := g.ensureBucketExists(bucket); err != nil {
		return err
	}

	q := r.URL.Query()
	prefix := prefixFromQuery(q)
	page, err := pageFromQuery(q)
	if err != nil {
		return err
	}

	listing, err := ListBucketVersionKeys(g.root, bucket, prefix, page)
	if err != nil {
		return err
	}

	var items []VersionItem
	for _, key := range listing.Keys {
		if !listing.VersionedKeys[key] {
			// never versioned: synthesize a single "null" version entry
			// from the plain object record.
			path, perr := StoragePath(g.root, bucket, key)
			if perr != nil {
				return perr
			}
			meta, _, rerr := ReadObjectFile(path, false, nil)
			if rerr != nil {
				return rerr
			}
			updated, _ := datecodec.ParseISO8601Milli(meta.UpdatedAt)
			items = append(items, &Version{
				Key:          key,
				VersionID:    NullVersionID,
				IsLatest:     true,
				LastModified: NewISOTime(updated),
				ETag:         meta.ETag,
				Size:         meta.Size,
				StorageClass: "STANDARD",
				Owner:        defaultOwner,
			})
			continue
		}

		versions, err := ListAllVersions(g.root, bucket, key)
		if err != nil {
			return err
		}
		for _, v := range versions {
			if v.IsDeleteMarker {
				items = append(items, &DeleteMarker{
					Key:          v.Key,
					VersionID:    v.VersionID,
					IsLatest:     v.IsLatest,
					LastModified: NewISOTime(v.LastModified),
					Owner:        defaultOwner,
				})
			} else {
				items = append(items, &Version{
					Key:          v.Key,
					VersionID:    v.VersionID,
					IsLatest:     v.IsLatest,
					LastModified: NewISOTime(v.LastModified),
					ETag:         v.ETag,
					Size:         v.Size,
					StorageClass: "STANDARD",
					Owner:        defaultOwner,
				})
			}
		}
	}

	prefixes := make([]CommonPrefix, 0, len(listing.CommonPrefixes))
	for _, p := range listing.CommonPrefixes {
		prefixes = append(prefixes, CommonPrefix{Prefix: p})
	}

	resp := ListBucketVersionsResult{
		Xmlns:           xmlns,
		Name:            bucket,
		Prefix:          prefix.Prefix,
		Delimiter:       prefix.Delimiter,
		KeyMarker:       page.Marker,
		VersionIDMarker: q.Get("version-id-marker"),
		MaxKeys:         page.MaxKeys,
		IsTruncated:     listing.IsTruncated,
		CommonPrefixes:  prefixes,
		Items:           items,
	}
	if listing.IsTruncated {
		resp.NextKeyMarker = listing.NextMarker
	}
	return g.xmlEncoder(w).Encode(resp)
}
