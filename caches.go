package alarik

import (
	"sync"

	"github.com/achtungsoftware/alarik/signature"
	"github.com/ryszard/goskiplist/skiplist"
)

// AuthCaches holds the in-memory projections the gateway consults on every
// request: which access keys exist and who they belong to, and each
// bucket's versioning status. The access-key secret itself is owned by the
// signature package (via StoreKeys/ReloadKeys); AuthCaches keeps the
// identity side of that relationship plus the ordered bucket projection
// admin tooling wants to enumerate.
type AuthCaches struct {
	mu sync.RWMutex

	secrets     map[string]string // access key -> secret key
	accessUsers map[string]string // access key -> user id

	// bucketVersioning is a skiplist rather than a plain map because admin
	// listing (e.g. a status dump across every bucket) wants a stable,
	// ordered walk; point lookups still go through Get.
	bucketVersioning *skiplist.SkipList
}

// NewAuthCaches returns an empty AuthCaches.
func NewAuthCaches() *AuthCaches {
	return &AuthCaches{
		secrets:          map[string]string{},
		accessUsers:      map[string]string{},
		bucketVersioning: skiplist.NewStringMap(),
	}
}

// SetKey registers accessKey as belonging to userID with the given secret,
// updating both this cache's identity projection and the signature
// package's credential store.
func (c *AuthCaches) SetKey(accessKey, secret, userID string) {
	c.mu.Lock()
	c.secrets[accessKey] = secret
	c.accessUsers[accessKey] = userID
	snapshot := make(map[string]string, len(c.secrets))
	for k, v := range c.secrets {
		snapshot[k] = v
	}
	c.mu.Unlock()

	signature.StoreKeys(map[string]string{accessKey: secret})
}

// RemoveKey revokes accessKey everywhere.
func (c *AuthCaches) RemoveKey(accessKey string) {
	c.mu.Lock()
	delete(c.secrets, accessKey)
	delete(c.accessUsers, accessKey)
	snapshot := make(map[string]string, len(c.secrets))
	for k, v := range c.secrets {
		snapshot[k] = v
	}
	c.mu.Unlock()

	signature.ReloadKeys(snapshot)
}

// HasAnyKeys reports whether any access key has been registered. A Gateway
// with no registered keys runs open (no signature verification demanded),
// the same escape hatch gofakes3 itself offers for local/dev use.
func (c *AuthCaches) HasAnyKeys() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.secrets) > 0
}

// UserForAccessKey resolves the user id that owns accessKey.
func (c *AuthCaches) UserForAccessKey(accessKey string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.accessUsers[accessKey]
	return u, ok
}

// SetBucketVersioning records bucket's current versioning status.
func (c *AuthCaches) SetBucketVersioning(bucket string, status VersioningStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucketVersioning.Set(bucket, status)
}

// BucketVersioning returns bucket's versioning status, defaulting to
// VersioningDisabled if the bucket has never had one set.
func (c *AuthCaches) BucketVersioning(bucket string) VersioningStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.bucketVersioning.Get(bucket); ok {
		return v.(VersioningStatus)
	}
	return VersioningDisabled
}

// ForgetBucket drops a deleted bucket's versioning projection.
func (c *AuthCaches) ForgetBucket(bucket string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucketVersioning.Delete(bucket)
}

// BucketVersioningSnapshot returns every bucket with a recorded versioning
// status, as a map keyed by bucket name, for admin enumeration.
func (c *AuthCaches) BucketVersioningSnapshot() map[string]VersioningStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]VersioningStatus, c.bucketVersioning.Len())
	it := c.bucketVersioning.Iterator()
	for it.Next() {
		out[it.Key().(string)] = it.Value().(VersioningStatus)
	}
	return out
}
