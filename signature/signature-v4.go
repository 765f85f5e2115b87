// Package signature implements AWS Signature Version 4 request verification
// and the aws-chunked streaming payload signature chain that rides on top
// of it. It holds no knowledge of buckets, objects or HTTP routing; it only
// answers one question, "does this request's signature check out against a
// known secret", via V4SignVerify.
package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/achtungsoftware/alarik/hexcodec"
)

const (
	signV4Algorithm  = "AWS4-HMAC-SHA256"
	chunkAlgorithm   = "AWS4-HMAC-SHA256-PAYLOAD"
	iso8601Format    = "20060102T150405Z"
	unsignedPayload  = "UNSIGNED-PAYLOAD"
	streamingPayload = "STREAMING-AWS4-HMAC-SHA256-PAYLOAD"
	serviceS3        = "s3"

	maxAuthHeaderLen = 4096
	maxAccessKeyLen  = 128
	minExpires       = 1
	maxExpires       = 604800 // 7 days, the real S3 ceiling for presigned URLs

	// DefaultSkew is the maximum tolerated clock difference for
	// header-based (non-presigned) requests.
	DefaultSkew = 15 * time.Minute
)

// TimeNow stands in for time.Now so tests can simulate clock skew without
// sleeping. Production code never reassigns it.
var TimeNow = time.Now

var (
	keysMu sync.RWMutex
	keys   = map[string]string{}
)

var (
	unsortedFallbackMu sync.RWMutex
	unsortedFallback   = true
)

// SetUnsortedQueryFallback controls whether Verify retries a failed
// signature check with the canonical query string left in wire order (some
// older SDKs and aws-cli releases sign it unsorted). Defaults to enabled,
// matching real S3's leniency; an operator that wants the stricter,
// sorted-only behavior can disable it.
func SetUnsortedQueryFallback(enabled bool) {
	unsortedFallbackMu.Lock()
	defer unsortedFallbackMu.Unlock()
	unsortedFallback = enabled
}

func allowUnsortedQueryFallback() bool {
	unsortedFallbackMu.RLock()
	defer unsortedFallbackMu.RUnlock()
	return unsortedFallback
}

// StoreKeys merges p into the known access-key -> secret-key set.
func StoreKeys(p map[string]string) {
	keysMu.Lock()
	defer keysMu.Unlock()
	for k, v := range p {
		keys[k] = v
	}
}

// ReloadKeys replaces the known access-key -> secret-key set with p.
func ReloadKeys(p map[string]string) {
	keysMu.Lock()
	defer keysMu.Unlock()
	fresh := make(map[string]string, len(p))
	for k, v := range p {
		fresh[k] = v
	}
	keys = fresh
}

func lookupSecret(accessKey string) (string, bool) {
	keysMu.RLock()
	defer keysMu.RUnlock()
	s, ok := keys[accessKey]
	return s, ok
}

type parsedAuth struct {
	accessKey     string
	date          string
	region        string
	service       string
	signedHeaders []string
	signature     string
	isQuery       bool
	expires       int64
}

func parseCredential(cred string) (accessKey, date, region, service string, ok bool) {
	parts := strings.Split(cred, "/")
	if len(parts) != 5 || parts[4] != "aws4_request" {
		return "", "", "", "", false
	}
	accessKey, date, region, service = parts[0], parts[1], parts[2], parts[3]
	if accessKey == "" || len(accessKey) > maxAccessKeyLen || len(date) != 8 {
		return "", "", "", "", false
	}
	return accessKey, date, region, service, true
}

func parseHeaderAuth(r *http.Request) (parsedAuth, Errno) {
	h := r.Header.Get("Authorization")
	if h == "" || len(h) > maxAuthHeaderLen {
		return parsedAuth{}, ErrInvalidArgument
	}

	fields := strings.SplitN(h, " ", 2)
	if len(fields) != 2 {
		return parsedAuth{}, ErrInvalidArgument
	}
	if fields[0] != signV4Algorithm {
		return parsedAuth{}, ErrUnsupportAlgorithm
	}

	var credential, signedHeaders, signature string
	for _, seg := range strings.Split(fields[1], ",") {
		seg = strings.TrimSpace(seg)
		kv := strings.SplitN(seg, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "Credential":
			credential = kv[1]
		case "SignedHeaders":
			signedHeaders = kv[1]
		case "Signature":
			signature = kv[1]
		}
	}
	if credential == "" || signedHeaders == "" || signature == "" {
		return parsedAuth{}, ErrInvalidArgument
	}

	accessKey, date, region, service, ok := parseCredential(credential)
	if !ok {
		return parsedAuth{}, ErrInvalidArgument
	}

	return parsedAuth{
		accessKey:     accessKey,
		date:          date,
		region:        region,
		service:       service,
		signedHeaders: strings.Split(signedHeaders, ";"),
		signature:     signature,
	}, ErrNone
}

func parseQueryAuth(q url.Values) (parsedAuth, Errno) {
	if q.Get("X-Amz-Algorithm") != signV4Algorithm {
		return parsedAuth{}, ErrUnsupportAlgorithm
	}
	credential := q.Get("X-Amz-Credential")
	signedHeaders := q.Get("X-Amz-SignedHeaders")
	signature := q.Get("X-Amz-Signature")
	expiresStr := q.Get("X-Amz-Expires")
	if credential == "" || signedHeaders == "" || signature == "" || expiresStr == "" {
		return parsedAuth{}, ErrInvalidArgument
	}

	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil || expires < minExpires || expires > maxExpires {
		return parsedAuth{}, ErrInvalidArgument
	}

	accessKey, date, region, service, ok := parseCredential(credential)
	if !ok {
		return parsedAuth{}, ErrInvalidArgument
	}

	return parsedAuth{
		accessKey:     accessKey,
		date:          date,
		region:        region,
		service:       service,
		signedHeaders: strings.Split(signedHeaders, ";"),
		signature:     signature,
		isQuery:       true,
		expires:       expires,
	}, ErrNone
}

// VerifyResult carries the caller identity resolved by a successful
// signature check, so the gateway can drive bucket ownership/ACL decisions
// without a second lookup.
type VerifyResult struct {
	AccessKey string
	Region    string
}

// V4SignVerify checks r's SigV4 signature (header or query form) against
// the known key set, including, where the payload is aws-chunked, the
// per-chunk signature chain. It returns ErrNone on success.
func V4SignVerify(r *http.Request) Errno {
	_, errno := Verify(r)
	return errno
}

// Verify is V4SignVerify plus the resolved caller identity on success.
func Verify(r *http.Request) (VerifyResult, Errno) {
	q := r.URL.Query()
	isQuery := q.Get("X-Amz-Algorithm") != ""

	var auth parsedAuth
	var errno Errno
	if isQuery {
		auth, errno = parseQueryAuth(q)
	} else {
		auth, errno = parseHeaderAuth(r)
	}
	if errno != ErrNone {
		return VerifyResult{}, errno
	}

	signedSet := make(map[string]bool, len(auth.signedHeaders))
	for _, h := range auth.signedHeaders {
		signedSet[strings.ToLower(h)] = true
	}
	if !signedSet["host"] {
		return VerifyResult{}, ErrInvalidArgument
	}
	if !isQuery && !signedSet["x-amz-date"] {
		return VerifyResult{}, ErrInvalidArgument
	}
	if r.Header.Get("X-Amz-Security-Token") != "" && !signedSet["x-amz-security-token"] {
		return VerifyResult{}, ErrInvalidArgument
	}

	amzDate := r.Header.Get("X-Amz-Date")
	if amzDate == "" {
		amzDate = q.Get("X-Amz-Date")
	}
	if len(amzDate) != 16 || !strings.HasSuffix(amzDate, "Z") || !strings.HasPrefix(amzDate, auth.date) {
		return VerifyResult{}, ErrInvalidArgument
	}
	reqTime, err := time.Parse(iso8601Format, amzDate)
	if err != nil {
		return VerifyResult{}, ErrInvalidArgument
	}

	skew := TimeNow().UTC().Sub(reqTime)
	if skew < 0 {
		skew = -skew
	}
	if isQuery {
		if skew >= time.Duration(auth.expires)*time.Second {
			return VerifyResult{}, ErrRequestTimeTooSkewed
		}
	} else if skew >= DefaultSkew {
		return VerifyResult{}, ErrRequestTimeTooSkewed
	}

	secret, ok := lookupSecret(auth.accessKey)
	if !ok {
		return VerifyResult{}, ErrAccessDenied
	}

	scope := strings.Join([]string{auth.date, auth.region, auth.service, "aws4_request"}, "/")
	signingKey := SigningKey(secret, auth.date, auth.region, auth.service)

	payloadHash, errno := payloadHashFor(r, isQuery)
	if errno != ErrNone {
		return VerifyResult{}, errno
	}

	candidate := computeSignature(r, auth.signedHeaders, payloadHash, true, isQuery, amzDate, scope, signingKey)
	if !hexcodec.Equal(candidate, auth.signature) {
		if !allowUnsortedQueryFallback() {
			return VerifyResult{}, ErrAccessDenied
		}
		candidate = computeSignature(r, auth.signedHeaders, payloadHash, false, isQuery, amzDate, scope, signingKey)
		if !hexcodec.Equal(candidate, auth.signature) {
			return VerifyResult{}, ErrAccessDenied
		}
	}

	if payloadHash == streamingPayload {
		if errno := verifyChunkedBody(r, amzDate, scope, signingKey, auth.signature); errno != ErrNone {
			return VerifyResult{}, errno
		}
	}

	return VerifyResult{AccessKey: auth.accessKey, Region: auth.region}, ErrNone
}

func computeSignature(r *http.Request, signedHeaders []string, payloadHash string, sorted, isQuery bool, amzDate, scope string, signingKey []byte) string {
	cr := BuildCanonicalRequest(r, signedHeaders, payloadHash, sorted, isQuery)
	sts := StringToSign(amzDate, scope, HashCanonicalRequest(cr))
	return Sign(signingKey, sts)
}

// payloadHashFor resolves the value to embed as the canonical request's
// payload hash. For a header-signed, non-streaming request whose declared
// hash isn't one of the special tokens, it additionally verifies the
// declared hash against the real body (buffering and restoring r.Body, so
// downstream readers are unaffected).
func payloadHashFor(r *http.Request, isQuery bool) (string, Errno) {
	if isQuery {
		return unsignedPayload, ErrNone
	}
	h := r.Header.Get("X-Amz-Content-Sha256")
	switch h {
	case unsignedPayload, streamingPayload:
		return h, ErrNone
	case "":
		return emptyPayloadHash, ErrNone
	default:
		if errno := verifyContentSHA256(r, h); errno != ErrNone {
			return "", errno
		}
		return h, ErrNone
	}
}

func verifyContentSHA256(r *http.Request, declared string) Errno {
	if r.Body == nil || r.Body == http.NoBody {
		if strings.ToLower(declared) != emptyPayloadHash {
			return ErrContentSHA256Mismatch
		}
		return ErrNone
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return ErrInternal
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	sum := sha256.Sum256(body)
	if !hexcodec.Equal(hex.EncodeToString(sum[:]), strings.ToLower(declared)) {
		return ErrContentSHA256Mismatch
	}
	return ErrNone
}

// verifyChunkedBody decodes r's aws-chunked body, verifying each chunk's
// chunk-signature against the HMAC chain seeded by the request's own
// (already-verified) seed signature, and checks the declared decoded length
// against the sum of chunk sizes.
func verifyChunkedBody(r *http.Request, amzDate, scope string, signingKey []byte, seedSignature string) Errno {
	decoder := NewRecordingChunkDecoder(r.Body)
	buf, err := io.ReadAll(decoder)
	if err != nil && err != io.EOF {
		return ErrInvalidArgument
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))

	wantLen, convErr := strconv.ParseInt(r.Header.Get("X-Amz-Decoded-Content-Length"), 10, 64)
	if convErr != nil {
		return ErrInvalidArgument
	}

	var sum int64
	prevSignature := seedSignature
	for _, chunk := range decoder.Chunks() {
		sum += chunk.Size
		chunkSTS := strings.Join([]string{
			chunkAlgorithm,
			amzDate,
			scope,
			prevSignature,
			emptyPayloadHash,
			hashHex(chunk.Data),
		}, "\n")
		candidate := Sign(signingKey, chunkSTS)
		if !hexcodec.Equal(candidate, strings.ToLower(chunk.Signature)) {
			return ErrSignatureDoesNotMatch
		}
		prevSignature = candidate
	}
	if sum != wantLen {
		return ErrInvalidArgument
	}
	return ErrNone
}
