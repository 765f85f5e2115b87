package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
)

// emptyPayloadHash is the SHA-256 of the empty string, computed once rather
// than hand-copied, since a single mistyped hex digit here would silently
// break every unsigned-body request.
var emptyPayloadHash = hashHex(nil)

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// SigningKey derives the final signing key via the four-step AWS4 chain:
// kDate -> kRegion -> kService -> kSigning.
func SigningKey(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

// Sign HMACs stringToSign with signingKey and hex-encodes the result.
func Sign(signingKey []byte, stringToSign string) string {
	return hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))
}

// HashCanonicalRequest is the SHA-256 of the canonical request, as embedded
// in the string to sign.
func HashCanonicalRequest(canonicalRequest string) string {
	return hashHex([]byte(canonicalRequest))
}

// StringToSign assembles the four lines AWS4-HMAC-SHA256 signs over.
func StringToSign(amzDate, credentialScope, canonicalRequestHash string) string {
	return strings.Join([]string{
		signV4Algorithm,
		amzDate,
		credentialScope,
		canonicalRequestHash,
	}, "\n")
}

type queryPair struct {
	key       string
	value     string
	hadEquals bool
}

func parseRawQuery(raw string) []queryPair {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "&")
	pairs := make([]queryPair, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if idx := strings.IndexByte(p, '='); idx >= 0 {
			pairs = append(pairs, queryPair{key: p[:idx], value: p[idx+1:], hadEquals: true})
		} else {
			pairs = append(pairs, queryPair{key: p})
		}
	}
	return pairs
}

// canonicalQueryString re-emits the raw query string as SigV4 requires: each
// pair's "=" marker is preserved exactly as it arrived (a key with no "="
// stays bare), X-Amz-Signature is dropped when this is a presigned request,
// and the pairs are sorted unless sorted is false (the fallback used when a
// client's library sorted query pairs using a different collation).
func canonicalQueryString(raw string, sorted bool, dropSignature bool) string {
	pairs := parseRawQuery(raw)
	if dropSignature {
		filtered := pairs[:0]
		for _, p := range pairs {
			if p.key == "X-Amz-Signature" {
				continue
			}
			filtered = append(filtered, p)
		}
		pairs = filtered
	}
	if sorted {
		sort.SliceStable(pairs, func(i, j int) bool {
			if pairs[i].key != pairs[j].key {
				return pairs[i].key < pairs[j].key
			}
			return pairs[i].value < pairs[j].value
		})
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		if p.hadEquals {
			parts[i] = p.key + "=" + p.value
		} else {
			parts[i] = p.key
		}
	}
	return strings.Join(parts, "&")
}

func collapseWhitespace(s string) string {
	var sb strings.Builder
	inSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !inSpace {
				sb.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		sb.WriteRune(r)
	}
	return sb.String()
}

func headerValues(r *http.Request, name string) []string {
	if strings.EqualFold(name, "host") {
		return []string{r.Host}
	}
	return r.Header.Values(name)
}

// canonicalHeaders builds the CanonicalHeaders block (lowercase names,
// trimmed+collapsed values, one line per header, terminated by a blank
// line) and the semicolon-joined SignedHeaders list.
func canonicalHeaders(r *http.Request, signedHeaders []string) (headerBlock, signedHeadersStr string) {
	names := make([]string, len(signedHeaders))
	for i, n := range signedHeaders {
		names[i] = strings.ToLower(n)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		values := headerValues(r, name)
		collapsed := make([]string, len(values))
		for i, v := range values {
			collapsed[i] = collapseWhitespace(strings.TrimSpace(v))
		}
		sb.WriteString(name)
		sb.WriteByte(':')
		sb.WriteString(strings.Join(collapsed, ","))
		sb.WriteByte('\n')
	}
	return sb.String(), strings.Join(names, ";")
}

// BuildCanonicalRequest assembles the six-line canonical request described
// in AWS's SigV4 documentation. No percent-decoding is performed on the
// path; it is taken exactly as the request presents it.
func BuildCanonicalRequest(r *http.Request, signedHeaders []string, payloadHash string, sortedQuery bool, isQueryAuth bool) string {
	uri := r.URL.EscapedPath()
	if uri == "" {
		uri = "/"
	}
	query := canonicalQueryString(r.URL.RawQuery, sortedQuery, isQueryAuth)
	headerBlock, signedHeadersStr := canonicalHeaders(r, signedHeaders)

	return strings.Join([]string{
		r.Method,
		uri,
		query,
		headerBlock,
		signedHeadersStr,
		payloadHash,
	}, "\n")
}
