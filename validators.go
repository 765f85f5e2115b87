package alarik

import (
	"net"
	"strings"
)

// KeySizeLimit mirrors S3's real key-length ceiling.
const KeySizeLimit = 1024

// ValidateBucketName applies the DNS-compatible bucket naming rules: 3-63
// characters, lowercase letters/digits/hyphens/dots only, must not start or
// end with a hyphen or dot, must not contain "..", ".-" or "-.", and must
// not look like a dotted-quad IPv4 address.
func ValidateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return ErrorMessage(ErrInvalidBucketName, "The specified bucket is not valid.")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, "-") || strings.HasSuffix(name, ".") {
		return ErrorMessage(ErrInvalidBucketName, "The specified bucket is not valid.")
	}
	if strings.Contains(name, "..") || strings.Contains(name, ".-") || strings.Contains(name, "-.") {
		return ErrorMessage(ErrInvalidBucketName, "The specified bucket is not valid.")
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' && r != '.' {
			return ErrorMessage(ErrInvalidBucketName, "The specified bucket is not valid.")
		}
	}
	if net.ParseIP(name) != nil {
		return ErrorMessage(ErrInvalidBucketName, "The specified bucket is not valid.")
	}
	return nil
}

// ValidateContentType performs a loose sanity check on a Content-Type
// header: printable ASCII, a "type/subtype" shape, no embedded whitespace
// in either token.
func ValidateContentType(ct string) error {
	if ct == "" || len(ct) > 255 {
		return ErrorMessage(ErrInvalidArgument, "Invalid content type.")
	}
	for _, r := range ct {
		if r < 0x20 || r > 0x7E {
			return ErrorMessage(ErrInvalidArgument, "Invalid content type.")
		}
	}
	slash := strings.IndexByte(ct, '/')
	if slash <= 0 || slash == len(ct)-1 {
		return ErrorMessage(ErrInvalidArgument, "Invalid content type.")
	}
	typePart := ct[:slash]
	rest := ct[slash+1:]
	subPart := rest
	if semi := strings.IndexByte(rest, ';'); semi >= 0 {
		subPart = rest[:semi]
	}
	if !validToken(typePart) || !validToken(strings.TrimSpace(subPart)) {
		return ErrorMessage(ErrInvalidArgument, "Invalid content type.")
	}
	return nil
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r <= 0x20 || r == '/' {
			return false
		}
	}
	return true
}

// ValidateKey rejects keys that exceed S3's length ceiling. Empty keys are
// permitted: they address the bucket's "root" pseudo-object.
func ValidateKey(key string) error {
	if len(key) > KeySizeLimit {
		return ResourceError(ErrKeyTooLong, key)
	}
	return nil
}
