package signature_test

import (
	"net/http"
	"testing"

	"github.com/achtungsoftware/alarik/signature"
	"github.com/stretchr/testify/assert"
)

func TestBuildCanonicalRequestDeterministic(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.com/bucket/key?b=2&a=1", nil)
	assert.NoError(t, err)
	req.Header.Set("X-Amz-Date", "20230101T000000Z")

	first := signature.BuildCanonicalRequest(req, []string{"host", "x-amz-date"}, "UNSIGNED-PAYLOAD", true, false)
	second := signature.BuildCanonicalRequest(req, []string{"host", "x-amz-date"}, "UNSIGNED-PAYLOAD", true, false)
	assert.Equal(t, first, second)
}

func TestBuildCanonicalRequestSortsQueryWhenRequested(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.com/?b=2&a=1", nil)
	assert.NoError(t, err)

	sorted := signature.BuildCanonicalRequest(req, []string{"host"}, "UNSIGNED-PAYLOAD", true, false)
	unsorted := signature.BuildCanonicalRequest(req, []string{"host"}, "UNSIGNED-PAYLOAD", false, false)
	assert.NotEqual(t, sorted, unsorted)
}

func TestBuildCanonicalRequestDropsSignatureFromPresignedQuery(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.com/?X-Amz-Signature=deadbeef&a=1", nil)
	assert.NoError(t, err)

	cr := signature.BuildCanonicalRequest(req, []string{"host"}, "UNSIGNED-PAYLOAD", true, true)
	assert.NotContains(t, cr, "deadbeef")
}

func TestSigningKeyDeterministic(t *testing.T) {
	k1 := signature.SigningKey("secret", "20230101", "us-east-1", "s3")
	k2 := signature.SigningKey("secret", "20230101", "us-east-1", "s3")
	assert.Equal(t, k1, k2)

	k3 := signature.SigningKey("other-secret", "20230101", "us-east-1", "s3")
	assert.NotEqual(t, k1, k3)
}
