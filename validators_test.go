package alarik

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBucketName(t *testing.T) {
	valid := []string{"abc", "my-bucket", "my.bucket.name", "a1b2c3"}
	for _, name := range valid {
		assert.NoError(t, ValidateBucketName(name), name)
	}

	invalid := []string{"ab", "-leading", "trailing-", ".leading", "trailing.", "has..dots", "Has-Upper", "192.168.1.1", strings.Repeat("a", 64)}
	for _, name := range invalid {
		assert.Error(t, ValidateBucketName(name), name)
	}
}

func TestValidateContentType(t *testing.T) {
	assert.NoError(t, ValidateContentType("text/plain"))
	assert.NoError(t, ValidateContentType("application/json; charset=utf-8"))
	assert.Error(t, ValidateContentType(""))
	assert.Error(t, ValidateContentType("noSlash"))
	assert.Error(t, ValidateContentType("text/"))
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey(""))
	assert.NoError(t, ValidateKey("a/b/c"))
	assert.Error(t, ValidateKey(strings.Repeat("a", KeySizeLimit+1)))
}
