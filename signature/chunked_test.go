package signature_test

import (
	"io"
	"strings"
	"testing"

	"github.com/achtungsoftware/alarik/signature"
	"github.com/stretchr/testify/assert"
)

func chunkFrame(sig string, data string) string {
	return strings.ToLower(toHexLen(len(data))) + ";chunk-signature=" + sig + "\r\n" + data + "\r\n"
}

func toHexLen(n int) string {
	const hexdigits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{hexdigits[n%16]}, b...)
		n /= 16
	}
	return string(b)
}

func TestChunkDecoderConcatenatesPayload(t *testing.T) {
	body := chunkFrame("sig1", "hello ") + chunkFrame("sig2", "world") + chunkFrame("sig3", "")
	dec := signature.NewChunkDecoder(strings.NewReader(body))

	out, err := io.ReadAll(dec)
	assert.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func TestRecordingChunkDecoderCapturesFrames(t *testing.T) {
	body := chunkFrame("sig1", "abc") + chunkFrame("sig2", "de") + chunkFrame("sig3", "")
	dec := signature.NewRecordingChunkDecoder(strings.NewReader(body))

	_, err := io.ReadAll(dec)
	assert.NoError(t, err)

	chunks := dec.Chunks()
	if assert.Len(t, chunks, 2) {
		assert.Equal(t, "abc", string(chunks[0].Data))
		assert.Equal(t, "sig1", chunks[0].Signature)
		assert.Equal(t, "de", string(chunks[1].Data))
		assert.Equal(t, "sig2", chunks[1].Signature)
	}
}

func TestChunkDecoderRejectsBadSize(t *testing.T) {
	body := "zz;chunk-signature=sig1\r\nhello\r\n0;chunk-signature=sig2\r\n\r\n"
	dec := signature.NewChunkDecoder(strings.NewReader(body))
	_, err := io.ReadAll(dec)
	assert.ErrorIs(t, err, signature.ErrInvalidChunkSize)
}

func TestChunkDecoderDetectsTruncation(t *testing.T) {
	body := "a;chunk-signature=sig1\r\nhe"
	dec := signature.NewChunkDecoder(strings.NewReader(body))
	_, err := io.ReadAll(dec)
	assert.ErrorIs(t, err, signature.ErrIncompleteData)
}
