package signature

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Errors returned while decoding an aws-chunked body. They are deliberately
// distinct from Errno: chunk decoding can be driven directly by callers (the
// gateway's PUT handler decodes the payload independently of whether
// signature verification is even in play, e.g. when no auth keys are
// configured).
var (
	ErrIncompleteData   = errors.New("signature: incomplete chunked data")
	ErrInvalidChunkSize = errors.New("signature: invalid chunk size")
	ErrDecodingFailed   = errors.New("signature: chunked decoding failed")
)

// Chunk is one aws-chunked frame: the chunk-signature extension (if any)
// and the raw payload bytes it was signed over.
type Chunk struct {
	Size      int64
	Signature string
	Data      []byte
}

// ChunkDecoder reads an aws-chunked request body. It is signature-agnostic:
// Read returns the concatenated payload the way any io.Reader would, and
// the chunk signature chain is verified separately by the signature engine
// using the frames recorded via Chunks.
type ChunkDecoder struct {
	r       *bufio.Reader
	current []byte
	err     error
	chunks  []Chunk
	record  bool
}

// NewChunkDecoder wraps r, decoding aws-chunked framing on Read.
func NewChunkDecoder(r io.Reader) *ChunkDecoder {
	return &ChunkDecoder{r: bufio.NewReader(r)}
}

// NewRecordingChunkDecoder decodes like NewChunkDecoder but additionally
// retains the Size/Signature/Data of every chunk consumed, available via
// Chunks once the stream has been read to completion. Used by chunk
// signature verification, which must walk the same frame boundaries the
// payload decode produced.
func NewRecordingChunkDecoder(r io.Reader) *ChunkDecoder {
	return &ChunkDecoder{r: bufio.NewReader(r), record: true}
}

// Chunks returns the frames seen so far. Only populated when the decoder
// was constructed with NewRecordingChunkDecoder.
func (c *ChunkDecoder) Chunks() []Chunk { return c.chunks }

func (c *ChunkDecoder) Read(p []byte) (int, error) {
	for len(c.current) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		chunk, err := c.readChunk()
		if err != nil {
			c.err = err
			return 0, err
		}
		if chunk.Size == 0 {
			c.err = io.EOF
			c.discardTrailers()
			return 0, io.EOF
		}
		c.current = chunk.Data
		if c.record {
			c.chunks = append(c.chunks, chunk)
		}
	}
	n := copy(p, c.current)
	c.current = c.current[n:]
	return n, nil
}

func (c *ChunkDecoder) readChunk() (Chunk, error) {
	line, err := c.readLine()
	if err != nil {
		return Chunk{}, ErrIncompleteData
	}

	sizeStr := line
	var signature string
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		sizeStr = line[:idx]
		meta := line[idx+1:]
		if strings.HasPrefix(meta, "chunk-signature=") {
			signature = strings.TrimPrefix(meta, "chunk-signature=")
		}
	}

	size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
	if err != nil || size < 0 {
		return Chunk{}, ErrInvalidChunkSize
	}

	data := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(c.r, data); err != nil {
			return Chunk{}, ErrIncompleteData
		}
	}
	if err := c.consumeCRLF(); err != nil {
		return Chunk{}, err
	}
	return Chunk{Size: size, Signature: signature, Data: data}, nil
}

// readLine reads up to a '\n', tolerating a missing preceding '\r'.
func (c *ChunkDecoder) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// consumeCRLF reads the line terminator following a chunk's data, tolerating
// a bare '\n' in place of "\r\n".
func (c *ChunkDecoder) consumeCRLF() error {
	b1, err := c.r.ReadByte()
	if err != nil {
		return ErrIncompleteData
	}
	if b1 == '\n' {
		return nil
	}
	if b1 != '\r' {
		return ErrDecodingFailed
	}
	b2, err := c.r.ReadByte()
	if err != nil {
		return ErrIncompleteData
	}
	if b2 != '\n' {
		return ErrDecodingFailed
	}
	return nil
}

func (c *ChunkDecoder) discardTrailers() {
	_, _ = io.Copy(io.Discard, c.r)
}
