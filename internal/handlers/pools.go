package handlers

import (
	"bytes"
	"sync"
)

// Pooled buffers for JSON decode and encode. Responses carry whole
// rendered documents, so the encode pool starts much larger.
var (
	decodePool = sync.Pool{
		New: func() any { return bytes.NewBuffer(make([]byte, 0, 4096)) },
	}
	encodePool = sync.Pool{
		New: func() any { return bytes.NewBuffer(make([]byte, 0, 64*1024)) },
	}
)

func getDecodeBuffer() *bytes.Buffer { return decodePool.Get().(*bytes.Buffer) }
func getEncodeBuffer() *bytes.Buffer { return encodePool.Get().(*bytes.Buffer) }

func putDecodeBuffer(buf *bytes.Buffer) {
	buf.Reset()
	decodePool.Put(buf)
}

func putEncodeBuffer(buf *bytes.Buffer) {
	buf.Reset()
	encodePool.Put(buf)
}
