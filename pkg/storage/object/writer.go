package object

import (
	"bytes"
	"context"
	"errors"
)

var errWriterClosed = errors.New("object writer already closed")

// stagingWriter buffers an object body until Close.
type stagingWriter struct {
	ctx    context.Context
	node   *FileNode
	buf    bytes.Buffer
	closed bool
}

func (w *stagingWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errWriterClosed
	}
	return w.buf.Write(p)
}

// Close commits the buffered content. Calling it twice is an error.
func (w *stagingWriter) Close() error {
	if w.closed {
		return errWriterClosed
	}
	w.closed = true
	return w.node.commit(w.ctx, w.buf.Bytes())
}
