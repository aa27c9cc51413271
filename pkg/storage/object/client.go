package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// MaxListKeys is the page size requested from List. Real object stores cap
// a single listing at this many keys.
const MaxListKeys = 1000

// ErrObjectNotFound is returned by a Client when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Object describes one stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// ListPage is one page of a prefix listing.
type ListPage struct {
	Objects []Object

	// NextToken continues the listing. Empty when this is the last page.
	NextToken string
}

// Client is the capability set the adapter needs from an object store.
//
// Keys never start with "/". Implementations translate their backend's
// missing-key errors into ErrObjectNotFound.
type Client interface {
	// List returns keys starting with prefix in lexical order. token is
	// the NextToken of the previous page, or "" for the first page. At most
	// maxKeys objects are returned.
	List(ctx context.Context, prefix, token string, maxKeys int) (*ListPage, error)

	// Head returns the attributes of key.
	Head(ctx context.Context, key string) (*Object, error)

	// Get opens key for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put stores body under key, replacing any previous object.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Copy duplicates src to dst. A non-empty contentType replaces the
	// stored media type; src and dst may be equal to rewrite it in place.
	Copy(ctx context.Context, src, dst, contentType string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Metrics records object store traffic.
//
// Implementations must be safe for concurrent use.
type Metrics interface {
	// ObserveOperation records one client call and its outcome.
	ObserveOperation(backend, operation string, duration time.Duration, err error)

	// RecordBytes records payload bytes read or written.
	RecordBytes(backend, operation string, bytes int64)
}

// Instrument wraps client so every call is reported to m under the given
// backend label. A nil m returns client unchanged.
func Instrument(client Client, backend string, m Metrics) Client {
	if m == nil {
		return client
	}
	return &instrumentedClient{next: client, backend: backend, metrics: m}
}

type instrumentedClient struct {
	next    Client
	backend string
	metrics Metrics
}

func (c *instrumentedClient) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrObjectNotFound) {
		err = nil
	}
	c.metrics.ObserveOperation(c.backend, op, time.Since(start), err)
}

func (c *instrumentedClient) List(ctx context.Context, prefix, token string, maxKeys int) (*ListPage, error) {
	start := time.Now()
	page, err := c.next.List(ctx, prefix, token, maxKeys)
	c.observe("list", start, err)
	return page, err
}

func (c *instrumentedClient) Head(ctx context.Context, key string) (*Object, error) {
	start := time.Now()
	obj, err := c.next.Head(ctx, key)
	c.observe("head", start, err)
	return obj, err
}

func (c *instrumentedClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	body, err := c.next.Get(ctx, key)
	c.observe("get", start, err)
	if err != nil {
		return nil, err
	}
	return &countingReader{ReadCloser: body, done: func(n int64) {
		c.metrics.RecordBytes(c.backend, "get", n)
	}}, nil
}

func (c *instrumentedClient) Put(ctx context.Context, key string, body []byte, contentType string) error {
	start := time.Now()
	err := c.next.Put(ctx, key, body, contentType)
	c.observe("put", start, err)
	if err == nil {
		c.metrics.RecordBytes(c.backend, "put", int64(len(body)))
	}
	return err
}

func (c *instrumentedClient) Copy(ctx context.Context, src, dst, contentType string) error {
	start := time.Now()
	err := c.next.Copy(ctx, src, dst, contentType)
	c.observe("copy", start, err)
	return err
}

func (c *instrumentedClient) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := c.next.Delete(ctx, key)
	c.observe("delete", start, err)
	return err
}

type countingReader struct {
	io.ReadCloser
	n    int64
	done func(int64)
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *countingReader) Close() error {
	if r.done != nil {
		r.done(r.n)
		r.done = nil
	}
	return r.ReadCloser.Close()
}
