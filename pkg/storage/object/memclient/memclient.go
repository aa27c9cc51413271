// Package memclient is an in-process object store. It backs the "memory"
// mount type and the object adapter tests, and caps listings at
// object.MaxListKeys keys per page like real object stores do.
package memclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittodav/pkg/storage/object"
)

type entry struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Client stores objects in a map.
//
// Thread safety:
// Safe for concurrent use.
type Client struct {
	mu      sync.RWMutex
	objects map[string]*entry
	now     func() time.Time
}

var _ object.Client = (*Client)(nil)

// New creates an empty in-memory store.
func New() *Client {
	return &Client{
		objects: make(map[string]*entry),
		now:     time.Now,
	}
}

// List implements object.Client. The continuation token is the last key of
// the previous page.
func (c *Client) List(ctx context.Context, prefix, token string, maxKeys int) (*object.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxKeys <= 0 || maxKeys > object.MaxListKeys {
		maxKeys = object.MaxListKeys
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0)
	for key := range c.objects {
		if strings.HasPrefix(key, prefix) && key > token {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	page := &object.ListPage{}
	for i, key := range keys {
		if i == maxKeys {
			page.NextToken = keys[i-1]
			break
		}
		page.Objects = append(page.Objects, c.describe(key))
	}

	return page, nil
}

// Head implements object.Client.
func (c *Client) Head(ctx context.Context, key string) (*object.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.objects[key]; !ok {
		return nil, fmt.Errorf("head %s: %w", key, object.ErrObjectNotFound)
	}
	obj := c.describe(key)
	return &obj, nil
}

// Get implements object.Client. The returned reader sees a snapshot of the
// content.
func (c *Client) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, object.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(e.data))), nil
}

// Put implements object.Client.
func (c *Client) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if contentType == "" {
		contentType = "binary/octet-stream"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.objects[key] = &entry{
		data:        bytes.Clone(body),
		contentType: contentType,
		modified:    c.now(),
	}
	return nil
}

// Copy implements object.Client.
func (c *Client) Copy(ctx context.Context, src, dst, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.objects[src]
	if !ok {
		return fmt.Errorf("copy %s: %w", src, object.ErrObjectNotFound)
	}

	cp := &entry{
		data:        bytes.Clone(e.data),
		contentType: e.contentType,
		modified:    c.now(),
	}
	if contentType != "" {
		cp.contentType = contentType
	}
	c.objects[dst] = cp
	return nil
}

// Delete implements object.Client.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.objects, key)
	return nil
}

// Keys returns every stored key in order.
func (c *Client) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.objects))
	for key := range c.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// describe must be called with the lock held.
func (c *Client) describe(key string) object.Object {
	e := c.objects[key]
	return object.Object{
		Key:          key,
		Size:         int64(len(e.data)),
		LastModified: e.modified,
		ContentType:  e.contentType,
	}
}
