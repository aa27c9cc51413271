package testing

import (
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/vpath"
	"github.com/stretchr/testify/require"
)

// mustGet resolves a node and fails the test if it errors.
func (suite *AdapterTestSuite) mustGet(t *testing.T, adapter storage.Adapter, p string) storage.Node {
	t.Helper()
	node, err := adapter.Get(testContext(), vpath.New(p), suite.Vars)
	require.NoError(t, err, "Get(%q) should succeed", p)
	require.NotNil(t, node)
	return node
}

// mustWrite writes data to p, creating it.
func (suite *AdapterTestSuite) mustWrite(t *testing.T, adapter storage.Adapter, p string, data string) {
	t.Helper()
	node := suite.mustGet(t, adapter, p)
	mustWriteNode(t, node, storage.WriteTruncate, data)
}

func mustWriteNode(t *testing.T, node storage.Node, mode storage.WriteMode, data string) {
	t.Helper()
	w, err := node.OpenWriter(testContext(), mode)
	require.NoError(t, err, "OpenWriter should succeed")
	_, err = io.WriteString(w, data)
	require.NoError(t, err, "Write should succeed")
	require.NoError(t, w.Close(), "Close should commit the content")
}

// mustRead returns the full content of p.
func (suite *AdapterTestSuite) mustRead(t *testing.T, adapter storage.Adapter, p string) string {
	t.Helper()
	node := suite.mustGet(t, adapter, p)
	r, err := node.Open(testContext())
	require.NoError(t, err, "Open(%q) should succeed", p)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

// mustStat returns the attributes of p.
func (suite *AdapterTestSuite) mustStat(t *testing.T, adapter storage.Adapter, p string) *storage.Info {
	t.Helper()
	info, err := suite.mustGet(t, adapter, p).Stat(testContext())
	require.NoError(t, err, "Stat(%q) should succeed", p)
	return info
}

// exists reports whether p exists.
func (suite *AdapterTestSuite) exists(t *testing.T, adapter storage.Adapter, p string) bool {
	t.Helper()
	ok, err := storage.Exists(testContext(), suite.mustGet(t, adapter, p))
	require.NoError(t, err)
	return ok
}

// childNames lists the sorted child names of p, with a trailing "/" for
// directories.
func (suite *AdapterTestSuite) childNames(t *testing.T, adapter storage.Adapter, p string) []string {
	t.Helper()
	children, err := suite.mustGet(t, adapter, p).Children(testContext())
	require.NoError(t, err)

	names := make([]string, 0, len(children))
	for _, child := range children {
		info, err := child.Stat(testContext())
		require.NoError(t, err, "child %s should exist", child.Path())

		name := child.Path().Last()
		if info.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func joinNames(names []string) string {
	return strings.Join(names, ",")
}
