package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDirectoryTests covers listing and directory creation.
func (suite *AdapterTestSuite) RunDirectoryTests(t *testing.T) {
	t.Run("Children", suite.testChildren)
	t.Run("ChildrenOfFile", suite.testChildrenOfFile)
	t.Run("ChildPaths", suite.testChildPaths)
	t.Run("CreateDirectory", suite.testCreateDirectory)
	t.Run("CreateDirectoryIdempotent", suite.testCreateDirectoryIdempotent)
	t.Run("EmptyDirectory", suite.testEmptyDirectory)
	t.Run("PrefixSiblings", suite.testPrefixSiblings)
}

func (suite *AdapterTestSuite) testChildren(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "d/a.txt", "a")
	suite.mustWrite(t, adapter, "d/b.txt", "b")
	suite.mustWrite(t, adapter, "d/sub/c.txt", "c")

	assert.Equal(t, "a.txt,b.txt,sub/", joinNames(suite.childNames(t, adapter, "d")))
}

func (suite *AdapterTestSuite) testChildrenOfFile(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "file.txt", "x")

	children, err := suite.mustGet(t, adapter, "file.txt").Children(testContext())
	require.NoError(t, err)
	assert.Empty(t, children)
}

func (suite *AdapterTestSuite) testChildPaths(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "d/a.txt", "a")

	children, err := suite.mustGet(t, adapter, "d").Children(testContext())
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "d/a.txt", children[0].Path().String())
}

func (suite *AdapterTestSuite) testCreateDirectory(t *testing.T) {
	adapter := suite.NewAdapter(t)

	require.NoError(t, suite.mustGet(t, adapter, "newdir").CreateDirectory(testContext()))
	assert.True(t, suite.mustStat(t, adapter, "newdir").IsDir())
	assert.Contains(t, suite.childNames(t, adapter, ""), "newdir/")
}

func (suite *AdapterTestSuite) testCreateDirectoryIdempotent(t *testing.T) {
	adapter := suite.NewAdapter(t)
	node := suite.mustGet(t, adapter, "dir")

	require.NoError(t, node.CreateDirectory(testContext()))
	require.NoError(t, node.CreateDirectory(testContext()))
	assert.True(t, suite.mustStat(t, adapter, "dir").IsDir())
}

func (suite *AdapterTestSuite) testEmptyDirectory(t *testing.T) {
	adapter := suite.NewAdapter(t)
	require.NoError(t, suite.mustGet(t, adapter, "empty").CreateDirectory(testContext()))

	assert.Empty(t, suite.childNames(t, adapter, "empty"))
}

func (suite *AdapterTestSuite) testPrefixSiblings(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "foo/inner.txt", "1")
	suite.mustWrite(t, adapter, "foobar.txt", "2")

	assert.Equal(t, "inner.txt", joinNames(suite.childNames(t, adapter, "foo")))
	assert.False(t, suite.mustStat(t, adapter, "foobar.txt").IsDir())
}
