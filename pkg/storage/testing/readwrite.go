package testing

import (
	"testing"

	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/stretchr/testify/assert"
)

// RunReadWriteTests covers content streams and attributes.
func (suite *AdapterTestSuite) RunReadWriteTests(t *testing.T) {
	t.Run("WriteThenRead", suite.testWriteThenRead)
	t.Run("Overwrite", suite.testOverwrite)
	t.Run("Append", suite.testAppend)
	t.Run("WriteCreatesParents", suite.testWriteCreatesParents)
	t.Run("ContentTypeFromExtension", suite.testContentTypeFromExtension)
	t.Run("ContentTypeOverride", suite.testContentTypeOverride)
	t.Run("OpenDirectory", suite.testOpenDirectory)
}

func (suite *AdapterTestSuite) testWriteThenRead(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "hello.txt", "Hello, World!")

	info := suite.mustStat(t, adapter, "hello.txt")
	assert.Equal(t, storage.KindFile, info.Kind)
	assert.EqualValues(t, 13, info.Size)
	assert.False(t, info.ModifiedAt.IsZero())
	assert.False(t, info.CreatedAt.IsZero())
	assert.Equal(t, "Hello, World!", suite.mustRead(t, adapter, "hello.txt"))
}

func (suite *AdapterTestSuite) testOverwrite(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "file.txt", "a much longer first version")
	suite.mustWrite(t, adapter, "file.txt", "short")

	assert.Equal(t, "short", suite.mustRead(t, adapter, "file.txt"))
}

func (suite *AdapterTestSuite) testAppend(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "log.txt", "ab")

	mustWriteNode(t, suite.mustGet(t, adapter, "log.txt"), storage.WriteAppend, "cd")

	assert.Equal(t, "abcd", suite.mustRead(t, adapter, "log.txt"))
}

func (suite *AdapterTestSuite) testWriteCreatesParents(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "a/b/c.txt", "deep")

	assert.True(t, suite.mustStat(t, adapter, "a").IsDir())
	assert.True(t, suite.mustStat(t, adapter, "a/b").IsDir())
	assert.Equal(t, "deep", suite.mustRead(t, adapter, "a/b/c.txt"))
}

func (suite *AdapterTestSuite) testContentTypeFromExtension(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "image.png", "png")
	suite.mustWrite(t, adapter, "blob", "bytes")

	assert.Equal(t, "image/png", suite.mustStat(t, adapter, "image.png").ContentType)
	assert.Equal(t, storage.DefaultContentType, suite.mustStat(t, adapter, "blob").ContentType)
}

func (suite *AdapterTestSuite) testContentTypeOverride(t *testing.T) {
	adapter := suite.NewAdapter(t)
	node := suite.mustGet(t, adapter, "page.png")
	node.SetContentType("text/x-custom")
	mustWriteNode(t, node, storage.WriteTruncate, "content")
	assert.NoError(t, node.Save(testContext()))

	info, err := node.Stat(testContext())
	assert.NoError(t, err)
	assert.Equal(t, "text/x-custom", info.ContentType)
}

func (suite *AdapterTestSuite) testOpenDirectory(t *testing.T) {
	adapter := suite.NewAdapter(t)
	assert.NoError(t, suite.mustGet(t, adapter, "dir").CreateDirectory(testContext()))

	_, err := suite.mustGet(t, adapter, "dir").Open(testContext())
	assert.Error(t, err)
}
