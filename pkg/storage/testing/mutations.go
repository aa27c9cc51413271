package testing

import (
	"errors"
	"testing"

	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/vpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunMutationTests covers delete and rename.
func (suite *AdapterTestSuite) RunMutationTests(t *testing.T) {
	t.Run("DeleteMissing", suite.testDeleteMissing)
	t.Run("DeleteFile", suite.testDeleteFile)
	t.Run("DeleteEmptyDirectory", suite.testDeleteEmptyDirectory)
	t.Run("RenameFile", suite.testRenameFile)
	t.Run("RenameIntoDirectory", suite.testRenameIntoDirectory)
	t.Run("RenameDirectory", suite.testRenameDirectory)
	t.Run("RenameOutsideRoot", suite.testRenameOutsideRoot)
}

func (suite *AdapterTestSuite) testDeleteMissing(t *testing.T) {
	adapter := suite.NewAdapter(t)
	assert.NoError(t, suite.mustGet(t, adapter, "ghost.txt").Delete(testContext()))
}

func (suite *AdapterTestSuite) testDeleteFile(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "file.txt", "x")

	require.NoError(t, suite.mustGet(t, adapter, "file.txt").Delete(testContext()))
	assert.False(t, suite.exists(t, adapter, "file.txt"))
}

func (suite *AdapterTestSuite) testDeleteEmptyDirectory(t *testing.T) {
	adapter := suite.NewAdapter(t)
	require.NoError(t, suite.mustGet(t, adapter, "dir").CreateDirectory(testContext()))

	require.NoError(t, suite.mustGet(t, adapter, "dir").Delete(testContext()))
	assert.False(t, suite.exists(t, adapter, "dir"))
}

func (suite *AdapterTestSuite) testRenameFile(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "old.txt", "payload")

	require.NoError(t, suite.mustGet(t, adapter, "old.txt").Rename(testContext(), vpath.New("new.txt")))

	assert.False(t, suite.exists(t, adapter, "old.txt"))
	assert.Equal(t, "payload", suite.mustRead(t, adapter, "new.txt"))
}

func (suite *AdapterTestSuite) testRenameIntoDirectory(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "file.txt", "payload")
	require.NoError(t, suite.mustGet(t, adapter, "dir").CreateDirectory(testContext()))

	require.NoError(t, suite.mustGet(t, adapter, "file.txt").Rename(testContext(), vpath.New("dir/file.txt")))

	assert.Equal(t, "payload", suite.mustRead(t, adapter, "dir/file.txt"))
}

func (suite *AdapterTestSuite) testRenameDirectory(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "src/a.txt", "a")
	suite.mustWrite(t, adapter, "src/sub/b.txt", "b")

	require.NoError(t, suite.mustGet(t, adapter, "src").Rename(testContext(), vpath.New("dst")))

	assert.False(t, suite.exists(t, adapter, "src"))
	assert.Equal(t, "a", suite.mustRead(t, adapter, "dst/a.txt"))
	assert.Equal(t, "b", suite.mustRead(t, adapter, "dst/sub/b.txt"))
}

func (suite *AdapterTestSuite) testRenameOutsideRoot(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "file.txt", "x")

	err := suite.mustGet(t, adapter, "file.txt").Rename(testContext(), vpath.New("../../escaped.txt"))
	assert.True(t, errors.Is(err, storage.ErrOutsideRoot), "expected ErrOutsideRoot, got %v", err)
	assert.True(t, suite.exists(t, adapter, "file.txt"))
}
