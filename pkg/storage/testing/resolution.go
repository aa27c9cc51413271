package testing

import (
	"errors"
	"testing"

	"github.com/marmos91/dittodav/pkg/storage"
	"github.com/marmos91/dittodav/pkg/vpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunResolutionTests covers Get and the root boundary.
func (suite *AdapterTestSuite) RunResolutionTests(t *testing.T) {
	t.Run("Missing", suite.testMissing)
	t.Run("EscapeRoot", suite.testEscapeRoot)
	t.Run("RootIsDirectory", suite.testRootIsDirectory)
	t.Run("PathIsRelative", suite.testPathIsRelative)
}

func (suite *AdapterTestSuite) testMissing(t *testing.T) {
	adapter := suite.NewAdapter(t)

	node := suite.mustGet(t, adapter, "missing.txt")
	_, err := node.Stat(testContext())
	assert.True(t, errors.Is(err, storage.ErrNotFound), "expected ErrNotFound, got %v", err)

	exists, err := storage.Exists(testContext(), node)
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *AdapterTestSuite) testEscapeRoot(t *testing.T) {
	adapter := suite.NewAdapter(t)

	node, err := adapter.Get(testContext(), vpath.New("../../etc/passwd"), suite.Vars)
	assert.Nil(t, node)
	assert.True(t, errors.Is(err, storage.ErrOutsideRoot), "expected ErrOutsideRoot, got %v", err)

	node, err = adapter.Get(testContext(), vpath.New("a/../../b"), suite.Vars)
	assert.Nil(t, node)
	assert.True(t, errors.Is(err, storage.ErrOutsideRoot), "expected ErrOutsideRoot, got %v", err)
}

func (suite *AdapterTestSuite) testRootIsDirectory(t *testing.T) {
	adapter := suite.NewAdapter(t)
	suite.mustWrite(t, adapter, "file.txt", "x")

	info := suite.mustStat(t, adapter, "")
	assert.Equal(t, storage.KindDirectory, info.Kind)
}

func (suite *AdapterTestSuite) testPathIsRelative(t *testing.T) {
	adapter := suite.NewAdapter(t)

	node := suite.mustGet(t, adapter, "a/b.txt")
	assert.Equal(t, "a/b.txt", node.Path().String())
}
