package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittodav/pkg/expand"
	"github.com/marmos91/dittodav/pkg/storage"
)

// AdapterTestSuite checks the storage.Adapter and storage.Node contract. It
// only uses the public interfaces, so it runs unchanged against every
// backend.
//
// Usage:
//
//	func TestMyAdapter(t *testing.T) {
//	    suite := &storagetesting.AdapterTestSuite{
//	        NewAdapter: func(t *testing.T) storage.Adapter {
//	            return myadapter.New(...)
//	        },
//	    }
//	    suite.Run(t)
//	}
type AdapterTestSuite struct {
	// NewAdapter returns an adapter over an empty root. It is called once per
	// test.
	NewAdapter func(t *testing.T) storage.Adapter

	// Vars are passed to every Get call.
	Vars expand.Vars
}

// Run executes all tests in the suite.
func (suite *AdapterTestSuite) Run(t *testing.T) {
	t.Run("Resolution", suite.RunResolutionTests)
	t.Run("ReadWrite", suite.RunReadWriteTests)
	t.Run("Directories", suite.RunDirectoryTests)
	t.Run("Mutations", suite.RunMutationTests)
}

func testContext() context.Context {
	return context.Background()
}
