package webdav

import (
	"context"

	"github.com/marmos91/dittodav/pkg/storage"
)

// DepthInfinity walks the whole subtree.
const DepthInfinity = -1

// entry is a visited node with the attributes read during the walk.
type entry struct {
	node storage.Node
	info *storage.Info
}

// parseDepth maps a Depth header to a traversal depth. Anything other than
// "0" or "1" means infinity.
func parseDepth(header string) int {
	switch header {
	case "0":
		return 0
	case "1":
		return 1
	default:
		return DepthInfinity
	}
}

// traverse walks the tree below node depth-first.
//
// Directories are expanded while depth allows; depth drops by one per level
// except DepthInfinity, which propagates unchanged. Results list every
// visited node with a parent before its children. visit, when set, runs
// after a node's children were visited, so a directory is visited after
// everything it contains. A visit error stops the walk.
//
// Children that vanish between listing and stat are skipped.
func traverse(ctx context.Context, node storage.Node, info *storage.Info, depth int, visit func(entry) error) ([]entry, error) {
	var results []entry
	err := walk(ctx, entry{node: node, info: info}, depth, visit, &results)
	return results, err
}

func walk(ctx context.Context, e entry, depth int, visit func(entry) error, results *[]entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	*results = append(*results, e)

	if e.info.IsDir() && depth != 0 {
		childDepth := depth
		if depth != DepthInfinity {
			childDepth = depth - 1
		}

		children, err := e.node.Children(ctx)
		if err != nil {
			return err
		}

		for _, child := range children {
			info, err := storage.StatIfExists(ctx, child)
			if err != nil {
				return err
			}
			if info == nil {
				continue
			}
			if err := walk(ctx, entry{node: child, info: info}, childDepth, visit, results); err != nil {
				return err
			}
		}
	}

	if visit != nil {
		return visit(e)
	}
	return nil
}
