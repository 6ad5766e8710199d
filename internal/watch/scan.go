package watch

import (
	"context"
	"io/fs"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// ScanExisting walks root and feeds every regular file to the coordinator
// as a synthetic creation, so files present before the watch began flow
// through the same stability and cooldown gates as live ones. The walk
// runs alongside live event handling; workers bounds the observer
// goroutines; cancellation of ctx stops the pass early.
func ScanExisting(ctx context.Context, root string, workers int, c *Coordinator) error {
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	paths := make(chan string)

	g.Go(func() error {
		defer close(paths)
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				return nil
			}

			rel, rerr := filepath.Rel(root, path)
			if rerr == nil && Skip(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if !d.Type().IsRegular() {
				return nil
			}

			select {
			case paths <- path:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for path := range paths {
				c.Observe(path)
			}
			return nil
		})
	}

	return g.Wait()
}
