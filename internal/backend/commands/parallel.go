package commands

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ExecuteAll runs every command on the same input using up to GOMAXPROCS workers.
// Results are returned in command order. The first failure stops the remaining work
// and is returned wrapped with the failing command's name.
func ExecuteAll(input []byte, cmds ...Command) ([][]byte, error) {
	results := make([][]byte, len(cmds))
	errs := make([]error, len(cmds))

	failed := parallelForStop(len(cmds), func(i int) bool {
		results[i], errs[i] = cmds[i].Execute(input)
		return errs[i] != nil
	})
	if failed {
		for i, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("%s: %w", cmds[i].Name(), err)
			}
		}
	}
	return results, nil
}

// parallelForStop runs fn(i) over i in [0, n) using up to GOMAXPROCS workers.
// If any fn invocation returns true, all workers stop early and the function returns true.
func parallelForStop(n int, fn func(i int) bool) bool {
	if n <= 0 {
		return false
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}

	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := w; i < n && !stop.Load(); i += workers {
				if fn(i) {
					stop.Store(true)
					return
				}
			}
		}()
	}

	wg.Wait()
	return stop.Load()
}
