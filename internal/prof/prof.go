// Package prof writes runtime profiles of the zipmount CLI.
package prof

import (
	"os"
	"runtime"
	"runtime/pprof"
)

// StartCPU starts a CPU profile written to path. The returned func stops it.
func StartCPU(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err = pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		pprof.StopCPUProfile()
		_ = f.Close()
	}, nil
}

// WriteHeap writes a heap profile to path, after a garbage collection
func WriteHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	runtime.GC()
	return pprof.Lookup("heap").WriteTo(f, 0)
}
