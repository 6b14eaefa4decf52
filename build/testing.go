package build

import (
	"os"
	"path/filepath"
	"time"
)

var (
	// ProxyTestingDir is the directory that contains all of the files and
	// folders created during testing.
	ProxyTestingDir = filepath.Join(os.TempDir(), "NexoedgeProxyTesting")
)

// TempDir joins the provided directories and prefixes them with the proxy
// testing directory, wiping any stale contents from a previous run.
func TempDir(dirs ...string) string {
	path := filepath.Join(ProxyTestingDir, filepath.Join(dirs...))
	_ = os.RemoveAll(path)
	return path
}

// Retry calls fn up to tries times, sleeping durationBetweenAttempts between
// attempts, returning nil the first time fn succeeds. Used by the advisory
// lock acquisition loop (spec §5) and chunk I/O retry callers (spec §4.2).
func Retry(tries int, durationBetweenAttempts time.Duration, fn func() error) (err error) {
	for i := 1; i < tries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		time.Sleep(durationBetweenAttempts)
	}
	return fn()
}
