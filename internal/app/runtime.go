package app

import (
	"os"
	"sync"
)

const testModeEnv = "MERIDIAN_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether runtime side effects (listening sockets, the
// job scheduler) should be skipped. Read once; set it before the process
// starts.
func InTestMode() bool {
	return inTestMode()
}
