package app

import "os"

// TestModeEnv, when set to "1", tells the binaries to exit before starting
// servers or workers. CI smoke tests use it to verify wiring without
// touching Postgres or Redis.
const TestModeEnv = "SAHELI_TEST_MODE"

// InTestMode reports whether the process should skip runtime side effects.
func InTestMode() bool {
	return os.Getenv(TestModeEnv) == "1"
}
