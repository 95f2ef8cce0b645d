// Package testing flips the binaries into test mode. Test packages that build
// the cmd wiring import it for its side effect so no PostgreSQL or Redis
// connection is attempted.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

// TestModeEnv is read by app.InTestMode.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv(TestModeEnv, "1")
	})
}

func init() {
	ensureTestMode()
}

// TestMain can be assigned from a package's own TestMain.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
