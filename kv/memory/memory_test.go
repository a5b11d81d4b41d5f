package memory

import (
	"testing"

	"github.com/ytrtdfkgf/merkle-worldstate/kv"
	"github.com/ytrtdfkgf/merkle-worldstate/kv/dbtest"
)

func TestMemoryEnvironment(t *testing.T) {
	dbtest.TestEnvironmentSuite(t, func() kv.Environment {
		return New()
	})
}
