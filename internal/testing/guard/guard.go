package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("GATEKIT_TEST_MODE") == "" {
			_ = os.Setenv("GATEKIT_TEST_MODE", "1")
		}
	})
}
