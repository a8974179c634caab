// Package guard forces test mode for packages whose main would otherwise
// reach real infrastructure.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LEDGERDESK_TEST_MODE") == "" {
			_ = os.Setenv("LEDGERDESK_TEST_MODE", "1")
		}
	})
}
