package dtls

import (
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gotolive/securemedia/rtc/logger"
	"github.com/pion/logging"
)

var (
	initOnce      sync.Once
	initErr       error
	initDone      atomic.Bool
	loggerFactory logging.LoggerFactory
)

// Initialize prepares the process-wide crypto state: it probes the entropy
// source every key and certificate depends on and installs the shared engine
// logger factory. It is idempotent, every constructor in this package calls
// it, calling it again is a no-op.
func Initialize() error {
	initOnce.Do(func() {
		var probe [16]byte
		if _, err := rand.Read(probe[:]); err != nil {
			initErr = fmt.Errorf("entropy source unavailable: %s", err)
			return
		}
		loggerFactory = logger.NewFactory(logger.LevelWarn)
		initDone.Store(true)
	})
	return initErr
}

// MustInitialize is for process startup, a failure here means no handshake
// or protection operation can ever succeed.
func MustInitialize() {
	if err := Initialize(); err != nil {
		panic(err)
	}
}

func IsInitialized() bool {
	return initDone.Load()
}
