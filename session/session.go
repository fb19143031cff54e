// Package session holds process-wide flags that are set exactly once at
// startup and read-only afterwards.
package session

import (
	"errors"
	"sync"
)

// ErrAlreadyInitialized is returned when Init is called more than once.
var ErrAlreadyInitialized = errors.New("session already initialized")

var (
	mu           sync.RWMutex
	initialized  bool
	devMode      bool
	manualSubmit bool
)

// Init sets the session flags. Only the first call succeeds; any later
// call returns ErrAlreadyInitialized without changing the flags.
func Init(dev, manual bool) error {
	mu.Lock()
	defer mu.Unlock()
	if initialized {
		return ErrAlreadyInitialized
	}
	devMode = dev
	manualSubmit = manual
	initialized = true
	return nil
}

// DevMode reports whether the process runs with the --dev flag.
func DevMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return devMode
}

// ManualSubmit reports whether the manual-submit flag was set at startup.
func ManualSubmit() bool {
	mu.RLock()
	defer mu.RUnlock()
	return manualSubmit
}

// Initialized reports whether Init has been called.
func Initialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return initialized
}

// Reset clears the session state. This is NOT thread-safe and should only
// be used in tests.
func Reset() {
	initialized = false
	devMode = false
	manualSubmit = false
}
