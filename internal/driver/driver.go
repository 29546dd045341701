// Package driver holds the registry of raw coverage producers. Each driver
// turns one dump file into RawCoverageData.
package driver

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/coverage"
)

// Options carries what a driver may need besides the dump itself.
type Options struct {
	// SourceDirectories are searched for source files referenced by
	// relative or foreign paths.
	SourceDirectories []string
}

// Driver defines the contract for all raw coverage producers.
type Driver interface {
	Name() string
	SupportsFile(filePath string) bool
	Parse(filePath string, opts Options) (*coverage.RawCoverageData, error)
}

var (
	mu                sync.RWMutex
	registeredDrivers []Driver
)

// Register adds a driver to the list of available drivers.
// This should be called by each driver implementation in its init() function.
func Register(d Driver) {
	mu.Lock()
	defer mu.Unlock()
	registeredDrivers = append(registeredDrivers, d)
}

// Drivers returns all registered drivers in registration order.
func Drivers() []Driver {
	mu.RLock()
	defer mu.RUnlock()
	return append([]Driver(nil), registeredDrivers...)
}

// Find returns the driver registered under name, ignoring case.
func Find(name string) (Driver, error) {
	for _, d := range Drivers() {
		if strings.EqualFold(d.Name(), name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no driver named %q", name)
}

// FindForFile attempts to find a suitable driver for the given file.
// It iterates through registered drivers and calls their SupportsFile method.
func FindForFile(filePath string) (Driver, error) {
	for _, d := range Drivers() {
		if d.SupportsFile(filePath) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no suitable driver found for file: %s", filePath)
}
