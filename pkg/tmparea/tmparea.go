// Package tmparea manages the per-run scratch directory referenced from
// test plans with the <tmp> placeholder.
package tmparea

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Placeholder is the literal token plans use to address the run's
// scratch directory.
const Placeholder = "<tmp>"

// Manager hands out one scratch directory per run. The directory is
// created lazily on the first Resolve or Dir call, so runs whose steps
// never mention <tmp> leave no trace on disk.
type Manager struct {
	base string

	mu      sync.Mutex
	dir     string
	created bool
}

// New returns a manager rooted at base. The base itself is created on
// demand together with the run directory.
func New(base string) *Manager {
	return &Manager{base: base}
}

// Dir returns the run's scratch directory, creating it on first use.
// Every call within one run returns the same path.
func (m *Manager) Dir() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		return m.dir, nil
	}
	stamp := time.Now().Format("20060102_150405")
	dir := filepath.Join(m.base, stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp area: %w", err)
	}
	m.dir = dir
	m.created = true
	return dir, nil
}

// Resolve replaces every <tmp> occurrence in s with the run directory.
// Strings without the placeholder come back unchanged and do not
// trigger directory creation.
func (m *Manager) Resolve(s string) (string, error) {
	if !strings.Contains(s, Placeholder) {
		return s, nil
	}
	dir, err := m.Dir()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(s, Placeholder, dir), nil
}

// Created reports whether the run directory was materialized.
func (m *Manager) Created() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

// Cleanup removes the run directory and everything in it. Calling it
// before any resolution is a no-op.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		return nil
	}
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("cleanup tmp area: %w", err)
	}
	m.created = false
	m.dir = ""
	return nil
}
