// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package dconfig

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.conf")
	require.NoError(t, os.WriteFile(path, []byte("name first\n"), 0o644))

	var mu sync.Mutex
	var lines []string

	w, err := NewWatcher(path, func(_ int, text string) error {
		mu.Lock()
		lines = append(lines, text)
		mu.Unlock()
		return nil
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Watch())

	mu.Lock()
	require.Equal(t, []string{"name first"}, lines)
	mu.Unlock()

	require.NoError(t, os.WriteFile(path, []byte("name second\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lines) >= 2 && lines[len(lines)-1] == "name second"
	}, 2*time.Second, 10*time.Millisecond)
}
