// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package lim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPath_ReturnsFallback(t *testing.T) {
	require.Equal(t, PathFallback, Path())
}

func TestOpen_Positive(t *testing.T) {
	n := Open()
	require.Greater(t, n, 0)
}
