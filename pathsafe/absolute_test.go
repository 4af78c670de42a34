// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package pathsafe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAbsolute_CollapsesDotAndDotDot(t *testing.T) {
	got, err := Absolute("/etc/.././.././../usr")
	require.NoError(t, err)
	require.Equal(t, "/usr", got)
}

func TestAbsolute_CollapsesRepeatedSlashes(t *testing.T) {
	got, err := Absolute("//usr//local//bin")
	require.NoError(t, err)
	require.Equal(t, "/usr/local/bin", got)
}

func TestAbsolute_Root(t *testing.T) {
	got, err := Absolute("/")
	require.NoError(t, err)
	require.Equal(t, "/", got)
}

func TestAbsolute_RejectsEmpty(t *testing.T) {
	_, err := Absolute("")
	require.Error(t, err)
}

func TestAbsolute_RelativeUsesCwd(t *testing.T) {
	got, err := Absolute("foo/bar")
	require.NoError(t, err)
	require.Contains(t, got, "/foo/bar")
}
