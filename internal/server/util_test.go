package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeBase(t *testing.T) {
	require.Equal(t, "", sanitizeBase(""))
	require.Equal(t, "", sanitizeBase("/"))
	require.Equal(t, "/craftherd", sanitizeBase("craftherd"))
	require.Equal(t, "/craftherd", sanitizeBase("/craftherd/"))
	require.Equal(t, "/a/b", sanitizeBase(" /a/b "))
}

func TestIsSafeAbsPath(t *testing.T) {
	require.True(t, isSafeAbsPath(""))
	require.True(t, isSafeAbsPath("/srv/mc"))
	require.True(t, isSafeAbsPath("/"))
	require.False(t, isSafeAbsPath("srv/mc"))
	require.False(t, isSafeAbsPath("/srv/../etc"))
	require.False(t, isSafeAbsPath("./mc"))
}
