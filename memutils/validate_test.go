//go:build !debug_fixedheap

package memutils_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/fixedheap/memutils"
)

// Release builds carry no debug margin and treat every marker as valid.
func TestMagicValueIsNoOpInRelease(t *testing.T) {
	require.Equal(t, 0, memutils.DebugMargin)

	region := make([]byte, 64)
	memutils.WriteMagicValue(region, 16)
	require.Equal(t, make([]byte, 64), region)
	require.True(t, memutils.ValidateMagicValue(region, 16))
}
