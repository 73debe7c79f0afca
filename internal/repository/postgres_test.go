package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeIdentity(t *testing.T) {
	require.Equal(t, "user@example.com", NormalizeIdentity("  User@Example.COM "))
	require.Equal(t, "", NormalizeIdentity("   "))
}
