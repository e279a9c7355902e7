package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	a := New("itm")
	b := New("itm")
	require.True(t, strings.HasPrefix(a, "itm-"))
	require.NotEqual(t, a, b)
	require.Len(t, strings.Split(a, "-"), 3)
}

func TestClientKeyIsUUID(t *testing.T) {
	key := ClientKey()
	_, err := uuid.Parse(key)
	require.NoError(t, err)
	require.NotEqual(t, key, ClientKey())
}
