package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectChatKeyOrderIndependent(t *testing.T) {
	assert.Equal(t, DirectChatKey(1001, 2002), DirectChatKey(2002, 1001))
	assert.Equal(t, "1001:2002", DirectChatKey(2002, 1001))
	assert.Equal(t, "1:2", DirectChatKey(1, 2))
}

func TestDirectChatKeyDistinctPairs(t *testing.T) {
	assert.NotEqual(t, DirectChatKey(1, 2), DirectChatKey(1, 3))
	// no ambiguity between e.g. {1, 23} and {12, 3}
	assert.NotEqual(t, DirectChatKey(1, 23), DirectChatKey(12, 3))
}
