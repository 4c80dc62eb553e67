package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRevision(t *testing.T) {
	rev, err := parseRevision("12")
	require.NoError(t, err)
	assert.Equal(t, 12, rev)

	rev, err = parseRevision("r3")
	require.NoError(t, err)
	assert.Equal(t, 3, rev)

	for _, bad := range []string{"", "-1", "head", "r"} {
		_, err := parseRevision(bad)
		assert.Error(t, err, bad)
	}
}
