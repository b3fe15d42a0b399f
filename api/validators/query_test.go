package validators

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
)

func TestParseQueryInt(t *testing.T) {
	limit, err := ParseQueryInt(httptest.NewRequest("GET", "/history", nil), "limit", 20, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, 20, limit)

	limit, err = ParseQueryInt(httptest.NewRequest("GET", "/history?limit=5", nil), "limit", 20, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, 5, limit)

	_, err = ParseQueryInt(httptest.NewRequest("GET", "/history?limit=500", nil), "limit", 20, 1, 200)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryInt(httptest.NewRequest("GET", "/history?limit=ten", nil), "limit", 20, 1, 200)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryBool(t *testing.T) {
	confirmed, err := ParseQueryBool(httptest.NewRequest("DELETE", "/held/1", nil), "confirm")
	require.NoError(t, err)
	assert.False(t, confirmed)

	confirmed, err = ParseQueryBool(httptest.NewRequest("DELETE", "/held/1?confirm=true", nil), "confirm")
	require.NoError(t, err)
	assert.True(t, confirmed)

	_, err = ParseQueryBool(httptest.NewRequest("DELETE", "/held/1?confirm=yes", nil), "confirm")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
