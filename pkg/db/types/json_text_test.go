package dbtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONTextScanAndValue(t *testing.T) {
	doc, err := NewJSONText(map[string]any{"status": "pending"})
	require.NoError(t, err)

	value, err := doc.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"status":"pending"}`, value)

	var scanned JSONText
	require.NoError(t, scanned.Scan([]byte(`{"status":"completed"}`)))

	var out struct {
		Status string `json:"status"`
	}
	require.NoError(t, scanned.Decode(&out))
	assert.Equal(t, "completed", out.Status)

	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)
	assert.Error(t, scanned.Scan(42))
}

func TestJSONTextRejectsInvalidDocument(t *testing.T) {
	_, err := JSONText(`{"broken"`).Value()
	assert.Error(t, err)
}
