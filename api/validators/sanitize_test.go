package validators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStringCountsRunes(t *testing.T) {
	assert.Equal(t, "Wanjirũ", SanitizeString("  Wanjirũ Kamau ", 7))
	assert.Equal(t, "abc", SanitizeString(" abc ", 0))
}

func TestSanitizeReceiptText(t *testing.T) {
	assert.Equal(t, "Mama Mboga", SanitizeReceiptText("  Mama \t  Mboga\x07 ", 120, false))
	assert.Equal(t, "deliver after 5pm\ngate B", SanitizeReceiptText("deliver after 5pm \n\n  gate   B", 500, true))
	assert.Equal(t, "line one line two", SanitizeReceiptText("line one\nline two", 500, false))
	assert.Equal(t, "abcde", SanitizeReceiptText("abcdefgh", 5, false))
}
