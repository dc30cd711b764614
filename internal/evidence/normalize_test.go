package evidence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURLDedupsSchemeHostCaseAndTrailingSlash(t *testing.T) {
	require.Equal(t, NormalizeURL("https://Example.com/a/"), NormalizeURL("HTTPS://example.com/a"))
}

func TestNormalizeURLDropsFragment(t *testing.T) {
	require.Equal(t, "https://example.com/a", NormalizeURL("https://example.com/a#section-2"))
}

func TestNormalizeURLEmptyIsEmpty(t *testing.T) {
	require.Equal(t, "", NormalizeURL(""))
}

func TestNormalizeTitleStripsPunctuationAndCollapsesSpace(t *testing.T) {
	require.Equal(t, "export controls explained", NormalizeTitle("Export Controls, Explained!"))
}

func TestEvidenceIdentityUsesNormalizedFields(t *testing.T) {
	a := Evidence{URL: "https://Example.com/a/", Title: "A Title."}
	b := Evidence{URL: "https://example.com/a", Title: "a title"}
	au, at := a.Identity()
	bu, bt := b.Identity()
	require.Equal(t, au, bu)
	require.Equal(t, at, bt)
}
