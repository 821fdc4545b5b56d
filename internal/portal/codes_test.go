package portal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/harvest"
)

func TestLoadSourceCodesJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "press_code.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"press": "경향신문", "code": "01100101"},
  {"press": "KBS", "code": "08100201"}
]`), 0o600))

	codes, err := LoadSourceCodes(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"01100101"}, codes["경향신문"])

	resolved, err := codes.Resolve(harvest.Batch("KBS", "경향신문"))
	require.NoError(t, err)
	assert.Equal(t, []string{"08100201", "01100101"}, resolved)
}

func TestParseSourceCodesYAML(t *testing.T) {
	t.Parallel()

	codes, err := ParseSourceCodes([]byte("- press: MBC\n  code: \"08100301\"\n- press: MBC\n  code: \"08100302\"\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"08100301", "08100302"}, codes["MBC"])
}

func TestParseSourceCodesRejectsIncompleteEntries(t *testing.T) {
	t.Parallel()

	_, err := ParseSourceCodes([]byte(`[{"press": "MBC"}]`))
	require.Error(t, err)
}

func TestResolveUnknownPublisherIsFatal(t *testing.T) {
	t.Parallel()

	codes, err := ParseSourceCodes([]byte(`[{"press": "MBC", "code": "1"}]`))
	require.NoError(t, err)

	_, err = codes.Resolve(harvest.Single("SBS"))
	require.ErrorIs(t, err, harvest.ErrUnknownPublisher)
	assert.True(t, harvest.IsFatal(err))
}
