package summary

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFolder(t *testing.T, files map[string]string) (root, folderID string) {
	t.Helper()

	root = t.TempDir()
	folderID = "2041"
	folderPath := filepath.Join(root, folderID)
	require.NoError(t, os.MkdirAll(folderPath, 0o755))

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(folderPath, name), []byte(content), 0o644))
	}
	return root, folderID
}

func TestOpenFolderLoadsSupportedDocuments(t *testing.T) {
	root, folderID := writeTestFolder(t, map[string]string{
		"note.md":    "# Note\n\nplain markdown",
		"report.txt": "plain text report",
		"image.png":  "binary junk",
	})

	dao, err := OpenFolder(context.Background(), root, folderID)

	require.NoError(t, err)
	assert.Equal(t, 2, dao.Len(), "unsupported extensions are skipped")
	assert.Equal(t, []string{"note", "report"}, dao.DocumentIDs())
}

func TestOpenFolderConvertsHTMLToMarkdown(t *testing.T) {
	root, folderID := writeTestFolder(t, map[string]string{
		"page.html": "<h1>Discharge Summary</h1><p>Patient was discharged.</p>",
	})

	dao, err := OpenFolder(context.Background(), root, folderID)

	require.NoError(t, err)
	document, found := dao.Document("page")
	require.True(t, found)
	assert.Contains(t, document.Markdown, "# Discharge Summary")
	assert.Contains(t, document.Markdown, "Patient was discharged.")
	assert.NotContains(t, document.Markdown, "<h1>")
}

func TestOpenFolderMissingDirectory(t *testing.T) {
	_, err := OpenFolder(context.Background(), t.TempDir(), "nope")

	assert.Error(t, err)
}

func TestOpenFolderEmptyFolder(t *testing.T) {
	root, folderID := writeTestFolder(t, nil)

	dao, err := OpenFolder(context.Background(), root, folderID)

	require.NoError(t, err)
	assert.Equal(t, 0, dao.Len())
}

func TestDocumentTableShape(t *testing.T) {
	root, folderID := writeTestFolder(t, map[string]string{
		"a.md": "one",
		"b.md": "two",
	})

	dao, err := OpenFolder(context.Background(), root, folderID)
	require.NoError(t, err)

	table := dao.Table()
	assert.Equal(t, 2, table.Rows())
	assert.Equal(t, 3, table.Cols())
	assert.Equal(t, []string{"document_id", "path", "markdown"}, table.Columns())
}

func TestDAODumpFields(t *testing.T) {
	root, folderID := writeTestFolder(t, map[string]string{"a.md": "one"})

	dao, err := OpenFolder(context.Background(), root, folderID)
	require.NoError(t, err)

	fields := dao.DumpFields()
	assert.Equal(t, folderID, fields["folder_id"])
	assert.Equal(t, []string{"a"}, fields["document_ids"])
	assert.IsType(t, DocumentTable{}, fields["table"])
}
