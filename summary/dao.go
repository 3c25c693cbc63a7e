package summary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentReads bounds parallel document loading per folder.
const maxConcurrentReads = 8

// Document is one loaded folder entry, with HTML sources already converted
// to markdown.
type Document struct {
	ID       string
	Path     string
	Markdown string
}

// FolderDAO is the read-only data access handle for one folder of source
// documents. It is built once at the start of a run and safely read
// concurrently by all branches.
type FolderDAO struct {
	folderID  string
	documents []Document
}

// OpenFolder loads every supported document under root/folderID. Markdown
// and text files are read verbatim; HTML files are converted to markdown.
// Documents load concurrently and are kept sorted by ID so downstream
// output is deterministic.
func OpenFolder(ctx context.Context, root, folderID string) (*FolderDAO, error) {
	folderPath := filepath.Join(root, folderID)

	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open folder %q: %w", folderPath, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".md", ".txt", ".html", ".htm":
			paths = append(paths, filepath.Join(folderPath, entry.Name()))
		}
	}

	documents := make([]Document, len(paths))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentReads)

	for index, path := range paths {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			document, err := loadDocument(path)
			if err != nil {
				return err
			}
			documents[index] = document
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load documents from %q: %w", folderPath, err)
	}

	sort.Slice(documents, func(left, right int) bool {
		return documents[left].ID < documents[right].ID
	})

	return &FolderDAO{folderID: folderID, documents: documents}, nil
}

func loadDocument(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read %q: %w", path, err)
	}

	content := string(raw)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		markdown, err := htmltomarkdown.ConvertString(content)
		if err != nil {
			return Document{}, fmt.Errorf("failed to convert %q to markdown: %w", path, err)
		}
		content = markdown
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	return Document{ID: id, Path: path, Markdown: content}, nil
}

// FolderID returns the folder this DAO was opened for.
func (dao *FolderDAO) FolderID() string {
	return dao.folderID
}

// Len returns the number of loaded documents.
func (dao *FolderDAO) Len() int {
	return len(dao.documents)
}

// Documents returns the loaded documents in ID order.
func (dao *FolderDAO) Documents() []Document {
	return dao.documents
}

// Document returns the document with the given ID.
func (dao *FolderDAO) Document(id string) (Document, bool) {
	for _, document := range dao.documents {
		if document.ID == id {
			return document, true
		}
	}
	return Document{}, false
}

// DocumentIDs returns the sorted unique document IDs.
func (dao *FolderDAO) DocumentIDs() []string {
	ids := make([]string, 0, len(dao.documents))
	seen := make(map[string]bool, len(dao.documents))
	for _, document := range dao.documents {
		if seen[document.ID] {
			continue
		}
		seen[document.ID] = true
		ids = append(ids, document.ID)
	}
	return ids
}

// Table returns the tabular view used by trace snapshots.
func (dao *FolderDAO) Table() DocumentTable {
	return DocumentTable{dao: dao}
}

// DumpFields exposes the DAO to dotted-path snapshot resolution without
// reflection over its unexported fields.
func (dao *FolderDAO) DumpFields() map[string]any {
	return map[string]any{
		"folder_id":    dao.folderID,
		"document_ids": dao.DocumentIDs(),
		"table":        dao.Table(),
	}
}

// DocumentTable is a row/column view of the loaded documents. It satisfies
// the tabular summarization contract: snapshots record its dimensions and
// column names, never document contents.
type DocumentTable struct {
	dao *FolderDAO
}

func (table DocumentTable) Rows() int {
	return table.dao.Len()
}

func (table DocumentTable) Cols() int {
	return len(table.Columns())
}

func (table DocumentTable) Columns() []string {
	return []string{"document_id", "path", "markdown"}
}
