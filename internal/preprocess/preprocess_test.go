package preprocess

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obafela/doc-pipeline/constants"
	"github.com/obafela/doc-pipeline/internal/common"
)

func writeDOCX(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "doc.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestDetectFormatFromDeclared(t *testing.T) {
	f, err := DetectFormat("whatever.bin", constants.PDF)
	require.NoError(t, err)
	assert.Equal(t, constants.PDF, f)
}

func TestDetectFormatFromExtension(t *testing.T) {
	cases := map[string]constants.Format{
		"a.pdf":  constants.PDF,
		"b.PNG":  constants.PNG,
		"c.jpg":  constants.JPEG,
		"d.jpeg": constants.JPEG,
		"e.tiff": constants.TIFF,
		"f.docx": constants.DOCX,
	}
	for path, want := range cases {
		f, err := DetectFormat(path, "")
		require.NoError(t, err, path)
		assert.Equal(t, want, f, path)
	}
}

func TestDetectFormatRejectsUnknown(t *testing.T) {
	_, err := DetectFormat("report.csv", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnsupportedFormat))

	_, err = DetectFormat("report.pdf", constants.Format("csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnsupportedFormat))
}

func TestPreprocessImagePassesBytesThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0o644))

	p := New(Config{}, nil)
	format, pages, err := p.Preprocess(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, constants.PNG, format)
	require.Len(t, pages, 1)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, pages[0])
}

func TestPreprocessDOCXExtractsText(t *testing.T) {
	body := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t></w:r><w:r><w:t xml:space="preserve"> half.</w:t></w:r></w:p>
  </w:body>
</w:document>`
	path := writeDOCX(t, t.TempDir(), body)

	p := New(Config{}, nil)
	format, pages, err := p.Preprocess(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, constants.DOCX, format)
	require.Len(t, pages, 1)
	assert.Equal(t, "First paragraph.\nSecond half.", string(pages[0]))
}

func TestPreprocessDOCXNotAZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.docx")
	require.NoError(t, os.WriteFile(path, []byte("plainly not a zip"), 0o644))

	p := New(Config{}, nil)
	_, _, err := p.Preprocess(context.Background(), path, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCorrupt))
}

func TestPreprocessDOCXMissingBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("word/other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	p := New(Config{}, nil)
	_, _, err = p.Preprocess(context.Background(), path, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCorrupt))
}

type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)
}

func (f fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return f.run(ctx, name, args...)
}

func TestPreprocessPDFRenderFailureIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	p := New(Config{}, nil)
	p.runner = fakeRunner{run: func(context.Context, string, ...string) ([]byte, []byte, error) {
		return nil, []byte("Syntax Error: couldn't read xref table"), errors.New("exit status 1")
	}}

	_, _, err := p.Preprocess(context.Background(), path, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCorrupt))
}

func TestPreprocessPDFReadsRenderedPages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	p := New(Config{MaxPages: 2}, nil)
	p.runner = fakeRunner{run: func(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
		prefix := args[len(args)-1]
		for i, content := range []string{"page1", "page2", "page3"} {
			name := prefix + "-" + string(rune('1'+i)) + ".png"
			if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}}

	format, pages, err := p.Preprocess(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, constants.PDF, format)
	// page cap applies
	require.Len(t, pages, 2)
	assert.Equal(t, "page1", string(pages[0]))
	assert.Equal(t, "page2", string(pages[1]))
}
