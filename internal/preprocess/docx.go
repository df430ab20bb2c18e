package preprocess

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"strings"

	"github.com/obafela/doc-pipeline/internal/common"
)

// readDOCXText pulls the paragraph text out of a DOCX file. A DOCX is a
// zip container; the body lives in word/document.xml as WordprocessingML
// with the visible text inside <w:t> elements and paragraphs as <w:p>.
func readDOCXText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", common.NewAppError("DOCX_OPEN",
			"not a readable zip container", common.ErrCorrupt)
	}
	defer func() { _ = zr.Close() }()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", common.NewAppError("DOCX_BODY_MISSING",
			"word/document.xml not found", common.ErrCorrupt)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", common.WrapError(err, "open document body")
	}
	defer func() { _ = rc.Close() }()

	text, err := decodeDocumentXML(rc)
	if err != nil {
		return "", common.NewAppError("DOCX_BODY_DECODE",
			"malformed document body", common.ErrCorrupt)
	}
	return text, nil
}

func decodeDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "br", "tab":
				b.WriteByte(' ')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(el)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
