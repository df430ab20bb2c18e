package constants

import "strings"

// Format is the canonical document format for a processing job.
type Format string

// Closed set of supported formats. Anything else is rejected before a job
// reaches the extraction stage.
const (
	PDF  Format = "PDF"
	PNG  Format = "PNG"
	JPEG Format = "JPEG"
	TIFF Format = "TIFF"
	DOCX Format = "DOCX"
)

// Formats holds the allowed values for the format field on a processing job.
var Formats = []Format{PDF, PNG, JPEG, TIFF, DOCX}

var extToFormat = map[string]Format{
	"pdf":  PDF,
	"png":  PNG,
	"jpg":  JPEG,
	"jpeg": JPEG,
	"tif":  TIFF,
	"tiff": TIFF,
	"docx": DOCX,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a normalized file extension to its Format.
// Returns "" for unsupported extensions.
func MapExtToFormat(ext string) Format {
	return extToFormat[NormalizeExt(ext)]
}

// IsImage reports whether the format is a raster image handled by the
// vision extraction path.
func (f Format) IsImage() bool {
	return f == PNG || f == JPEG || f == TIFF
}
