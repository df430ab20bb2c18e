package extract

import (
	"fmt"

	"github.com/obafela/doc-pipeline/constants"
	"github.com/obafela/doc-pipeline/internal/common"
)

// Select maps a document format to its extraction strategy. The mapping
// is a fixed lookup so the same input always yields the same strategy:
// DOCX carries its own text, everything else goes through the vision
// model. sizeBytes is part of the contract for future size-based rules
// but does not influence the choice today.
func Select(format constants.Format, sizeBytes int64) (Strategy, error) {
	switch format {
	case constants.DOCX:
		return StrategyDirectText, nil
	case constants.PDF, constants.PNG, constants.JPEG, constants.TIFF:
		return StrategyVision, nil
	default:
		return "", common.NewAppError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("no extraction strategy for format %q", format),
			common.ErrUnsupportedFormat)
	}
}
