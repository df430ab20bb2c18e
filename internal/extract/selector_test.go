package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obafela/doc-pipeline/constants"
	"github.com/obafela/doc-pipeline/internal/common"
)

func TestSelectDirectTextForDOCX(t *testing.T) {
	s, err := Select(constants.DOCX, 1024)
	require.NoError(t, err)
	assert.Equal(t, StrategyDirectText, s)
}

func TestSelectVisionForScannedFormats(t *testing.T) {
	for _, f := range []constants.Format{constants.PDF, constants.PNG, constants.JPEG, constants.TIFF} {
		s, err := Select(f, 1024)
		require.NoError(t, err, "format %s", f)
		assert.Equal(t, StrategyVision, s, "format %s", f)
	}
}

func TestSelectRejectsUnknownFormat(t *testing.T) {
	_, err := Select(constants.Format("csv"), 1024)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnsupportedFormat))
}

func TestSelectIsDeterministic(t *testing.T) {
	first, err := Select(constants.PDF, 10)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		s, err := Select(constants.PDF, int64(i*1000000))
		require.NoError(t, err)
		assert.Equal(t, first, s)
	}
}
