package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageRegistry_WindowsAreOrdered(t *testing.T) {
	require.Len(t, StageRegistry, len(StageOrder))

	prevEnd := 0
	for i, name := range StageOrder {
		def, ok := StageRegistry[name]
		require.True(t, ok, "missing definition for %s", name)
		assert.Equal(t, name, def.Name)
		assert.LessOrEqual(t, def.Start, def.End, name)
		assert.Greater(t, def.Start, prevEnd, name)
		assert.Less(t, def.End, 100, name)
		assert.NotEmpty(t, def.StartDetails)
		assert.NotEmpty(t, def.FailurePrefix)
		if i > 0 {
			assert.Equal(t, []Stage{StageOrder[i-1]}, def.Dependencies)
		}
		prevEnd = def.End
	}
}

func TestStageError(t *testing.T) {
	cause := errors.New("xref table not found")
	err := &StageError{Stage: StageExtracting, Err: cause}

	assert.Equal(t, "Error extracting text from PDF: xref table not found", err.Error())
	assert.ErrorIs(t, err, cause)
}
