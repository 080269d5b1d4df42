package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFromCtxWithoutLogger(t *testing.T) {
	logger := FromCtx(context.Background())
	assert.NotNil(t, logger)
	// Must not panic on a bare context.
	logger.Info().Msg("discarded")
}

func TestComponentTagsEvents(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))

	logger := Component(ctx, "engine")
	logger.Info().Msg("turn complete")

	assert.Contains(t, buf.String(), `"component":"engine"`)
	assert.Contains(t, buf.String(), `"message":"turn complete"`)
}
