package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracing_Disabled_ReturnsNoopTracer(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tp.Tracer())

	ctx, span := StartPipelineSpan(context.Background(), tp.Tracer(), "acme", "concise")
	defer span.End()
	assert.NotNil(t, ctx)

	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestSpanHelpers_DoNotPanic(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)
	tracer := tp.Tracer()

	_, cacheSpan := StartCacheSpan(context.Background(), tracer, "get")
	cacheSpan.End()

	_, searchSpan := StartSourceSearchSpan(context.Background(), tracer, "jira")
	searchSpan.End()

	_, llmSpan := StartLLMSpan(context.Background(), tracer, "gpt-test")
	RecordError(llmSpan, assert.AnError)
	llmSpan.End()
}
