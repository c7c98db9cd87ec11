package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCallLoggerMethodsDoNotPanic(t *testing.T) {
	calls := NewCallLogger("error")
	ctx := context.Background()

	require.NotPanics(t, func() {
		calls.Started(ctx, "gpt-4o-mini", 2)
		calls.Finished(ctx, "gpt-4o-mini", 1500*time.Millisecond, Usage{PromptTokens: 10, CompletionTokens: 4}, "stop")
		calls.Failed(ctx, "gpt-4o-mini", 1, apiError(http.StatusServiceUnavailable, nil))
		calls.Failed(ctx, "gpt-4o-mini", 3, errors.New("invalid api key"))
		calls.Undecodable(ctx, "gpt-4o-mini", `{"operation":`, errors.New("unexpected end of JSON input"))
	})
}

func TestNewCallLoggerUnknownLevel(t *testing.T) {
	require.NotNil(t, NewCallLogger("verbose"))
	require.NotNil(t, NewCallLogger(""))
}

func TestSnippet(t *testing.T) {
	require.Equal(t, "abc", snippet("  abc \n", 5))
	long := strings.Repeat("é", 10)
	require.Equal(t, strings.Repeat("é", 4)+"...", snippet(long, 4))
}
