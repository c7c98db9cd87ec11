package llm

import (
	"context"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// CallLogger records the lifecycle of chat completion calls.
type CallLogger interface {
	Started(ctx context.Context, model string, messages int)
	Finished(ctx context.Context, model string, took time.Duration, usage Usage, finishReason string)
	// Failed is called once per failed attempt.
	Failed(ctx context.Context, model string, attempt int, err error)
	// Undecodable reports a completion that did not fit the requested schema.
	Undecodable(ctx context.Context, model string, content string, err error)
}

var logLevels = map[string]uint32{
	"debug":  logx.DebugLevel,
	"info":   logx.InfoLevel,
	"error":  logx.ErrorLevel,
	"severe": logx.SevereLevel,
	"fatal":  logx.SevereLevel,
}

const undecodableSnippetRunes = 200

type logxCallLogger struct{}

// NewCallLogger returns a CallLogger on go-zero's logx. A known level is
// applied process wide; anything else leaves the logx level untouched.
func NewCallLogger(level string) CallLogger {
	if lvl, ok := logLevels[strings.ToLower(strings.TrimSpace(level))]; ok {
		logx.SetLevel(lvl)
	}
	return logxCallLogger{}
}

func (logxCallLogger) Started(ctx context.Context, model string, messages int) {
	logx.WithContext(ctx).Debugw("llm: chat started",
		logx.Field("model", model),
		logx.Field("messages", messages))
}

func (logxCallLogger) Finished(ctx context.Context, model string, took time.Duration, usage Usage, finishReason string) {
	logx.WithContext(ctx).Infow("llm: chat finished",
		logx.Field("model", model),
		logx.Field("duration_ms", took.Milliseconds()),
		logx.Field("prompt_tokens", usage.PromptTokens),
		logx.Field("completion_tokens", usage.CompletionTokens),
		logx.Field("finish_reason", finishReason))
}

func (logxCallLogger) Failed(ctx context.Context, model string, attempt int, err error) {
	failure := ClassifyFailure(err)
	fields := []logx.LogField{
		logx.Field("model", model),
		logx.Field("attempt", attempt),
		logx.Field("failure", failure.String()),
	}
	if failure == FailurePermanent {
		logx.WithContext(ctx).Errorw("llm: chat failed: "+err.Error(), fields...)
		return
	}
	logx.WithContext(ctx).Sloww("llm: chat attempt failed: "+err.Error(), fields...)
}

func (logxCallLogger) Undecodable(ctx context.Context, model string, content string, err error) {
	logx.WithContext(ctx).Errorw("llm: undecodable structured answer: "+err.Error(),
		logx.Field("model", model),
		logx.Field("content", snippet(content, undecodableSnippetRunes)))
}

func snippet(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
