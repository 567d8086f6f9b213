package tasks

import (
	"context"
	"errors"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ravi-parthasarathy/caseflow/pkg/pipeline"
)

const defaultMaxTokens = 1024

// Default system prompts for the LLM-backed tasks.
const (
	TranslatePrompt = "You translate support case records. The user message is a change event as JSON. " +
		"Reply with the case subject and description translated to English, as plain text."
	ClassifyPrompt = "You classify support case records. The user message is a change event as JSON. " +
		"Reply with a single category label for the case."
)

// ClaudeTask answers a task invocation with a Claude completion over the
// event detail. Its result is
//
//	{"statusCode": 200, "body": "<text>", "model": "...", "stop_reason": "..."}
//
// with statusCode 204 when the model produced no text.
type ClaudeTask struct {
	sdk       anthropicsdk.Client
	model     string
	system    string
	maxTokens int64
}

// NewClaudeTask creates a ClaudeTask. With no options the SDK reads
// ANTHROPIC_API_KEY from the environment.
func NewClaudeTask(model, system string, opts ...option.RequestOption) *ClaudeTask {
	// The invoker owns retries; the SDK must not retry underneath it.
	opts = append([]option.RequestOption{option.WithMaxRetries(0)}, opts...)
	return &ClaudeTask{
		sdk:       anthropicsdk.NewClient(opts...),
		model:     model,
		system:    system,
		maxTokens: defaultMaxTokens,
	}
}

func (t *ClaudeTask) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	detail := gjson.GetBytes(payload, "detail").Raw
	if detail == "" {
		return nil, pipeline.NewTaskError(pipeline.KindTaskFailed, "payload has no detail", nil)
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(t.model),
		MaxTokens: t.maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(detail)),
		},
	}
	if t.system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: t.system}}
	}

	msg, err := t.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}

	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}

	status := pipeline.StatusOK
	if strings.TrimSpace(text.String()) == "" {
		status = 204
	}
	out, err := sjson.SetBytes([]byte(`{}`), "statusCode", status)
	if err == nil {
		out, err = sjson.SetBytes(out, "body", text.String())
	}
	if err == nil {
		out, err = sjson.SetBytes(out, "model", string(msg.Model))
	}
	if err == nil {
		out, err = sjson.SetBytes(out, "stop_reason", string(msg.StopReason))
	}
	if err != nil {
		return nil, pipeline.NewTaskError(pipeline.KindTaskFailed, "encode result", err)
	}
	return out, nil
}

// mapError classifies Anthropic API failures for retry.
func mapError(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return pipeline.NewTaskError(pipeline.KindTooManyRequests, "anthropic rate limited", err)
		case 503, 529:
			return pipeline.NewTaskError(pipeline.KindServiceOverload, "anthropic overloaded", err)
		case 500, 502, 504:
			return pipeline.NewTaskError(pipeline.KindServiceException, "anthropic server error", err)
		default:
			return pipeline.NewTaskError(pipeline.KindTaskFailed, "anthropic request rejected", err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return pipeline.NewTaskError(pipeline.KindSdkClient, "anthropic request failed", err)
}
