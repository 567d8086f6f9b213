package tasks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ravi-parthasarathy/caseflow/pkg/pipeline"
)

// MaxResponseBytes caps the response body an HTTPTask accepts.
const MaxResponseBytes = 6 << 20

// HTTPTask invokes a task hosted behind an HTTP endpoint. The invocation
// payload is POSTed as JSON; a 2xx response body is the task result.
//
// Failed responses are classified for retry. A JSON body carrying an
// "errorType" names the kind directly (this is how a task reports
// EventLagRetry); otherwise the HTTP status decides:
//
//	429             Task.TooManyRequestsException
//	503, 504, 529   Task.ServiceOverload
//	other 5xx       Task.ServiceException
//	anything else   Task.Failed
//
// Transport failures are Task.SdkClientException. A response body larger
// than MaxResponseBytes is Task.Failed.
type HTTPTask struct {
	Endpoint string
	Headers  map[string]string
	Client   *http.Client
}

func (t *HTTPTask) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, pipeline.NewTaskError(pipeline.KindTaskFailed, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, pipeline.NewTaskError(pipeline.KindSdkClient, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, pipeline.NewTaskError(pipeline.KindSdkClient, "read response body", err)
	}
	if len(body) > MaxResponseBytes {
		// A truncated body would lose the statusCode the task reported.
		return nil, pipeline.NewTaskError(pipeline.KindTaskFailed,
			fmt.Sprintf("response exceeds %d bytes", MaxResponseBytes), nil)
	}
	return classifyResponse(resp.StatusCode, body)
}

// classifyResponse turns an HTTP reply into a task result or a classified
// error. A 2xx body without its own statusCode gets the HTTP status.
func classifyResponse(code int, body []byte) ([]byte, error) {
	if code >= 200 && code < 300 {
		return withStatusCode(code, body)
	}

	msg := gjson.GetBytes(body, "errorMessage").String()
	if msg == "" {
		msg = fmt.Sprintf("status %d: %s", code, strings.TrimSpace(string(body)))
	}
	if et := gjson.GetBytes(body, "errorType").String(); et != "" {
		return nil, pipeline.NewTaskError(pipeline.ErrorKind(et), msg, nil)
	}

	kind := pipeline.KindTaskFailed
	switch {
	case code == http.StatusTooManyRequests:
		kind = pipeline.KindTooManyRequests
	case code == http.StatusServiceUnavailable, code == http.StatusGatewayTimeout, code == 529:
		kind = pipeline.KindServiceOverload
	case code >= 500:
		kind = pipeline.KindServiceException
	}
	return nil, pipeline.NewTaskError(kind, msg, nil)
}

func withStatusCode(code int, body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	parsed := gjson.ParseBytes(trimmed)
	if len(trimmed) > 0 && gjson.ValidBytes(trimmed) && parsed.IsObject() {
		if parsed.Get("statusCode").Exists() {
			return trimmed, nil
		}
		return sjson.SetBytes(trimmed, "statusCode", code)
	}

	out, err := sjson.SetBytes([]byte(`{}`), "statusCode", code)
	if err != nil || len(trimmed) == 0 {
		return out, err
	}
	if gjson.ValidBytes(trimmed) {
		return sjson.SetRawBytes(out, "body", trimmed)
	}
	return sjson.SetBytes(out, "body", string(trimmed))
}
