package tasks

import (
	"context"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ravi-parthasarathy/caseflow/pkg/pipeline"
)

// Func adapts a plain function to pipeline.Task.
type Func func(ctx context.Context, payload []byte) ([]byte, error)

func (f Func) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// Echo returns a task that answers with statusCode and the invocation's
// detail under "body". It stands in for remote tasks in dry runs.
func Echo(statusCode int) pipeline.Task {
	return Func(func(_ context.Context, payload []byte) ([]byte, error) {
		out, err := sjson.SetBytes([]byte(`{}`), "statusCode", statusCode)
		if err != nil {
			return nil, err
		}
		detail := gjson.GetBytes(payload, "detail")
		if !detail.Exists() {
			return out, nil
		}
		return sjson.SetRawBytes(out, "body", []byte(detail.Raw))
	})
}
