package config

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ravi-parthasarathy/caseflow/pkg/pipeline"
	"github.com/ravi-parthasarathy/caseflow/pkg/tasks"
)

// BuildRegistry resolves every statemachine task into a tasks.Registry.
// Extra Anthropic request options (base URL, API key) apply to every
// anthropic task.
func (c *Config) BuildRegistry(client *http.Client, opts ...option.RequestOption) (*tasks.Registry, error) {
	reg := tasks.NewRegistry()
	for name, t := range c.StateMachineTasks() {
		if !slices.Contains(pipeline.Tasks, name) {
			return nil, fmt.Errorf("task %q is not a pipeline task", name)
		}
		switch t.Kind {
		case KindHTTP:
			reg.Register(name, &tasks.HTTPTask{Endpoint: t.Endpoint, Headers: t.Headers, Client: client})
		case KindAnthropic:
			reg.Register(name, tasks.NewClaudeTask(t.Model, promptFor(name, t.Prompt), opts...))
		case KindEcho:
			reg.Register(name, tasks.Echo(t.StatusCode))
		default:
			return nil, fmt.Errorf("task %q: unknown kind %q", name, t.Kind)
		}
	}
	if missing := reg.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("tasks not configured: %v", missing)
	}
	return reg, nil
}

func promptFor(name pipeline.TaskName, prompt string) string {
	if prompt != "" {
		return prompt
	}
	switch name {
	case pipeline.TaskTranslate:
		return tasks.TranslatePrompt
	case pipeline.TaskClassify:
		return tasks.ClassifyPrompt
	}
	return ""
}
