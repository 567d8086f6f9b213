// Package config loads the caseflow YAML configuration: the catalogue of
// task endpoints and the engine and logging settings.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ravi-parthasarathy/caseflow/pkg/pipeline"
)

// StateMachineCategory is the lambda category the pipeline's tasks are read
// from. Other categories may share the file and are ignored.
const StateMachineCategory = "statemachine"

// Task backends.
const (
	KindHTTP      = "http"
	KindAnthropic = "anthropic"
	KindEcho      = "echo"
)

// Config is the complete caseflow configuration.
type Config struct {
	Lambdas []Category    `yaml:"lambdas"`
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// Category groups task definitions.
type Category struct {
	Category string       `yaml:"category"`
	Lambdas  []TaskConfig `yaml:"lambdas"`
}

// TaskConfig describes how one task is reached.
type TaskConfig struct {
	Name     string            `yaml:"lambda_name"`
	Kind     string            `yaml:"kind"`
	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
	Model    string            `yaml:"model"`
	Prompt   string            `yaml:"prompt"`
	// StatusCode is the status an echo task answers with.
	StatusCode int `yaml:"status_code"`
}

// EngineConfig holds execution limits.
type EngineConfig struct {
	TaskTimeout          time.Duration `yaml:"task_timeout"`
	ExecutionTimeout     time.Duration `yaml:"execution_timeout"`
	IncludeExecutionData bool          `yaml:"include_execution_data"`
	Concurrency          int           `yaml:"concurrency"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with engine and logging defaults and no
// tasks.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			TaskTimeout:      pipeline.DefaultTaskTimeout,
			ExecutionTimeout: pipeline.DefaultExecutionTimeout,
			Concurrency:      4,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Engine.TaskTimeout <= 0 {
		c.Engine.TaskTimeout = d.Engine.TaskTimeout
	}
	if c.Engine.ExecutionTimeout <= 0 {
		c.Engine.ExecutionTimeout = d.Engine.ExecutionTimeout
	}
	if c.Engine.Concurrency <= 0 {
		c.Engine.Concurrency = d.Engine.Concurrency
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	for i := range c.Lambdas {
		for j := range c.Lambdas[i].Lambdas {
			t := &c.Lambdas[i].Lambdas[j]
			if t.Kind == "" {
				t.Kind = KindHTTP
			}
			if t.Kind == KindEcho && t.StatusCode == 0 {
				t.StatusCode = pipeline.StatusOK
			}
		}
	}
}

// StateMachineTasks returns the task definitions of the statemachine
// category, keyed by name. Validate rejects duplicate names.
func (c *Config) StateMachineTasks() map[pipeline.TaskName]TaskConfig {
	out := make(map[pipeline.TaskName]TaskConfig)
	for _, cat := range c.Lambdas {
		if cat.Category != StateMachineCategory {
			continue
		}
		for _, t := range cat.Lambdas {
			out[pipeline.TaskName(t.Name)] = t
		}
	}
	return out
}

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var problems []string

	seen := make(map[string]bool)
	for _, cat := range c.Lambdas {
		if cat.Category != StateMachineCategory {
			continue
		}
		for _, t := range cat.Lambdas {
			switch {
			case seen[t.Name]:
				problems = append(problems, fmt.Sprintf("task %q is configured more than once in category %q", t.Name, StateMachineCategory))
			case !slices.Contains(pipeline.Tasks, pipeline.TaskName(t.Name)):
				problems = append(problems, fmt.Sprintf("task %q is not a pipeline task", t.Name))
			}
			seen[t.Name] = true
		}
	}

	tasks := c.StateMachineTasks()
	for _, name := range pipeline.Tasks {
		t, ok := tasks[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("task %q is not configured in category %q", name, StateMachineCategory))
			continue
		}
		switch t.Kind {
		case KindHTTP:
			if t.Endpoint == "" {
				problems = append(problems, fmt.Sprintf("task %q: http task needs an endpoint", name))
			}
		case KindAnthropic:
			if t.Model == "" {
				problems = append(problems, fmt.Sprintf("task %q: anthropic task needs a model", name))
			}
		case KindEcho:
		default:
			problems = append(problems, fmt.Sprintf("task %q: unknown kind %q", name, t.Kind))
		}
	}
	if c.Engine.TaskTimeout > c.Engine.ExecutionTimeout {
		problems = append(problems, fmt.Sprintf("engine.task_timeout (%s) exceeds engine.execution_timeout (%s)",
			c.Engine.TaskTimeout, c.Engine.ExecutionTimeout))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(c.Logging.Format)) {
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of text, json", c.Logging.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config:\n  %s", strings.Join(problems, "\n  "))
}

// EchoConfig returns a configuration whose tasks all echo status 200.
func EchoConfig() *Config {
	cfg := Default()
	cat := Category{Category: StateMachineCategory}
	for _, name := range pipeline.Tasks {
		cat.Lambdas = append(cat.Lambdas, TaskConfig{Name: string(name), Kind: KindEcho, StatusCode: pipeline.StatusOK})
	}
	cfg.Lambdas = []Category{cat}
	return cfg
}
