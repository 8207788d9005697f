package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/asecn/asecn/internal/conversation"
	"github.com/asecn/asecn/internal/dispatch"
	"github.com/asecn/asecn/internal/llm"
)

// DefaultInterpreterPrompt is the interpreter's system message.
const DefaultInterpreterPrompt = `You are an AI assistant specialized in managing ASECN (Autonomous Self-Evolving Crypto Node).
You have access to the following capabilities:
1. Memory Core operations
2. Blockchain interactions
3. Smart contract deployment
4. System evolution management

Always validate inputs and handle errors appropriately.
Maintain atomic operations and ensure data consistency.`

const defaultHistoryWindow = 20

// InterpreterConfig configures an Interpreter. Zero values select defaults.
type InterpreterConfig struct {
	SystemPrompt  string
	MaxTokens     int
	Temperature   float64
	HistoryWindow int // Most recent log entries sent with each command.
}

func (c InterpreterConfig) systemPrompt() string {
	if c.SystemPrompt != "" {
		return c.SystemPrompt
	}
	return DefaultInterpreterPrompt
}

func (c InterpreterConfig) historyWindow() int {
	if c.HistoryWindow > 0 {
		return c.HistoryWindow
	}
	return defaultHistoryWindow
}

func (c InterpreterConfig) temperature() float64 {
	if c.Temperature > 0 {
		return c.Temperature
	}
	return llm.DefaultTemperature
}

// Interpreter executes sub-actions by handing them to a model, with the
// shared conversation log as memory.
type Interpreter struct {
	provider llm.Provider
	guard    *Guard
	log      *conversation.Log
	config   InterpreterConfig
	logger   *slog.Logger
}

// NewInterpreter creates an interpreter executor.
func NewInterpreter(provider llm.Provider, guard *Guard, log *conversation.Log, config InterpreterConfig, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if log == nil {
		log = conversation.NewLog(0)
	}
	return &Interpreter{
		provider: provider,
		guard:    guard,
		log:      log,
		config:   config,
		logger:   logger,
	}
}

// Execute records actx in the log, rejects unsafe commands and asks the model
// to carry out the action.
func (i *Interpreter) Execute(ctx context.Context, action string, actx map[string]any) (dispatch.ActionResult, error) {
	if len(actx) > 0 {
		i.log.Append("context", string(llm.RoleSystem), renderContext(actx))
	}

	if err := i.guard.CheckCommand(action); err != nil {
		i.logger.WarnContext(ctx, "unsafe command rejected",
			slog.String("command", action),
			slog.String("error", err.Error()),
		)
		return dispatch.Failed(action, err.Error()), nil
	}

	start := time.Now()
	history := i.log.History()
	if n := i.config.historyWindow(); len(history) > n {
		history = history[len(history)-n:]
	}
	messages := make([]llm.Message, 0, len(history)+1)
	for _, e := range history {
		messages = append(messages, llm.Message{Role: entryRole(e.Role), Name: e.Speaker, Content: e.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: action})

	resp, err := i.provider.SendMessage(ctx, &llm.Request{
		SystemPrompt: i.config.systemPrompt(),
		Messages:     messages,
		MaxTokens:    i.config.MaxTokens,
		Temperature:  llm.Float(i.config.temperature()),
	})
	if err != nil {
		return dispatch.ActionResult{}, fmt.Errorf("interpreter: %w", err)
	}

	i.log.Append("user", string(llm.RoleUser), action)
	i.log.Append("interpreter", string(llm.RoleAssistant), resp.Content)

	return dispatch.ActionResult{
		Command:  action,
		Output:   resp.Content,
		Duration: time.Since(start),
	}, nil
}

func entryRole(role string) llm.Role {
	switch llm.Role(role) {
	case llm.RoleSystem, llm.RoleAssistant:
		return llm.Role(role)
	}
	return llm.RoleUser
}

func renderContext(actx map[string]any) string {
	b, err := json.Marshal(actx)
	if err != nil {
		return fmt.Sprintf("%v", actx)
	}
	return string(b)
}

var _ dispatch.Executor = (*Interpreter)(nil)
