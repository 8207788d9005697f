package conversation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/asecn/asecn/internal/llm"
	"github.com/asecn/asecn/internal/workflow"
)

// DefaultMaxRounds bounds the number of agent turns in one group chat.
const DefaultMaxRounds = 10

const planInstruction = "Coordinate the replies above into an execution plan. " +
	"Reply with a JSON array of strings, one short imperative sub-action per entry, in execution order."

// AgentLookup resolves a workflow's agents.
type AgentLookup interface {
	Agents(def workflow.Definition) ([]workflow.Agent, error)
}

// GroupChatConfig configures a GroupChat. Zero values select defaults.
type GroupChatConfig struct {
	MaxRounds   int
	MaxTokens   int
	Temperature float64
}

func (c GroupChatConfig) maxRounds() int {
	if c.MaxRounds > 0 {
		return c.MaxRounds
	}
	return DefaultMaxRounds
}

func (c GroupChatConfig) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return llm.DefaultMaxTokens
}

func (c GroupChatConfig) temperature() float64 {
	if c.Temperature > 0 {
		return c.Temperature
	}
	return llm.DefaultTemperature
}

// GroupChat plans a task by letting each agent of the workflow speak once,
// in order, and parsing the last agent's reply into sub-actions.
type GroupChat struct {
	provider llm.Provider
	agents   AgentLookup
	log      *Log
	config   GroupChatConfig
	logger   *slog.Logger
}

// NewGroupChat creates the backend. log may be shared with other writers.
func NewGroupChat(provider llm.Provider, agents AgentLookup, log *Log, config GroupChatConfig, logger *slog.Logger) *GroupChat {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if log == nil {
		log = NewLog(0)
	}
	return &GroupChat{
		provider: provider,
		agents:   agents,
		log:      log,
		config:   config,
		logger:   logger,
	}
}

// Plan runs one chat round per agent, capped at MaxRounds.
func (g *GroupChat) Plan(ctx context.Context, def workflow.Definition, task string) ([]string, error) {
	agents, err := g.agents.Agents(def)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("workflow %q has no agents", def.Name)
	}
	if n := g.config.maxRounds(); len(agents) > n {
		g.logger.WarnContext(ctx, "group chat truncated to max rounds",
			slog.String("workflow", def.Name),
			slog.Int("agents", len(agents)),
			slog.Int("max_rounds", n),
		)
		agents = agents[:n]
	}

	g.log.Append("user", string(llm.RoleUser), task)
	transcript := []llm.Message{{Role: llm.RoleUser, Content: task}}

	var reply string
	for i, agent := range agents {
		system := agent.SystemMessage
		if i == len(agents)-1 {
			system = strings.TrimSpace(system + "\n\n" + planInstruction)
		}

		resp, err := g.provider.SendMessage(ctx, &llm.Request{
			SystemPrompt: system,
			Messages:     transcript,
			MaxTokens:    g.config.maxTokens(),
			Temperature:  llm.Float(g.config.temperature()),
		})
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", agent.ID, err)
		}

		reply = resp.Content
		g.log.Append(agent.Name, string(llm.RoleAssistant), reply)
		transcript = append(transcript, llm.Message{
			Role:    llm.RoleAssistant,
			Name:    agent.Name,
			Content: reply,
		})

		g.logger.DebugContext(ctx, "group chat turn",
			slog.String("workflow", def.Name),
			slog.String("agent", agent.ID),
			slog.Int("round", i+1),
		)
	}

	plan := ParsePlan(reply)
	g.logger.InfoContext(ctx, "plan produced",
		slog.String("workflow", def.Name),
		slog.Int("actions", len(plan)),
	)
	return plan, nil
}

// History returns a snapshot of the shared conversation log.
func (g *GroupChat) History() History { return g.log.History() }

// Dump renders the shared conversation log.
func (g *GroupChat) Dump() string { return g.log.Dump() }

// Log returns the shared conversation log.
func (g *GroupChat) Log() *Log { return g.log }
