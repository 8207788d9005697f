package workflow

import (
	"fmt"
)

// Directory resolves workflow names to definitions and agent IDs to agents.
// It is built once from configuration and never mutated afterwards, so it is
// safe for concurrent use.
type Directory struct {
	workflows map[string]Definition
	order     []string
	agents    map[string]Agent
}

// NewDirectory validates and indexes the given agents and workflows.
// Every agent referenced by a workflow must be present in agents.
func NewDirectory(agents []Agent, workflows []Definition) (*Directory, error) {
	d := &Directory{
		workflows: make(map[string]Definition, len(workflows)),
		agents:    make(map[string]Agent, len(agents)),
	}

	for i, a := range agents {
		if a.ID == "" {
			return nil, fmt.Errorf("agents[%d]: id is required", i)
		}
		if _, dup := d.agents[a.ID]; dup {
			return nil, fmt.Errorf("agents[%d]: duplicate agent id %q", i, a.ID)
		}
		d.agents[a.ID] = a
	}

	for i, wf := range workflows {
		if err := wf.Validate(); err != nil {
			return nil, fmt.Errorf("workflows[%d]: %w", i, err)
		}
		if _, dup := d.workflows[wf.Name]; dup {
			return nil, fmt.Errorf("workflows[%d]: duplicate workflow %q", i, wf.Name)
		}
		for _, id := range wf.AgentIDs {
			if _, ok := d.agents[id]; !ok {
				return nil, fmt.Errorf("workflow %q references unknown agent %q", wf.Name, id)
			}
		}
		ids := make([]string, len(wf.AgentIDs))
		copy(ids, wf.AgentIDs)
		d.workflows[wf.Name] = Definition{Name: wf.Name, AgentIDs: ids}
		d.order = append(d.order, wf.Name)
	}

	return d, nil
}

// Resolve returns the definition for name or an *UnknownWorkflowError.
func (d *Directory) Resolve(name string) (Definition, error) {
	wf, ok := d.workflows[name]
	if !ok {
		return Definition{}, &UnknownWorkflowError{Name: name}
	}
	ids := make([]string, len(wf.AgentIDs))
	copy(ids, wf.AgentIDs)
	return Definition{Name: wf.Name, AgentIDs: ids}, nil
}

// Agent returns the agent with the given ID.
func (d *Directory) Agent(id string) (Agent, bool) {
	a, ok := d.agents[id]
	return a, ok
}

// Agents returns the agents of a workflow in order.
func (d *Directory) Agents(def Definition) ([]Agent, error) {
	out := make([]Agent, 0, len(def.AgentIDs))
	for _, id := range def.AgentIDs {
		a, ok := d.agents[id]
		if !ok {
			return nil, fmt.Errorf("workflow %q references unknown agent %q", def.Name, id)
		}
		out = append(out, a)
	}
	return out, nil
}

// Workflows lists all definitions in declaration order.
func (d *Directory) Workflows() []Definition {
	out := make([]Definition, 0, len(d.order))
	for _, name := range d.order {
		wf, _ := d.Resolve(name)
		out = append(out, wf)
	}
	return out
}
