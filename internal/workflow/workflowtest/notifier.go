package workflowtest

import (
	"context"
	"sync"

	"procurement/internal/workflow"
)

// Notifier запоминает опубликованные события.
type Notifier struct {
	mu     sync.Mutex
	events []workflow.Event
}

func (n *Notifier) Publish(_ context.Context, ev workflow.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *Notifier) Events() []workflow.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]workflow.Event, len(n.events))
	copy(out, n.events)
	return out
}

// Audiences возвращает адресатов события с данным именем, например "ROLE:BUYER".
func (n *Notifier) Audiences(name string) []string {
	var out []string
	for _, ev := range n.Events() {
		if ev.Name == name {
			out = append(out, ev.Audience.String())
		}
	}
	return out
}

func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}
