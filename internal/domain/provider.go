package domain

import "context"

// DecideRequest is the input contract of the decision provider: the ordered
// transcript plus the stable tool catalog.
type DecideRequest struct {
	Transcript []Message
	Catalog    []ToolDescriptor
}

// DecisionProvider is the model backend boundary. It returns one decision per
// call as raw text; the runtime owns parsing that text into an Action.
type DecisionProvider interface {
	Name() string
	Decide(ctx context.Context, req DecideRequest) (string, error)
}
