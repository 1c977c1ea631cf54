// Package trigger maintains exactly one imminent one-shot wake-up on the
// external scheduler service.
package trigger

import (
	"context"
	"fmt"
)

// Trigger mirrors one remote one-shot wake-up entry. Name encodes the
// firing timestamp (prefix + unix seconds), so listing triggers needs no
// separate index.
type Trigger struct {
	Name        string `json:"name"`
	Expression  string `json:"expression"`
	Timezone    string `json:"timezone"`
	TargetRef   string `json:"target"`
	Description string `json:"description,omitempty"`
}

// API is the scheduler service surface the reconciler needs.
type API interface {
	List(ctx context.Context, namePrefix string) ([]Trigger, error)
	Create(ctx context.Context, t Trigger) error
	Delete(ctx context.Context, name string) error
}

// ServiceError is any list/create/delete failure on the scheduler
// service. It is fatal for the invocation that hits it; the next
// invocation re-derives the same decision from persisted task state.
type ServiceError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("scheduler service %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}
