package engine

import (
	"fmt"
	"strings"

	"github.com/relguard/relguard/pkg/tuple"
)

// NotAuthorizedError is returned by Authorize when a policy resolved and
// denied the action. It carries enough to render a meaningful message,
// including the actions the policy does declare.
type NotAuthorizedError struct {
	Subject          tuple.ObjectRef
	Action           string
	Object           tuple.ObjectRef
	AvailableActions []string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("subject %s is not authorized to %q on %s (declared actions: %s)",
		e.Subject, e.Action, e.Object, strings.Join(e.AvailableActions, ", "))
}

// PolicyNotFoundError is returned when no policy resolves for a resource
// type anywhere in its ancestor chain. It is a configuration error, not an
// authorization outcome.
type PolicyNotFoundError struct {
	ResourceType string
}

func (e *PolicyNotFoundError) Error() string {
	return fmt.Sprintf("no policy registered for resource type %q or any of its ancestors", e.ResourceType)
}

// NoScopeError is returned by AccessibleBy when the resolved policy
// declares no scope builder for the action.
type NoScopeError struct {
	ResourceType string
	Action       string
}

func (e *NoScopeError) Error() string {
	return fmt.Sprintf("policy for resource type %q declares no scope for action %q", e.ResourceType, e.Action)
}
