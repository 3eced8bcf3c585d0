package policy

import (
	"github.com/relguard/relguard/internal/logging"
)

// Predicate is a single authorization rule. Predicates receive the
// evaluation environment explicitly; they must not mutate authorization
// state. A predicate that returns an error or panics counts as false for
// that predicate only.
type Predicate func(e *Eval) (bool, error)

// Permission is a named action guarded by ordered deny and allow rule
// lists. Deny rules always run before allow rules; the first matching rule
// short-circuits; no match at all is a deny.
type Permission struct {
	action string
	denies []Predicate
	allows []Predicate
}

// Action returns the permission's action name.
func (p *Permission) Action() string { return p.action }

// Deny appends rules that forbid the action when any returns true.
func (p *Permission) Deny(rules ...Predicate) *Permission {
	p.denies = append(p.denies, rules...)
	return p
}

// Allow appends rules that grant the action when any returns true.
func (p *Permission) Allow(rules ...Predicate) *Permission {
	p.allows = append(p.allows, rules...)
	return p
}

// Decide evaluates the permission against the environment. Rule failures
// are contained per rule: a panicking or erroring rule is logged and
// treated as not-matched, and evaluation of the remaining rules continues.
func (p *Permission) Decide(e *Eval) bool {
	for _, rule := range p.denies {
		if evaluateRule(p.action, "deny", rule, e) {
			return false
		}
	}
	for _, rule := range p.allows {
		if evaluateRule(p.action, "allow", rule, e) {
			return true
		}
	}
	return false
}

func evaluateRule(action, kind string, rule Predicate, e *Eval) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("action", action).
				Str("ruleKind", kind).
				Any("panic", r).
				Msg("authorization rule panicked; treating as not matched")
			matched = false
		}
	}()

	matched, err := rule(e)
	if err != nil {
		logging.Err(err).
			Str("action", action).
			Str("ruleKind", kind).
			Msg("authorization rule returned an error; treating as not matched")
		return false
	}
	return matched
}
