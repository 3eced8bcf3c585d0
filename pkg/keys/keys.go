// Package keys builds the cache key strings for authorization decisions.
// Key construction is pure and deterministic; the only state is a string
// memo for the hot empty-context path, which carries no authorization
// semantics.
package keys

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/relguard/relguard/pkg/policy"
	"github.com/relguard/relguard/pkg/tuple"
)

// inlineContextLimit bounds how many context entries are rendered inline
// before switching to a content hash. Keeps common keys short while staying
// collision-resistant for arbitrary payloads.
const inlineContextLimit = 3

type memoKey struct {
	kind        string
	subjectType string
	subjectID   string
	action      string
	objectType  string
	objectID    string
}

var memo sync.Map

// PermissionKey is the cache key for a single (subject, action, object,
// context) decision.
func PermissionKey(subject tuple.Object, action string, object tuple.Object, reqCtx policy.Context) string {
	return decisionKey("perm", subject, action, object, reqCtx)
}

// AllPermissionsKey is the cache key for the full permission map of a
// (subject, object, context) pair.
func AllPermissionsKey(subject, object tuple.Object, reqCtx policy.Context) string {
	return decisionKey("allperm", subject, "", object, reqCtx)
}

// PolicyKey is the cache key for a resolved policy of a resource type.
func PolicyKey(resourceType string) string {
	return "policy:" + resourceType
}

// RelationScopeKey is the cache key for a subject's object-id listing of a
// relation over a resource type.
func RelationScopeKey(subject tuple.Object, relation, objectType string) string {
	return "relscope:" + subject.ObjectType() + ":" + subject.ObjectID() + ":" + relation + ":" + objectType
}

func decisionKey(kind string, subject tuple.Object, action string, object tuple.Object, reqCtx policy.Context) string {
	if len(reqCtx) == 0 {
		mk := memoKey{
			kind:        kind,
			subjectType: subject.ObjectType(),
			subjectID:   subject.ObjectID(),
			action:      action,
			objectType:  object.ObjectType(),
			objectID:    object.ObjectID(),
		}
		if cached, ok := memo.Load(mk); ok {
			return cached.(string)
		}
		key := formatKey(kind, subject, action, object, "")
		memo.Store(mk, key)
		return key
	}
	return formatKey(kind, subject, action, object, ContextFragment(reqCtx))
}

func formatKey(kind string, subject tuple.Object, action string, object tuple.Object, ctxFragment string) string {
	var sb strings.Builder
	sb.WriteString(kind)
	sb.WriteByte(':')
	sb.WriteString(subject.ObjectType())
	sb.WriteByte(':')
	sb.WriteString(subject.ObjectID())
	if action != "" {
		sb.WriteByte(':')
		sb.WriteString(action)
	}
	sb.WriteByte(':')
	sb.WriteString(object.ObjectType())
	sb.WriteByte(':')
	sb.WriteString(object.ObjectID())
	if ctxFragment != "" {
		sb.WriteByte(':')
		sb.WriteString(ctxFragment)
	}
	return sb.String()
}

// fragmentEscaper keeps the rendered entry list injective: a separator
// occurring inside a key or value must not read as entry structure, or two
// distinct contexts could share one cache entry.
var fragmentEscaper = strings.NewReplacer(`\`, `\\`, ",", `\,`, "=", `\=`)

// ContextFragment renders a request context deterministically. Small
// all-primitive contexts render inline as a sorted k=v list; anything else
// becomes a stable content hash of the sorted rendering.
func ContextFragment(reqCtx policy.Context) string {
	if len(reqCtx) == 0 {
		return ""
	}

	entries := make([]string, 0, len(reqCtx))
	allPrimitive := true
	for k, v := range reqCtx {
		rendered, primitive := renderValue(v)
		allPrimitive = allPrimitive && primitive
		entries = append(entries, fragmentEscaper.Replace(k)+"="+fragmentEscaper.Replace(rendered))
	}
	sort.Strings(entries)
	joined := strings.Join(entries, ",")

	if allPrimitive && len(reqCtx) <= inlineContextLimit {
		return joined
	}
	return "h" + strconv.FormatUint(xxhash.Sum64String(joined), 16)
}

// renderValue returns a deterministic rendering of a context value and
// whether the value counts as primitive for inline rendering.
func renderValue(v any) (string, bool) {
	switch tv := v.(type) {
	case nil:
		return "null", true
	case string:
		return tv, true
	case bool:
		return strconv.FormatBool(tv), true
	case int:
		return strconv.Itoa(tv), true
	case int32:
		return strconv.FormatInt(int64(tv), 10), true
	case int64:
		return strconv.FormatInt(tv, 10), true
	case uint:
		return strconv.FormatUint(uint64(tv), 10), true
	case uint32:
		return strconv.FormatUint(uint64(tv), 10), true
	case uint64:
		return strconv.FormatUint(tv, 10), true
	case float32:
		return strconv.FormatFloat(float64(tv), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(tv, 'g', -1, 64), true
	default:
		return fmt.Sprintf("%#v", v), false
	}
}
