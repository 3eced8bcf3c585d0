package tuple

import "strings"

// Object is implemented by application values that can participate in
// authorization decisions. Implementations must return stable values: the
// pair (ObjectType, ObjectID) is the identity used in tuples and cache keys.
type Object interface {
	ObjectType() string
	ObjectID() string
}

// ObjectRef is the value form of an object identity.
type ObjectRef struct {
	Type string
	ID   string
}

// RefOf captures the identity of an Object as a value.
func RefOf(o Object) ObjectRef {
	return ObjectRef{Type: o.ObjectType(), ID: o.ObjectID()}
}

func (r ObjectRef) ObjectType() string { return r.Type }
func (r ObjectRef) ObjectID() string   { return r.ID }

func (r ObjectRef) String() string {
	return r.Type + ":" + r.ID
}

// IsZero returns whether the reference carries no identity at all.
func (r ObjectRef) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// Tuple is a single relationship fact: subject holds relation on resource.
type Tuple struct {
	Subject  ObjectRef
	Relation string
	Resource ObjectRef
}

// String renders the canonical `resourcetype:id#relation@subjecttype:id` form.
func (t Tuple) String() string {
	var sb strings.Builder
	sb.Grow(len(t.Resource.Type) + len(t.Resource.ID) + len(t.Relation) + len(t.Subject.Type) + len(t.Subject.ID) + 3)
	sb.WriteString(t.Resource.Type)
	sb.WriteByte(':')
	sb.WriteString(t.Resource.ID)
	sb.WriteByte('#')
	sb.WriteString(t.Relation)
	sb.WriteByte('@')
	sb.WriteString(t.Subject.Type)
	sb.WriteByte(':')
	sb.WriteString(t.Subject.ID)
	return sb.String()
}

// ValidateNotEmpty returns whether all five identity fields are populated.
func (t Tuple) ValidateNotEmpty() bool {
	return t.Resource.Type != "" && t.Resource.ID != "" &&
		t.Subject.Type != "" && t.Subject.ID != "" && t.Relation != ""
}

// Filter selects tuples by any combination of fields. A zero Filter matches
// everything; callers that require at least one constraint must check
// IsEmpty themselves.
type Filter struct {
	OptionalSubject      *ObjectRef
	OptionalSubjectType  string
	OptionalRelation     string
	OptionalRelations    []string
	OptionalResource     *ObjectRef
	OptionalResourceType string
}

// IsEmpty returns whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	return f.OptionalSubject == nil && f.OptionalSubjectType == "" &&
		f.OptionalRelation == "" && len(f.OptionalRelations) == 0 &&
		f.OptionalResource == nil && f.OptionalResourceType == ""
}

// Matches reports whether the given tuple satisfies every populated
// constraint on the filter.
func (f Filter) Matches(t Tuple) bool {
	if f.OptionalSubject != nil && *f.OptionalSubject != t.Subject {
		return false
	}
	if f.OptionalSubjectType != "" && f.OptionalSubjectType != t.Subject.Type {
		return false
	}
	if f.OptionalRelation != "" && f.OptionalRelation != t.Relation {
		return false
	}
	if len(f.OptionalRelations) > 0 {
		found := false
		for _, rel := range f.OptionalRelations {
			if rel == t.Relation {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.OptionalResource != nil && *f.OptionalResource != t.Resource {
		return false
	}
	if f.OptionalResourceType != "" && f.OptionalResourceType != t.Resource.Type {
		return false
	}
	return true
}
