package memdb

import (
	"github.com/hashicorp/go-memdb"

	"github.com/relguard/relguard/pkg/tuple"
)

const (
	tableRelationship = "relationship"

	indexID                  = "id"
	indexResource            = "resource"
	indexResourceAndRelation = "resourceAndRelation"
	indexSubject             = "subject"
	indexRelation            = "relation"
)

type relationship struct {
	resourceType string
	resourceID   string
	relation     string
	subjectType  string
	subjectID    string
}

func fromTuple(t tuple.Tuple) *relationship {
	return &relationship{
		resourceType: t.Resource.Type,
		resourceID:   t.Resource.ID,
		relation:     t.Relation,
		subjectType:  t.Subject.Type,
		subjectID:    t.Subject.ID,
	}
}

func (r *relationship) Tuple() tuple.Tuple {
	return tuple.Tuple{
		Subject:  tuple.ObjectRef{Type: r.subjectType, ID: r.subjectID},
		Relation: r.relation,
		Resource: tuple.ObjectRef{Type: r.resourceType, ID: r.resourceID},
	}
}

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableRelationship: {
			Name: tableRelationship,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:   indexID,
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "resourceType"},
							&memdb.StringFieldIndex{Field: "resourceID"},
							&memdb.StringFieldIndex{Field: "relation"},
							&memdb.StringFieldIndex{Field: "subjectType"},
							&memdb.StringFieldIndex{Field: "subjectID"},
						},
					},
				},
				indexResource: {
					Name:   indexResource,
					Unique: false,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "resourceType"},
							&memdb.StringFieldIndex{Field: "resourceID"},
						},
					},
				},
				indexResourceAndRelation: {
					Name:   indexResourceAndRelation,
					Unique: false,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "resourceType"},
							&memdb.StringFieldIndex{Field: "resourceID"},
							&memdb.StringFieldIndex{Field: "relation"},
						},
					},
				},
				indexSubject: {
					Name:   indexSubject,
					Unique: false,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "subjectType"},
							&memdb.StringFieldIndex{Field: "subjectID"},
						},
					},
				},
				indexRelation: {
					Name:    indexRelation,
					Unique:  false,
					Indexer: &memdb.StringFieldIndex{Field: "relation"},
				},
			},
		},
	},
}
