package pivot

// RelationNameResolver supplies the logical name of a relation (e.g. "articles").
type RelationNameResolver interface {
	Name() string
}

// RelationName is a static [RelationNameResolver].
type RelationName string

func (n RelationName) Name() string { return string(n) }
