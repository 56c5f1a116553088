package lazystore

// Builder inserts records that start from a common template. The template
// is the base record with the builder's initializers applied; per-call
// initializers are applied on top of it.
//
// The template is copied by value, so reference-typed fields (slices, maps,
// pointers) are shared by every record the builder creates.
type Builder[E any] struct {
	store    *Store[E]
	template E
}

// NewBuilder returns a builder for s whose records start as base with inits
// applied.
func NewBuilder[E any](s *Store[E], base E, inits ...Init[E]) *Builder[E] {
	return &Builder[E]{store: s, template: Build(base, inits...)}
}

// Template returns a copy of the record the builder starts from.
func (b *Builder[E]) Template() E {
	return b.template
}

// NewEntity inserts one record built from the template and inits.
func (b *Builder[E]) NewEntity(inits ...Init[E]) EntityID {
	return b.store.Insert(Build(b.template, inits...))
}

// NewEntities inserts count copies of the template and returns their ids in
// insertion order.
func (b *Builder[E]) NewEntities(count int) []EntityID {
	return b.NewEntitiesWith(count, nil)
}

// NewEntitiesWith inserts count records. fn, if not nil, customizes the
// i-th record before it is stored.
func (b *Builder[E]) NewEntitiesWith(count int, fn func(i int, rec *E)) []EntityID {
	if count <= 0 {
		return nil
	}
	s := b.store
	s.borrow.checkMutate("Builder.NewEntities")
	ids := make([]EntityID, 0, count)
	for i := range count {
		rec := b.template
		if fn != nil {
			fn(i, &rec)
		}
		ids = append(ids, s.insert(rec))
	}
	if s.events != nil {
		for _, id := range ids {
			Publish(s.events, EntityInserted{ID: id})
		}
	}
	return ids
}
