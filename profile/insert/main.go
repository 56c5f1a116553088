// Profiling:
// go build ./profile/insert
// go tool pprof -http=":8000" -nodefraction=0.001 ./insert mem.pprof

package main

import (
	"github.com/edwinsyarief/lazystore"
	"github.com/pkg/profile"
)

type comp1 struct {
	V int64
	W int64
}

type comp2 struct {
	V int64
	W int64
}

type record struct {
	Comp1 lazystore.Slot[comp1]
	Comp2 lazystore.Slot[comp2]
	Name  string
}

func main() {
	count := 50
	iters := 10000
	entities := 1000
	p := profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	run(count, iters, entities)
	p.Stop()
}

func run(rounds, iters, numEntities int) {
	for range rounds {
		schema := lazystore.NewSchema[record]()
		c1 := lazystore.Declare(schema, "comp1", func(r *record) *lazystore.Slot[comp1] { return &r.Comp1 })
		c2 := lazystore.Declare(schema, "comp2", func(r *record) *lazystore.Slot[comp2] { return &r.Comp2 })
		store := lazystore.New(schema,
			lazystore.WithCapacity(numEntities),
			lazystore.WithIndex(c1, lazystore.IndexDense),
			lazystore.WithIndex(c2, lazystore.IndexSparse),
		)
		query := lazystore.NewFilter2(store, c1, c2)
		batch := lazystore.NewBuilder(store, record{}, c1.Value(comp1{}), c2.Value(comp2{V: 1, W: 1}))

		for range iters {
			batch.NewEntities(numEntities)
			query.Each(func(_ lazystore.EntityID, a *comp1, b *comp2) {
				a.V += b.V
				a.W += b.W
			})
			query.RemoveAll()
		}
	}
}
