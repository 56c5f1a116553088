// Profiling:
// go build ./profile/query
// go tool pprof -http=":8000" -nodefraction=0.001 ./query cpu.pprof

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

type comp3 struct {
	V int64
	W int64
}

type record struct {
	Comp1 lazystore.Slot[comp1]
	Comp2 lazystore.Slot[comp2]
	Comp3 lazystore.Slot[comp3]
}

func main() {
	count := 50
	iters := 1000
	entities := 100000
	p := profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	run(count, iters, entities)
	p.Stop()
}

func run(rounds, iters, numEntities int) {
	for range rounds {
		schema := lazystore.NewSchema[record]()
		c1 := lazystore.Declare(schema, "comp1", func(r *record) *lazystore.Slot[comp1] { return &r.Comp1 })
		c2 := lazystore.Declare(schema, "comp2", func(r *record) *lazystore.Slot[comp2] { return &r.Comp2 })
		c3 := lazystore.Declare(schema, "comp3", func(r *record) *lazystore.Slot[comp3] { return &r.Comp3 })
		store := lazystore.New(schema,
			lazystore.WithCapacity(numEntities),
			lazystore.WithIndex(c1, lazystore.IndexDense),
			lazystore.WithIndex(c2, lazystore.IndexDense),
		)
		batch := lazystore.NewBuilder(store, record{}, c1.Value(comp1{}), c2.Value(comp2{V: 1, W: 1}))
		batch.NewEntitiesWith(numEntities, func(i int, r *record) {
			if i%10 == 0 {
				c3.Set(r, comp3{V: int64(i)})
			}
		})
		query := lazystore.NewFilter3(store, c1, c2, c3)

		for range iters {
			query.Each(func(_ lazystore.EntityID, a *comp1, b *comp2, c *comp3) {
				a.V += b.V + c.V
				a.W += b.W
			})
		}
	}
}
