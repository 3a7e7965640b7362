package tuner

import (
	"runtime"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/metrigo/queue"
	"github.com/hupe1980/metrigo/space"
)

// goldStandard caches the exact answer set per query so scoring a
// configuration is a bitmap intersection instead of a fresh linear scan.
type goldStandard struct {
	queries []*space.Object
	answers []*roaring.Bitmap

	// Linear-scan baselines the improvement objectives are measured
	// against.
	scanDistComps int64
	scanTime      time.Duration
}

// newGoldStandard computes exact answers for up to maxCache queries with a
// linear scan. k > 0 selects k-NN ground truth; otherwise radius is used.
func newGoldStandard[D space.Dist](sp space.Space[D], data, queries []*space.Object, k int, radius float64, maxCache int) (*goldStandard, error) {
	if maxCache > 0 && len(queries) > maxCache {
		queries = queries[:maxCache]
	}

	gs := &goldStandard{
		queries:       queries,
		answers:       make([]*roaring.Bitmap, len(queries)),
		scanDistComps: int64(len(data)) * int64(len(queries)),
	}

	start := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, q := range queries {
		g.Go(func() error {
			answer := roaring.New()
			if k > 0 {
				col := queue.NewKNN[D](k)
				for _, o := range data {
					col.Add(sp.Distance(q, o), o)
				}
				for _, it := range col.Results() {
					answer.Add(it.Obj.ID())
				}
			} else {
				col := queue.NewRange[D](D(radius))
				for _, o := range data {
					col.Add(sp.Distance(q, o), o)
				}
				for _, it := range col.Results() {
					answer.Add(it.Obj.ID())
				}
			}
			gs.answers[i] = answer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	gs.scanTime = time.Since(start)
	return gs, nil
}

// recall scores one query's approximate answer against the cached truth.
// An empty truth set counts as fully recalled.
func (gs *goldStandard) recall(i int, ids *roaring.Bitmap) float64 {
	gold := gs.answers[i]
	if gold.IsEmpty() {
		return 1
	}
	return float64(gold.AndCardinality(ids)) / float64(gold.GetCardinality())
}
