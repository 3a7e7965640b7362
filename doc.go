// Package metrigo provides approximate nearest-neighbor search for generic
// metric and non-metric spaces.
//
// A dataset of opaque objects plus a distance function (which may be
// asymmetric and need not obey the triangle inequality) is indexed with a
// VP-tree whose subtree pruning is delegated to a tunable polynomial
// oracle. Surrogate-space variants embed objects with random, PCA, FastMap
// or permutation projections, search the cheap surrogate and re-rank
// candidates with the original distance.
//
// # Quick Start
//
//	l2 := space.NewL2()
//	data, _ := l2.ReadDataset("vectors.txt")
//
//	idx, err := metrigo.Build(l2, data, metrigo.MethodVPTree, params.Params{
//	    "bucketSize": "20",
//	    "alphaLeft":  "2.0",
//	})
//	if err != nil {
//	    panic(err)
//	}
//
//	q, _ := l2.CreateObjFromVector(0, -1, []float32{0.1, 0.2})
//	results, _ := idx.KNNQuery(q, 10)
//	for _, r := range results {
//	    fmt.Println(r.ID, r.Dist)
//	}
//
// # Methods
//
//   - vptree: exact under a metric distance with the identity oracle;
//     approximate once the oracle is relaxed
//   - proj_vptree: random/PCA/FastMap/permutation projection into a dense
//     surrogate, VP-tree over the surrogate, re-ranking in the original
//     space
//   - perm_vptree: rank-correlation surrogate over a pivot permutation
//   - perm_bin_vptree: thresholded permutations as packed bit vectors
//     under Hamming distance
//
// # Tuning
//
// The auto-tuner searches stretch coefficients and exponents for a target
// recall:
//
//	res, err := metrigo.AutoTune(ctx, l2, data, queries, metrigo.MethodVPTree, params.Params{
//	    "desiredRecall": "0.9",
//	    "tuneK":         "10",
//	})
//	idx.SetQueryTimeParams(res.Params())
//
// Indices are immutable after construction; queries are safe to run
// concurrently. There is no online insertion: rebuild to change the
// dataset.
package metrigo
