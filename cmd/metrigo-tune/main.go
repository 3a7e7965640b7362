// Command metrigo-tune searches pruning-oracle parameters for a VP-tree
// method over a dense vector dataset and writes the winning parameter
// string to a file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/metrigo"
	"github.com/hupe1980/metrigo/params"
	"github.com/hupe1980/metrigo/space"
	"github.com/hupe1980/metrigo/tuner"
)

var (
	dataFile   string
	queryFile  string
	spaceName  string
	method     string
	methParams string
	outFile    string
	maxQueries int
	seed       int64
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "metrigo-tune",
	Short: "Tune VP-tree pruning parameters for a target recall",
	Long: `metrigo-tune builds a VP-tree family index over a dense vector dataset
and searches stretch coefficients and exponents that reach the desired
recall while minimizing distance computations (or query time).

The parameter string mixes tuner controls with method parameters, e.g.:

  metrigo-tune --data vectors.txt --space l2 --method vptree \
      --params "desiredRecall=0.9,tuneK=10,bucketSize=20" \
      --out tuned.txt

Queries default to a bootstrap sample of the dataset; pass --queries to
use a held-out query file instead.`,
	RunE: runTune,
}

func init() {
	rootCmd.Flags().StringVar(&dataFile, "data", "", "Dataset file (one dense vector per line)")
	rootCmd.Flags().StringVar(&queryFile, "queries", "", "Query file; defaults to a bootstrap sample of the dataset")
	rootCmd.Flags().StringVar(&spaceName, "space", "l2", "Space name (l1, l2, linf)")
	rootCmd.Flags().StringVar(&method, "method", metrigo.MethodVPTree, "Method to tune (vptree, proj_vptree, perm_vptree, perm_bin_vptree)")
	rootCmd.Flags().StringVar(&methParams, "params", "", "Tuner and method parameters (key=value,...)")
	rootCmd.Flags().StringVar(&outFile, "out", "", "File to write the winning parameter string to")
	rootCmd.Flags().IntVar(&maxQueries, "maxQueries", 100, "Bootstrap query count when --queries is not given")
	rootCmd.Flags().Int64Var(&seed, "seed", 1, "Seed for builds, restarts and the bootstrap sample")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Log tuning progress")

	_ = rootCmd.MarkFlagRequired("data")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runTune(cmd *cobra.Command, args []string) error {
	sp, err := space.NewLp(spaceName)
	if err != nil {
		return err
	}

	data, err := sp.ReadDataset(dataFile)
	if err != nil {
		return err
	}

	queries, err := loadQueries(sp, data)
	if err != nil {
		return err
	}

	p, err := params.Parse(methParams)
	if err != nil {
		return err
	}

	opts := []metrigo.Option{metrigo.WithSeed(seed)}
	if verbose {
		opts = append(opts, metrigo.WithLogger(metrigo.NewTextLogger(slog.LevelInfo)))
	}

	res, err := metrigo.AutoTune(context.Background(), sp, data, queries, method, p, opts...)
	if err != nil {
		var failed *tuner.TuningFailedError
		if errors.As(err, &failed) {
			fmt.Fprintf(os.Stderr, "tuning failed; best observed: %s (recall %.4f)\n",
				failed.Best.Params().String(), failed.Best.Recall)
		}
		return err
	}

	fmt.Printf("optimal parameters: %s\n", res.Params().String())
	fmt.Printf("recall: %.4f improvement: %.2f evaluations: %d seed: %d\n",
		res.Recall, res.Improvement, res.Evaluations, res.Seed)

	if outFile != "" {
		if err := res.WriteFile(outFile); err != nil {
			return err
		}
	}
	return nil
}

// loadQueries reads the query file, or bootstraps queries from the dataset
// when none is given. Bootstrapped queries stay in the dataset, which
// biases recall upward slightly; a held-out file is preferred.
func loadQueries(sp *space.Lp, data []*space.Object) ([]*space.Object, error) {
	if queryFile != "" {
		return sp.ReadDataset(queryFile)
	}

	n := min(maxQueries, len(data))
	rng := rand.New(rand.NewSource(seed))
	queries := make([]*space.Object, n)
	for i, j := range rng.Perm(len(data))[:n] {
		queries[i] = data[j]
	}
	return queries, nil
}
