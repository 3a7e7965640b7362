// Package tuner finds pruning-oracle parameters that reach a target recall
// while maximizing an efficiency objective.
//
// The search walks the integer exponent lattice and, for each exponent pair
// and random restart, runs a nested grid search over the stretch
// coefficients: a (2·stepN+1)² log-spaced grid over [α/F, α·F]² is scored
// against cached ground truth, the box is re-centered on the winner and
// narrowed with F ← √F, and the procedure repeats up to the configured
// depth. Scoring a configuration only swaps the index's oracle and replays
// the query set, so the tree is built once per tuning run.
package tuner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/metrigo/index"
	"github.com/hupe1980/metrigo/params"
	"github.com/hupe1980/metrigo/space"
)

// Parameter keys understood by OptionsFromParams.
const (
	ParamDesiredRecall = "desiredRecall"
	ParamMetric        = "metric"
	ParamTuneK         = "tuneK"
	ParamTuneR         = "tuneR"
	ParamMinExp        = "minExp"
	ParamMaxExp        = "maxExp"
	ParamMaxIter       = "maxIter"
	ParamMaxRecDepth   = "maxRecDepth"
	ParamStepN         = "stepN"
	ParamAddRestartQty = "addRestartQty"
	ParamFullFactor    = "fullFactor"
	ParamMaxCacheGSQty = "maxCacheGSQty"
)

// Objective selects what the tuner maximizes subject to the recall target.
type Objective int

const (
	// ObjectiveDist maximizes the reduction in distance computations
	// relative to a linear scan.
	ObjectiveDist Objective = iota

	// ObjectiveTime maximizes wall-clock speedup relative to a linear
	// scan. Host-load sensitive; treat results as noisy.
	ObjectiveTime
)

// ParseObjective maps the "metric" parameter values "dist" and "time".
func ParseObjective(s string) (Objective, error) {
	switch s {
	case "dist":
		return ObjectiveDist, nil
	case "time":
		return ObjectiveTime, nil
	default:
		return 0, fmt.Errorf("tuner: unknown objective %q (want dist or time)", s)
	}
}

func (o Objective) String() string {
	if o == ObjectiveTime {
		return "time"
	}
	return "dist"
}

// Options configures a tuning run.
type Options struct {
	// DesiredRecall is the target recall in (0, 1]. Required.
	DesiredRecall float64

	// K selects k-NN tuning; Radius selects range tuning. Exactly one
	// must be positive.
	K      int
	Radius float64

	// MinExp and MaxExp bound the integer exponent lattice.
	MinExp int
	MaxExp int

	// MaxIter caps grid passes per restart; MaxRecDepth caps the nested
	// narrowing depth; StepN sizes the grid as (2·StepN+1)² points;
	// FullFactor is the initial box half-width factor F.
	MaxIter     int
	MaxRecDepth int
	StepN       int
	FullFactor  float64

	// AddRestartQty is the number of extra random restarts per exponent
	// pair beyond the deterministic start at alpha = 1.
	AddRestartQty int

	// MaxCacheGSQty caps how many queries get cached ground truth.
	MaxCacheGSQty int

	// Objective selects dist or time improvement.
	Objective Objective

	// Seed drives the random restarts. Persist it with the winning
	// parameters to reproduce a run.
	Seed int64

	// Logger receives INFO-level progress. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions are the standard budget controls.
var DefaultOptions = Options{
	MinExp:        1,
	MaxExp:        1,
	MaxIter:       10,
	MaxRecDepth:   6,
	StepN:         2,
	FullFactor:    8.0,
	AddRestartQty: 4,
	MaxCacheGSQty: 1000,
	Objective:     ObjectiveDist,
	Seed:          1,
}

// OptionsFromParams reads the tuner parameter surface.
func OptionsFromParams(m *params.Manager) (Options, error) {
	opts := DefaultOptions

	var err error
	if opts.DesiredRecall, err = m.RequireFloat(ParamDesiredRecall); err != nil {
		return opts, err
	}
	if opts.K, err = m.Int(ParamTuneK, 0); err != nil {
		return opts, err
	}
	if opts.Radius, err = m.Float(ParamTuneR, 0); err != nil {
		return opts, err
	}
	if opts.MinExp, err = m.Int(ParamMinExp, opts.MinExp); err != nil {
		return opts, err
	}
	if opts.MaxExp, err = m.Int(ParamMaxExp, opts.MaxExp); err != nil {
		return opts, err
	}
	if opts.MaxIter, err = m.Int(ParamMaxIter, opts.MaxIter); err != nil {
		return opts, err
	}
	if opts.MaxRecDepth, err = m.Int(ParamMaxRecDepth, opts.MaxRecDepth); err != nil {
		return opts, err
	}
	if opts.StepN, err = m.Int(ParamStepN, opts.StepN); err != nil {
		return opts, err
	}
	if opts.AddRestartQty, err = m.Int(ParamAddRestartQty, opts.AddRestartQty); err != nil {
		return opts, err
	}
	if opts.FullFactor, err = m.Float(ParamFullFactor, opts.FullFactor); err != nil {
		return opts, err
	}
	if opts.MaxCacheGSQty, err = m.Int(ParamMaxCacheGSQty, opts.MaxCacheGSQty); err != nil {
		return opts, err
	}
	if metric := m.String(ParamMetric, opts.Objective.String()); metric != "" {
		if opts.Objective, err = ParseObjective(metric); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func (o Options) validate() error {
	if o.DesiredRecall <= 0 || o.DesiredRecall > 1 {
		return index.NewConfigError("desiredRecall must be in (0,1] (got %g)", o.DesiredRecall)
	}
	if (o.K > 0) == (o.Radius > 0) {
		return index.NewConfigError("exactly one of tuneK and tuneR must be set")
	}
	if o.MinExp < 1 {
		return index.NewConfigError("minExp must be >= 1 (got %d)", o.MinExp)
	}
	if o.MaxExp < o.MinExp {
		return index.NewConfigError("maxExp %d must be >= minExp %d", o.MaxExp, o.MinExp)
	}
	if o.StepN < 1 {
		return index.NewConfigError("stepN must be >= 1 (got %d)", o.StepN)
	}
	if o.FullFactor <= 1 {
		return index.NewConfigError("fullFactor must be > 1 (got %g)", o.FullFactor)
	}
	return nil
}

// Result is a tuned configuration and its measured quality.
type Result struct {
	AlphaLeft  float64
	AlphaRight float64
	ExpLeft    int
	ExpRight   int

	// Recall and Improvement are the measured scores of this
	// configuration over the tuning query set.
	Recall      float64
	Improvement float64

	// Evaluations counts configurations scored across the whole run.
	Evaluations int

	// Seed reproduces the run.
	Seed int64
}

// Params renders the configuration as query-time parameters.
func (r Result) Params() params.Params {
	return params.Params{
		"alphaLeft":  fmt.Sprintf("%g", r.AlphaLeft),
		"alphaRight": fmt.Sprintf("%g", r.AlphaRight),
		"expLeft":    fmt.Sprintf("%d", r.ExpLeft),
		"expRight":   fmt.Sprintf("%d", r.ExpRight),
	}
}

// WriteFile persists the winning parameter string, with the seed on a
// comment line for reproducibility.
func (r Result) WriteFile(path string) error {
	content := fmt.Sprintf("%s\n# seed=%d recall=%g improvement=%g\n",
		r.Params().String(), r.Seed, r.Recall, r.Improvement)
	return os.WriteFile(path, []byte(content), 0o644)
}

// TuningFailedError reports that no configuration met the recall target.
// Best carries the best observed configuration; callers decide whether to
// proceed with it.
type TuningFailedError struct {
	DesiredRecall float64
	Best          Result
}

func (e *TuningFailedError) Error() string {
	return fmt.Sprintf("tuning failed: best recall %.4f below target %.4f (best: %s)",
		e.Best.Recall, e.DesiredRecall, e.Best.Params().String())
}

// BuildFunc constructs the index being tuned. The tuner passes a
// distance-counting wrapper of the original space so the dist objective can
// be measured.
type BuildFunc[D space.Dist] func(sp space.Space[D], data []*space.Object) (index.Index[D], error)

// Tune searches for oracle parameters reaching opts.DesiredRecall over the
// given query set. The index is built once; configurations are applied via
// SetQueryTimeParams. On failure the best observed configuration is
// returned alongside a *TuningFailedError.
func Tune[D space.Dist](ctx context.Context, sp space.Space[D], data, queries []*space.Object, build BuildFunc[D], opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	if len(data) == 0 {
		return Result{}, index.ErrEmptyDataset
	}
	if len(queries) == 0 {
		return Result{}, index.NewConfigError("tuning requires a non-empty query set")
	}

	counted := space.WithCounter(sp)
	idx, err := build(counted, data)
	if err != nil {
		return Result{}, err
	}

	gs, err := newGoldStandard(sp, data, queries, opts.K, opts.Radius, opts.MaxCacheGSQty)
	if err != nil {
		return Result{}, err
	}

	if opts.Logger != nil {
		opts.Logger.Info("tuning started",
			"method", idx.Name(),
			"objective", opts.Objective.String(),
			"desiredRecall", opts.DesiredRecall,
			"queries", len(gs.queries),
			"expRange", fmt.Sprintf("[%d,%d]", opts.MinExp, opts.MaxExp),
			"seed", opts.Seed,
		)
	}

	t := &tuning[D]{
		idx:     idx,
		counted: counted,
		gs:      gs,
		opts:    opts,
		rng:     rand.New(rand.NewSource(opts.Seed)),
	}

	sigma := math.Log(opts.FullFactor)

	var (
		best    Result // best objective among recall-meeting configurations
		bestAny Result // best observed, used when nothing meets recall
		hasBest bool
	)
	bestAny.Recall = -1

	for expLeft := opts.MinExp; expLeft <= opts.MaxExp; expLeft++ {
		for expRight := opts.MinExp; expRight <= opts.MaxExp; expRight++ {
			for restart := 0; restart <= opts.AddRestartQty; restart++ {
				if err := ctx.Err(); err != nil {
					return Result{}, err
				}

				alphaLeft, alphaRight := 1.0, 1.0
				if restart > 0 {
					alphaLeft = math.Exp(t.rng.NormFloat64() * sigma)
					alphaRight = math.Exp(t.rng.NormFloat64() * sigma)
				}

				local, err := t.gridSearch(ctx, expLeft, expRight, alphaLeft, alphaRight)
				if err != nil {
					return Result{}, err
				}

				if local.Recall >= opts.DesiredRecall && (!hasBest || local.Improvement > best.Improvement) {
					best = local
					hasBest = true
				}
				if better(local, bestAny, opts.DesiredRecall) {
					bestAny = local
				}

				if opts.Logger != nil {
					opts.Logger.Info("restart finished",
						"expLeft", expLeft, "expRight", expRight, "restart", restart,
						"recall", local.Recall, "improvement", local.Improvement,
					)
				}
			}
		}
	}

	if !hasBest {
		bestAny.Evaluations = t.evals
		bestAny.Seed = opts.Seed
		return bestAny, &TuningFailedError{DesiredRecall: opts.DesiredRecall, Best: bestAny}
	}

	best.Evaluations = t.evals
	best.Seed = opts.Seed

	if opts.Logger != nil {
		opts.Logger.Info("tuning finished",
			"alphaLeft", best.AlphaLeft, "expLeft", best.ExpLeft,
			"alphaRight", best.AlphaRight, "expRight", best.ExpRight,
			"recall", best.Recall, "improvement", best.Improvement,
			"evaluations", best.Evaluations,
		)
	}
	return best, nil
}

// better orders configurations: meeting recall beats not meeting it; among
// meeting ones higher improvement wins; otherwise higher recall wins.
func better(a, b Result, target float64) bool {
	aMeets, bMeets := a.Recall >= target, b.Recall >= target
	if aMeets != bMeets {
		return aMeets
	}
	if aMeets {
		return a.Improvement > b.Improvement
	}
	return a.Recall > b.Recall
}

type tuning[D space.Dist] struct {
	idx     index.Index[D]
	counted *space.Counted[D]
	gs      *goldStandard
	opts    Options
	rng     *rand.Rand
	evals   int
}

// gridSearch runs the nested grid around (alphaLeft, alphaRight) for one
// exponent pair and returns the best configuration found.
func (t *tuning[D]) gridSearch(ctx context.Context, expLeft, expRight int, alphaLeft, alphaRight float64) (Result, error) {
	factor := t.opts.FullFactor
	stepN := t.opts.StepN

	best := Result{Recall: -1}

	passes := min(t.opts.MaxRecDepth, t.opts.MaxIter)
	for pass := 0; pass < passes; pass++ {
		for i := -stepN; i <= stepN; i++ {
			for j := -stepN; j <= stepN; j++ {
				if err := ctx.Err(); err != nil {
					return Result{}, err
				}

				cand := Result{
					AlphaLeft:  alphaLeft * math.Pow(factor, float64(i)/float64(stepN)),
					AlphaRight: alphaRight * math.Pow(factor, float64(j)/float64(stepN)),
					ExpLeft:    expLeft,
					ExpRight:   expRight,
				}
				if err := t.evaluate(&cand); err != nil {
					return Result{}, err
				}
				if better(cand, best, t.opts.DesiredRecall) {
					best = cand
				}
			}
		}

		// Narrow the box around the winner.
		alphaLeft, alphaRight = best.AlphaLeft, best.AlphaRight
		factor = math.Sqrt(factor)
	}
	return best, nil
}

// evaluate scores one configuration: swap the oracle, replay the query set
// and measure recall plus the efficiency objective.
func (t *tuning[D]) evaluate(cand *Result) error {
	if err := t.idx.SetQueryTimeParams(cand.Params()); err != nil {
		return err
	}

	t.counted.Reset()
	start := time.Now()

	recalls := make([]float64, len(t.gs.queries))

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, q := range t.gs.queries {
		g.Go(func() error {
			ids := roaring.New()
			if t.opts.K > 0 {
				res, err := t.idx.KNNQuery(q, t.opts.K)
				if err != nil {
					return err
				}
				for _, r := range res {
					ids.Add(r.ID)
				}
			} else {
				res, err := t.idx.RangeQuery(q, D(t.opts.Radius))
				if err != nil {
					return err
				}
				for _, r := range res {
					ids.Add(r.ID)
				}
			}
			recalls[i] = t.gs.recall(i, ids)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	t.evals++

	var sum float64
	for _, r := range recalls {
		sum += r
	}
	cand.Recall = sum / float64(len(recalls))

	switch t.opts.Objective {
	case ObjectiveTime:
		if elapsed <= 0 {
			elapsed = time.Nanosecond
		}
		cand.Improvement = float64(t.gs.scanTime) / float64(elapsed)
	default:
		comps := t.counted.Count()
		if comps < 1 {
			comps = 1
		}
		cand.Improvement = float64(t.gs.scanDistComps) / float64(comps)
	}
	return nil
}
