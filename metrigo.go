package metrigo

import (
	"context"

	"github.com/hupe1980/metrigo/index"
	"github.com/hupe1980/metrigo/index/permvptree"
	"github.com/hupe1980/metrigo/index/projvptree"
	"github.com/hupe1980/metrigo/index/vptree"
	"github.com/hupe1980/metrigo/params"
	"github.com/hupe1980/metrigo/pruner"
	"github.com/hupe1980/metrigo/space"
	"github.com/hupe1980/metrigo/tuner"
)

// Method names accepted by Build and AutoTune.
const (
	MethodVPTree        = "vptree"
	MethodProjVPTree    = "proj_vptree"
	MethodPermVPTree    = "perm_vptree"
	MethodPermBinVPTree = "perm_bin_vptree"
)

type options struct {
	logger *Logger
	seed   int64
	hasSeed bool
}

// Option configures Build behavior that is not part of the parameter
// surface.
type Option func(*options)

// WithLogger routes build and tuning logs through l. The default is no
// logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSeed overrides the build seed (pivot selection, projections).
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
		o.hasSeed = true
	}
}

// Build constructs an index over data. p is the string parameter surface;
// unknown keys are rejected. The dataset is referenced, not copied, and
// must not change for the index's lifetime.
func Build[D space.Dist](sp space.Space[D], data []*space.Object, method string, p params.Params, optFns ...Option) (index.Index[D], error) {
	var o options
	for _, fn := range optFns {
		fn(&o)
	}

	idx, err := build(sp, data, method, p, o)
	return idx, translateError(err)
}

func build[D space.Dist](sp space.Space[D], data []*space.Object, method string, p params.Params, o options) (index.Index[D], error) {
	m := params.NewManager(p)

	switch method {
	case MethodVPTree:
		treeOpts, err := vptree.OptionsFromParams(m)
		if err != nil {
			return nil, err
		}
		oracle, err := pruner.FromParams(m)
		if err != nil {
			return nil, err
		}
		if err := m.CheckUnclaimed(); err != nil {
			return nil, err
		}
		applyCommon(&treeOpts, o)
		return vptree.New(sp, data, treeOpts, oracle, nil)

	case MethodProjVPTree:
		opts, err := projvptree.OptionsFromParams(m)
		if err != nil {
			return nil, err
		}
		if err := m.CheckUnclaimed(); err != nil {
			return nil, err
		}
		applyCommon(&opts.Tree, o)
		if o.logger != nil {
			opts.Logger = o.logger.Logger
		}
		if o.hasSeed {
			opts.Seed = o.seed
		}
		return projvptree.New(sp, data, opts)

	case MethodPermVPTree:
		opts, err := permvptree.OptionsFromParams(m)
		if err != nil {
			return nil, err
		}
		if err := m.CheckUnclaimed(); err != nil {
			return nil, err
		}
		applyCommon(&opts.Tree, o)
		if o.logger != nil {
			opts.Logger = o.logger.Logger
		}
		if o.hasSeed {
			opts.Seed = o.seed
		}
		return permvptree.New(sp, data, opts)

	case MethodPermBinVPTree:
		opts, err := permvptree.OptionsFromParams(m)
		if err != nil {
			return nil, err
		}
		if err := m.CheckUnclaimed(); err != nil {
			return nil, err
		}
		applyCommon(&opts.Tree, o)
		if o.logger != nil {
			opts.Logger = o.logger.Logger
		}
		if o.hasSeed {
			opts.Seed = o.seed
		}
		return permvptree.NewBinary(sp, data, opts)

	default:
		return nil, unknownMethod(method)
	}
}

func applyCommon(treeOpts *vptree.Options, o options) {
	if o.logger != nil {
		treeOpts.Logger = o.logger.Logger
	}
	if o.hasSeed {
		treeOpts.Seed = o.seed
	}
}

// tunerParamKeys are consumed by the tuner; everything else in an AutoTune
// parameter map configures the method being tuned.
var tunerParamKeys = []string{
	tuner.ParamDesiredRecall, tuner.ParamMetric,
	tuner.ParamTuneK, tuner.ParamTuneR,
	tuner.ParamMinExp, tuner.ParamMaxExp,
	tuner.ParamMaxIter, tuner.ParamMaxRecDepth, tuner.ParamStepN,
	tuner.ParamAddRestartQty, tuner.ParamFullFactor, tuner.ParamMaxCacheGSQty,
}

// AutoTune builds the method over data and searches oracle parameters
// reaching the desired recall on queries. p mixes tuner parameters
// (desiredRecall, tuneK/tuneR, budget controls) with method parameters;
// see tuner.Options for the tuner defaults. On *tuner.TuningFailedError
// the best observed configuration is still returned.
func AutoTune[D space.Dist](ctx context.Context, sp space.Space[D], data, queries []*space.Object, method string, p params.Params, optFns ...Option) (tuner.Result, error) {
	var o options
	for _, fn := range optFns {
		fn(&o)
	}

	m := params.NewManager(p)
	tunerOpts, err := tuner.OptionsFromParams(m)
	if err != nil {
		return tuner.Result{}, translateError(err)
	}
	if o.logger != nil {
		tunerOpts.Logger = o.logger.Logger
	}
	if o.hasSeed {
		tunerOpts.Seed = o.seed
	}

	methodParams := m.ExtractExcept(tunerParamKeys...)

	buildFn := func(sp space.Space[D], data []*space.Object) (index.Index[D], error) {
		return build(sp, data, method, methodParams, o)
	}

	res, err := tuner.Tune(ctx, sp, data, queries, buildFn, tunerOpts)
	return res, translateError(err)
}
