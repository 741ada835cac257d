// Command marginal evaluates and optimizes enumeration-based variational
// bounds for the built-in models.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lowvariance/marginal/config"
	"github.com/lowvariance/marginal/infer"
	"github.com/lowvariance/marginal/models"
	"github.com/lowvariance/marginal/runtime"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "marginal",
	Short: "marginal - exact marginalization of discrete latents",
	Long: `marginal estimates evidence lower bounds for probabilistic models,
marginalizing discrete latent variables exactly by variable elimination
while handling continuous latents by Monte Carlo.

Models, data and optimizer settings come from a YAML config file; every
run is reproducible from the configured seed.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// evalCmd evaluates the bound and its gradient at the stored parameters.
var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate the bound and gradient at the current parameters",
	RunE:  runEval,
}

// fitCmd optimizes the parameters and writes a snapshot.
var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Optimize parameters by stochastic variational inference",
	RunE:  runFit,
}

// showCmd prints a parameter snapshot.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the parameters stored in a snapshot file",
	RunE:  runShow,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "marginal.yaml", "path to config file")
	rootCmd.AddCommand(evalCmd, fitCmd, showCmd)
}

// setup loads the config and builds the model, store and driver it names.
func setup() (*config.Config, models.Spec, *runtime.Store, *infer.TraceEnumELBO, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	spec, err := models.New(cfg.Model.Name, cfg.Model.Data, cfg.Model.Scale)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	st := runtime.NewStore()
	if err := spec.DeclareParams(st); err != nil {
		return nil, nil, nil, nil, err
	}

	// Resume from an existing snapshot when one is present.
	if _, statErr := os.Stat(cfg.Snapshot); statErr == nil {
		snap, err := runtime.LoadFile(cfg.Snapshot)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("loading snapshot %s: %w", cfg.Snapshot, err)
		}
		for _, name := range snap.Names() {
			u, err := snap.Unconstrained(name)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			if err := st.SetUnconstrained(name, u); err != nil {
				return nil, nil, nil, nil, fmt.Errorf("snapshot %s does not match model %s: %w", cfg.Snapshot, spec.Name(), err)
			}
		}
		logger.Info("resumed parameters", zap.String("snapshot", cfg.Snapshot))
	}

	maxDims := cfg.Inference.MaxDims
	if maxDims == 0 {
		// One dimension per potential enumerated site plus the particle axis.
		maxDims = len(cfg.Model.Data) + 8
	}

	e := infer.NewTraceEnumELBO(spec.Model, spec.Guide, infer.Options{
		Particles: cfg.Inference.Particles,
		Seed:      cfg.Inference.Seed,
		MaxDims:   maxDims,
		Logger:    logger,
	})
	return cfg, spec, st, e, nil
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, spec, st, e, err := setup()
	if err != nil {
		return err
	}

	var bound float64
	if cfg.Inference.Workers > 1 {
		bound, err = e.BoundParallel(st, cfg.Inference.Workers)
	} else {
		bound, err = e.Bound(st)
	}
	if err != nil {
		return err
	}

	grads, err := e.Gradient(st, spec.ParamNames()...)
	if err != nil {
		return err
	}

	fmt.Printf("model: %s\nbound: %.6f\n", spec.Name(), bound)
	for _, name := range spec.ParamNames() {
		v, err := st.Get(name)
		if err != nil {
			return err
		}
		fmt.Printf("  %-12s = %10.6f   grad = %10.6f\n", name, v, grads[name])
	}
	return nil
}

func runFit(cmd *cobra.Command, args []string) error {
	cfg, spec, st, e, err := setup()
	if err != nil {
		return err
	}

	var opt infer.Optimizer
	switch cfg.Train.Optimizer {
	case "sgd":
		opt = &infer.SGD{LR: cfg.Train.LearningRate}
	default:
		opt = infer.NewAdam(cfg.Train.LearningRate)
	}

	svi := infer.NewSVI(e, opt, logger)
	final, err := svi.Run(st, spec.ParamNames(), cfg.Train.Steps)
	if err != nil {
		return err
	}

	if err := st.SaveFile(cfg.Snapshot); err != nil {
		return fmt.Errorf("saving snapshot %s: %w", cfg.Snapshot, err)
	}
	logger.Info("snapshot written", zap.String("path", cfg.Snapshot))

	fmt.Printf("model: %s\nfinal bound: %.6f\n", spec.Name(), final)
	for _, name := range spec.ParamNames() {
		v, err := st.Get(name)
		if err != nil {
			return err
		}
		fmt.Printf("  %-12s = %10.6f\n", name, v)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := runtime.LoadFile(cfg.Snapshot)
	if err != nil {
		return fmt.Errorf("loading snapshot %s: %w", cfg.Snapshot, err)
	}

	fmt.Printf("snapshot: %s\n", cfg.Snapshot)
	for _, name := range st.Names() {
		v, err := st.Get(name)
		if err != nil {
			return err
		}
		c, err := st.ConstraintOf(name)
		if err != nil {
			return err
		}
		fmt.Printf("  %-12s = %10.6f   (%s)\n", name, v, c)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
