package mmsb

import (
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/gilchrisn/mmsb-sampler/pkg/network"
)

// Config manages sampler configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	v := viper.New()

	// Model hyperparameters
	v.SetDefault("model.k", 300)
	v.SetDefault("model.alpha", 0.01)
	v.SetDefault("model.eta0", 1.0)
	v.SetDefault("model.eta1", 1.0)
	v.SetDefault("model.epsilon", 0.05)

	// Sampler parameters
	v.SetDefault("sampler.max_iteration", 10000000)
	v.SetDefault("sampler.num_node_sample", 50)
	v.SetDefault("sampler.mini_batch_size", 50)
	v.SetDefault("sampler.strategy", network.StratifiedRandomNode.String())
	v.SetDefault("sampler.interval", 10)
	v.SetDefault("sampler.deterministic", false)
	v.SetDefault("sampler.random_seed", 42)

	// Step size schedule
	v.SetDefault("stepsize.a", 0.01)
	v.SetDefault("stepsize.b", 1024.0)
	v.SetDefault("stepsize.c", 0.55)

	// Convergence
	v.SetDefault("convergence.threshold", 1e-12)
	v.SetDefault("convergence.window", 10)
	v.SetDefault("convergence.span", 2)

	v.SetDefault("network.held_out_ratio", 0.1)

	// Performance parameters
	v.SetDefault("performance.parallel", true)
	v.SetDefault("performance.num_workers", runtime.NumCPU())
	v.SetDefault("performance.chunk_size", 256)

	// Logging parameters
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.enable_progress", true)
	v.SetDefault("logging.progress_interval", 100)

	v.SetDefault("output.trace_file", "")
	v.SetDefault("output.summary_file", "")
	v.SetDefault("output.snapshot_dir", "")

	return &Config{v: v}
}

// LoadFromFile loads configuration from file
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// Getters for model parameters
func (c *Config) K() int { return c.v.GetInt("model.k") }
func (c *Config) Alpha() float64 { return c.v.GetFloat64("model.alpha") }
func (c *Config) Eta0() float64 { return c.v.GetFloat64("model.eta0") }
func (c *Config) Eta1() float64 { return c.v.GetFloat64("model.eta1") }
func (c *Config) Epsilon() float64 { return c.v.GetFloat64("model.epsilon") }
func (c *Config) MaxIteration() int { return c.v.GetInt("sampler.max_iteration") }
func (c *Config) NumNodeSample() int { return c.v.GetInt("sampler.num_node_sample") }
func (c *Config) MiniBatchSize() int { return c.v.GetInt("sampler.mini_batch_size") }
func (c *Config) StrategyName() string { return c.v.GetString("sampler.strategy") }
func (c *Config) Interval() int { return c.v.GetInt("sampler.interval") }
func (c *Config) Deterministic() bool { return c.v.GetBool("sampler.deterministic") }
func (c *Config) RandomSeed() int64 { return c.v.GetInt64("sampler.random_seed") }

func (c *Config) StepSizeA() float64 { return c.v.GetFloat64("stepsize.a") }
func (c *Config) StepSizeB() float64 { return c.v.GetFloat64("stepsize.b") }
func (c *Config) StepSizeC() float64 { return c.v.GetFloat64("stepsize.c") }

func (c *Config) ConvergenceThreshold() float64 { return c.v.GetFloat64("convergence.threshold") }
func (c *Config) ConvergenceWindow() int { return c.v.GetInt("convergence.window") }
func (c *Config) ConvergenceSpan() int { return c.v.GetInt("convergence.span") }

func (c *Config) HeldOutRatio() float64 { return c.v.GetFloat64("network.held_out_ratio") }

func (c *Config) Parallel() bool { return c.v.GetBool("performance.parallel") }
func (c *Config) NumWorkers() int { return c.v.GetInt("performance.num_workers") }
func (c *Config) ChunkSize() int { return c.v.GetInt("performance.chunk_size") }

func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }
func (c *Config) EnableProgress() bool { return c.v.GetBool("logging.enable_progress") }
func (c *Config) ProgressInterval() int { return c.v.GetInt("logging.progress_interval") }
func (c *Config) TraceFile() string { return c.v.GetString("output.trace_file") }
func (c *Config) SummaryFile() string { return c.v.GetString("output.summary_file") }
func (c *Config) SnapshotDir() string { return c.v.GetString("output.snapshot_dir") }

// Strategy parses the configured mini-batch strategy
func (c *Config) Strategy() (network.Strategy, error) {
	return network.ParseStrategy(c.StrategyName())
}

// Hyper collects the model hyperparameters
func (c *Config) Hyper() Hyper {
	return Hyper{
		K:       c.K(),
		Alpha:   c.Alpha(),
		Eta:     [2]float64{c.Eta0(), c.Eta1()},
		Epsilon: c.Epsilon(),
	}
}

// NetworkOptions returns the graph store options implied by the config
func (c *Config) NetworkOptions() network.Options {
	return network.Options{
		HeldOutRatio:  c.HeldOutRatio(),
		MiniBatchSize: c.MiniBatchSize(),
	}
}

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// Validate checks parameter ranges
func (c *Config) Validate() error {
	if c.K() <= 0 {
		return fmt.Errorf("%w: model.k must be positive, got %d", ErrInvalidConfig, c.K())
	}
	if c.Alpha() <= 0 {
		return fmt.Errorf("%w: model.alpha must be positive, got %g", ErrInvalidConfig, c.Alpha())
	}
	if c.Eta0() <= 0 || c.Eta1() <= 0 {
		return fmt.Errorf("%w: model.eta0 and model.eta1 must be positive, got %g, %g", ErrInvalidConfig, c.Eta0(), c.Eta1())
	}
	if eps := c.Epsilon(); eps <= 0 || eps >= 1 {
		return fmt.Errorf("%w: model.epsilon must lie in (0, 1), got %g", ErrInvalidConfig, eps)
	}
	if c.NumNodeSample() <= 0 {
		return fmt.Errorf("%w: sampler.num_node_sample must be positive, got %d", ErrInvalidConfig, c.NumNodeSample())
	}
	if c.MiniBatchSize() <= 0 {
		return fmt.Errorf("%w: sampler.mini_batch_size must be positive, got %d", ErrInvalidConfig, c.MiniBatchSize())
	}
	if c.Interval() <= 0 {
		return fmt.Errorf("%w: sampler.interval must be positive, got %d", ErrInvalidConfig, c.Interval())
	}
	if _, err := c.Strategy(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := NewStepSize(c.StepSizeA(), c.StepSizeB(), c.StepSizeC()); err != nil {
		return err
	}
	if c.ConvergenceWindow() < 2 || c.ConvergenceSpan() < 2 || c.ConvergenceSpan() > c.ConvergenceWindow() {
		return fmt.Errorf("%w: need 2 <= convergence.span <= convergence.window, got span=%d window=%d",
			ErrInvalidConfig, c.ConvergenceSpan(), c.ConvergenceWindow())
	}
	if c.ConvergenceThreshold() < 0 {
		return fmt.Errorf("%w: convergence.threshold must not be negative", ErrInvalidConfig)
	}
	if r := c.HeldOutRatio(); r <= 0 || r >= 1 {
		return fmt.Errorf("%w: network.held_out_ratio must lie in (0, 1), got %g", ErrInvalidConfig, r)
	}
	return nil
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "mmsb").Logger()
}
