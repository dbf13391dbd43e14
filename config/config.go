// ABOUTME: Run options for the optimization core, loaded from TOML files
// ABOUTME: Validation of every constraint that must fail fast at init

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"geneva/candidate"
)

// ErrConfigInvalid marks out-of-range or contradictory settings. Raised at
// init and fatal.
var ErrConfigInvalid = errors.New("invalid configuration")

// Options holds every recognized run option. Load starts from Default, so
// keys missing from a file keep their default values.
type Options struct {
	// Population
	Size     int `toml:"size"`      // total population: mu+lambda, or neighborhoods*members
	NParents int `toml:"nParents"`  // mu in EA/SA

	// EA reproduction
	AmalgamationLikelihood float64 `toml:"amalgamationLikelihood"`
	RecombinationScheme    string  `toml:"recombinationScheme"` // default|random|value

	// Halt criteria
	MaxIterations     uint32  `toml:"maxIterations"`
	MaxMinutes        float64 `toml:"maxMinutes"`
	MaxStallIteration uint32  `toml:"maxStallIteration"`

	// Swarm partition and coefficients. Coefficients take one element
	// (fixed) or two (resampled per iteration from [lo, hi]).
	NNeighborhoods       int       `toml:"nNeighborhoods"`
	NNeighborhoodMembers int       `toml:"nNeighborhoodMembers"`
	CLocal               []float64 `toml:"cLocal"`
	CGlobal              []float64 `toml:"cGlobal"`
	CDelta               []float64 `toml:"cDelta"`

	// Parameter scan
	ScanRandomly     bool   `toml:"scanRandomly"`
	ParameterOptions string `toml:"parameterOptions"` // e.g. "d(0,-10,10,100), i(1,0,100,101)"

	// Simulated annealing
	Alpha        float64 `toml:"alpha"` // temperature decay, 0 < alpha < 1
	StartTemp    float64 `toml:"startTemperature"`

	// Gradient descent
	GDStepSize   float64 `toml:"gdStepSize"`
	GDFiniteStep float64 `toml:"gdFiniteStep"`

	// Submission/collection policy
	WaitFactor             float64 `toml:"waitFactor"`
	MinWaitFactor          float64 `toml:"minWaitFactor"`
	MaxWaitFactor          float64 `toml:"maxWaitFactor"`
	WaitFactorIncrement    float64 `toml:"waitFactorIncrement"`
	BoundlessWait          bool    `toml:"boundlessWait"`
	MaxResubmissions       int     `toml:"maxResubmissions"`
	CompleteReturnRequired bool    `toml:"completeReturnRequired"`

	// Broker and serialization
	SerializationMode string `toml:"serializationMode"` // text|xml|binary
	RawCapacity       int    `toml:"rawCapacity"`
	ProcessedCapacity int    `toml:"processedCapacity"`

	// Pool sizing
	NProducerThreads    int `toml:"nProducerThreads"`
	NEvaluationThreads  int `toml:"nEvaluationThreads"`
	NBTCConsumerThreads int `toml:"nBTCConsumerThreads"`

	// TCP endpoint (server binds, client dials)
	IP   string `toml:"ip"`
	Port int    `toml:"port"`

	// Timeouts in milliseconds
	SubmitTimeoutMS int `toml:"submitTimeoutMS"`
	PollTimeoutMS   int `toml:"pollTimeoutMS"`
	IdleTimeoutMS   int `toml:"idleTimeoutMS"`

	// Checkpointing cadence: every n-th improvement, 0 disables
	CheckpointInterval int `toml:"checkpointInterval"`
}

// Default returns the baseline options for the demo problems.
func Default() Options {
	return Options{
		Size:                   100,
		NParents:               5,
		AmalgamationLikelihood: 0.0,
		RecombinationScheme:    "default",
		MaxIterations:          200,
		MaxMinutes:             0,
		MaxStallIteration:      0,
		NNeighborhoods:         5,
		NNeighborhoodMembers:   20,
		CLocal:                 []float64{2.0},
		CGlobal:                []float64{2.0},
		CDelta:                 []float64{0.4},
		Alpha:                  0.95,
		StartTemp:              10.0,
		GDStepSize:             0.1,
		GDFiniteStep:           1e-4,
		WaitFactor:             2.0,
		MinWaitFactor:          1.0,
		MaxWaitFactor:          10.0,
		WaitFactorIncrement:    1.0,
		MaxResubmissions:       5,
		CompleteReturnRequired: true,
		SerializationMode:      "binary",
		RawCapacity:            512,
		ProcessedCapacity:      512,
		NProducerThreads:       1,
		NEvaluationThreads:     0, // 0 falls back to NumCPU in the pool
		NBTCConsumerThreads:    4,
		IP:                     "127.0.0.1",
		Port:                   10000,
		SubmitTimeoutMS:        5000,
		PollTimeoutMS:          50,
		IdleTimeoutMS:          500,
		CheckpointInterval:     0,
	}
}

// Load reads options from a TOML file. A missing file returns defaults;
// anything else that goes wrong returns defaults plus the error.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}

		return Default(), fmt.Errorf("failed to read config file: %w", err)
	}

	opts := Default()
	if err := toml.Unmarshal(data, &opts); err != nil {
		return Default(), fmt.Errorf("failed to parse config file: %w", err)
	}

	return opts, nil
}

// Save writes options to a TOML file.
func Save(path string, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	defer func() { _ = f.Close() }()

	if err := toml.NewEncoder(f).Encode(opts); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks every constraint that must hold before a run starts.
func (o Options) Validate() error {
	if o.Size < 1 {
		return fmt.Errorf("%w: size %d, need at least 1", ErrConfigInvalid, o.Size)
	}

	if o.NParents < 1 {
		return fmt.Errorf("%w: nParents %d, need at least 1", ErrConfigInvalid, o.NParents)
	}

	if o.NParents >= o.Size {
		return fmt.Errorf("%w: nParents %d leaves no children in population of %d", ErrConfigInvalid, o.NParents, o.Size)
	}

	if 2*o.NParents > o.Size {
		return fmt.Errorf("%w: 2*nParents (%d) exceeds size %d", ErrConfigInvalid, 2*o.NParents, o.Size)
	}

	if o.AmalgamationLikelihood < 0 || o.AmalgamationLikelihood > 1 {
		return fmt.Errorf("%w: amalgamationLikelihood %v outside [0,1]", ErrConfigInvalid, o.AmalgamationLikelihood)
	}

	switch o.RecombinationScheme {
	case "default", "random", "value":
	default:
		return fmt.Errorf("%w: recombinationScheme %q (want default, random or value)", ErrConfigInvalid, o.RecombinationScheme)
	}

	if o.NNeighborhoods < 1 {
		return fmt.Errorf("%w: nNeighborhoods %d, need at least 1", ErrConfigInvalid, o.NNeighborhoods)
	}

	if o.NNeighborhoodMembers < 2 {
		return fmt.Errorf("%w: nNeighborhoodMembers %d, need at least 2", ErrConfigInvalid, o.NNeighborhoodMembers)
	}

	for _, c := range []struct {
		name string
		v    []float64
	}{
		{"cLocal", o.CLocal},
		{"cGlobal", o.CGlobal},
		{"cDelta", o.CDelta},
	} {
		if len(c.v) != 1 && len(c.v) != 2 {
			return fmt.Errorf("%w: %s needs one (fixed) or two (range) values, got %d", ErrConfigInvalid, c.name, len(c.v))
		}

		if len(c.v) == 2 && c.v[0] > c.v[1] {
			return fmt.Errorf("%w: %s range [%v, %v] is inverted", ErrConfigInvalid, c.name, c.v[0], c.v[1])
		}
	}

	if o.Alpha <= 0 || o.Alpha >= 1 {
		return fmt.Errorf("%w: alpha %v outside (0,1)", ErrConfigInvalid, o.Alpha)
	}

	if o.StartTemp <= 0 {
		return fmt.Errorf("%w: startTemperature %v, need > 0", ErrConfigInvalid, o.StartTemp)
	}

	if o.GDStepSize <= 0 || o.GDFiniteStep <= 0 {
		return fmt.Errorf("%w: gradient descent steps must be positive", ErrConfigInvalid)
	}

	if o.WaitFactor <= 0 {
		return fmt.Errorf("%w: waitFactor %v, need > 0", ErrConfigInvalid, o.WaitFactor)
	}

	if o.MinWaitFactor > o.MaxWaitFactor {
		return fmt.Errorf("%w: minWaitFactor %v exceeds maxWaitFactor %v", ErrConfigInvalid, o.MinWaitFactor, o.MaxWaitFactor)
	}

	if o.MaxResubmissions < 0 {
		return fmt.Errorf("%w: maxResubmissions %d, need >= 0", ErrConfigInvalid, o.MaxResubmissions)
	}

	if _, err := candidate.ParseSerializationMode(o.SerializationMode); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("%w: port %d outside [0, 65535]", ErrConfigInvalid, o.Port)
	}

	return nil
}

// Mode returns the parsed serialization mode. Call Validate first.
func (o Options) Mode() candidate.SerializationMode {
	m, _ := candidate.ParseSerializationMode(o.SerializationMode)

	return m
}

// Coeff converts a validated coefficient slice into a range.
func Coeff(v []float64) candidate.CoeffRange {
	switch len(v) {
	case 1:
		return candidate.Fixed(v[0])
	case 2:
		return candidate.CoeffRange{Lo: v[0], Hi: v[1]}
	default:
		return candidate.Fixed(0)
	}
}
