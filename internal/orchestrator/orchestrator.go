package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"radiology-ai/internal/agent"
	"radiology-ai/internal/clinical"
	"radiology-ai/internal/sentinel"
)

var (
	ErrUnknownPass   = errors.New("unknown analysis pass")
	ErrInvalidConfig = errors.New("invalid orchestrator config")
)

const (
	DefaultPassTimeout = 30 * time.Second

	// SeedPass runs alone before fan-out; its top hypothesis is the initial
	// impression the collapse is checked against.
	SeedPass = agent.Impression

	defaultIndication = "Evaluate for acute findings"
)

// DefaultFanOut is the fan-out order. Sequential runs and gather tie-breaks
// follow it.
var DefaultFanOut = []agent.Name{agent.Factual, agent.Critique, agent.Confirmatory, agent.Differential}

type Config struct {
	// Parallel runs the fan-out passes concurrently. Each then sees only the
	// seed output; sequential passes see every output produced before them.
	Parallel bool

	// PassTimeout bounds each pass individually.
	PassTimeout time.Duration

	// RequestTimeout, when positive, bounds the whole analysis. Passes that
	// have not finished by then are replaced with placeholders and the
	// analysis moves straight to validation.
	RequestTimeout time.Duration

	EnableLearning bool

	// FanOut nil means DefaultFanOut.
	FanOut []agent.Name
}

func DefaultConfig() Config {
	return Config{
		Parallel:       true,
		PassTimeout:    DefaultPassTimeout,
		EnableLearning: true,
		FanOut:         slices.Clone(DefaultFanOut),
	}
}

// Request is one study to analyze.
type Request struct {
	// StudyID defaults to the StudyInstanceUID metadata value, then a fresh UUID.
	StudyID  string
	Image    []byte
	Metadata clinical.Metadata
	Context  clinical.Context
	// Priority is informational (routine, urgent, stat).
	Priority string
}

type Orchestrator struct {
	cfg       Config
	passes    agent.Set
	validator *sentinel.Validator
	logger    *zap.Logger
	now       func() time.Time
}

// New checks cfg against passes. A nil validator gets a default one and a nil
// logger discards output.
func New(cfg Config, passes agent.Set, validator *sentinel.Validator, logger *zap.Logger) (*Orchestrator, error) {
	if cfg.FanOut == nil {
		cfg.FanOut = slices.Clone(DefaultFanOut)
	}
	if cfg.PassTimeout <= 0 {
		return nil, fmt.Errorf("%w: pass timeout must be positive, got %s", ErrInvalidConfig, cfg.PassTimeout)
	}
	if cfg.RequestTimeout < 0 {
		return nil, fmt.Errorf("%w: request timeout must not be negative, got %s", ErrInvalidConfig, cfg.RequestTimeout)
	}

	seen := map[agent.Name]bool{}
	for _, name := range cfg.FanOut {
		if !agent.Known(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPass, name)
		}
		if name == SeedPass || name == agent.Synthesis {
			return nil, fmt.Errorf("%w: %s cannot run in fan-out", ErrInvalidConfig, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s listed twice in fan-out", ErrInvalidConfig, name)
		}
		seen[name] = true
	}

	for _, name := range append([]agent.Name{SeedPass, agent.Synthesis}, cfg.FanOut...) {
		p, ok := passes[name]
		if !ok || p == nil {
			return nil, fmt.Errorf("%w: no implementation for %s", ErrInvalidConfig, name)
		}
	}

	if validator == nil {
		validator = sentinel.NewValidator(sentinel.Config{}, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		cfg:       cfg,
		passes:    passes,
		validator: validator,
		logger:    logger.Named("orchestrator"),
		now:       time.Now,
	}, nil
}

// Analyze runs seed, fan-out, synthesis and validation for one study.
//
// Pass failures and timeouts never fail the call; they are replaced with
// placeholder outputs and show up as lower confidence. The only error is the
// caller's context being done before analysis starts.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	start := o.now()
	studyID := req.StudyID
	if studyID == "" {
		studyID = req.Metadata.StringOr(clinical.KeyStudyInstanceUID, uuid.NewString())
	}
	log := o.logger.With(zap.String("study_id", studyID))
	log.Info("analysis started", zap.String("priority", req.Priority), zap.Bool("parallel", o.cfg.Parallel))

	if o.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()
	}

	enriched := req.Context.Enrich(req.Metadata)
	base := agent.Input{
		Image:    req.Image,
		Metadata: req.Metadata,
		Context:  enriched,
	}

	seed := o.runPass(ctx, log, SeedPass, base)
	initial := initialHypothesis(seed)
	timeline := []TimelineEntry{{
		Stage:      StageInitial,
		Timestamp:  o.now().UTC(),
		Hypothesis: initial.Diagnosis,
		Confidence: initial.Confidence,
	}}

	var fanOut []clinical.AgentOutput
	if o.cfg.Parallel {
		fanOut = o.fanOutParallel(ctx, log, base, seed)
	} else {
		fanOut = o.fanOutSequential(ctx, log, base, seed)
	}

	ordered := append([]clinical.AgentOutput{seed}, fanOut...)
	synthIn := base
	synthIn.Previous = slices.Clone(ordered)
	synthesis := o.runPass(ctx, log, agent.Synthesis, synthIn)
	ordered = append(ordered, synthesis)

	collapse := o.validator.Collapse(initial, ordered)
	counts := collapse.Counts()
	timeline = append(timeline, TimelineEntry{
		Stage:      StageFinal,
		Timestamp:  o.now().UTC(),
		Hypothesis: collapse.Final.Diagnosis,
		Confidence: collapse.Final.Confidence,
		Collapse:   &counts,
	})

	indication := enriched.ChiefComplaint
	if indication == "" {
		indication = defaultIndication
	}
	report := o.validator.GenerateReport(collapse, req.Metadata, indication, ordered)

	outputs := make(map[agent.Name]clinical.AgentOutput, len(ordered))
	for _, out := range ordered {
		outputs[agent.Name(out.Agent)] = out
	}

	res := &Result{
		StudyID:          studyID,
		Report:           report,
		Collapse:         collapse,
		Outputs:          outputs,
		PassOrder:        passOrder(ordered),
		ProcessingTimeMS: float64(o.now().Sub(start).Microseconds()) / 1000,
		Timeline:         timeline,
		Summary:          summarize(initial, collapse, ordered),
	}

	log.Info("analysis complete",
		zap.String("diagnosis", collapse.Final.Diagnosis),
		zap.Float64("confidence", collapse.Final.Confidence),
		zap.String("urgency", string(report.Urgency)),
		zap.Bool("radiologist_required", report.RadiologistRequired),
		zap.Float64("duration_ms", res.ProcessingTimeMS),
	)
	return res, nil
}

// fanOutParallel gives every pass the seed output alone. Results keep
// configured order regardless of completion order.
func (o *Orchestrator) fanOutParallel(ctx context.Context, log *zap.Logger, base agent.Input, seed clinical.AgentOutput) []clinical.AgentOutput {
	results := make([]clinical.AgentOutput, len(o.cfg.FanOut))
	var g errgroup.Group
	for i, name := range o.cfg.FanOut {
		in := base
		in.Previous = []clinical.AgentOutput{seed}
		g.Go(func() error {
			results[i] = o.runPass(ctx, log, name, in)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// fanOutSequential gives each pass the seed plus every real output produced
// before it. Placeholders are not passed on.
func (o *Orchestrator) fanOutSequential(ctx context.Context, log *zap.Logger, base agent.Input, seed clinical.AgentOutput) []clinical.AgentOutput {
	results := make([]clinical.AgentOutput, 0, len(o.cfg.FanOut))
	seen := []clinical.AgentOutput{seed}
	for _, name := range o.cfg.FanOut {
		in := base
		in.Previous = slices.Clone(seen)
		out := o.runPass(ctx, log, name, in)
		results = append(results, out)
		if !out.Placeholder {
			seen = append(seen, out)
		}
	}
	return results
}

type passResult struct {
	out clinical.AgentOutput
	err error
}

// runPass runs one pass under its own timeout. It always returns an output:
// errors, panics and timeouts become placeholders.
func (o *Orchestrator) runPass(ctx context.Context, log *zap.Logger, name agent.Name, in agent.Input) clinical.AgentOutput {
	if ctx.Err() != nil {
		log.Warn("pass skipped, request deadline exceeded", zap.String("pass", string(name)))
		return placeholder(name, "skipped: request deadline exceeded")
	}

	passCtx, cancel := context.WithTimeout(ctx, o.cfg.PassTimeout)
	defer cancel()

	done := make(chan passResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- passResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := o.passes[name].Analyze(passCtx, in)
		done <- passResult{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			log.Error("pass failed", zap.String("pass", string(name)), zap.Error(r.err))
			return placeholder(name, "failed: "+r.err.Error())
		}
		if r.out.Agent == "" {
			r.out.Agent = string(name)
		}
		return r.out
	case <-passCtx.Done():
		if ctx.Err() != nil {
			log.Warn("pass cut off by request deadline", zap.String("pass", string(name)))
			return placeholder(name, "skipped: request deadline exceeded")
		}
		log.Warn("pass timed out", zap.String("pass", string(name)), zap.Duration("timeout", o.cfg.PassTimeout))
		return placeholder(name, fmt.Sprintf("timed out after %s", o.cfg.PassTimeout))
	}
}

func placeholder(name agent.Name, reason string) clinical.AgentOutput {
	return clinical.AgentOutput{
		Agent:           string(name),
		Findings:        []clinical.Finding{},
		Hypotheses:      []string{},
		Confidence:      map[string]float64{},
		Reasoning:       fmt.Sprintf("Agent %s %s", name, reason),
		Recommendations: []string{},
		Flags:           []string{},
		Placeholder:     true,
	}
}

const (
	unknownDiagnosis  = "Unknown"
	unknownConfidence = 0.5
)

// initialHypothesis picks the seed's highest-confidence hypothesis; the first
// listed wins a tie.
func initialHypothesis(seed clinical.AgentOutput) sentinel.Hypothesis {
	if len(seed.Hypotheses) == 0 {
		return sentinel.Hypothesis{Diagnosis: unknownDiagnosis, Confidence: unknownConfidence}
	}
	best := seed.Hypotheses[0]
	bestConf := seed.ScoreOf(best, agent.DefaultHypothesisConfidence)
	for _, h := range seed.Hypotheses[1:] {
		if c := seed.ScoreOf(h, agent.DefaultHypothesisConfidence); c > bestConf {
			best, bestConf = h, c
		}
	}
	return sentinel.Hypothesis{Diagnosis: best, Confidence: bestConf}
}

func passOrder(outputs []clinical.AgentOutput) []agent.Name {
	order := make([]agent.Name, len(outputs))
	for i, o := range outputs {
		order[i] = agent.Name(o.Agent)
	}
	return order
}

// SubmitCorrection hands a radiologist correction of res to the validator's
// learning buffer. With learning disabled it reports that instead of failing.
func (o *Orchestrator) SubmitCorrection(ctx context.Context, res *Result, diagnosis, by, reason string) (sentinel.CorrectionAck, error) {
	if !o.cfg.EnableLearning {
		return sentinel.CorrectionAck{Status: sentinel.AckDisabled, Message: "Learning is disabled"}, nil
	}
	if res == nil {
		return sentinel.CorrectionAck{}, errors.New("submit correction: result is required")
	}
	ack, err := o.validator.LearnFromCorrection(ctx, res.Report, diagnosis, by, reason)
	if err != nil {
		return sentinel.CorrectionAck{}, err
	}
	o.logger.Info("correction recorded",
		zap.String("study_id", res.StudyID),
		zap.String("record_id", ack.RecordID),
		zap.String("corrected_diagnosis", diagnosis),
	)
	return ack, nil
}

func (o *Orchestrator) LearningData(ctx context.Context) ([]sentinel.Correction, error) {
	return o.validator.LearningRecords(ctx)
}

func (o *Orchestrator) FlushLearning(ctx context.Context) ([]sentinel.Correction, error) {
	return o.validator.FlushLearning(ctx)
}
