package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/medscan-mcp/internal/apperr"
	"github.com/ironsheep/medscan-mcp/internal/extract"
	"github.com/ironsheep/medscan-mcp/internal/imaging"
	"github.com/ironsheep/medscan-mcp/internal/locale"
	"github.com/ironsheep/medscan-mcp/internal/ocr"
	"github.com/ironsheep/medscan-mcp/internal/progress"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusNoCandidates Status = "no-candidates"
	StatusFailed       Status = "failed"
)

// ErrSuperseded is the cancellation cause of a run replaced by a newer one.
var ErrSuperseded = errors.New("pipeline: superseded by a newer run")

// Config holds the tunables of a Runner.
type Config struct {
	Preprocess imaging.PreprocessOptions
	Tiling     imaging.TilingMode

	// RegionTimeout bounds each Recognize call. Zero disables the bound.
	RegionTimeout time.Duration

	PageSegMode ocr.PageSegMode
	DPI         int

	Heuristics extract.Heuristics

	// StatusInterval is the status message rotation period.
	StatusInterval time.Duration

	// Rand seeds status message selection. Nil uses a time-seeded source.
	Rand *rand.Rand
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Preprocess:     imaging.DefaultPreprocessOptions(),
		Tiling:         imaging.TilingBands,
		RegionTimeout:  20 * time.Second,
		PageSegMode:    ocr.PSMSingleBlock,
		DPI:            300,
		Heuristics:     extract.DefaultHeuristics(),
		StatusInterval: progress.DefaultInterval,
	}
}

// RunOptions are the per-run inputs.
type RunOptions struct {
	Language locale.Language

	// OnProgress receives every progress update of the run.
	OnProgress func(progress.Update)

	// OnExtracted is called once when the run found at least one candidate.
	OnExtracted func(candidates []string)
}

// RegionReport summarizes one region's recognition.
type RegionReport struct {
	Region   imaging.Region `json:"region"`
	Text     string         `json:"text,omitempty"`
	Words    int            `json:"words"`
	Duration time.Duration  `json:"duration_ns"`
	Error    string         `json:"error,omitempty"`
	TimedOut bool           `json:"timed_out,omitempty"`
}

// Result is the outcome of one run. Candidates is never nil.
type Result struct {
	RunID      string           `json:"run_id"`
	Status     Status           `json:"status"`
	Language   locale.Language  `json:"language"`
	Candidates []string         `json:"candidates"`
	Strategy   extract.Strategy `json:"strategy,omitempty"`

	// Notice is the localized text to show instead of candidates: the
	// "nothing found" prompt or the failure message.
	Notice string `json:"notice,omitempty"`

	Progress progress.Update `json:"progress"`

	Dark           bool    `json:"dark"`
	MeanBrightness float64 `json:"mean_brightness"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`

	Regions      []RegionReport `json:"regions"`
	RegionErrors int            `json:"region_errors"`
	Text         string         `json:"text,omitempty"`
	Elapsed      time.Duration  `json:"elapsed_ns"`
}

// Runner executes scans against one recognizer engine. Starting a new run
// cancels the one in flight and waits for its session to close, so at most
// one recognizer session is open at a time.
type Runner struct {
	engine ocr.Engine
	cfg    Config
	logger *slog.Logger
	rules  map[locale.Language]*extract.Rules

	mu      sync.Mutex
	token   uint64
	cancel  context.CancelCauseFunc
	current string
	done    chan struct{}
}

// New creates a Runner. It fails when the heuristics do not compile.
func New(engine ocr.Engine, cfg Config, logger *slog.Logger) (*Runner, error) {
	if engine == nil {
		return nil, errors.New("pipeline: nil engine")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		engine: engine,
		cfg:    cfg,
		logger: logger.With("component", "pipeline"),
		rules:  make(map[locale.Language]*extract.Rules),
	}
	for _, lang := range []locale.Language{locale.English, locale.Arabic} {
		rules, err := cfg.Heuristics.Compile(lang)
		if err != nil {
			return nil, fmt.Errorf("failed to compile heuristics: %w", err)
		}
		r.rules[lang] = rules
	}
	return r, nil
}

// Engine returns the recognizer engine.
func (r *Runner) Engine() ocr.Engine { return r.engine }

// Rules returns the compiled extraction rules for lang.
func (r *Runner) Rules(lang locale.Language) *extract.Rules {
	return r.rules[locale.Parse(string(lang))]
}

// Config returns the runner configuration.
func (r *Runner) Config() Config { return r.cfg }

// Current returns the ID of the run in flight, or "".
func (r *Runner) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// begin registers a new run, cancelling the previous one and waiting until
// it has released the recognizer.
func (r *Runner) begin(ctx context.Context, runID string) (context.Context, uint64, chan struct{}) {
	ctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})

	r.mu.Lock()
	prev := r.done
	if r.cancel != nil {
		r.logger.Info("superseding run", "previous", r.current, "run_id", runID)
		r.cancel(ErrSuperseded)
	}
	r.token++
	token := r.token
	r.cancel = cancel
	r.current = runID
	r.done = done
	r.mu.Unlock()

	if prev != nil {
		<-prev
	}
	return ctx, token, done
}

func (r *Runner) end(token uint64, done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	close(done)
	if r.token == token && r.cancel != nil {
		r.cancel(context.Canceled)
		r.cancel = nil
		r.current = ""
		r.done = nil
	}
}

// Run scans raw and returns the ranked medication candidates.
//
// An error is returned only when the run failed: acquisition or
// preprocessing errors, recognizer start failure or cancellation. The
// Result is non-nil in every case. Region failures are logged and counted
// but never fail the run; an empty candidate list is StatusNoCandidates.
func (r *Runner) Run(ctx context.Context, raw *imaging.RawImage, opts RunOptions) (*Result, error) {
	start := time.Now()
	lang := locale.Parse(string(opts.Language))
	runID := uuid.NewString()

	ctx, token, done := r.begin(ctx, runID)
	defer r.end(token, done)

	tracker := progress.New(progress.Options{
		Interval: r.cfg.StatusInterval,
		Rand:     r.cfg.Rand,
		Observer: opts.OnProgress,
	})
	defer tracker.Close()
	tracker.Reset(runID, lang.StatusMessages())

	log := r.logger.With("run_id", runID, "language", string(lang))
	res := &Result{
		RunID:      runID,
		Language:   lang,
		Candidates: []string{},
		Regions:    []RegionReport{},
	}

	fail := func(err error) (*Result, error) {
		if cause := context.Cause(ctx); cause != nil && ctx.Err() != nil {
			err = cause
		}
		tracker.Abort()
		res.Status = StatusFailed
		res.Notice = lang.ErrorMessage(err)
		res.Progress = tracker.Snapshot()
		res.Elapsed = time.Since(start)
		log.Warn("scan failed", "error", err)
		return res, err
	}

	if raw == nil || raw.Image == nil {
		return fail(apperr.Acquisition(apperr.ReasonNoFile, "no image supplied", nil))
	}
	log.Info("scan started", "source", raw.Source, "width", raw.Width(), "height", raw.Height())

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	processed, err := imaging.Preprocess(raw, r.cfg.Preprocess)
	if err != nil {
		return fail(err)
	}
	res.Dark = processed.Dark
	res.MeanBrightness = processed.MeanBrightness
	res.Width = processed.Width()
	res.Height = processed.Height()
	tracker.Advance(progress.Preprocessing, progress.Preprocessed)

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	regions := imaging.Tiles(processed.Width(), processed.Height(), r.cfg.Tiling)
	tracker.Advance(progress.Tiling, progress.Tiled)

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	session, err := r.engine.Start(ctx, lang.RecognizerLanguages())
	if err != nil {
		return fail(fmt.Errorf("failed to start recognizer: %w", err))
	}
	closeSession := closeOnce(session, log)
	defer closeSession()
	tracker.Advance(progress.Recognizing, progress.EngineStarted)

	settings := ocr.Settings{
		Whitelist:   lang.Whitelist(),
		PageSegMode: r.cfg.PageSegMode,
		DPI:         r.cfg.DPI,
	}
	if err := session.Configure(settings); err != nil {
		log.Warn("recognizer configuration failed, continuing with defaults", "error", err)
	}
	tracker.Advance(progress.Recognizing, progress.EngineReady)

	var passes []*ocr.Pass
	for i, region := range regions {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		tracker.Region(region.Name, i, len(regions), progress.RegionPercent(i, len(regions), true))

		pass, err := r.recognize(ctx, session, processed, region)
		report := RegionReport{Region: region}
		if err != nil {
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			regionErr := apperr.RecognitionRegion(region.Name, errors.Is(err, context.DeadlineExceeded), err)
			log.Warn("region recognition failed", "region", region.Name, "error", regionErr)
			report.Error = regionErr.Error()
			report.TimedOut = regionErr.Reason == apperr.ReasonRegionTimeout
			res.RegionErrors++
		} else {
			passes = append(passes, pass)
			report.Text = pass.Text
			report.Words = len(pass.Words)
			report.Duration = pass.Duration
			log.Debug("region recognized", "region", region.Name, "chars", len(pass.Text), "words", len(pass.Words))
		}
		res.Regions = append(res.Regions, report)
		tracker.Region(region.Name, i, len(regions), progress.RegionPercent(i, len(regions), false))
	}
	closeSession()

	if res.RegionErrors == len(regions) && len(regions) > 0 {
		log.Warn("all regions failed", "regions", len(regions))
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	tracker.Advance(progress.Extracting, progress.ExtractStarted)

	in := extract.Input{
		Text:        ocr.JoinText(passes),
		Words:       ocr.JoinWords(passes),
		ImageHeight: processed.Height(),
	}
	outcome := extract.Extract(r.rules[lang], in)
	res.Text = in.Text
	res.Strategy = outcome.Strategy
	res.Candidates = extract.DropPlaceholders(outcome.Candidates)

	if len(res.Candidates) == 0 {
		res.Status = StatusNoCandidates
		res.Notice = lang.NotFound() + ". " + lang.RetryHint()
	} else {
		res.Status = StatusSuccess
	}
	tracker.Finish(progress.Done)
	res.Progress = tracker.Snapshot()
	res.Elapsed = time.Since(start)

	log.Info("scan finished",
		"status", res.Status,
		"strategy", res.Strategy,
		"candidates", len(res.Candidates),
		"region_errors", res.RegionErrors,
		"elapsed", res.Elapsed)

	if res.Status == StatusSuccess && opts.OnExtracted != nil {
		opts.OnExtracted(append([]string(nil), res.Candidates...))
	}
	return res, nil
}

// RecognizeRegion recognizes one region of an already preprocessed image in
// a session of its own. It takes the recognizer like Run does: a scan in
// flight is superseded.
func (r *Runner) RecognizeRegion(ctx context.Context, img *imaging.ProcessedImage, region imaging.Region, lang locale.Language) (*ocr.Pass, error) {
	lang = locale.Parse(string(lang))
	ctx, token, done := r.begin(ctx, "region:"+uuid.NewString())
	defer r.end(token, done)

	if err := ctx.Err(); err != nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		}
		return nil, err
	}
	session, err := r.engine.Start(ctx, lang.RecognizerLanguages())
	if err != nil {
		return nil, fmt.Errorf("failed to start recognizer: %w", err)
	}
	log := r.logger.With("region", region.Name, "language", string(lang))
	defer closeOnce(session, log)()

	if err := session.Configure(ocr.Settings{
		Whitelist:   lang.Whitelist(),
		PageSegMode: r.cfg.PageSegMode,
		DPI:         r.cfg.DPI,
	}); err != nil {
		log.Warn("recognizer configuration failed, continuing with defaults", "error", err)
	}

	pass, err := r.recognize(ctx, session, img, region)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, apperr.RecognitionRegion(region.Name, errors.Is(err, context.DeadlineExceeded), err)
	}
	return pass, nil
}

func (r *Runner) recognize(ctx context.Context, session ocr.Session, img *imaging.ProcessedImage, region imaging.Region) (*ocr.Pass, error) {
	if r.cfg.RegionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RegionTimeout)
		defer cancel()
	}
	pass, err := session.Recognize(ctx, img.Gray, region)
	if err == nil && pass == nil {
		err = errors.New("recognizer returned no result")
	}
	return pass, err
}

// closeOnce returns a function that closes session the first time it is
// called.
func closeOnce(session ocr.Session, log *slog.Logger) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := session.Close(); err != nil {
				log.Warn("failed to close recognizer", "error", err)
			}
		})
	}
}
