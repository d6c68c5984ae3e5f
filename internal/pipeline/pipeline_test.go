package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ironsheep/medscan-mcp/internal/apperr"
	"github.com/ironsheep/medscan-mcp/internal/extract"
	"github.com/ironsheep/medscan-mcp/internal/imaging"
	"github.com/ironsheep/medscan-mcp/internal/locale"
	"github.com/ironsheep/medscan-mcp/internal/ocr"
	"github.com/ironsheep/medscan-mcp/internal/ocr/ocrtest"
	"github.com/ironsheep/medscan-mcp/internal/progress"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RegionTimeout = 2 * time.Second
	cfg.Rand = rand.New(rand.NewSource(1))
	return cfg
}

func newRunner(t *testing.T, eng ocr.Engine, cfg Config) *Runner {
	t.Helper()
	r, err := New(eng, cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// uniformImage creates a w x h image filled with one colour.
func uniformImage(w, h int, c color.Color) *imaging.RawImage {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return imaging.FromImage(img, "test")
}

type updates struct {
	mu  sync.Mutex
	all []progress.Update
}

func (u *updates) add(p progress.Update) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.all = append(u.all, p)
}

func (u *updates) list() []progress.Update {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]progress.Update(nil), u.all...)
}

func TestRun_Success(t *testing.T) {
	eng := &ocrtest.Engine{
		Responses: map[string]ocrtest.Response{
			imaging.RegionFull: {Text: "CATAFAST\n50 mg tablets"},
		},
	}
	r := newRunner(t, eng, testConfig())

	var extracted [][]string
	res, err := r.Run(context.Background(), uniformImage(400, 200, color.White), RunOptions{
		Language:    locale.English,
		OnExtracted: func(c []string) { extracted = append(extracted, c) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != StatusSuccess {
		t.Errorf("Status: got %q", res.Status)
	}
	if !reflect.DeepEqual(res.Candidates, []string{"CATAFAST"}) {
		t.Errorf("Candidates: got %v", res.Candidates)
	}
	if res.Strategy != extract.StrategyText {
		t.Errorf("Strategy: got %q", res.Strategy)
	}
	if res.Progress.Percent != 100 || res.Progress.Phase != progress.Done {
		t.Errorf("Progress: got %+v", res.Progress)
	}
	if res.RunID == "" {
		t.Error("RunID should be set")
	}
	if len(extracted) != 1 || !reflect.DeepEqual(extracted[0], []string{"CATAFAST"}) {
		t.Errorf("OnExtracted: got %v", extracted)
	}

	if eng.Starts() != 1 || eng.Closes() != 1 {
		t.Errorf("session lifecycle: starts=%d closes=%d", eng.Starts(), eng.Closes())
	}
	wantCalls := []string{imaging.RegionFull, imaging.RegionTopHalf, imaging.RegionMiddleBand}
	if !reflect.DeepEqual(eng.Calls(), wantCalls) {
		t.Errorf("Calls: got %v, want %v", eng.Calls(), wantCalls)
	}
	if got := eng.Languages(); len(got) != 1 || !reflect.DeepEqual(got[0], []string{"eng", "ara"}) {
		t.Errorf("Languages: got %v", got)
	}
	settings := eng.Settings()
	if len(settings) != 1 {
		t.Fatalf("expected one Configure, got %d", len(settings))
	}
	if settings[0].PageSegMode != ocr.PSMSingleBlock || settings[0].Whitelist != locale.English.Whitelist() {
		t.Errorf("Settings: got %+v", settings[0])
	}
}

func TestRun_WordGeometry(t *testing.T) {
	eng := &ocrtest.Engine{
		Responses: map[string]ocrtest.Response{
			imaging.RegionFull: {
				Text: "Panadol Extra\n500 mg",
				Words: []ocr.Word{
					{Text: "Panadol", Box: ocr.Box{X0: 20, Y0: 10, X1: 150, Y1: 45}},
					{Text: "Extra", Box: ocr.Box{X0: 160, Y0: 10, X1: 230, Y1: 45}},
					{Text: "500", Box: ocr.Box{X0: 20, Y0: 120, X1: 60, Y1: 140}},
				},
			},
			imaging.RegionTopHalf: {
				Words: []ocr.Word{{Text: "PANADOL", Box: ocr.Box{X0: 20, Y0: 10, X1: 150, Y1: 45}}},
			},
		},
	}
	r := newRunner(t, eng, testConfig())

	res, err := r.Run(context.Background(), uniformImage(400, 200, color.White), RunOptions{Language: locale.English})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Strategy != extract.StrategyWords {
		t.Errorf("Strategy: got %q", res.Strategy)
	}
	if !reflect.DeepEqual(res.Candidates, []string{"Panadol"}) {
		t.Errorf("Candidates: got %v", res.Candidates)
	}
}

func TestRun_AllBlackImage(t *testing.T) {
	eng := &ocrtest.Engine{}
	r := newRunner(t, eng, testConfig())

	var extracted int
	res, err := r.Run(context.Background(), uniformImage(400, 200, color.Black), RunOptions{
		Language:    locale.English,
		OnExtracted: func([]string) { extracted++ },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusNoCandidates {
		t.Errorf("Status: got %q", res.Status)
	}
	if res.Candidates == nil || len(res.Candidates) != 0 {
		t.Errorf("Candidates: want empty non-nil slice, got %#v", res.Candidates)
	}
	if !res.Dark {
		t.Error("all-black image should be classified dark")
	}
	if res.Progress.Percent != 100 {
		t.Errorf("Progress: got %d", res.Progress.Percent)
	}
	if !strings.Contains(res.Notice, locale.English.NotFound()) {
		t.Errorf("Notice: got %q", res.Notice)
	}
	if extracted != 0 {
		t.Error("OnExtracted must not be called without candidates")
	}
	if eng.Closes() != 1 {
		t.Errorf("Closes: got %d", eng.Closes())
	}
}

func TestRun_PlaceholderTextIsNotACandidate(t *testing.T) {
	eng := &ocrtest.Engine{Default: ocrtest.Response{Text: locale.English.NotFound()}}
	r := newRunner(t, eng, testConfig())

	res, err := r.Run(context.Background(), uniformImage(100, 100, color.White), RunOptions{Language: locale.English})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, c := range res.Candidates {
		if extract.IsPlaceholder(c) {
			t.Errorf("placeholder %q returned as a candidate", c)
		}
	}
}

func TestRun_RegionErrorIsSkipped(t *testing.T) {
	eng := &ocrtest.Engine{
		Responses: map[string]ocrtest.Response{
			imaging.RegionFull:    {Err: errors.New("engine crashed")},
			imaging.RegionTopHalf: {Text: "AUGMENTIN"},
		},
	}
	r := newRunner(t, eng, testConfig())

	res, err := r.Run(context.Background(), uniformImage(400, 200, color.White), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RegionErrors != 1 {
		t.Errorf("RegionErrors: got %d", res.RegionErrors)
	}
	if res.Regions[0].Error == "" || res.Regions[0].TimedOut {
		t.Errorf("region report: got %+v", res.Regions[0])
	}
	if !reflect.DeepEqual(res.Candidates, []string{"AUGMENTIN"}) {
		t.Errorf("Candidates: got %v", res.Candidates)
	}
	if len(eng.Calls()) != 3 {
		t.Errorf("all regions should be attempted, got %v", eng.Calls())
	}
	if eng.Closes() != 1 {
		t.Errorf("Closes: got %d", eng.Closes())
	}
}

func TestRun_AllRegionsFail(t *testing.T) {
	eng := &ocrtest.Engine{Default: ocrtest.Response{Err: errors.New("boom")}}
	r := newRunner(t, eng, testConfig())

	res, err := r.Run(context.Background(), uniformImage(400, 200, color.White), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusNoCandidates {
		t.Errorf("Status: got %q", res.Status)
	}
	if res.RegionErrors != 3 {
		t.Errorf("RegionErrors: got %d", res.RegionErrors)
	}
	if res.Progress.Percent != 100 {
		t.Errorf("Progress: got %d", res.Progress.Percent)
	}
	if eng.Closes() != 1 {
		t.Errorf("Closes: got %d", eng.Closes())
	}
}

func TestRun_RegionTimeout(t *testing.T) {
	eng := &ocrtest.Engine{
		Responses: map[string]ocrtest.Response{
			imaging.RegionFull:    {Text: "Brufen"},
			imaging.RegionTopHalf: {Hang: true},
		},
	}
	cfg := testConfig()
	cfg.RegionTimeout = 20 * time.Millisecond
	r := newRunner(t, eng, cfg)

	res, err := r.Run(context.Background(), uniformImage(400, 200, color.White), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Regions[1].TimedOut {
		t.Errorf("top-half should time out: %+v", res.Regions[1])
	}
	if res.RegionErrors != 1 {
		t.Errorf("RegionErrors: got %d", res.RegionErrors)
	}
	if !reflect.DeepEqual(res.Candidates, []string{"Brufen"}) {
		t.Errorf("Candidates: got %v", res.Candidates)
	}
}

func TestRun_ProgressAllocation(t *testing.T) {
	eng := &ocrtest.Engine{Default: ocrtest.Response{Text: "Voltaren"}}
	r := newRunner(t, eng, testConfig())

	rec := &updates{}
	if _, err := r.Run(context.Background(), uniformImage(400, 200, color.White), RunOptions{OnProgress: rec.add}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var percents []int
	last := -1
	for _, u := range rec.list() {
		if u.Percent < last {
			t.Errorf("progress decreased: %d after %d", u.Percent, last)
		}
		if u.Percent == 100 && !u.Phase.Terminal() {
			t.Errorf("100%% before terminal phase: %+v", u)
		}
		if u.Percent != last {
			percents = append(percents, u.Percent)
		}
		last = u.Percent
	}
	want := []int{0, 10, 15, 20, 30, 38, 46, 55, 63, 71, 80, 90, 100}
	if !reflect.DeepEqual(percents, want) {
		t.Errorf("progress points: got %v, want %v", percents, want)
	}
}

func TestRun_SingleTiling(t *testing.T) {
	eng := &ocrtest.Engine{Default: ocrtest.Response{Text: "Nexium"}}
	cfg := testConfig()
	cfg.Tiling = imaging.TilingSingle
	r := newRunner(t, eng, cfg)

	if _, err := r.Run(context.Background(), uniformImage(400, 200, color.White), RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(eng.Calls(), []string{imaging.RegionFull}) {
		t.Errorf("Calls: got %v", eng.Calls())
	}
}

func TestRun_ArabicLanguage(t *testing.T) {
	eng := &ocrtest.Engine{Default: ocrtest.Response{Text: "بانادول"}}
	r := newRunner(t, eng, testConfig())

	res, err := r.Run(context.Background(), uniformImage(200, 100, color.White), RunOptions{Language: locale.Arabic})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := eng.Languages(); !reflect.DeepEqual(got[0], []string{"ara", "eng"}) {
		t.Errorf("Languages: got %v", got)
	}
	if eng.Settings()[0].Whitelist != locale.Arabic.Whitelist() {
		t.Error("expected the Arabic whitelist")
	}
	if !reflect.DeepEqual(res.Candidates, []string{"بانادول"}) {
		t.Errorf("Candidates: got %v", res.Candidates)
	}
}

func TestRun_NoImage(t *testing.T) {
	eng := &ocrtest.Engine{}
	r := newRunner(t, eng, testConfig())

	res, err := r.Run(context.Background(), nil, RunOptions{})
	if !errors.Is(err, apperr.ErrAcquisition) {
		t.Fatalf("expected acquisition error, got %v", err)
	}
	if apperr.ReasonOf(err) != apperr.ReasonNoFile {
		t.Errorf("Reason: got %q", apperr.ReasonOf(err))
	}
	if res.Status != StatusFailed || res.Progress.Percent != 0 {
		t.Errorf("Result: got status=%q progress=%d", res.Status, res.Progress.Percent)
	}
	if res.Notice != locale.English.ErrorMessage(err) {
		t.Errorf("Notice: got %q", res.Notice)
	}
	if eng.Starts() != 0 {
		t.Error("recognizer must not start without an image")
	}
}

func TestRun_StartFailure(t *testing.T) {
	eng := &ocrtest.Engine{StartErr: ocr.ErrUnavailable}
	r := newRunner(t, eng, testConfig())

	res, err := r.Run(context.Background(), uniformImage(100, 100, color.White), RunOptions{})
	if !errors.Is(err, ocr.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if res.Status != StatusFailed || res.Progress.Phase != progress.Failed || res.Progress.Percent != 0 {
		t.Errorf("Result: got %+v", res.Progress)
	}
	if eng.Closes() != 0 {
		t.Errorf("nothing to close, got %d closes", eng.Closes())
	}
}

func TestRun_ConfigureFailureContinues(t *testing.T) {
	eng := &ocrtest.Engine{ConfigureErr: errors.New("bad whitelist"), Default: ocrtest.Response{Text: "Zantac"}}
	r := newRunner(t, eng, testConfig())

	res, err := r.Run(context.Background(), uniformImage(100, 100, color.White), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Errorf("Status: got %q", res.Status)
	}
}

func TestRun_Cancelled(t *testing.T) {
	eng := &ocrtest.Engine{Default: ocrtest.Response{Hang: true}}
	cfg := testConfig()
	cfg.RegionTimeout = 0
	r := newRunner(t, eng, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for len(eng.Calls()) == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	res, err := r.Run(ctx, uniformImage(100, 100, color.White), RunOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Status != StatusFailed || res.Progress.Percent != 0 {
		t.Errorf("Result: status=%q progress=%d", res.Status, res.Progress.Percent)
	}
	if len(eng.Calls()) != 1 {
		t.Errorf("no region should run after cancel, got %v", eng.Calls())
	}
	if eng.Closes() != 1 {
		t.Errorf("Closes: got %d", eng.Closes())
	}
}

func TestRun_AlreadyCancelled(t *testing.T) {
	eng := &ocrtest.Engine{}
	r := newRunner(t, eng, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Run(ctx, uniformImage(100, 100, color.White), RunOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if eng.Starts() != 0 {
		t.Error("recognizer should not start for a cancelled run")
	}
}

func TestRun_NewRunSupersedesPrevious(t *testing.T) {
	eng := &ocrtest.Engine{
		Queue:   []ocrtest.Response{{Hang: true}},
		Default: ocrtest.Response{Text: "PANADOL"},
	}
	cfg := testConfig()
	cfg.RegionTimeout = 0
	cfg.Tiling = imaging.TilingSingle
	r := newRunner(t, eng, cfg)

	type outcome struct {
		res *Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := r.Run(context.Background(), uniformImage(100, 100, color.White), RunOptions{})
		first <- outcome{res, err}
	}()
	for len(eng.Calls()) == 0 {
		time.Sleep(time.Millisecond)
	}
	firstID := r.Current()

	res, err := r.Run(context.Background(), uniformImage(100, 100, color.White), RunOptions{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !reflect.DeepEqual(res.Candidates, []string{"PANADOL"}) {
		t.Errorf("second Candidates: got %v", res.Candidates)
	}

	got := <-first
	if !errors.Is(got.err, ErrSuperseded) {
		t.Errorf("first run: expected ErrSuperseded, got %v", got.err)
	}
	if got.res.RunID != firstID || got.res.RunID == res.RunID {
		t.Errorf("run IDs: first=%q current-at-supersede=%q second=%q", got.res.RunID, firstID, res.RunID)
	}
	if eng.Starts() != 2 || eng.Closes() != 2 {
		t.Errorf("session lifecycle: starts=%d closes=%d", eng.Starts(), eng.Closes())
	}
	if eng.MaxOpen() != 1 {
		t.Errorf("sessions open at once: got %d, want 1", eng.MaxOpen())
	}
	if r.Current() != "" {
		t.Errorf("no run should be current, got %q", r.Current())
	}
}

func TestRecognizeRegion(t *testing.T) {
	eng := &ocrtest.Engine{Responses: map[string]ocrtest.Response{"custom": {Text: "ZYRTEC"}}}
	r := newRunner(t, eng, testConfig())
	processed, err := imaging.Preprocess(uniformImage(200, 100, color.White), r.Config().Preprocess)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	region := imaging.Region{Name: "custom", Left: 10, Top: 10, Width: 50, Height: 20}
	pass, err := r.RecognizeRegion(context.Background(), processed, region, locale.Arabic)
	if err != nil {
		t.Fatalf("RecognizeRegion: %v", err)
	}
	if pass.Text != "ZYRTEC" || pass.Region != region {
		t.Errorf("pass: got %+v", pass)
	}
	if eng.Starts() != 1 || eng.Closes() != 1 {
		t.Errorf("session lifecycle: starts=%d closes=%d", eng.Starts(), eng.Closes())
	}
	if langs := eng.Languages(); len(langs) != 1 || !reflect.DeepEqual(langs[0], []string{"ara", "eng"}) {
		t.Errorf("languages: got %v", langs)
	}
	if r.Current() != "" {
		t.Errorf("no run should be current, got %q", r.Current())
	}
}

func TestRecognizeRegion_Failure(t *testing.T) {
	eng := &ocrtest.Engine{Default: ocrtest.Response{Err: errors.New("engine crashed")}}
	r := newRunner(t, eng, testConfig())
	processed, err := imaging.Preprocess(uniformImage(100, 100, color.White), r.Config().Preprocess)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	_, err = r.RecognizeRegion(context.Background(), processed, imaging.Region{Name: "full", Width: 100, Height: 100}, locale.English)
	if apperr.KindOf(err) != apperr.KindRecognitionRegion || apperr.ReasonOf(err) != apperr.ReasonRegionFailed {
		t.Errorf("error: got %v", err)
	}
	if eng.Closes() != 1 {
		t.Errorf("closes: got %d, want 1", eng.Closes())
	}
}

func TestRecognizeRegion_SupersedesRun(t *testing.T) {
	eng := &ocrtest.Engine{
		Queue:   []ocrtest.Response{{Hang: true}},
		Default: ocrtest.Response{Text: "NEXIUM"},
	}
	cfg := testConfig()
	cfg.RegionTimeout = 0
	cfg.Tiling = imaging.TilingSingle
	r := newRunner(t, eng, cfg)

	scanErr := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), uniformImage(100, 100, color.White), RunOptions{})
		scanErr <- err
	}()
	for len(eng.Calls()) == 0 {
		time.Sleep(time.Millisecond)
	}

	processed, err := imaging.Preprocess(uniformImage(100, 100, color.White), cfg.Preprocess)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	pass, err := r.RecognizeRegion(context.Background(), processed, imaging.Region{Name: "full", Width: 100, Height: 100}, locale.English)
	if err != nil {
		t.Fatalf("RecognizeRegion: %v", err)
	}
	if pass.Text != "NEXIUM" {
		t.Errorf("text: got %q", pass.Text)
	}
	if err := <-scanErr; !errors.Is(err, ErrSuperseded) {
		t.Errorf("scan: expected ErrSuperseded, got %v", err)
	}
	if eng.MaxOpen() != 1 {
		t.Errorf("sessions open at once: got %d, want 1", eng.MaxOpen())
	}
}

func TestNew_InvalidHeuristics(t *testing.T) {
	cfg := testConfig()
	cfg.Heuristics.PriorityPatterns = []string{"("}
	if _, err := New(&ocrtest.Engine{}, cfg, nil); err == nil {
		t.Error("expected error for invalid heuristics")
	}
	if _, err := New(nil, testConfig(), nil); err == nil {
		t.Error("expected error for nil engine")
	}
}
