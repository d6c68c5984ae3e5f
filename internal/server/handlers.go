package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ironsheep/medscan-mcp/internal/acquire"
	"github.com/ironsheep/medscan-mcp/internal/apperr"
	"github.com/ironsheep/medscan-mcp/internal/extract"
	"github.com/ironsheep/medscan-mcp/internal/imaging"
	"github.com/ironsheep/medscan-mcp/internal/interactions"
	"github.com/ironsheep/medscan-mcp/internal/locale"
	"github.com/ironsheep/medscan-mcp/internal/ocr"
	"github.com/ironsheep/medscan-mcp/internal/pipeline"
	"github.com/ironsheep/medscan-mcp/internal/progress"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "medscan_extract").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`

	Meta *struct {
		ProgressToken interface{} `json:"progressToken,omitempty"`
	} `json:"_meta,omitempty"`
}

// toolError is the data of a failed tools/call response.
type toolError struct {
	Error   string      `json:"error"`
	Kind    apperr.Kind `json:"kind,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Message string      `json:"message"`

	// Result carries the partial scan result of a failed medscan_extract.
	Result interface{} `json:"result,omitempty"`
}

// call is the per-request state handed to tool handlers.
type call struct {
	ctx           context.Context
	args          json.RawMessage
	progressToken interface{}
}

// scanFailure wraps a run error with the partial result.
type scanFailure struct {
	err    error
	result interface{}
	lang   locale.Language
}

func (f *scanFailure) Error() string { return f.err.Error() }
func (f *scanFailure) Unwrap() error { return f.err }

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000
// whose data carries the error kind, reason and a localized message.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}
	c := &call{ctx: ctx, args: params.Arguments}
	if params.Meta != nil {
		c.progressToken = params.Meta.ProgressToken
	}

	result, err := s.executeTool(params.Name, c)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		data := toolError{
			Error:   err.Error(),
			Kind:    apperr.KindOf(err),
			Reason:  apperr.ReasonOf(err),
			Message: s.language.ErrorMessage(err),
		}
		var sf *scanFailure
		if errors.As(err, &sf) {
			data.Result = sf.result
			data.Message = sf.lang.ErrorMessage(err)
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", data)
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, c *call) (interface{}, error) {
	switch name {
	// Scanning
	case "medscan_extract":
		return s.handleExtract(c)
	case "medscan_capture":
		return s.handleCapture(c)

	// Diagnostics
	case "medscan_preprocess":
		return s.handlePreprocess(c)
	case "medscan_regions":
		return s.handleRegions(c)
	case "medscan_ocr_region":
		return s.handleOCRRegion(c)
	case "medscan_analyze":
		return s.handleAnalyze(c)

	// Follow-up
	case "medscan_check_interactions":
		return s.handleCheckInteractions(c)
	case "medscan_engine_info":
		return s.handleEngineInfo(c)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (s *Server) lang(requested string) locale.Language {
	if requested == "" {
		return s.language
	}
	return locale.Parse(requested)
}

// === Image sources ===

type imageArgs struct {
	Path        string `json:"path"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// loadImage resolves a path, capture id or inline payload to a RawImage.
func (s *Server) loadImage(a imageArgs) (*imaging.RawImage, error) {
	switch {
	case a.Path != "":
		return s.cache.Load(a.Path)
	case a.ImageBase64 != "":
		data, err := base64.StdEncoding.DecodeString(a.ImageBase64)
		if err != nil {
			return nil, apperr.Acquisition(apperr.ReasonDecodeFailed, "invalid base64 image", err)
		}
		return acquire.FromBytes(data, a.MimeType, "inline")
	default:
		return nil, apperr.Acquisition(apperr.ReasonNoFile, "no image supplied", nil)
	}
}

// === Scanning ===

type extractArgs struct {
	imageArgs
	Language          string `json:"language"`
	CheckInteractions bool   `json:"check_interactions"`
	Age               int    `json:"age"`
}

type extractResult struct {
	*pipeline.Result
	Interactions *interactions.Report `json:"interactions,omitempty"`
}

func (s *Server) handleExtract(c *call) (interface{}, error) {
	var a extractArgs
	if err := decodeArgs(c.args, &a); err != nil {
		return nil, err
	}
	lang := s.lang(a.Language)
	raw, err := s.loadImage(a.imageArgs)
	if err != nil {
		return nil, err
	}
	return s.scan(c, raw, lang, a.CheckInteractions, a.Age)
}

// scan runs the pipeline on raw and reports progress to the caller's token.
func (s *Server) scan(c *call, raw *imaging.RawImage, lang locale.Language, check bool, age int) (interface{}, error) {
	out := &extractResult{}
	opts := pipeline.RunOptions{Language: lang}
	if c.progressToken != nil {
		opts.OnProgress = s.progressNotifier(c.progressToken)
	}
	if check {
		opts.OnExtracted = func(candidates []string) {
			r := s.checker.Check(candidates, age)
			out.Interactions = &r
		}
	}

	res, err := s.runner.Run(c.ctx, raw, opts)
	out.Result = res
	if err != nil {
		return nil, &scanFailure{err: err, result: out, lang: lang}
	}
	return out, nil
}

// progressNotifier forwards tracker updates as notifications/progress.
// Only increasing values are sent; the rotating status message rides on the
// next increase.
func (s *Server) progressNotifier(token interface{}) func(progress.Update) {
	last := -1
	return func(u progress.Update) {
		if u.Percent <= last {
			return
		}
		last = u.Percent
		s.notify("notifications/progress", map[string]interface{}{
			"progressToken": token,
			"progress":      u.Percent,
			"total":         progress.Complete,
			"message":       u.Message,
		})
	}
}

type captureArgs struct {
	Extract  bool   `json:"extract"`
	Language string `json:"language"`
	Age      int    `json:"age"`
}

type captureResult struct {
	ImageID string            `json:"image_id"`
	Image   imaging.ImageInfo `json:"image"`
	Scan    interface{}       `json:"scan,omitempty"`
}

func (s *Server) handleCapture(c *call) (interface{}, error) {
	var a captureArgs
	if err := decodeArgs(c.args, &a); err != nil {
		return nil, err
	}
	if s.capturer == nil {
		return nil, apperr.Acquisition(apperr.ReasonCameraUnavailable, "no camera configured", nil)
	}
	raw, err := s.capturer.Capture(c.ctx)
	if err != nil {
		return nil, err
	}
	id := "capture:" + uuid.NewString()
	s.cache.Put(id, raw)

	out := &captureResult{ImageID: id, Image: imaging.Info(raw)}
	if a.Extract {
		scan, err := s.scan(c, raw, s.lang(a.Language), false, a.Age)
		if err != nil {
			return nil, err
		}
		out.Scan = scan
	}
	return out, nil
}

// === Diagnostics ===

type preprocessArgs struct {
	imageArgs
	MaxWidth     int   `json:"max_width"`
	Binarize     *bool `json:"binarize"`
	IncludeImage *bool `json:"include_image"`
}

type preprocessResult struct {
	Source         imaging.ImageInfo         `json:"source"`
	Width          int                       `json:"width"`
	Height         int                       `json:"height"`
	MeanBrightness float64                   `json:"mean_brightness"`
	Dark           bool                      `json:"dark"`
	Threshold      uint8                     `json:"threshold"`
	Scale          float64                   `json:"scale"`
	Image          *imaging.EncodedImage     `json:"image,omitempty"`
	Options        imaging.PreprocessOptions `json:"options"`
}

func (s *Server) handlePreprocess(c *call) (interface{}, error) {
	var a preprocessArgs
	if err := decodeArgs(c.args, &a); err != nil {
		return nil, err
	}
	raw, err := s.loadImage(a.imageArgs)
	if err != nil {
		return nil, err
	}
	opts := s.runner.Config().Preprocess
	if a.MaxWidth > 0 {
		opts.MaxWidth = a.MaxWidth
	}
	if a.Binarize != nil {
		opts.Binarize = *a.Binarize
	}
	p, err := imaging.Preprocess(raw, opts)
	if err != nil {
		return nil, err
	}
	out := &preprocessResult{
		Source:         imaging.Info(raw),
		Width:          p.Width(),
		Height:         p.Height(),
		MeanBrightness: p.MeanBrightness,
		Dark:           p.Dark,
		Threshold:      p.Threshold,
		Scale:          p.Scale,
		Options:        opts,
	}
	if a.IncludeImage == nil || *a.IncludeImage {
		enc, err := imaging.EncodePNG(p.Gray)
		if err != nil {
			return nil, apperr.Preprocessing(apperr.ReasonEncodeFailed, "failed to encode processed image", err)
		}
		out.Image = enc
	}
	return out, nil
}

type regionsArgs struct {
	imageArgs
	Tiling string `json:"tiling"`
}

type regionsResult struct {
	Width   int                `json:"width"`
	Height  int                `json:"height"`
	Tiling  imaging.TilingMode `json:"tiling"`
	Regions []imaging.Region   `json:"regions"`

	// Text rates each region for printed text, in the same order.
	Text []imaging.TextLikelihood `json:"text_likelihood"`
}

func (s *Server) handleRegions(c *call) (interface{}, error) {
	var a regionsArgs
	if err := decodeArgs(c.args, &a); err != nil {
		return nil, err
	}
	raw, err := s.loadImage(a.imageArgs)
	if err != nil {
		return nil, err
	}
	cfg := s.runner.Config()
	mode := cfg.Tiling
	if a.Tiling != "" {
		mode = imaging.TilingMode(a.Tiling)
		if mode != imaging.TilingBands && mode != imaging.TilingSingle {
			return nil, fmt.Errorf("unknown tiling mode: %s", a.Tiling)
		}
	}
	p, err := imaging.Preprocess(raw, cfg.Preprocess)
	if err != nil {
		return nil, err
	}
	regions := imaging.Tiles(p.Width(), p.Height(), mode)
	return &regionsResult{
		Width:   p.Width(),
		Height:  p.Height(),
		Tiling:  mode,
		Regions: regions,
		Text:    imaging.ScoreRegions(p.Gray, regions),
	}, nil
}

type ocrRegionArgs struct {
	imageArgs
	Region   string `json:"region"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Language string `json:"language"`
}

type ocrRegionResult struct {
	*ocr.Pass
	Candidates []string         `json:"candidates"`
	Strategy   extract.Strategy `json:"strategy"`
}

func (s *Server) handleOCRRegion(c *call) (interface{}, error) {
	var a ocrRegionArgs
	if err := decodeArgs(c.args, &a); err != nil {
		return nil, err
	}
	lang := s.lang(a.Language)
	raw, err := s.loadImage(a.imageArgs)
	if err != nil {
		return nil, err
	}
	cfg := s.runner.Config()
	p, err := imaging.Preprocess(raw, cfg.Preprocess)
	if err != nil {
		return nil, err
	}

	var region imaging.Region
	if a.Width > 0 && a.Height > 0 {
		region = imaging.Region{Name: "custom", Left: a.X, Top: a.Y, Width: a.Width, Height: a.Height}.Clamp(p.Width(), p.Height())
		if region.Empty() {
			return nil, fmt.Errorf("region (%d,%d %dx%d) outside processed image %dx%d", a.X, a.Y, a.Width, a.Height, p.Width(), p.Height())
		}
	} else {
		name := a.Region
		if name == "" {
			name = imaging.RegionFull
		}
		region, err = imaging.NamedRegion(p.Width(), p.Height(), name)
		if err != nil {
			return nil, err
		}
	}

	pass, err := s.runner.RecognizeRegion(c.ctx, p, region, lang)
	if err != nil {
		return nil, err
	}
	outcome := extract.Extract(s.runner.Rules(lang), extract.Input{
		Text:        pass.Text,
		Words:       pass.Words,
		ImageHeight: p.Height(),
	})
	return &ocrRegionResult{Pass: pass, Candidates: outcome.Candidates, Strategy: outcome.Strategy}, nil
}

type analyzeArgs struct {
	imageArgs
	Count int `json:"count"`
}

func (s *Server) handleAnalyze(c *call) (interface{}, error) {
	var a analyzeArgs
	if err := decodeArgs(c.args, &a); err != nil {
		return nil, err
	}
	if a.Count <= 0 {
		a.Count = 5
	}
	raw, err := s.loadImage(a.imageArgs)
	if err != nil {
		return nil, err
	}
	return imaging.Analyze(raw, a.Count, s.runner.Config().Preprocess.DarkBelow)
}

// === Follow-up ===

type checkArgs struct {
	Medications []string `json:"medications"`
	Age         int      `json:"age"`
}

func (s *Server) handleCheckInteractions(c *call) (interface{}, error) {
	var a checkArgs
	if err := decodeArgs(c.args, &a); err != nil {
		return nil, err
	}
	if a.Medications == nil {
		return nil, fmt.Errorf("medications is required")
	}
	return s.checker.Check(a.Medications, a.Age), nil
}

type engineInfoResult struct {
	Engine   ocr.EngineInfo     `json:"engine"`
	Language locale.Language    `json:"language"`
	Tiling   imaging.TilingMode `json:"tiling"`
	MaxWidth int                `json:"max_width"`
	Timeout  string             `json:"region_timeout"`
	Camera   bool               `json:"camera"`
	Current  string             `json:"current_run,omitempty"`
}

func (s *Server) handleEngineInfo(c *call) (interface{}, error) {
	engine := s.runner.Engine()
	info := ocr.EngineInfo{Name: engine.Name(), Available: true}
	if d, ok := engine.(ocr.Describer); ok {
		info = d.Info()
	}
	cfg := s.runner.Config()
	return &engineInfoResult{
		Engine:   info,
		Language: s.language,
		Tiling:   cfg.Tiling,
		MaxWidth: cfg.Preprocess.MaxWidth,
		Timeout:  cfg.RegionTimeout.String(),
		Camera:   s.capturer != nil,
		Current:  s.runner.Current(),
	}, nil
}
