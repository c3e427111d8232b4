package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strconv"

	diskimaging "github.com/disintegration/imaging"

	"github.com/ironsheep/omr-scan-mcp/internal/detection"
	"github.com/ironsheep/omr-scan-mcp/internal/imaging"
	"github.com/ironsheep/omr-scan-mcp/internal/live"
	"github.com/ironsheep/omr-scan-mcp/internal/omr"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "omr_decode", "omr_grade").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// errInvalidArguments marks failures caused by the caller's arguments; they
// are reported with JSON-RPC code -32602.
var errInvalidArguments = errors.New("invalid arguments")

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		if errors.Is(err, errInvalidArguments) {
			return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
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
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Pipeline Stages
	case "omr_detect_features":
		return s.handleDetectFeatures(args)
	case "omr_rectify":
		return s.handleRectify(args)
	case "omr_decode":
		return s.handleDecode(args)

	// Answer Key
	case "omr_scan_key":
		return s.handleScanKey(args)
	case "omr_set_key":
		return s.handleSetKey(args)
	case "omr_get_key":
		return newAnswerView(s.session.Key()), nil
	case "omr_clear_key":
		if err := s.session.ClearKey(); err != nil {
			return nil, err
		}
		return map[string]interface{}{"cleared": true}, nil

	// Grading
	case "omr_grade":
		return s.handleGrade(args)
	case "omr_grade_maps":
		return s.handleGradeMaps(args)

	// Live Capture
	case "omr_live_tick":
		return s.handleLiveTick(args)
	case "omr_live_reset":
		s.scanner.Reset()
		return map[string]interface{}{"state": s.scanner.Gate().State()}, nil

	// Sheet Tools
	case "omr_calibrate":
		return s.handleCalibrate(args)
	case "omr_render_sheet":
		return s.handleRenderSheet(args)

	default:
		return nil, fmt.Errorf("%w: unknown tool: %s", errInvalidArguments, name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
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

func decodeArgs(args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidArguments, err)
	}
	return nil
}

type pathArgs struct {
	Path string `json:"path"`
}

func (s *Server) loadImage(path string) (image.Image, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path is required", errInvalidArguments)
	}
	return s.cache.Load(path)
}

// answerView presents an answer map with both option indices and letters.
type answerView struct {
	Answers omr.AnswerMap  `json:"answers"`
	Letters map[int]string `json:"letters"`
	Count   int            `json:"count"`
	Summary string         `json:"summary"`
}

func newAnswerView(m omr.AnswerMap) answerView {
	letters := make(map[int]string, len(m))
	for q, o := range m {
		letters[q] = omr.OptionLetter(o)
	}
	return answerView{Answers: m, Letters: letters, Count: len(m), Summary: m.String()}
}

// parseLetterMap converts {"1": "A"} into an AnswerMap.
func parseLetterMap(in map[string]string) (omr.AnswerMap, error) {
	out := make(omr.AnswerMap, len(in))
	for k, v := range in {
		q, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("%w: question %q is not a number", errInvalidArguments, k)
		}
		o, err := omr.ParseOption(v)
		if err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", errInvalidArguments, q, err)
		}
		out[q] = o
	}
	return out, nil
}

// === Basic Image Information Handlers ===

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

// === Pipeline Stage Handlers ===

type detectFeaturesArgs struct {
	Path  string `json:"path"`
	Width int    `json:"width"`
}

type detectFeaturesResult struct {
	Complete     bool                `json:"complete"`
	Expected     int                 `json:"expected"`
	Found        int                 `json:"found"`
	Message      string              `json:"message,omitempty"`
	Features     []detection.Feature `json:"features"`
	Contours     int                 `json:"contours"`
	Rejected     map[string]int      `json:"rejected"`
	FrameWidth   int                 `json:"frame_width"`
	FrameHeight  int                 `json:"frame_height"`
	WorkingScale float64             `json:"working_scale"`
}

func (s *Server) handleDetectFeatures(args json.RawMessage) (interface{}, error) {
	var a detectFeaturesArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Width < 0 {
		return nil, fmt.Errorf("%w: width must not be negative", errInvalidArguments)
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}

	frame := s.session.PrepareFrame(img, a.Width)
	det, err := s.session.DetectFeatures(frame)
	var ce *detection.CountError
	if err != nil && !errors.As(err, &ce) {
		return nil, err
	}

	res := &detectFeaturesResult{
		Complete:     err == nil,
		Expected:     s.session.Layout().Detection.ExpectedCount,
		Found:        len(det.Features),
		Features:     det.Features,
		Contours:     det.Contours,
		Rejected:     det.Rejected,
		FrameWidth:   frame.Gray.Rect.Dx(),
		FrameHeight:  frame.Gray.Rect.Dy(),
		WorkingScale: frame.Scale,
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res, nil
}

type rectifyArgs struct {
	Path         string `json:"path"`
	IncludeImage bool   `json:"include_image"`
}

type rectifyResult struct {
	Sheets []*omr.Rectified        `json:"sheets"`
	Images []*imaging.EncodedImage `json:"images,omitempty"`
}

func (s *Server) handleRectify(args json.RawMessage) (interface{}, error) {
	var a rectifyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	_, sheets, err := s.session.Rectify(img)
	if err != nil {
		return nil, err
	}

	res := &rectifyResult{Sheets: sheets}
	if a.IncludeImage {
		for _, sh := range sheets {
			enc, err := imaging.EncodePNG(sh.Gray)
			if err != nil {
				return nil, err
			}
			res.Images = append(res.Images, enc)
		}
	}
	return res, nil
}

type scanArgs struct {
	Path    string `json:"path"`
	Overlay bool   `json:"overlay"`
}

type scanResult struct {
	answerView
	Readings []omr.Reading         `json:"readings"`
	Features int                   `json:"features"`
	Elapsed  string                `json:"elapsed"`
	Overlay  *imaging.EncodedImage `json:"overlay,omitempty"`
}

func newScanResult(scan *omr.Scan) *scanResult {
	return &scanResult{
		answerView: newAnswerView(scan.Answers),
		Readings:   scan.Readings,
		Features:   len(scan.Features),
		Elapsed:    scan.Elapsed.String(),
	}
}

func (s *Server) handleDecode(args json.RawMessage) (interface{}, error) {
	var a scanArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	scan, err := s.session.Scan(img)
	if err != nil {
		return nil, err
	}

	res := newScanResult(scan)
	if a.Overlay {
		if res.Overlay, err = imaging.EncodePNG(omr.Overlay(scan, nil, nil)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// === Answer Key Handlers ===

func (s *Server) handleScanKey(args json.RawMessage) (interface{}, error) {
	var a scanArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	scan, err := s.session.ScanKey(img)
	if err != nil {
		return nil, err
	}

	res := newScanResult(scan)
	if a.Overlay {
		if res.Overlay, err = imaging.EncodePNG(omr.Overlay(scan, nil, nil)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

type setKeyArgs struct {
	Answers map[string]string `json:"answers"`
}

func (s *Server) handleSetKey(args json.RawMessage) (interface{}, error) {
	var a setKeyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	key, err := parseLetterMap(a.Answers)
	if err != nil {
		return nil, err
	}
	if err := s.session.SetKey(key); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidArguments, err)
	}
	return newAnswerView(s.session.Key()), nil
}

// === Grading Handlers ===

type gradeResult struct {
	Score   omr.ScoreResult       `json:"score"`
	Warning string                `json:"warning,omitempty"`
	Student answerView            `json:"student"`
	Overlay *imaging.EncodedImage `json:"overlay,omitempty"`
}

func (s *Server) handleGrade(args json.RawMessage) (interface{}, error) {
	var a scanArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	graded, err := s.session.Grade(img)
	if err != nil {
		return nil, err
	}

	res := &gradeResult{Score: graded.Score, Student: newAnswerView(graded.Scan.Answers)}
	if err := graded.Score.Err(); err != nil {
		res.Warning = err.Error()
	}
	if a.Overlay {
		ov := omr.Overlay(graded.Scan, s.session.Key(), &graded.Score)
		if res.Overlay, err = imaging.EncodePNG(ov); err != nil {
			return nil, err
		}
	}
	return res, nil
}

type gradeMapsArgs struct {
	Key     map[string]string `json:"key"`
	Student map[string]string `json:"student"`
}

func (s *Server) handleGradeMaps(args json.RawMessage) (interface{}, error) {
	var a gradeMapsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	key, err := parseLetterMap(a.Key)
	if err != nil {
		return nil, err
	}
	student, err := parseLetterMap(a.Student)
	if err != nil {
		return nil, err
	}
	l := s.session.Layout()
	if err := key.Validate(l.Questions(), l.Options); err != nil {
		return nil, fmt.Errorf("%w: key: %v", errInvalidArguments, err)
	}
	if err := student.Validate(l.Questions(), l.Options); err != nil {
		return nil, fmt.Errorf("%w: student: %v", errInvalidArguments, err)
	}

	res := &gradeResult{Score: omr.Grade(key, student), Student: newAnswerView(student)}
	if err := res.Score.Err(); err != nil {
		res.Warning = err.Error()
	}
	return res, nil
}

// === Live Capture Handlers ===

type liveTickResult struct {
	*live.Sample
	Result *scanResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func (s *Server) handleLiveTick(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	// Camera apps overwrite the same file, so never serve a stale frame.
	s.cache.Evict(a.Path)
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}

	sample, err := s.scanner.Step(img)
	if errors.Is(err, live.ErrBusy) {
		return nil, err
	}
	res := &liveTickResult{Sample: sample}
	if err != nil {
		// The gate has been reset; the next frame starts a new search.
		res.Error = err.Error()
	}
	if sample.Scan != nil {
		res.Result = newScanResult(sample.Scan)
		res.Sample.Scan = nil
	}
	return res, nil
}

// === Sheet Tool Handlers ===

type calibrateArgs struct {
	Path       string `json:"path"`
	OutputPath string `json:"output_path"`
}

type calibrateResult struct {
	*omr.Calibration
	OutputPath string `json:"output_path,omitempty"`
}

func (s *Server) handleCalibrate(args json.RawMessage) (interface{}, error) {
	var a calibrateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.loadImage(a.Path)
	if err != nil {
		return nil, err
	}
	cal, err := s.session.Calibrate(img)
	if err != nil {
		return nil, err
	}

	res := &calibrateResult{Calibration: cal}
	if a.OutputPath != "" {
		l := s.session.Layout()
		l.Page = cal.Suggested
		if err := l.Save(a.OutputPath); err != nil {
			return nil, fmt.Errorf("failed to save layout: %w", err)
		}
		s.logger.Info("calibrated layout saved", "path", a.OutputPath)
		res.OutputPath = a.OutputPath
	}
	return res, nil
}

type renderSheetArgs struct {
	Answers    map[string]string `json:"answers"`
	OutputPath string            `json:"output_path"`
}

type renderSheetResult struct {
	Layout     string                `json:"layout"`
	Width      int                   `json:"width"`
	Height     int                   `json:"height"`
	OutputPath string                `json:"output_path,omitempty"`
	Image      *imaging.EncodedImage `json:"image,omitempty"`
}

func (s *Server) handleRenderSheet(args json.RawMessage) (interface{}, error) {
	var a renderSheetArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	answers, err := parseLetterMap(a.Answers)
	if err != nil {
		return nil, err
	}
	l := s.session.Layout()
	sheet, err := omr.RenderSheet(l, answers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidArguments, err)
	}

	res := &renderSheetResult{Layout: l.Name, Width: sheet.Rect.Dx(), Height: sheet.Rect.Dy()}
	if a.OutputPath != "" {
		if err := diskimaging.Save(sheet, a.OutputPath); err != nil {
			return nil, fmt.Errorf("failed to save sheet: %w", err)
		}
		res.OutputPath = a.OutputPath
		return res, nil
	}
	if res.Image, err = imaging.EncodePNG(sheet); err != nil {
		return nil, err
	}
	return res, nil
}
