package server

import (
	"encoding/json"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/omr-scan-mcp/internal/layout"
	"github.com/ironsheep/omr-scan-mcp/internal/omr"
)

// callTool runs a tools/call request and decodes the tool's JSON result
// into out. It returns the JSON-RPC error, if any.
func callTool(t *testing.T, s *Server, name string, args interface{}, out interface{}) *MCPError {
	t.Helper()
	params, _ := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		return resp.Error
	}
	content := resp.Result.(map[string]interface{})["content"].([]map[string]interface{})
	if out != nil {
		if err := json.Unmarshal([]byte(content[0]["text"].(string)), out); err != nil {
			t.Fatalf("%s: bad result JSON: %v", name, err)
		}
	}
	return nil
}

func mustCall(t *testing.T, s *Server, name string, args interface{}, out interface{}) {
	t.Helper()
	if e := callTool(t, s, name, args, out); e != nil {
		t.Fatalf("%s failed: %d %s (%v)", name, e.Code, e.Message, e.Data)
	}
}

// writeSheetPhoto renders the test layout with answers onto a white frame
// and saves it as a PNG.
func writeSheetPhoto(t *testing.T, answers omr.AnswerMap) string {
	t.Helper()
	sheet, err := omr.RenderSheet(testLayout(), answers)
	if err != nil {
		t.Fatalf("RenderSheet() error: %v", err)
	}
	frame := image.NewGray(image.Rect(0, 0, 1000, 1300))
	draw.Draw(frame, frame.Rect, image.White, image.Point{}, draw.Src)
	draw.Draw(frame, sheet.Rect.Add(image.Pt(60, 40)), sheet, image.Point{}, draw.Src)

	path := filepath.Join(t.TempDir(), "sheet.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, frame); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeBlankPhoto(t *testing.T) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 300, 200))
	draw.Draw(img, img.Rect, image.White, image.Point{}, draw.Src)
	path := filepath.Join(t.TempDir(), "blank.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHandleToolsCall_ImageLoad(t *testing.T) {
	s := newTestServer(t)
	var info struct {
		Width, Height int
		Format        string
	}
	mustCall(t, s, "image_load", map[string]interface{}{"path": writeBlankPhoto(t)}, &info)
	if info.Width != 300 || info.Height != 200 || info.Format != "png" {
		t.Errorf("image_load = %+v", info)
	}

	var dims struct{ Width, Height int }
	mustCall(t, s, "image_dimensions", map[string]interface{}{"path": writeBlankPhoto(t)}, &dims)
	if dims.Width != 300 || dims.Height != 200 {
		t.Errorf("image_dimensions = %+v", dims)
	}
}

func TestHandleToolsCall_Errors(t *testing.T) {
	s := newTestServer(t)

	if e := callTool(t, s, "no_such_tool", map[string]interface{}{}, nil); e == nil || e.Code != -32602 {
		t.Errorf("unknown tool: %+v", e)
	}
	if e := callTool(t, s, "omr_decode", map[string]interface{}{}, nil); e == nil || e.Code != -32602 {
		t.Errorf("missing path: %+v", e)
	}
	if e := callTool(t, s, "omr_decode", map[string]interface{}{"path": "/does/not/exist.png"}, nil); e == nil || e.Code != -32000 {
		t.Errorf("missing file: %+v", e)
	}
	if e := callTool(t, s, "omr_set_key", map[string]interface{}{"answers": map[string]string{"1": "?"}}, nil); e == nil || e.Code != -32602 {
		t.Errorf("bad letter: %+v", e)
	}
	if e := callTool(t, s, "omr_set_key", map[string]interface{}{"answers": map[string]string{"99": "A"}}, nil); e == nil || e.Code != -32602 {
		t.Errorf("question out of range: %+v", e)
	}
	if e := callTool(t, s, "omr_decode", map[string]interface{}{"path": writeBlankPhoto(t)}, nil); e == nil || e.Code != -32000 {
		t.Errorf("sheet without markers: %+v", e)
	}
}

func TestHandleToolsCall_DetectFeatures(t *testing.T) {
	s := newTestServer(t)

	var res detectFeaturesResult
	mustCall(t, s, "omr_detect_features", map[string]interface{}{"path": writeSheetPhoto(t, nil)}, &res)
	if !res.Complete || res.Found != 4 || len(res.Features) != 4 {
		t.Errorf("detect on a sheet: complete=%v found=%d", res.Complete, res.Found)
	}

	res = detectFeaturesResult{}
	mustCall(t, s, "omr_detect_features", map[string]interface{}{"path": writeBlankPhoto(t)}, &res)
	if res.Complete || res.Found != 0 || res.Message == "" {
		t.Errorf("detect on a blank frame: %+v", res)
	}
}

func TestHandleToolsCall_Rectify(t *testing.T) {
	s := newTestServer(t)
	var res struct {
		Sheets []struct{ Width, Height int }
		Images []struct {
			Width       int    `json:"width"`
			ImageBase64 string `json:"image_base64"`
		}
	}
	mustCall(t, s, "omr_rectify", map[string]interface{}{"path": writeSheetPhoto(t, nil), "include_image": true}, &res)
	w, h := testLayout().CanonicalSize()
	if len(res.Sheets) != 1 || res.Sheets[0].Width != w || res.Sheets[0].Height != h {
		t.Errorf("sheets = %+v", res.Sheets)
	}
	if len(res.Images) != 1 || res.Images[0].ImageBase64 == "" {
		t.Error("rectified image missing")
	}
}

func TestHandleToolsCall_DecodeAndGrade(t *testing.T) {
	s := newTestServer(t)
	student := omr.AnswerMap{1: 0, 2: 2, 30: 4}
	path := writeSheetPhoto(t, student)

	var dec struct {
		Letters map[string]string `json:"letters"`
		Count   int               `json:"count"`
		Overlay *struct {
			Width int `json:"width"`
		} `json:"overlay"`
	}
	mustCall(t, s, "omr_decode", map[string]interface{}{"path": path, "overlay": true}, &dec)
	if dec.Count != 3 || dec.Letters["1"] != "A" || dec.Letters["2"] != "C" || dec.Letters["30"] != "E" {
		t.Errorf("decoded %+v", dec.Letters)
	}
	if dec.Overlay == nil || dec.Overlay.Width == 0 {
		t.Error("overlay missing")
	}

	var graded gradeResult
	mustCall(t, s, "omr_grade", map[string]interface{}{"path": path}, &graded)
	if graded.Score.Percentage != 0 || graded.Warning == "" {
		t.Errorf("grading without a key: %+v", graded)
	}

	mustCall(t, s, "omr_set_key", map[string]interface{}{"answers": map[string]string{"1": "A", "2": "B"}}, nil)
	graded = gradeResult{}
	mustCall(t, s, "omr_grade", map[string]interface{}{"path": path, "overlay": true}, &graded)
	if graded.Score.Correct != 1 || graded.Score.Total != 2 || graded.Score.Percentage != 50 {
		t.Errorf("score = %+v", graded.Score)
	}
	if graded.Overlay == nil {
		t.Error("graded overlay missing")
	}
}

func TestHandleToolsCall_KeyLifecycle(t *testing.T) {
	s := newTestServer(t)
	key := omr.AnswerMap{1: 3, 2: 1, 45: 0}

	var scanned answerView
	mustCall(t, s, "omr_scan_key", map[string]interface{}{"path": writeSheetPhoto(t, key)}, &scanned)
	if scanned.Summary != key.String() {
		t.Errorf("scanned key %q, want %q", scanned.Summary, key.String())
	}

	var got answerView
	mustCall(t, s, "omr_get_key", nil, &got)
	if got.Summary != key.String() {
		t.Errorf("active key %q, want %q", got.Summary, key.String())
	}

	mustCall(t, s, "omr_clear_key", nil, nil)
	got = answerView{}
	mustCall(t, s, "omr_get_key", nil, &got)
	if got.Count != 0 {
		t.Errorf("key after clear: %+v", got)
	}
}

func TestHandleToolsCall_GradeMaps(t *testing.T) {
	s := newTestServer(t)

	var res gradeResult
	mustCall(t, s, "omr_grade_maps", map[string]interface{}{
		"key":     map[string]string{"1": "A", "2": "B"},
		"student": map[string]string{"1": "A", "2": "C"},
	}, &res)
	if res.Score.Correct != 1 || res.Score.Total != 2 || res.Score.Percentage != 50 {
		t.Errorf("score = %+v", res.Score)
	}

	res = gradeResult{}
	mustCall(t, s, "omr_grade_maps", map[string]interface{}{
		"key":     map[string]string{},
		"student": map[string]string{"1": "A"},
	}, &res)
	if res.Score.Percentage != 0 || res.Warning == "" {
		t.Errorf("empty key: %+v", res)
	}

	invalid := []struct {
		name         string
		key, student map[string]string
	}{
		{"key question out of range", map[string]string{"999": "A", "1": "A"}, map[string]string{"1": "A"}},
		{"key option past E", map[string]string{"1": "Z"}, map[string]string{"1": "A"}},
		{"student question out of range", map[string]string{"1": "A"}, map[string]string{"999": "Z"}},
		{"student option past E", map[string]string{"1": "A"}, map[string]string{"1": "F"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			e := callTool(t, s, "omr_grade_maps", map[string]interface{}{"key": tt.key, "student": tt.student}, nil)
			if e == nil || e.Code != -32602 {
				t.Errorf("got %+v, want -32602", e)
			}
		})
	}
}

func TestHandleToolsCall_LiveTick(t *testing.T) {
	s := newTestServer(t)
	path := writeSheetPhoto(t, omr.AnswerMap{7: 1})

	var res struct {
		State  string `json:"state"`
		Stable int    `json:"stable"`
		Result *struct {
			Letters map[string]string `json:"letters"`
		} `json:"result"`
	}
	for i := 1; i <= 8; i++ {
		res.Result = nil
		mustCall(t, s, "omr_live_tick", map[string]interface{}{"path": path}, &res)
		if i < 8 && res.Result != nil {
			t.Fatalf("tick %d returned a result early", i)
		}
	}
	if res.State != "triggered" || res.Result == nil || res.Result.Letters["7"] != "B" {
		t.Fatalf("after 8 ticks: %+v", res)
	}

	var reset struct {
		State string `json:"state"`
	}
	mustCall(t, s, "omr_live_reset", nil, &reset)
	if reset.State != "searching" {
		t.Errorf("state after reset: %s", reset.State)
	}
}

func TestHandleToolsCall_Calibrate(t *testing.T) {
	s := newTestServer(t)
	var cal omr.Calibration
	mustCall(t, s, "omr_calibrate", map[string]interface{}{"path": writeSheetPhoto(t, nil)}, &cal)
	if len(cal.Points) != 4 {
		t.Errorf("calibration points: %+v", cal.Points)
	}

	out := filepath.Join(t.TempDir(), "calibrated.json")
	var res struct {
		omr.Calibration
		OutputPath string `json:"output_path"`
	}
	mustCall(t, s, "omr_calibrate", map[string]interface{}{"path": writeSheetPhoto(t, nil), "output_path": out}, &res)
	if res.OutputPath != out {
		t.Errorf("output_path = %q, want %q", res.OutputPath, out)
	}
	saved, err := layout.Load(out, layout.Table())
	if err != nil {
		t.Fatalf("saved layout does not load: %v", err)
	}
	if saved.Kind != layout.KindFiducial || saved.Page != res.Suggested {
		t.Errorf("saved page = %+v, want %+v", saved.Page, res.Suggested)
	}
}

func TestHandleToolsCall_RenderSheet(t *testing.T) {
	s := newTestServer(t)
	out := filepath.Join(t.TempDir(), "sheet.png")

	var res renderSheetResult
	mustCall(t, s, "omr_render_sheet", map[string]interface{}{
		"answers":     map[string]string{"3": "D"},
		"output_path": out,
	}, &res)
	w, h := testLayout().CanonicalSize()
	if res.Width != w || res.Height != h || res.OutputPath != out {
		t.Errorf("render result %+v", res)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("sheet not written: %v", err)
	}

	res = renderSheetResult{}
	mustCall(t, s, "omr_render_sheet", nil, &res)
	if res.Image == nil || res.Image.ImageBase64 == "" {
		t.Error("inline image missing")
	}
}
