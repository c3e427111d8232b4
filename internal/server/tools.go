package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty(what string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the " + what,
	}
}

func overlayProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": "Also return an annotated PNG of the rectified sheet (base64). Default false",
		"default":     false,
	}
}

func answerMapProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"additionalProperties": map[string]interface{}{
			"type":    "string",
			"pattern": "^[A-Za-z]$",
		},
	}
}

func noArguments() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format and file size. The decoded image is cached for subsequent operations.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("image file"),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("image file"),
				},
				"required": []string{"path"},
			},
		},

		// Pipeline Stages
		{
			Name:        "omr_detect_features",
			Description: "Find the reference features of the configured layout (corner markers or answer-table outlines) in a photograph. Reports each feature's centre, corners, area and shape measures, and how many candidate contours were rejected for which reason.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("photograph"),
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Resize the photograph to this width before detection. Default: the layout's working width",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_rectify",
			Description: "Detect the reference features and warp the sheet (or each answer table) to its canonical flat frame. Returns the corner correspondences and transforms, optionally with the rectified images.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("photograph"),
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the rectified grayscale images as base64 PNG. Default false",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_decode",
			Description: "Read the marked answers from a photographed sheet. Returns the answer for every marked question plus per-question ink counts.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    pathProperty("photograph"),
					"overlay": overlayProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Answer Key
		{
			Name:        "omr_scan_key",
			Description: "Read a filled-in answer key sheet and make it the active key. The key is persisted and survives restarts.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    pathProperty("photograph of the key sheet"),
					"overlay": overlayProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_set_key",
			Description: "Replace the active answer key.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"answers": answerMapProperty("Question number to option letter, e.g. {\"1\": \"A\", \"2\": \"D\"}"),
				},
				"required": []string{"answers"},
			},
		},
		{
			Name:        "omr_get_key",
			Description: "Return the active answer key.",
			InputSchema: noArguments(),
		},
		{
			Name:        "omr_clear_key",
			Description: "Forget the active answer key, including its stored copy.",
			InputSchema: noArguments(),
		},

		// Grading
		{
			Name:        "omr_grade",
			Description: "Read a student's sheet and score it against the active key. Returns correct count, total, percentage and a verdict per question. With no key the score is 0%.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    pathProperty("photograph of the student's sheet"),
					"overlay": overlayProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_grade_maps",
			Description: "Score an answer map against a key map without reading an image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"key":     answerMapProperty("Key: question number to option letter"),
					"student": answerMapProperty("Student answers: question number to option letter"),
				},
				"required": []string{"key", "student"},
			},
		},

		// Live Capture
		{
			Name:        "omr_live_tick",
			Description: "Feed one camera frame to the stability gate. The frame is checked at preview resolution; once the sheet has held still for the required number of frames it is read at full resolution and the answers are returned.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("latest camera frame"),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_live_reset",
			Description: "Reset the stability gate so the next sheet can be captured.",
			InputSchema: noArguments(),
		},

		// Sheet Tools
		{
			Name:        "omr_calibrate",
			Description: "Measure where the bubbles on a printed fiducial sheet actually are and suggest corrected layout offsets and pitches.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("photograph of a printed sheet"),
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional file to write the layout with the suggested page geometry to; pass it back with --layout-file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_render_sheet",
			Description: "Draw a printable sheet for the configured layout, optionally with answers filled in.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"answers": answerMapProperty("Answers to fill in: question number to option letter"),
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Write the PNG here instead of returning it as base64",
					},
				},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
