package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// imageSourceProperties are shared by every tool that reads one image.
func imageSourceProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the image file, or an image_id returned by medscan_capture",
		},
		"image_base64": map[string]interface{}{
			"type":        "string",
			"description": "Inline image bytes, base64 encoded. Used when path is empty.",
		},
		"mime_type": map[string]interface{}{
			"type":        "string",
			"description": "Declared MIME type of image_base64. Non-image types are rejected.",
		},
	}
}

func languageProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"enum":        []string{"en", "ar"},
		"description": "Interface language. Selects recognizer models, status and error messages. Default from MEDSCAN_LANGUAGE.",
	}
}

func withProperties(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Scanning
		{
			Name:        "medscan_extract",
			Description: "Run the full scan on a medication package photo: preprocess, recognize each region and extract candidate medication names. Sends notifications/progress when the request carries _meta.progressToken. One recognizer serves all calls: starting a scan cancels the scan or region recognition in flight, which then fails as superseded.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(imageSourceProperties(), map[string]interface{}{
					"language": languageProperty(),
					"check_interactions": map[string]interface{}{
						"type":        "boolean",
						"description": "Also check the extracted names for interactions. Default false.",
						"default":     false,
					},
					"age": map[string]interface{}{
						"type":        "integer",
						"description": "Patient age in years for the interaction check. 0 skips age warnings.",
					},
				}),
			},
		},
		{
			Name:        "medscan_capture",
			Description: "Capture one still frame from the camera. Returns an image_id usable as path by the other tools, and optionally runs the scan on it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"extract": map[string]interface{}{
						"type":        "boolean",
						"description": "Run medscan_extract on the captured frame. Default false.",
						"default":     false,
					},
					"language": languageProperty(),
				},
			},
		},

		// Diagnostics
		{
			Name:        "medscan_preprocess",
			Description: "Return the OCR-ready grayscale bitmap for an image along with its brightness classification.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(imageSourceProperties(), map[string]interface{}{
					"max_width": map[string]interface{}{
						"type":        "integer",
						"description": "Override the downscale width. Default from MEDSCAN_MAX_WIDTH.",
					},
					"binarize": map[string]interface{}{
						"type":        "boolean",
						"description": "Apply black/white thresholding after grayscale. Default true.",
					},
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the processed bitmap as base64 PNG. Default true.",
						"default":     true,
					},
				}),
			},
		},
		{
			Name:        "medscan_regions",
			Description: "List the regions the scan would recognize, in processed-image coordinates.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(imageSourceProperties(), map[string]interface{}{
					"tiling": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"bands", "single"},
						"description": "Tiling mode. Default from MEDSCAN_TILING.",
					},
				}),
			},
		},
		{
			Name:        "medscan_ocr_region",
			Description: "Recognize text in one region of the processed image and return text plus word boxes. Shares the recognizer with medscan_extract and supersedes a scan in flight. Custom rectangles are clamped to the image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(imageSourceProperties(), map[string]interface{}{
					"region": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"full", "top-half", "middle-band", "bottom-half", "top-third", "center"},
						"description": "Named region. Ignored when width and height are given.",
					},
					"x":        map[string]interface{}{"type": "integer", "description": "Region left edge"},
					"y":        map[string]interface{}{"type": "integer", "description": "Region top edge"},
					"width":    map[string]interface{}{"type": "integer", "description": "Region width"},
					"height":   map[string]interface{}{"type": "integer", "description": "Region height"},
					"language": languageProperty(),
				}),
			},
		},
		{
			Name:        "medscan_analyze",
			Description: "Report mean brightness, the dark-image classification and the dominant colors of an image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(imageSourceProperties(), map[string]interface{}{
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of dominant colors to return (default 5)",
						"default":     5,
					},
				}),
			},
		},

		// Follow-up
		{
			Name:        "medscan_check_interactions",
			Description: "Check a list of medication names for known interactions, age warnings and safer alternatives.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"medications": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Medication names, brand or ingredient",
					},
					"age": map[string]interface{}{
						"type":        "integer",
						"description": "Patient age in years. 0 skips age warnings.",
					},
				},
				"required": []string{"medications"},
			},
		},
		{
			Name:        "medscan_engine_info",
			Description: "Report the recognizer engine status and the active scan configuration.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}
