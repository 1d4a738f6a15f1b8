package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// segmentProperties are the inputs shared by the segmentation tools.
func segmentProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": pathProperty("Absolute path to the image file"),
		"strategy": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"baatz", "mean"},
			"description": "Dissimilarity criterion. 'mean' compares band means, 'baatz' weighs spectral against shape heterogeneity. Default baatz",
		},
		"min_segment_size": map[string]interface{}{
			"type":        "integer",
			"description": "Smallest segment size in pixels after the final pass. Default 100",
		},
		"similarity_threshold": map[string]interface{}{
			"type":        "number",
			"description": "Largest dissimilarity accepted for a merge, >= 0. Default 0.03",
		},
		"similarity_increase_steps": map[string]interface{}{
			"type":        "integer",
			"description": "Number of threshold steps ramping up to similarity_threshold. Default 2",
		},
		"bands_weights": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "number"},
			"description": "Per-band weights for the baatz spectral term, one per band. Default equal",
		},
		"color_weight": map[string]interface{}{
			"type":        "number",
			"description": "Baatz spectral vs shape balance in [0,1]. Default 0.9",
		},
		"compactness_weight": map[string]interface{}{
			"type":        "number",
			"description": "Baatz compactness vs smoothness balance in [0,1]. Default 0.5",
		},
		"mutual_best_fitting": map[string]interface{}{
			"type":        "boolean",
			"description": "Only merge pairs that are each other's best neighbor",
		},
		"same_iteration_merges": map[string]interface{}{
			"type":        "boolean",
			"description": "Allow a segment to merge more than once per pass",
		},
		"smooth_radius": map[string]interface{}{
			"type":        "number",
			"description": "Gaussian blur radius applied before segmenting. Default 0 (off)",
		},
		"max_block_pixels": map[string]interface{}{
			"type":        "integer",
			"description": "Split the image into blocks of at most this many pixels. Default 0 (one block)",
		},
		"workers": map[string]interface{}{
			"type":        "integer",
			"description": "Blocks segmented in parallel. Default: number of CPUs",
		},
		"preview_max_side": map[string]interface{}{
			"type":        "integer",
			"description": "Longest side of the returned preview in pixels. Default 1024",
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	segment := segmentProperties()
	segment["output_path"] = pathProperty("Optional path where the label raster is written as a 16- or 32-bit TIFF")
	segment["palette_seed"] = map[string]interface{}{
		"type":        "integer",
		"description": "Seed for the label color palette of the preview. Default 0",
	}
	segment["preview_mode"] = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"labels", "mean"},
		"description": "Preview coloring: labels (palette colors) or mean (mean input color of each segment). Default labels",
	}

	overlay := segmentProperties()
	overlay["color"] = map[string]interface{}{
		"type":        "string",
		"description": "Boundary color as hex. Default #FF0000",
	}

	return []Tool{
		// Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, band count, bit depth and per-band value range.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the image file"),
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
					"path": pathProperty("Absolute path to the image file"),
				},
				"required": []string{"path"},
			},
		},

		// Segmentation
		{
			Name:        "image_segment",
			Description: "Segment an image into homogeneous regions by region growing. Returns segment statistics and a colored label preview; optionally writes the label raster.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": segment,
				"required":   []string{"path"},
			},
		},
		{
			Name:        "image_segment_overlay",
			Description: "Segment an image and return it with segment boundaries drawn on top.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": overlay,
				"required":   []string{"path"},
			},
		},

		// Label Analysis
		{
			Name:        "image_label_stats",
			Description: "Analyze a label raster TIFF: segment size distribution, connectivity check and the largest segments.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the label TIFF"),
					"top": map[string]interface{}{
						"type":        "integer",
						"description": "Number of largest segments to list. Default 20",
					},
				},
				"required": []string{"path"},
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
