package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ironsheep/segmenter-mcp/internal/analysis"
	"github.com/ironsheep/segmenter-mcp/internal/config"
	"github.com/ironsheep/segmenter-mcp/internal/pipeline"
	"github.com/ironsheep/segmenter-mcp/internal/raster"
	"github.com/ironsheep/segmenter-mcp/internal/segmenter"
)

const (
	defaultPreviewMaxSide = 1024
	defaultTopSegments    = 20
	defaultOverlayColor   = "#FF0000"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "image_segment").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

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

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.WithField("tool", params.Name).WithError(err).Warn("tool failed")
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
	// Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Segmentation
	case "image_segment":
		return s.handleImageSegment(args)
	case "image_segment_overlay":
		return s.handleImageSegmentOverlay(args)

	// Label Analysis
	case "image_label_stats":
		return s.handleImageLabelStats(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
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
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

// DimensionsResult contains the size of an image
type DimensionsResult struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return raster.LoadInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &DimensionsResult{Width: b.Dx(), Height: b.Dy()}, nil
}

// === Segmentation Handlers ===

// segmentArgs holds the shared segmentation inputs. Pointer fields are
// optional and keep the configured default when absent.
type segmentArgs struct {
	Path                    string    `json:"path"`
	Strategy                string    `json:"strategy"`
	MinSegmentSize          *int      `json:"min_segment_size"`
	SimilarityThreshold     *float64  `json:"similarity_threshold"`
	SimilarityIncreaseSteps *int      `json:"similarity_increase_steps"`
	BandsWeights            []float64 `json:"bands_weights"`
	ColorWeight             *float64  `json:"color_weight"`
	CompactnessWeight       *float64  `json:"compactness_weight"`
	MutualBestFitting       *bool     `json:"mutual_best_fitting"`
	SameIterationMerges     *bool     `json:"same_iteration_merges"`
	SmoothRadius            float64   `json:"smooth_radius"`
	MaxBlockPixels          int       `json:"max_block_pixels"`
	Workers                 int       `json:"workers"`
	PreviewMaxSide          int       `json:"preview_max_side"`
}

// request builds a pipeline request from the arguments applied over base.
func (a *segmentArgs) request(base *config.Config) (pipeline.Request, error) {
	if a.Path == "" {
		return pipeline.Request{}, errors.New("path is required")
	}
	req := pipeline.NewRequest(a.Path)
	cfg := base.Clone()
	req.Config = cfg
	p := &cfg.Segmentation

	if a.Strategy != "" {
		k, err := segmenter.ParseMergerKind(a.Strategy)
		if err != nil {
			return req, err
		}
		p.Strategy = k
	}
	if a.MinSegmentSize != nil {
		p.MinSegmentSize = *a.MinSegmentSize
	}
	if a.SimilarityThreshold != nil {
		p.SimilarityThreshold = *a.SimilarityThreshold
	}
	if a.SimilarityIncreaseSteps != nil {
		p.SimilarityIncreaseSteps = *a.SimilarityIncreaseSteps
	}
	if len(a.BandsWeights) > 0 {
		p.BandsWeights = a.BandsWeights
	}
	if a.ColorWeight != nil {
		p.ColorWeight = *a.ColorWeight
	}
	if a.CompactnessWeight != nil {
		p.CompactnessWeight = *a.CompactnessWeight
	}
	if a.MutualBestFitting != nil {
		p.EnableMutualBestFitting = *a.MutualBestFitting
	}
	if a.SameIterationMerges != nil {
		p.EnableSameIterationMerges = *a.SameIterationMerges
	}

	if a.MaxBlockPixels > 0 {
		cfg.Tiling.MaxBlockPixels = a.MaxBlockPixels
	}
	if a.Workers > 0 {
		cfg.Tiling.Workers = a.Workers
	}
	req.SmoothRadius = a.SmoothRadius
	if a.PreviewMaxSide <= 0 {
		a.PreviewMaxSide = defaultPreviewMaxSide
	}
	return req, nil
}

// SegmentResult is the outcome of image_segment.
type SegmentResult struct {
	RunID      string                `json:"run_id"`
	Status     string                `json:"status"`
	Strategy   string                `json:"strategy"`
	Width      int                   `json:"width"`
	Height     int                   `json:"height"`
	Blocks     int                   `json:"blocks"`
	ElapsedMS  int64                 `json:"elapsed_ms"`
	Summary    *analysis.Summary     `json:"summary"`
	Stats      segmenter.Stats       `json:"stats"`
	OutputPath string                `json:"output_path,omitempty"`
	Preview    *raster.PreviewResult `json:"preview"`
}

// OverlayResult is the outcome of image_segment_overlay.
type OverlayResult struct {
	RunID    string                `json:"run_id"`
	Segments int                   `json:"segments"`
	Preview  *raster.PreviewResult `json:"preview"`
}

// segment runs the pipeline and turns block failures into one error.
func (s *Server) segment(a *segmentArgs) (*pipeline.Output, error) {
	req, err := a.request(s.base)
	if err != nil {
		return nil, err
	}
	req.Logger = s.log

	out, err := pipeline.Run(s.ctx, s.cache, req)
	if err != nil {
		if out != nil && out.Report != nil {
			return nil, describeFailure(out, err)
		}
		return nil, err
	}
	return out, nil
}

func describeFailure(out *pipeline.Output, err error) error {
	if errors.Is(err, segmenter.ErrCanceled) {
		return fmt.Errorf("segmentation %s canceled: %w", out.RunID, err)
	}
	var msgs []string
	for _, res := range out.Report.Failed() {
		msgs = append(msgs, res.Err.Error())
	}
	return fmt.Errorf("segmentation %s failed in %d of %d blocks: %s",
		out.RunID, len(msgs), out.Report.Blocks, strings.Join(msgs, "; "))
}

type imageSegmentArgs struct {
	segmentArgs
	OutputPath  string `json:"output_path"`
	PaletteSeed uint32 `json:"palette_seed"`
	PreviewMode string `json:"preview_mode"`
}

func (s *Server) handleImageSegment(args json.RawMessage) (interface{}, error) {
	var a imageSegmentArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	out, err := s.segment(&a.segmentArgs)
	if err != nil {
		return nil, err
	}

	if a.OutputPath != "" {
		if err := raster.SaveLabels(a.OutputPath, out.Labels, 0); err != nil {
			return nil, err
		}
	}

	img, err := out.Preview(a.PreviewMode, a.PaletteSeed)
	if err != nil {
		return nil, err
	}
	preview, err := raster.EncodePreview(img, a.PreviewMaxSide)
	if err != nil {
		return nil, err
	}

	return &SegmentResult{
		RunID:      out.RunID,
		Status:     out.Report.Status.String(),
		Strategy:   string(out.Report.Params.Strategy),
		Width:      out.Labels.Width(),
		Height:     out.Labels.Height(),
		Blocks:     out.Report.Blocks,
		ElapsedMS:  out.Report.Elapsed.Milliseconds(),
		Summary:    out.Summary(),
		Stats:      out.Report.Stats(),
		OutputPath: a.OutputPath,
		Preview:    preview,
	}, nil
}

type imageSegmentOverlayArgs struct {
	segmentArgs
	Color string `json:"color"`
}

func (s *Server) handleImageSegmentOverlay(args json.RawMessage) (interface{}, error) {
	var a imageSegmentOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Color == "" {
		a.Color = defaultOverlayColor
	}

	out, err := s.segment(&a.segmentArgs)
	if err != nil {
		return nil, err
	}

	img, err := raster.BoundaryOverlay(out.Source, out.Labels, 0, a.Color)
	if err != nil {
		return nil, err
	}
	preview, err := raster.EncodePreview(img, a.PreviewMaxSide)
	if err != nil {
		return nil, err
	}

	return &OverlayResult{
		RunID:    out.RunID,
		Segments: out.Report.Stats().ActiveSegments,
		Preview:  preview,
	}, nil
}

// === Label Analysis Handlers ===

type imageLabelStatsArgs struct {
	Path string `json:"path"`
	Top  int    `json:"top"`
}

// LabelStatsResult describes a label raster.
type LabelStatsResult struct {
	Width        int                          `json:"width"`
	Height       int                          `json:"height"`
	Summary      *analysis.Summary            `json:"summary"`
	Connectivity *analysis.ConnectivityResult `json:"connectivity"`
	Largest      []analysis.SegmentRow        `json:"largest"`
}

func (s *Server) handleImageLabelStats(args json.RawMessage) (interface{}, error) {
	var a imageLabelStatsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Top <= 0 {
		a.Top = defaultTopSegments
	}

	labels, err := raster.LoadLabels(a.Path)
	if err != nil {
		return nil, err
	}
	rows, err := analysis.SegmentTable(labels, 0, nil, segmenter.BandInfo{}, a.Top)
	if err != nil {
		return nil, err
	}

	return &LabelStatsResult{
		Width:        labels.Width(),
		Height:       labels.Height(),
		Summary:      analysis.Summarize(labels, 0),
		Connectivity: analysis.CheckConnectivity(labels, 0),
		Largest:      rows,
	}, nil
}
