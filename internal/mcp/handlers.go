package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ironsheep/creek-ocr/internal/catalog"
	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/imaging"
	"github.com/ironsheep/creek-ocr/internal/pipeline"
	"github.com/ironsheep/creek-ocr/internal/record"
)

var errUnavailable = errors.New("not available in this mode")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall runs a tool and wraps its result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000
// whose data carries the failure code when there is one.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "err", err)
		data := map[string]string{"details": err.Error()}
		if code := failure.CodeOf(err); code != "" {
			data["code"] = string(code)
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

func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "records_query":
		return s.handleRecordsQuery(ctx, args)
	case "capture_process":
		return s.handleCaptureProcess(ctx)
	case "capture_process_key":
		return s.handleCaptureProcessKey(ctx, args)
	case "captures_list":
		return s.handleCapturesList(ctx, args)
	case "catalog_regions":
		return s.handleCatalogRegions()
	case "region_read":
		return s.handleRegionRead(ctx, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	if str, ok := data.(string); ok && str == "" {
		data = nil
	}
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

// decodeArgs tolerates an absent arguments object.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	return json.Unmarshal(args, v)
}

// === Record Handlers ===

type recordsQueryArgs struct {
	Date string `json:"date"`
}

type recordsQueryResult struct {
	Date  string           `json:"date"`
	Count int              `json:"count"`
	Items []*record.Record `json:"items"`
}

func (s *Server) handleRecordsQuery(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if s.pipeline == nil {
		return nil, fmt.Errorf("records_query: %w", errUnavailable)
	}
	var a recordsQueryArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	recs, err := s.pipeline.Query(ctx, strings.TrimSpace(a.Date))
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*record.Record{}
	}
	return recordsQueryResult{Date: a.Date, Count: len(recs), Items: recs}, nil
}

// === Capture Handlers ===

func (s *Server) handleCaptureProcess(ctx context.Context) (interface{}, error) {
	if s.pipeline == nil {
		return nil, fmt.Errorf("capture_process: %w", errUnavailable)
	}
	return s.pipeline.CaptureAndProcess(ctx)
}

type captureKeyArgs struct {
	Key string `json:"key"`
}

func (s *Server) handleCaptureProcessKey(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if s.pipeline == nil {
		return nil, fmt.Errorf("capture_process_key: %w", errUnavailable)
	}
	var a captureKeyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Key == "" {
		return nil, errors.New("key is required")
	}
	rec, err := s.pipeline.ProcessStoredKey(ctx, a.Key)
	if err != nil {
		return nil, err
	}
	// The stored bytes may have changed under this key.
	s.cache.Evict(a.Key)
	return rec, nil
}

type capturesListArgs struct {
	Prefix string `json:"prefix"`
}

type capturesListResult struct {
	Prefix string   `json:"prefix"`
	Count  int      `json:"count"`
	Keys   []string `json:"keys"`
}

func (s *Server) handleCapturesList(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if s.objects == nil {
		return nil, fmt.Errorf("captures_list: %w", errUnavailable)
	}
	var a capturesListArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	keys, err := s.objects.List(ctx, a.Prefix)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return capturesListResult{Prefix: a.Prefix, Count: len(keys), Keys: keys}, nil
}

// === Calibration Handlers ===

type regionInfo struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	X1        int    `json:"x1"`
	Y1        int    `json:"y1"`
	X2        int    `json:"x2"`
	Y2        int    `json:"y2"`
	Whitelist string `json:"whitelist,omitempty"`
	Attribute string `json:"attribute"`
	Primary   bool   `json:"primary"`
}

func (s *Server) handleCatalogRegions() (interface{}, error) {
	primary := s.catalog.Primary().ID
	regions := s.catalog.All()
	out := make([]regionInfo, 0, len(regions))
	for _, r := range regions {
		out = append(out, regionInfo{
			ID:        string(r.ID),
			Kind:      r.Kind.String(),
			X1:        r.Rect.Left,
			Y1:        r.Rect.Top,
			X2:        r.Rect.Right,
			Y2:        r.Rect.Bottom,
			Whitelist: r.Whitelist,
			Attribute: r.StoreKey(),
			Primary:   r.ID == primary,
		})
	}
	return map[string]interface{}{"regions": out}, nil
}

type regionReadArgs struct {
	Key    string `json:"key"`
	Region string `json:"region"`
}

type regionReadResult struct {
	Key    string `json:"key"`
	Region string `json:"region"`
	Kind   string `json:"kind"`
	Raw    string `json:"raw,omitempty"`
	Value  string `json:"value,omitempty"`
	// Error is the conversion failure, if any. Reading still succeeds.
	Error  string `json:"error,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Image  string `json:"image_base64,omitempty"`
}

func (s *Server) handleRegionRead(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if s.objects == nil {
		return nil, fmt.Errorf("region_read: %w", errUnavailable)
	}
	var a regionReadArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	region, ok := s.catalog.Lookup(catalog.ID(a.Region))
	if !ok {
		return nil, fmt.Errorf("unknown region %q", a.Region)
	}

	img, err := s.cache.Load(ctx, a.Key, s.objects.Get)
	if err != nil {
		return nil, err
	}
	crop, err := imaging.Crop(img, region.Rect.Left, region.Rect.Top, region.Rect.Right, region.Rect.Bottom)
	if err != nil {
		return nil, err
	}

	result := regionReadResult{
		Key:    a.Key,
		Region: string(region.ID),
		Kind:   region.Kind.String(),
		Width:  crop.Bounds().Dx(),
		Height: crop.Bounds().Dy(),
	}

	if !region.Kind.NeedsOCR() {
		data, err := imaging.EncodePNG(crop)
		if err != nil {
			return nil, err
		}
		result.Image = base64.StdEncoding.EncodeToString(data)
		return result, nil
	}

	if s.reader == nil {
		return nil, fmt.Errorf("region_read: OCR %w", errUnavailable)
	}
	text, err := s.reader.ReadText(crop, region.Whitelist)
	if err != nil {
		return nil, err
	}
	result.Raw = text

	if region.ID == s.catalog.Primary().ID {
		id, err := pipeline.ResolveTimestamp(text)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Value = fmt.Sprintf("%s hour=%d unix=%d", id.Date, id.Hour, id.Unix)
		}
		return result, nil
	}

	v, err := pipeline.Coerce(region, text, "")
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Value = v.String()
	}
	return result, nil
}
