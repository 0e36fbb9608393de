package mcp

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func noArgs() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Records
		{
			Name:        "records_query",
			Description: "List the records captured on one UTC date, ordered by hour. Fields that could not be read are absent and listed under failed_fields.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"date": map[string]interface{}{
						"type":        "string",
						"description": "UTC date as YYYY-MM-DD",
					},
				},
				"required": []string{"date"},
			},
		},

		// Captures
		{
			Name:        "capture_process",
			Description: "Fetch the current telemetry display image, extract every field and store the record.",
			InputSchema: noArgs(),
		},
		{
			Name:        "capture_process_key",
			Description: "Process a capture already in the object store and store its record.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"key": map[string]interface{}{
						"type":        "string",
						"description": "Object store key of the capture, e.g. 2024-03-10_15-00-00.gif",
					},
				},
				"required": []string{"key"},
			},
		},
		{
			Name:        "captures_list",
			Description: "List object store keys. Crops live under crops/.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prefix": map[string]interface{}{
						"type":        "string",
						"description": "Optional key prefix, e.g. caspar_creek_",
					},
				},
			},
		},

		// Calibration
		{
			Name:        "catalog_regions",
			Description: "Describe every calibrated region: id, kind, rectangle, whitelist and attribute name.",
			InputSchema: noArgs(),
		},
		{
			Name:        "region_read",
			Description: "Read one region of a stored capture without storing anything. Text regions return the raw OCR text and the converted value; image regions return the crop as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"key": map[string]interface{}{
						"type":        "string",
						"description": "Object store key of the capture",
					},
					"region": map[string]interface{}{
						"type":        "string",
						"description": "Region id, e.g. stage or timestamp",
					},
				},
				"required": []string{"key", "region"},
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
