package server

import (
	"encoding/json"
	"testing"

	"github.com/ironsheep/medscan-mcp/internal/imaging"
)

func toolByName(t *testing.T, name string) Tool {
	t.Helper()
	for _, tool := range GetToolDefinitions() {
		if tool.Name == name {
			return tool
		}
	}
	t.Fatalf("tool %s not found", name)
	return Tool{}
}

func TestGetToolDefinitions(t *testing.T) {
	expectedTools := []string{
		"medscan_extract",
		"medscan_capture",
		"medscan_preprocess",
		"medscan_regions",
		"medscan_ocr_region",
		"medscan_analyze",
		"medscan_check_interactions",
		"medscan_engine_info",
	}

	tools := GetToolDefinitions()
	if len(tools) != len(expectedTools) {
		t.Errorf("tool count: got %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		toolByName(t, name)
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}
			if _, ok := tool.InputSchema["properties"].(map[string]interface{}); !ok {
				t.Error("InputSchema properties should be a map")
			}
			if _, err := json.Marshal(tool); err != nil {
				t.Errorf("tool does not marshal: %v", err)
			}
		})
	}
}

func TestToolDefinitions_ImageSources(t *testing.T) {
	for _, name := range []string{"medscan_extract", "medscan_preprocess", "medscan_regions", "medscan_ocr_region", "medscan_analyze"} {
		t.Run(name, func(t *testing.T) {
			props := toolByName(t, name).InputSchema["properties"].(map[string]interface{})
			for _, key := range []string{"path", "image_base64", "mime_type"} {
				if _, ok := props[key]; !ok {
					t.Errorf("missing %q", key)
				}
			}
			// One of path or image_base64 is enough, so neither is required.
			if _, ok := toolByName(t, name).InputSchema["required"]; ok {
				t.Error("image tools should not mark a source as required")
			}
		})
	}
}

func TestToolDefinitions_OCRRegionNames(t *testing.T) {
	props := toolByName(t, "medscan_ocr_region").InputSchema["properties"].(map[string]interface{})
	enum := props["region"].(map[string]interface{})["enum"].([]string)
	for _, name := range enum {
		if _, err := imaging.NamedRegion(100, 100, name); err != nil {
			t.Errorf("advertised region %q is not resolvable: %v", name, err)
		}
	}
}

func TestToolDefinitions_CheckInteractionsRequired(t *testing.T) {
	required := toolByName(t, "medscan_check_interactions").InputSchema["required"].([]string)
	if len(required) != 1 || required[0] != "medications" {
		t.Errorf("required: got %v", required)
	}
}
