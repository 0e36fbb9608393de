package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/ironsheep/creek-ocr/internal/catalog"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

func toString(v any) string {
	switch v := v.(type) {
	case json.Number:
		return v.String()
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"source", SourceKey(DefaultKeyPrefix, 1710083730), "caspar_creek_1710083730.gif"},
		{"custom prefix", SourceKey("test_", 5), "test_5.gif"},
		{"error", ErrorKey(1710083730), "error_1710083730.gif"},
		{"crop", CropKey("caspar_creek_1710083730.gif", catalog.GraphImage), "crops/caspar_creek_1710083730_graph_image.gif"},
		{"staging", StagingKey(time.Date(2024, 3, 10, 7, 5, 9, 0, DisplayZone)), "2024-03-10_15-05-09.gif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestIsCropKey(t *testing.T) {
	if !IsCropKey(CropKey("a.gif", catalog.WeirImage)) {
		t.Error("crop key not recognized")
	}
	if IsCropKey("caspar_creek_1.gif") {
		t.Error("source key recognized as crop")
	}
}
