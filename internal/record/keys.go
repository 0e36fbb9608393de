package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/ironsheep/creek-ocr/internal/catalog"
)

const (
	// DefaultKeyPrefix prefixes the keys of successfully identified captures.
	DefaultKeyPrefix = "caspar_creek_"
	// ErrorKeyPrefix prefixes captures whose timestamp could not be resolved.
	ErrorKeyPrefix = "error_"
	// CropPrefix holds archived region crops.
	CropPrefix = "crops/"
	// ImageExt is the extension of every stored image.
	ImageExt = ".gif"
)

// SourceKey names an identified capture.
func SourceKey(prefix string, unix int64) string {
	return fmt.Sprintf("%s%d%s", prefix, unix, ImageExt)
}

// ErrorKey names a capture whose timestamp failed, stamped with the
// processing time.
func ErrorKey(unix int64) string {
	return fmt.Sprintf("%s%d%s", ErrorKeyPrefix, unix, ImageExt)
}

// CropKey names the crop of region id taken from the capture at sourceKey.
func CropKey(sourceKey string, id catalog.ID) string {
	return CropPrefix + strings.TrimSuffix(sourceKey, ImageExt) + "_" + string(id) + ImageExt
}

// StagingKey names a raw capture stored before processing.
func StagingKey(t time.Time) string {
	return t.UTC().Format("2006-01-02_15-04-05") + ImageExt
}

// IsCropKey reports whether key lives under CropPrefix.
func IsCropKey(key string) bool {
	return strings.HasPrefix(key, CropPrefix)
}
