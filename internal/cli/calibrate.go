package cli

import (
	"fmt"
	"image"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironsheep/creek-ocr/internal/catalog"
	"github.com/ironsheep/creek-ocr/internal/imaging"
	"github.com/ironsheep/creek-ocr/internal/pipeline"
)

type calibrationRegion struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Rect     string `json:"rect"`
	InBounds bool   `json:"in_bounds"`
	Raw      string `json:"raw,omitempty"`
	Value    string `json:"value,omitempty"`
	Error    string `json:"error,omitempty"`
}

type calibrationReport struct {
	Image   string              `json:"image"`
	Width   int                 `json:"width"`
	Height  int                 `json:"height"`
	Overlay string              `json:"overlay"`
	Regions []calibrationRegion `json:"regions"`
}

// textReader is satisfied by the Tesseract reader; tests swap in a fake.
type textReader interface {
	ReadText(img image.Image, whitelist string) (string, error)
}

func newCalibrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate <image>",
		Short: "Draw the region catalog over a capture",
		Long: `calibrate draws every catalog region over a local capture and writes the
result as PNG. Each region is checked against the image bounds. With --read
the text regions are also recognized and converted.`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipConfigValidation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			out, _ := flags.GetString("output")
			grid, _ := flags.GetInt("grid")
			hex, _ := flags.GetString("color")
			read, _ := flags.GetBool("read")

			cat, err := e.loadCatalog()
			if err != nil {
				return err
			}
			var reader textReader
			if read {
				reader = e.newReader()
			}

			report, err := calibrate(args[0], out, cat, reader, grid, hex)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			for _, r := range report.Regions {
				if !r.InBounds {
					return fmt.Errorf("region %s is outside the %dx%d image", r.ID, report.Width, report.Height)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "calibration.png", "Overlay PNG path")
	cmd.Flags().Int("grid", 50, "Grid spacing in pixels, 0 disables the grid")
	cmd.Flags().String("color", "#FF0000", "Box colour as #RRGGBB")
	cmd.Flags().Bool("read", false, "Recognize text regions with Tesseract")
	return cmd
}

func calibrate(path, out string, cat *catalog.Catalog, reader textReader, grid int, hex string) (*calibrationReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()

	report := &calibrationReport{
		Image:   path,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		Overlay: out,
	}

	primary := cat.Primary().ID
	boxes := make([]imaging.Box, 0, cat.Len())
	for _, r := range cat.All() {
		boxes = append(boxes, imaging.Box{Label: string(r.ID), Rect: r.Rect.Image()})

		row := calibrationRegion{
			ID:       string(r.ID),
			Kind:     r.Kind.String(),
			Rect:     r.Rect.String(),
			InBounds: true,
		}
		if err := imaging.CheckBounds(bounds, r.Rect.Left, r.Rect.Top, r.Rect.Right, r.Rect.Bottom); err != nil {
			row.InBounds = false
			row.Error = err.Error()
			report.Regions = append(report.Regions, row)
			continue
		}
		if reader != nil && r.Kind.NeedsOCR() {
			readRegion(&row, img, r, r.ID == primary, reader)
		}
		report.Regions = append(report.Regions, row)
	}

	png, err := imaging.EncodePNG(imaging.RegionOverlay(img, boxes, grid, hex))
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return nil, err
	}
	return report, nil
}

func readRegion(row *calibrationRegion, img image.Image, r catalog.Region, primary bool, reader textReader) {
	crop, err := imaging.Crop(img, r.Rect.Left, r.Rect.Top, r.Rect.Right, r.Rect.Bottom)
	if err != nil {
		row.Error = err.Error()
		return
	}
	text, err := reader.ReadText(crop, r.Whitelist)
	if err != nil {
		row.Error = err.Error()
		return
	}
	row.Raw = text

	if primary {
		id, err := pipeline.ResolveTimestamp(text)
		if err != nil {
			row.Error = err.Error()
			return
		}
		row.Value = fmt.Sprintf("%s hour=%d unix=%d", id.Date, id.Hour, id.Unix)
		return
	}
	v, err := pipeline.Coerce(r, text, "")
	if err != nil {
		row.Error = err.Error()
		return
	}
	row.Value = v.String()
}
