package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/go-pdf/fpdf"
)

// A4 page dimensions in points.
const (
	a4ShortPt = 595.28
	a4LongPt  = 841.89

	pageMarginPt = 20
)

// PDFBuilder lays the kept slides out one per page. Each page is A4, rotated
// to landscape for wide slides, with the image scaled to fit and centered.
type PDFBuilder struct{}

func NewPDFBuilder() *PDFBuilder {
	return &PDFBuilder{}
}

func (b *PDFBuilder) BuildPDF(ctx context.Context, slidePaths []string, outputPath string) error {
	if len(slidePaths) == 0 {
		return errors.New("no slides to lay out")
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		SizeStr:        "A4",
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	for _, path := range slidePaths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		iw, ih, err := imageSize(path)
		if err != nil {
			return fmt.Errorf("read slide %s: %w", path, err)
		}

		pw, ph := a4ShortPt, a4LongPt
		if iw >= ih {
			pw, ph = a4LongPt, a4ShortPt
		}
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: pw, Ht: ph})

		scale := min((pw-2*pageMarginPt)/float64(iw), (ph-2*pageMarginPt)/float64(ih))
		dw := float64(iw) * scale
		dh := float64(ih) * scale
		pdf.ImageOptions(path, (pw-dw)/2, (ph-dh)/2, dw, dh, false, fpdf.ImageOptions{}, 0, "")
	}

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
