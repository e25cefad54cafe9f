package port

import "context"

// ImageExporter copies the kept slides into destDir renamed slide_001.png,
// slide_002.png and so on, and returns the new paths in order.
type ImageExporter interface {
	ExportImages(ctx context.Context, slidePaths []string, destDir string) ([]string, error)
}

// Archiver packs files into a ZIP at outputPath.
type Archiver interface {
	CreateArchive(ctx context.Context, filePaths []string, outputPath string) error
}

// PDFBuilder lays out one slide per page into a PDF at outputPath.
type PDFBuilder interface {
	BuildPDF(ctx context.Context, slidePaths []string, outputPath string) error
}
