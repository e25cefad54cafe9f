package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ImageExporter copies kept slides into a destination directory under
// sequential names, preserving the original extension.
type ImageExporter struct{}

func NewImageExporter() *ImageExporter {
	return &ImageExporter{}
}

func (e *ImageExporter) ExportImages(ctx context.Context, slidePaths []string, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	exported := make([]string, 0, len(slidePaths))
	for i, src := range slidePaths {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ext := filepath.Ext(src)
		if ext == "" {
			ext = ".png"
		}
		dest := filepath.Join(destDir, fmt.Sprintf("slide_%03d%s", i+1, ext))
		if err := copyFile(src, dest); err != nil {
			return nil, fmt.Errorf("export %s: %w", src, err)
		}
		exported = append(exported, dest)
	}
	return exported, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
