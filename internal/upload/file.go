package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// FileFromPath describes a local file, sniffing its content type from the
// first bytes rather than trusting the extension.
func FileFromPath(p string) (File, error) {
	info, err := os.Stat(p)
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", p)
	}
	mt, err := mimetype.DetectFile(p)
	if err != nil {
		return File{}, fmt.Errorf("detect type of %s: %w", p, err)
	}
	return File{
		Name:        filepath.Base(p),
		ContentType: mt.String(),
		Size:        info.Size(),
		Open:        func() (io.ReadCloser, error) { return os.Open(p) },
	}, nil
}
