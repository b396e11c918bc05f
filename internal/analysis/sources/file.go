package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/i474232898/ndvi-change/internal/analysis"
)

// FileSource serves composites previously exported to a directory, one
// JSON document per period named "<period-slug>.json".
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) Name() string {
	return "file"
}

// Path returns the file consulted for a period.
func (s *FileSource) Path(p analysis.Period) string {
	return filepath.Join(s.dir, p.Slug()+".json")
}

func (s *FileSource) FetchComposite(ctx context.Context, req analysis.CompositeRequest) (analysis.Composite, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Composite{}, err
	}

	f, err := os.Open(s.Path(req.Period))
	if err != nil {
		return analysis.Composite{}, fmt.Errorf("failed to open composite: %w", err)
	}
	defer f.Close()

	return decodeComposite(f, s.Name(), req.Bands)
}
