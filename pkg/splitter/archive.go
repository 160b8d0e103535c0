package splitter

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// ArchiveName is the bundle's object name within a job's results.
const ArchiveName = "all-parts.zip"

// BuildArchive bundles the parts into a ZIP. Entries are the bare part
// file names (no folders) deflated at maximum compression.
func BuildArchive(parts []Part) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	for _, p := range parts {
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:   p.Name,
			Method: zip.Deflate,
		})
		if err != nil {
			return nil, fmt.Errorf("splitter: archive entry %s: %w", p.Name, err)
		}
		if _, err := f.Write(p.Data); err != nil {
			return nil, fmt.Errorf("splitter: archive write %s: %w", p.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("splitter: archive close: %w", err)
	}
	return buf.Bytes(), nil
}
