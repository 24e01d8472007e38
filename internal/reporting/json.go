// Package reporting writes runs to disk in the supported report formats and
// renders single-finding detail views.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nhd2106/mongo-safe/internal/ir"
)

// Formats lists every report format Write understands.
var Formats = []string{"json", "html", "sarif", "checkstyle"}

func WriteJSON(runID, outDir string, run *ir.Run) (string, error) {
	return writeFile(outDir, runID+".json", func(w io.Writer) error {
		return EncodeJSON(w, run)
	})
}

// EncodeJSON writes run as indented JSON.
func EncodeJSON(w io.Writer, run *ir.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

// Write emits every requested format and returns the written paths in
// request order.
func Write(run *ir.Run, outDir string, formats []string) ([]string, error) {
	var paths []string
	for _, f := range formats {
		var (
			p   string
			err error
		)
		switch f {
		case "json":
			p, err = WriteJSON(run.ID, outDir, run)
		case "html":
			p, err = WriteHTML(run.ID, outDir, run)
		case "sarif":
			p, err = WriteSARIF(run.ID, outDir, run)
		case "checkstyle":
			p, err = WriteCheckstyle(run.ID, outDir, run)
		default:
			return paths, fmt.Errorf("unknown report format %q", f)
		}
		if err != nil {
			return paths, fmt.Errorf("write %s report: %w", f, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func writeFile(outDir, name string, fn func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := fn(f); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
