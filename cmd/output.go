package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pdftext/internal/extract"
)

// Output formats for extracted text.
const (
	formatText  = "text"
	formatPages = "pages"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validFormat(f string) bool {
	switch f {
	case formatText, formatPages, formatJSON, formatYAML:
		return true
	}
	return false
}

// render writes one outcome to w in the given format.
func render(w io.Writer, o *outcome, format string) error {
	switch format {
	case formatText:
		_, err := fmt.Fprintln(w, o.Result.Text)
		return err
	case formatPages:
		text := o.Result.Text
		if o.Result.OK && len(o.Result.Pages) > 0 {
			text = extract.FormatPages(o.Result.Pages)
		}
		_, err := fmt.Fprintln(w, text)
		return err
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(o)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(o); err != nil {
			return err
		}
		return enc.Close()
	default:
		return eris.Errorf("unknown output format: %s", format)
	}
}

// outputExt is the file extension used when writing outcomes to a directory.
func outputExt(format string) string {
	switch format {
	case formatJSON:
		return ".json"
	case formatYAML:
		return ".yaml"
	default:
		return ".txt"
	}
}

// outputPath maps an input file to its output file inside dir.
func outputPath(dir, input, format string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, base+outputExt(format))
}

// writeFile renders o into path, creating parent directories. The file is
// written to a temporary name first and renamed into place.
func writeFile(path string, o *outcome, format string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "create output dir for %s", path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := render(tmp, o, format); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "close %s", path)
	}
	return eris.Wrapf(os.Rename(tmp.Name(), path), "rename into %s", path)
}
