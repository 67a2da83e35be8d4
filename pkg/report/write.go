package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// Stdout is the output path that writes to standard output instead of a file.
const Stdout = "-"

type countingWriter struct {
	io.Writer
	bytes int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.bytes += int64(n)
	return n, err
}

// Lines writes each line followed by a newline.
func Lines(w io.Writer, lines []string) error {
	bw := bufio.NewWriter(w)
	for _, l := range lines {
		if _, err := bw.WriteString(l); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteLines writes lines to path, or to standard output when path is "-".
// Files are written to a temporary file in the same directory and renamed
// into place, so readers never observe a partial artifact.
func WriteLines(path string, lines []string) error {
	if path == "" || path == Stdout {
		return Lines(os.Stdout, lines)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			log.Warn("Error removing temp file", "path", tmpName, "err", err)
		}
	}()

	cw := &countingWriter{Writer: tmpFile}
	if err := Lines(cw, lines); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	log.Info("Wrote artifact", "path", path, "lines", len(lines), "bytes", cw.bytes)
	return nil
}
