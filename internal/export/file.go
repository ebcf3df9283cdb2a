package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StdoutPath is the path that selects standard output.
const StdoutPath = "-"

// writeTo opens path (or uses stdout for "-"), runs fn against a
// buffered writer and flushes it.
func writeTo(path string, stdout io.Writer, fn func(w io.Writer) error) (err error) {
	if path == "" {
		return ErrEmptyPath
	}
	if path == StdoutPath {
		if stdout == nil {
			stdout = os.Stdout
		}
		bw := bufio.NewWriter(stdout)
		if err := fn(bw); err != nil {
			return err
		}
		return bw.Flush()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return bw.Flush()
}
