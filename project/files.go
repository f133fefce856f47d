package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileManager owns the temporary files exchanged with the external
// compiler. Names derive from the input file so concurrent runs on
// different inputs do not collide. Unless flushing is disabled (the
// keep-temporaries debug flag), Flush removes everything created so far.
type FileManager struct {
	root       string
	sequence   int
	names      []string
	allowFlush bool
}

// NewFileManager returns a manager producing names rooted on fname.
func NewFileManager(fname string) *FileManager {
	base := filepath.Base(fname)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return &FileManager{
		root:     "zzzz-" + base,
		sequence: 1000000,
	}
}

// EnableFlush allows Flush to delete the generated files.
func (fm *FileManager) EnableFlush() {
	fm.allowFlush = true
}

// BuildName returns the next temporary name with the given extension.
// With newSequence set a fresh sequence number is taken, pairing the
// CNF written for an external call with the NNF it produces.
func (fm *FileManager) BuildName(extension string, newSequence bool) string {
	if newSequence {
		fm.sequence++
	}
	name := fmt.Sprintf("%s-%d.%s", fm.root, fm.sequence, extension)
	fm.names = append(fm.names, name)
	return name
}

// Flush removes the files created since the last flush.
func (fm *FileManager) Flush() {
	if !fm.allowFlush {
		return
	}
	for _, name := range fm.names {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			log.Warnf("could not delete temporary file %s: %v", name, err)
		}
	}
	fm.names = fm.names[:0]
}
