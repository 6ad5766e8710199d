package watch

import (
	"path/filepath"
	"strings"
)

// TempSuffix marks in-progress output files written by processors. They
// are skipped so a processor rewriting a file never re-triggers itself.
const TempSuffix = ".imgc.tmp"

// Skip reports whether rel, a path relative to the watch root, should be
// ignored: hidden files and directories (which covers .git and editor
// droppings) and processor temp files.
func Skip(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return strings.HasSuffix(rel, TempSuffix)
}
