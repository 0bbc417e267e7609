package ud

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument reports a bad path template or open-mode misuse.
var ErrInvalidArgument = errors.New("ud: invalid argument")

// Mode selects how the persisted vectors are initialized.
type Mode int

const (
	// ModeTemp backs the graph with unlinked temporary files.
	ModeTemp Mode = iota
	// ModeCreate truncates or creates the persistent files.
	ModeCreate
	// ModeOpen opens an existing graph for querying.
	ModeOpen
)

// Template is a file path containing exactly one "{}" placeholder; the
// placeholder is replaced with a per-file name to derive the ten data
// file paths of a persisted graph.
type Template struct {
	prefix string
	suffix string
}

// ParseTemplate validates and splits a placeholder path.
func ParseTemplate(path string) (Template, error) {
	i := strings.Index(path, "{}")
	if i < 0 {
		return Template{}, fmt.Errorf("%w: path %q has no {} placeholder", ErrInvalidArgument, path)
	}
	suffix := path[i+2:]
	if strings.Contains(suffix, "{}") {
		return Template{}, fmt.Errorf("%w: path %q has more than one {} placeholder", ErrInvalidArgument, path)
	}
	return Template{prefix: path[:i], suffix: suffix}, nil
}

// tempTemplate names the unlinked files of a temporary graph.
func tempTemplate() Template {
	return Template{prefix: "./"}
}

// File substitutes name for the placeholder.
func (t Template) File(name string) string {
	return t.prefix + name + t.suffix
}
