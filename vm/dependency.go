package vm

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// dependencyResolver loads and caches ".dat" library contents so a file
// referenced by several "lib::func" calls is only read once, grounded on
// dependency.rs's ReadFileHandler cache.
type dependencyResolver struct {
	dir   string
	files map[string][]byte
}

func newDependencyResolver(dir string) *dependencyResolver {
	return &dependencyResolver{dir: dir, files: make(map[string][]byte)}
}

// splitDependencyFunction splits "lib::func" into its two halves.
func splitDependencyFunction(ref string) (lib, fn string, ok bool) {
	parts := strings.SplitN(ref, "::", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (d *dependencyResolver) library(name string) ([]byte, error) {
	if data, ok := d.files[name]; ok {
		return data, nil
	}
	path := filepath.Join(d.dir, name+".dat")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapProgramError(ProgramCannotReadDependency, errors.Wrapf(err, "reading %s", path))
	}
	d.files[name] = data
	return data, nil
}

// functionBody returns the raw (unrelocated) instruction bytes for lib::func.
func (d *dependencyResolver) functionBody(ref string) ([]byte, error) {
	lib, fn, ok := splitDependencyFunction(ref)
	if !ok {
		return nil, newProgramErrorf(ProgramDependencyFunctionDoesntExist, "%q", ref)
	}
	data, err := d.library(lib)
	if err != nil {
		return nil, err
	}
	return findLibraryFunction(data, fn)
}
