package source

import "fmt"

var (
	// ErrNoSuchSource is the NoSuchSource error kind: open found no
	// file and create was false, or the computed path was invalid
	// (an absolute path requested under the system directory).
	ErrNoSuchSource = fmt.Errorf("no such source")

	// ErrBackendMissing is the BackendMissing error kind: no backend
	// was given and none is registered to pick a default from.
	ErrBackendMissing = fmt.Errorf("no backends registered")
)

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/qconfig/qconfig/source."+typeMethod+": "+format, a...)
}
