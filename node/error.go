package node

import "fmt"

var (
	// ErrReadOnly is returned when a mutation targets a read-only Node.
	ErrReadOnly = fmt.Errorf("read-only")

	// ErrNotMap is returned by map-only operations invoked on a
	// differently tagged Node.
	ErrNotMap = fmt.Errorf("not a map")
)

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/qconfig/qconfig/node."+typeMethod+": "+format, a...)
}
