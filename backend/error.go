package backend

import "fmt"

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/qconfig/qconfig/backend."+typeMethod+": "+format, a...)
}
