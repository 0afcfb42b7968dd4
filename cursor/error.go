package cursor

import "fmt"

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/qconfig/qconfig/cursor."+typeMethod+": "+format, a...)
}
