package ngspice

import (
	"fmt"
	"strings"
)

// LibraryPath returns the path of the library copy used by worker id. The
// pattern holds one %d verb, e.g. "lib/libngspice.so.%d"; a pattern without
// a verb is returned unchanged.
func LibraryPath(pattern string, id int) string {
	if !strings.Contains(pattern, "%") {
		return pattern
	}
	return fmt.Sprintf(pattern, id)
}
