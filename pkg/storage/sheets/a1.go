package sheets

import (
	"fmt"
	"strings"
)

// quoteSheet renders a sheet name for A1 notation. Names are always quoted
// so that a name like "AB12" is not read as a cell reference.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// columnName returns the A1 column letters of the 1-based column n.
func columnName(n int) string {
	var sb []byte
	for n > 0 {
		n--
		sb = append([]byte{byte('A' + n%26)}, sb...)
		n /= 26
	}
	return string(sb)
}

// rowRange addresses the data row at index (0-based, header excluded) over
// width columns. Line 1 holds the header.
func rowRange(sheet string, index, width int) string {
	line := index + 2
	return fmt.Sprintf("%s!A%d:%s%d", quoteSheet(sheet), line, columnName(max(width, 1)), line)
}
