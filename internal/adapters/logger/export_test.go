// export_test.go exports private functions for white-box testing.
package logger

import "fmt"

var CollectErrorEntries = collectErrorEntries

func FormatErrorEntries(entries []ErrorEntry) string {
	return formatErrorEntries(entries, func(_ string, v any) string { return fmt.Sprint(v) })
}
