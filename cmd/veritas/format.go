package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

func stringReader(s string) io.Reader {
	return strings.NewReader(s)
}

// FormatQuery renders ad hoc query results per spec §6: "Yes."/"No."
// followed, for each binding and variable, by a line "i||k:v".
func FormatQuery(bindings []map[string]string) string {
	var sb strings.Builder
	if len(bindings) == 0 {
		sb.WriteString("No.")
		return sb.String()
	}
	sb.WriteString("Yes.")
	for i, b := range bindings {
		keys := make([]string, 0, len(b))
		for k := range b {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("\n%d||%s:%s", i, k, b[k]))
		}
	}
	return sb.String()
}
