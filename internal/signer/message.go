package signer

import (
	"sort"
	"strings"
)

const messagePrefix = "partmarket:"

// Message builds the payload a client signs for a mutating request:
// "partmarket:<ACTION>\n" followed by one "key=value\n" line per field in
// ascending key order.
func Message(action string, fields map[string]string) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(messagePrefix)
	b.WriteString(action)
	b.WriteByte('\n')
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(escape(fields[k]))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

var escaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

func escape(v string) string {
	return escaper.Replace(v)
}
