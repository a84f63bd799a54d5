package browser

import "strings"

// SplitArgs splits a comma separated argument list. Commas inside double
// quotes do not split, quotes are kept verbatim and empty entries are
// dropped.
func SplitArgs(s string) []string {
	result := []string{}

	var (
		current  strings.Builder
		inQuotes bool
	)

	flush := func() {
		if arg := strings.TrimSpace(current.String()); arg != "" {
			result = append(result, arg)
		}
		current.Reset()
	}

	for _, c := range s {
		switch {
		case c == '"':
			inQuotes = !inQuotes
			current.WriteRune(c)
		case c == ',' && !inQuotes:
			flush()
		default:
			current.WriteRune(c)
		}
	}
	flush()

	return result
}
