// Package moefile writes roll return (.moe) files: a line-oriented,
// comma-delimited, CRLF-terminated text format.
package moefile

import "strings"

// LineTerminator ends every record regardless of host platform.
const LineTerminator = "\r\n"

// EscapeCell doubles every quote and wraps the cell in quotes when the
// escaped value contains a comma or a quote.
func EscapeCell(cell string) string {
	escaped := strings.ReplaceAll(cell, `"`, `""`)
	if strings.ContainsAny(escaped, `,"`) {
		return `"` + escaped + `"`
	}
	return escaped
}

// EncodeLine serialises one record including its terminator.
func EncodeLine(cells []string) string {
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(EscapeCell(c))
	}
	b.WriteString(LineTerminator)
	return b.String()
}

// DecodeLine splits an encoded record back into cells. It accepts lines with
// or without the terminator.
func DecodeLine(line string) []string {
	line = strings.TrimSuffix(line, LineTerminator)

	var (
		cells   []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case inQuote && ch == '"' && i+1 < len(line) && line[i+1] == '"':
			cur.WriteByte('"')
			i++
		case ch == '"':
			inQuote = !inQuote
		case ch == ',' && !inQuote:
			cells = append(cells, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	return append(cells, cur.String())
}
