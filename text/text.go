package text

import "strings"

// BulletIndent prefixes the first line of text with the bullet and indents
// the remaining lines so they line up under it.
func BulletIndent(bullet string, text string) string {
	pad := strings.Repeat(" ", len(bullet))
	text = Indent(text, pad)
	text = strings.TrimPrefix(text, pad)
	return bullet + text
}

// Indent prefixes every line of text with the indent string. A trailing
// newline is preserved.
func Indent(text, indent string) string {
	trailing := strings.HasSuffix(text, "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	sb := strings.Builder{}
	for i, line := range lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(indent)
		sb.WriteString(line)
	}
	if trailing {
		sb.WriteString("\n")
	}
	return sb.String()
}
