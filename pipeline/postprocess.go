package pipeline

import "strings"

const (
	lineSeparator = "\r\n"
	overrideStart = ",,{"
	posOverride   = `,,{\pos(0,0)`
)

// Postprocess joins converted lines with CRLF and, when addPosTag is set,
// pins every override block to the origin.
func Postprocess(lines []string, addPosTag bool) string {
	text := strings.Join(lines, lineSeparator)
	if addPosTag {
		text = strings.ReplaceAll(text, overrideStart, posOverride)
	}
	return text
}
