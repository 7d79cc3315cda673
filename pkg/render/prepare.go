package render

import (
	"strings"

	"github.com/ormasoftchile/shift/pkg/script"
)

// TrailingCommentFix is the statement appended to SQL whose final
// statement is followed only by comment lines. The warehouse's statement
// splitter treats a trailing comment-only fragment as a statement of its
// own and rejects it; a terminating SELECT gives it something real to
// execute.
const TrailingCommentFix = "SELECT 1; -- schemachange: trailing comment fix"

// PrepareForExecution turns a canonical form into the executable form.
// CLI scripts pass through untouched. SQL scripts get TrailingCommentFix
// appended when everything after the last real semicolon is comment
// lines; any other shape is returned unchanged. The canonical form, and
// therefore the checksum, is never affected.
func PrepareForExecution(content string, format script.Format) string {
	if format == script.FormatCLI {
		return content
	}

	last := lastRealSemicolon(content)
	if last < 0 {
		return content
	}

	tail := content[last+1:]
	if !strings.Contains(tail, "\n") {
		// Inline trailing comment on the statement's own line is fine.
		return content
	}

	stripped := lineComment.ReplaceAllString(tail, "")
	stripped = blockComment.ReplaceAllString(stripped, "")
	if strings.TrimSpace(stripped) != "" {
		return content
	}
	if strings.TrimSpace(tail) == "" {
		return content
	}

	return strings.TrimRight(content, " \t\r\n") + "\n" + TrailingCommentFix
}

// lastRealSemicolon returns the index of the last semicolon outside any
// -- line comment or /* */ block comment, or -1 when there is none.
func lastRealSemicolon(s string) int {
	last := -1
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "--"):
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				return last
			}
			i += nl + 1
		case strings.HasPrefix(s[i:], "/*"):
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return last
			}
			i += 2 + end + 2
		case s[i] == ';':
			last = i
			i++
		default:
			i++
		}
	}
	return last
}
