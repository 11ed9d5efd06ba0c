package flow

import (
	"regexp"
	"strings"

	"github.com/MrWong99/callscript/internal/session"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// fill resolves {{name}} placeholders from the call's slots, then the
// graph's vars. Unknown names render empty.
func (g *Graph) fill(line string, cs *session.CallSession) string {
	if !strings.Contains(line, "{{") {
		return line
	}
	return placeholder.ReplaceAllStringFunc(line, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := cs.Slots[name]; ok {
			return v
		}
		if v, ok := g.vars[name]; ok {
			return v
		}
		return ""
	})
}
