package skills

import (
	"regexp"
	"strconv"
	"strings"
)

// argTokenRe matches the substitution tokens in a skill body:
// $ARGUMENTS[N] (zero-based), $ARGUMENTS (the raw string), and shell-style
// $N (one-based, greedy over digits).
var argTokenRe = regexp.MustCompile(`\$ARGUMENTS\[(\d+)\]|\$ARGUMENTS|\$(\d+)`)

// RenderBody substitutes argument tokens into a skill body. When the body
// carries no token at all and args is non-empty, the raw arguments are
// appended so they are never silently lost.
func RenderBody(body, args string) string {
	positional := strings.Fields(args)
	found := false

	rendered := argTokenRe.ReplaceAllStringFunc(body, func(token string) string {
		found = true
		m := argTokenRe.FindStringSubmatch(token)
		switch {
		case m[1] != "": // $ARGUMENTS[N]
			i, _ := strconv.Atoi(m[1])
			if i < len(positional) {
				return positional[i]
			}
			return ""
		case m[2] != "": // $N
			i, _ := strconv.Atoi(m[2])
			if i >= 1 && i <= len(positional) {
				return positional[i-1]
			}
			return ""
		default: // $ARGUMENTS
			return args
		}
	})

	if !found && args != "" {
		rendered += "\n\nARGUMENTS: " + args
	}
	return rendered
}
