package cleaner

import (
	"regexp"
	"strconv"
	"strings"
)

var inlineLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)

// ConvertToCitations rewrites inline http(s) Markdown links as numbered
// references collected under a trailing "---" rule. A URL linked twice
// keeps its first number. mailto:, tel: and fragment links stay inline.
//
//	"See [Open day](https://uni.example/open-day)"
//	=> "See [Open day][1]\n\n---\n[1]: https://uni.example/open-day"
func ConvertToCitations(markdown string) string {
	matches := inlineLinkRe.FindAllStringSubmatchIndex(markdown, -1)
	if len(matches) == 0 {
		return markdown
	}

	var out, refs strings.Builder
	seen := make(map[string]int)
	last := 0
	for _, m := range matches {
		text, target := markdown[m[2]:m[3]], markdown[m[4]:m[5]]
		if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
			continue
		}
		n, ok := seen[target]
		if !ok {
			n = len(seen) + 1
			seen[target] = n
			refs.WriteString("\n[" + strconv.Itoa(n) + "]: " + target)
		}
		out.WriteString(markdown[last:m[0]])
		out.WriteString("[" + text + "][" + strconv.Itoa(n) + "]")
		last = m[1]
	}
	if len(seen) == 0 {
		return markdown
	}
	out.WriteString(markdown[last:])
	return out.String() + "\n\n---" + refs.String()
}
