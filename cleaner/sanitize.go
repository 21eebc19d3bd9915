package cleaner

import (
	"github.com/microcosm-cc/bluemonday"
)

// bodyPolicy keeps structural and formatting markup of article bodies and
// drops scripts, event handlers, iframes and inline styles.
var bodyPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(false)
	p.AllowAttrs("datetime").OnElements("time")
	return p
}()

// Sanitize returns a copy of fragment that is safe to persist and render.
func Sanitize(fragment string) string {
	if fragment == "" {
		return ""
	}
	return bodyPolicy.Sanitize(fragment)
}
