package alarm

import "strings"

// UnknownResource is returned when no usable name can be derived.
const UnknownResource = "unknown-server"

const minNameLength = 2

type ruleKind int

const (
	stripPrefix ruleKind = iota
	stripSuffix
)

type nameRule struct {
	kind    ruleKind
	pattern string
}

// nameRules are applied in order. Within a kind only the first match applies.
var nameRules = []nameRule{
	{stripPrefix, "server:"},
	{stripPrefix, "alarm:"},
	{stripPrefix, "alert:"},
	{stripSuffix, " is down"},
	{stripSuffix, " server down"},
	{stripSuffix, "-down"},
	{stripSuffix, "-alarm"},
	{stripSuffix, "-alert"},
}

// ExtractName derives the canonical resource name from an alarm title.
// Names are lower case so that repeated extraction is stable.
func ExtractName(title string) string {
	name := strings.ToLower(strings.TrimSpace(title))

	applied := map[ruleKind]bool{}
	for _, r := range nameRules {
		if applied[r.kind] {
			continue
		}
		switch r.kind {
		case stripPrefix:
			if strings.HasPrefix(name, r.pattern) {
				name = strings.TrimSpace(name[len(r.pattern):])
				applied[r.kind] = true
			}
		case stripSuffix:
			if strings.HasSuffix(name, r.pattern) {
				name = strings.TrimSpace(name[:len(name)-len(r.pattern)])
				applied[r.kind] = true
			}
		}
	}

	// "websrv is down extra text" keeps only the leading token.
	if fields := strings.Fields(name); len(fields) > 1 {
		name = fields[0]
	}

	if len(name) < minNameLength {
		return UnknownResource
	}
	return name
}
