package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render substitutes {{key}} placeholders in both prompts.
// Substitution is a single pass: placeholders inside substituted values are
// left untouched. Unknown placeholders are kept verbatim.
func (p *Prompt) Render(vars map[string]string) (string, string) {
	return substitute(p.System, vars), substitute(p.User, vars)
}

func substitute(text string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return m
	})
}

// ParseArgs processes key:value arguments and returns a map of key-value pairs.
// The reserved keys are the ones the flows fill themselves.
func ParseArgs(args []string, reserved ...string) (map[string]string, error) {
	result := make(map[string]string)
	for _, arg := range args {
		// Handle quoted values
		arg = strings.TrimSpace(arg)
		if strings.HasPrefix(arg, `"`) && strings.HasSuffix(arg, `"`) {
			arg = strings.Trim(arg, `"`)
		}

		parts := strings.SplitN(arg, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid argument format: %s. Expected format: key:value", arg)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			return nil, fmt.Errorf("invalid argument format: %s. Key cannot be empty", arg)
		}

		// Remove escape characters from value
		value = strings.ReplaceAll(value, `\:`, ":")
		value = strings.ReplaceAll(value, `\"`, `"`)

		for _, r := range reserved {
			if key == r {
				return nil, fmt.Errorf("'%s' is a reserved keyword and cannot be used as a key", key)
			}
		}
		result[key] = value
	}
	return result, nil
}
