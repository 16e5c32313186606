// Package format expands %name% placeholders in message templates.
package format

import (
	"fmt"
	"regexp"
)

var placeholder = regexp.MustCompile(`%([a-zA-Z_]+)%`)

// Render replaces every %name% in template with the value of name taken from
// the first map that has it: values, then each fallback in order.
// Placeholders nobody knows are left untouched.
func Render(template string, values map[string]any, fallbacks ...map[string]any) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := values[name]; ok {
			return fmt.Sprint(v)
		}
		for _, fb := range fallbacks {
			if v, ok := fb[name]; ok {
				return fmt.Sprint(v)
			}
		}
		return m
	})
}

// Formatter renders templates with the coin settings and bot-global values
// as fallbacks.
type Formatter struct {
	Coin   map[string]any
	Global func() map[string]any
}

func (f *Formatter) Render(template string, values map[string]any) string {
	var global map[string]any
	if f.Global != nil {
		global = f.Global()
	}
	return Render(template, values, f.Coin, global)
}

// Lines renders each line of a multi-line message.
func (f *Formatter) Lines(lines []string, values map[string]any) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, f.Render(l, values))
	}
	return out
}
