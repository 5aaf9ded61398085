package config

import "strings"

var placeholderValues = map[string]struct{}{
	"changeme":    {},
	"change_me":   {},
	"placeholder": {},
	"none":        {},
	"null":        {},
	"todo":        {},
	"dummy":       {},
}

// IsPlaceholder 判断凭据是否缺失或仍为模板占位值
func IsPlaceholder(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	if s == "" {
		return true
	}
	if _, ok := placeholderValues[s]; ok {
		return true
	}
	switch {
	case strings.HasPrefix(s, "your_"), strings.HasPrefix(s, "your-"):
		return true
	case strings.HasPrefix(s, "${"):
		return true
	case strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"):
		return true
	case strings.Trim(s, "x*.") == "":
		return true
	}
	return false
}
