package chat

import (
	"strings"
	"time"
)

const defaultTimezone = "Africa/Nairobi"

// eatZone tzdata 缺失时使用的东非时间
var eatZone = time.FixedZone("EAT", 3*60*60)

// loadLocation 加载时区，失败时退回固定 UTC+3
func loadLocation(name string) *time.Location {
	if strings.TrimSpace(name) == "" {
		name = defaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return eatZone
	}
	return loc
}

// BuildSystemPrompt 组装系统提示：领域知识、当前时间、检索数据、回答规则
func BuildSystemPrompt(now time.Time, loc *time.Location, retrieved string) string {
	if loc == nil {
		loc = eatZone
	}
	var b strings.Builder
	b.WriteString(knowledgeBlock)
	b.WriteString("\n\n---\nCURRENT DATE AND TIME: ")
	b.WriteString(now.In(loc).Format("Monday, 2 January 2006 15:04 MST"))
	b.WriteString("\n\nDATABASE RESULTS:\nThe following fragments were retrieved from the CBC knowledge base. ")
	b.WriteString("Combine related facts across fragments into one coherent answer.\n\nRETRIEVED DATA:\n")
	if strings.TrimSpace(retrieved) == "" {
		b.WriteString(noFragmentsMarker)
	} else {
		b.WriteString(retrieved)
	}
	b.WriteString("\n---\n\n")
	b.WriteString(rulesBlock)
	return b.String()
}

var broadPrefixes = []string{"tell me about", "explain", "what is"}

// isBroadQuery 短问题或概述类问题需要更宽的召回
func isBroadQuery(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if len(strings.Fields(q)) <= 3 {
		return true
	}
	for _, p := range broadPrefixes {
		if strings.HasPrefix(q, p) {
			return true
		}
	}
	return false
}

// compactOneLine 折叠为单行用于日志
func compactOneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
