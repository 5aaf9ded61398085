package chat

import (
	"strings"
	"unicode"
)

var greetingTokens = map[string]bool{
	"hi": true, "hello": true, "hey": true, "hiya": true, "howdy": true, "greetings": true, "yo": true,
	"thanks": true,
}

// greetingFillers 只能跟随问候出现，单独出现不算问候
var greetingFillers = map[string]bool{
	"there": true, "all": true, "everyone": true, "friend": true, "bot": true, "again": true,
	"yako": true, "wewe": true, "rafiki": true, "nyote": true, "tena": true,
}

var swahiliGreetingTokens = map[string]bool{
	"habari": true, "sasa": true, "mambo": true, "niaje": true, "jambo": true, "hujambo": true,
	"shikamoo": true, "salaam": true, "salama": true, "asante": true,
}

var greetingBigrams = map[string]bool{
	"good morning": true, "good afternoon": true, "good evening": true, "good day": true,
	"thank you": true, "habari yako": true, "habari gani": true, "hali gani": true,
}

const (
	greetingReply = "Hello! I'm your CBC/CBE education advisor. Ask me about Grade 10 placement, " +
		"senior school pathways, KJSEA results or school fees and I'll help you find the answer."
	swahiliGreetingReply = "Habari! Mimi ni mshauri wako wa elimu ya CBC/CBE. Niulize kuhusu upangaji wa Gredi 10, " +
		"njia za masomo za sekondari ya juu, matokeo ya KJSEA au karo za shule."
)

// normalizeGreeting 小写、去标点、折叠空白
func normalizeGreeting(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Fields(cleaned)
}

// IsGreeting 判断是否为无需检索的寒暄轮次，maxTokens<=0 时取 3
func IsGreeting(text string, maxTokens int) bool {
	if maxTokens <= 0 {
		maxTokens = 3
	}
	tokens := normalizeGreeting(text)
	switch {
	case len(tokens) == 0:
		return true
	case len(tokens) > maxTokens:
		return false
	case len(tokens) == 1 && len([]rune(tokens[0])) <= 2:
		return true
	}
	return allGreeting(tokens)
}

// allGreeting 整句必须只由问候词、问候短语和填充词组成，且至少含一个问候
func allGreeting(tokens []string) bool {
	matched := false
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case i+1 < len(tokens) && greetingBigrams[tok+" "+tokens[i+1]]:
			matched = true
			i++
		case greetingTokens[tok] || swahiliGreetingTokens[tok]:
			matched = true
		case greetingFillers[tok]:
		default:
			return false
		}
	}
	return matched
}

// GreetingReply 返回寒暄的固定回复，斯瓦希里语问候使用斯瓦希里语回复
func GreetingReply(text string) string {
	for _, tok := range normalizeGreeting(text) {
		if swahiliGreetingTokens[tok] {
			return swahiliGreetingReply
		}
	}
	return greetingReply
}
