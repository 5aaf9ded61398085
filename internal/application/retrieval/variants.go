package retrieval

import (
	"regexp"
	"strings"
	"unicode"
)

// VariantOptions 变体生成参数
type VariantOptions struct {
	MaxKeywords      int
	MinWordLength    int
	FollowUpMaxWords int
	MaxVariants      int
}

// trigger 领域关键词命中时追加的固定检索短语
type trigger struct {
	keywords []string
	phrases  []string
}

var domainTriggers = []trigger{
	{
		keywords: []string{"placement", "placed", "selection", "form one", "reporting", "admission", "school choice"},
		phrases:  []string{"Grade 10 placement senior school selection and reporting dates"},
	},
	{
		keywords: []string{"pathway", "pathways", "stem", "career", "careers", "subject combination", "track"},
		phrases:  []string{"senior school pathways subject combinations and career options"},
	},
	{
		keywords: []string{"grading", "grade point", "score", "scores", "marks", "kjsea", "kpsea", "assessment", "exam"},
		phrases:  []string{"KJSEA assessment scoring and performance levels"},
	},
	{
		keywords: []string{"fees", "capitation", "cost", "kes", "shillings"},
		phrases:  []string{"senior school fees and government capitation"},
	},
}

// domainKeywords 追问时从上一轮回复中保留的领域词
var domainKeywords = toSet(
	"cbc", "cbe", "kicd", "knec", "kjsea", "kpsea", "kcse", "stem", "jss", "junior", "senior",
	"pathway", "pathways", "placement", "grade", "arts", "sports", "humanities", "sciences",
)

var (
	datePattern    = regexp.MustCompile(`(?i)\b(\d{1,2}(st|nd|rd|th)?\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?(\s+\d{4})?|(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(st|nd|rd|th)?(,?\s+\d{4})?|\b(19|20)\d{2})\b`)
	phrasePattern  = regexp.MustCompile(`\b[A-Z][\p{L}&]*(?:\s+[A-Z][\p{L}&]*)+\b`)
	gradePattern   = regexp.MustCompile(`(?i)\bgrade\s+\d{1,2}\b`)
	maxFollowUpAux = 4
)

// BuildVariants 生成检索变体，第 0 个始终是原始问题
func BuildVariants(query, previousAssistant string, opts VariantOptions) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	opts = withDefaults(opts)

	variants := []string{query}
	words := tokenize(query)

	keywords := contentWords(words, opts.MinWordLength)
	if len(keywords) > opts.MaxKeywords {
		keywords = keywords[:opts.MaxKeywords]
	}
	variants = append(variants, keywords...)

	if len(words) <= opts.FollowUpMaxWords {
		if aux := followUpContext(previousAssistant); len(aux) > 0 {
			variants = append(variants, query+" "+strings.Join(aux, " "))
		}
	}

	lowered := strings.ToLower(query)
	for _, t := range domainTriggers {
		if matchesAny(lowered, words, t.keywords) {
			variants = append(variants, t.phrases...)
		}
	}

	return capVariants(dedupe(variants), opts.MaxVariants)
}

func withDefaults(opts VariantOptions) VariantOptions {
	if opts.MaxKeywords <= 0 {
		opts.MaxKeywords = 4
	}
	if opts.MinWordLength <= 0 {
		opts.MinWordLength = 4
	}
	if opts.FollowUpMaxWords <= 0 {
		opts.FollowUpMaxWords = 3
	}
	if opts.MaxVariants <= 0 {
		opts.MaxVariants = 8
	}
	return opts
}

// tokenize 按非字母数字切分并转小写
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func contentWords(words []string, minLen int) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < minLen {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// followUpContext 从上一轮回复中提取日期、专有名词短语与领域词
func followUpContext(prev string) []string {
	prev = strings.TrimSpace(prev)
	if prev == "" {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}

	for _, m := range gradePattern.FindAllString(prev, -1) {
		add(m)
	}
	for _, m := range datePattern.FindAllString(prev, -1) {
		add(m)
	}
	for _, m := range phrasePattern.FindAllString(prev, -1) {
		add(m)
	}
	for _, w := range tokenize(prev) {
		if _, ok := domainKeywords[w]; ok {
			add(w)
		}
	}

	if len(out) > maxFollowUpAux {
		out = out[:maxFollowUpAux]
	}
	return out
}

func matchesAny(lowered string, words []string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(lowered, kw) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == kw {
				return true
			}
		}
	}
	return false
}

func dedupe(variants []string) []string {
	seen := make(map[string]struct{}, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func capVariants(variants []string, max int) []string {
	if len(variants) > max {
		return variants[:max]
	}
	return variants
}
