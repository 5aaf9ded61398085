package retrieval

// stopWords 英语与斯瓦希里语常见虚词，不作为独立检索变体
var stopWords = toSet(
	// English
	"a", "about", "above", "after", "again", "all", "also", "am", "an", "and", "any", "are", "as", "at",
	"be", "because", "been", "before", "being", "below", "between", "both", "but", "by",
	"can", "could", "did", "do", "does", "doing", "down", "during", "each", "else", "explain",
	"few", "for", "from", "further", "get", "give", "had", "has", "have", "having", "he", "her", "here",
	"hers", "him", "his", "how", "i", "if", "in", "into", "is", "it", "its", "just", "know", "like",
	"me", "more", "most", "much", "my", "need", "no", "nor", "not", "now", "of", "off", "on", "once",
	"only", "or", "other", "our", "out", "over", "own", "please", "same", "she", "should", "so", "some",
	"such", "tell", "than", "thanks", "that", "the", "their", "them", "then", "there", "these", "they",
	"this", "those", "through", "to", "too", "under", "until", "up", "very", "want", "was", "we", "were",
	"what", "when", "where", "which", "while", "who", "whom", "why", "will", "with", "would", "you",
	"your", "yours",
	// Kiswahili
	"na", "ya", "wa", "za", "la", "kwa", "ni", "si", "kama", "lakini", "au", "pia", "hii", "hiyo",
	"huyo", "hao", "hizo", "ile", "yule", "wale", "kuhusu", "katika", "kwenye", "nini", "gani", "vipi",
	"nani", "lini", "wapi", "je", "tafadhali", "mimi", "wewe", "yeye", "sisi", "nyinyi", "wao", "sana",
	"tu", "bado", "hata", "ndio", "hapana", "kuna", "nina", "una", "ana", "tuna", "mna", "wana",
	"naomba", "nataka", "ambayo", "ambao", "hivyo", "basi",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
