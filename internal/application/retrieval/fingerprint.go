package retrieval

import "strings"

// DefaultFingerprintLength 去重指纹默认长度（rune）
const DefaultFingerprintLength = 100

// Fingerprint 片段去重键：小写、折叠空白后的前 n 个字符
func Fingerprint(text string, n int) string {
	if n <= 0 {
		n = DefaultFingerprintLength
	}
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	r := []rune(normalized)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
