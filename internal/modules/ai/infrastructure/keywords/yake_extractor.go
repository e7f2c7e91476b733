package keywords

import (
	"sort"
	"strings"
	"unicode"
)

// YakeExtractor 无训练的统计式关键词抽取。
// 词频、首次出现位置与句子覆盖度合成一个分数，分数越低越相关。
type YakeExtractor struct {
	MaxKeywords int
}

func NewYakeExtractor(maxKeywords int) *YakeExtractor {
	if maxKeywords <= 0 {
		maxKeywords = 10
	}
	return &YakeExtractor{MaxKeywords: maxKeywords}
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "had": {}, "his": {}, "him": {},
	"she": {}, "its": {}, "this": {}, "that": {}, "with": {}, "they": {},
	"them": {}, "then": {}, "than": {}, "what": {}, "when": {}, "where": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "have": {}, "been": {},
	"from": {}, "your": {}, "about": {}, "into": {}, "just": {}, "like": {},
	"some": {}, "very": {}, "there": {}, "their": {}, "which": {}, "were": {},
	"also": {}, "only": {}, "more": {}, "over": {}, "such": {}, "these": {},
	"those": {}, "because": {}, "while": {}, "does": {}, "doing": {}, "being": {},
}

type candidate struct {
	token    string
	tf       int
	firstPos int
	spread   int
	score    float64
}

// Extract 返回按相关性降序的归一化关键词：小写、≥3 字符、去重、排除纯数字
func (e *YakeExtractor) Extract(text string, maxKeywords int) []string {
	if maxKeywords <= 0 {
		maxKeywords = e.MaxKeywords
	}

	sentences := splitSentences(text)
	stats := make(map[string]*candidate)
	pos := 0
	total := 0

	for _, sentence := range sentences {
		seen := make(map[string]bool)
		for _, token := range tokenize(sentence) {
			total++
			if !isKeywordToken(token) {
				pos++
				continue
			}
			c, ok := stats[token]
			if !ok {
				c = &candidate{token: token, firstPos: pos}
				stats[token] = c
			}
			c.tf++
			if !seen[token] {
				c.spread++
				seen[token] = true
			}
			pos++
		}
	}

	if len(stats) == 0 {
		return []string{}
	}
	if total == 0 {
		total = 1
	}

	candidates := make([]*candidate, 0, len(stats))
	for _, c := range stats {
		// 位置越靠前、频次与句子覆盖越高，分数越低（越相关）
		c.score = (1.0 + float64(c.firstPos)/float64(total)) / (float64(c.tf) * float64(1+c.spread))
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].token < candidates[j].token
	})

	if len(candidates) > maxKeywords {
		candidates = candidates[:maxKeywords]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.token)
	}
	return out
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '!', '?', '\n', '。', '！', '？', '；', ';':
			return true
		}
		return false
	})
}

func tokenize(sentence string) []string {
	fields := strings.FieldsFunc(sentence, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.ToLower(strings.TrimSpace(f)))
	}
	return tokens
}

// isKeywordToken 过滤短词、停用词与纯数字
func isKeywordToken(token string) bool {
	if len([]rune(token)) < 3 {
		return false
	}
	if _, ok := stopwords[token]; ok {
		return false
	}
	allDigits := true
	for _, r := range token {
		if !unicode.IsDigit(r) {
			allDigits = false
			break
		}
	}
	return !allDigits
}
