package matcher

import (
	"strings"
	"time"
	"unicode"
)

// DistressMatch 一次命中的求救关键词；不落库，由协调器立即消费
type DistressMatch struct {
	MatchedKeyword  string    `json:"matchedKeyword"`
	Similarity      float64   `json:"similarity"` // [0,1]
	SourceUtterance string    `json:"sourceUtterance"`
	Timestamp       time.Time `json:"timestamp"`
}

// Config 匹配器配置；关键词表是配置数据不是算法
type Config struct {
	Keywords  []string
	Threshold float64
}

// DefaultConfig 默认双语关键词（英文 + 中文及拼音变体）
func DefaultConfig() Config {
	return Config{
		Keywords: []string{
			// 英文
			"help",
			"help me",
			"call the police",
			"emergency",
			"sos",
			// 中文
			"救命",
			"救救我",
			"报警",
			"来人啊",
			// 拼音变体（语音识别常把中文吐成拼音）
			"jiuming",
			"jiujiuwo",
			"baojing",
		},
		Threshold: 0.70,
	}
}

// Matcher 关键词匹配器；纯求值，升级为警报是调用方的事
type Matcher struct {
	keywords  []string
	threshold float64
}

func New(cfg Config) *Matcher {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.70
	}
	kws := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		if n := normalize(kw); n != "" {
			kws = append(kws, n)
		}
	}
	return &Matcher{keywords: kws, threshold: cfg.Threshold}
}

// Evaluate 对一条识别文本及其候选假设求值，返回最优命中
func (m *Matcher) Evaluate(utterance string, alternatives []string) (*DistressMatch, bool) {
	candidates := make([]string, 0, 1+len(alternatives))
	candidates = append(candidates, utterance)
	candidates = append(candidates, alternatives...)

	var best *DistressMatch
	for _, cand := range candidates {
		norm := normalize(cand)
		if norm == "" {
			continue
		}
		for _, kw := range m.keywords {
			score, ok := m.matchOne(norm, kw)
			if !ok {
				continue
			}
			if best == nil || score > best.Similarity {
				best = &DistressMatch{
					MatchedKeyword:  kw,
					Similarity:      score,
					SourceUtterance: utterance,
					Timestamp:       time.Now(),
				}
			}
		}
	}
	return best, best != nil
}

// matchOne 先精确子串，再按词做带语音替换的编辑距离
func (m *Matcher) matchOne(norm, keyword string) (float64, bool) {
	if strings.Contains(norm, keyword) {
		return 1.0, true
	}

	// 中文关键词只做子串匹配，编辑距离对表意文字没有意义
	if hasCJK(keyword) {
		return 0, false
	}

	kwWords := strings.Fields(keyword)
	tokens := strings.Fields(norm)
	if len(kwWords) == 0 || len(tokens) < len(kwWords) {
		return 0, false
	}

	// 多词短语要求每个词在正确的相对位置都过线
	bestScore := 0.0
	for start := 0; start+len(kwWords) <= len(tokens); start++ {
		total := 0.0
		allPass := true
		for j, kw := range kwWords {
			s := similarity(tokens[start+j], kw)
			if s < m.threshold {
				allPass = false
				break
			}
			total += s
		}
		if allPass {
			avg := total / float64(len(kwWords))
			if avg > bestScore {
				bestScore = avg
			}
		}
	}
	if bestScore >= m.threshold {
		return bestScore, true
	}
	return 0, false
}

// normalize 小写并去掉非字母字符，词间保留单个空格
func normalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func hasCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// phoneticFold 口音容忍：把易混拼的字母折叠到同一代表字母
// 表很小而且是刻意的，别往里堆一般化的音标规则
var phoneticFold = map[rune]rune{
	'a': 'a', 'e': 'a',
	'i': 'i', 'y': 'i',
	'o': 'o', 'u': 'o',
	'c': 'k', 'k': 'k', 'q': 'k',
	's': 's', 'z': 's',
	'b': 'b', 'p': 'b',
}

func foldWord(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if f, ok := phoneticFold[r]; ok {
			out = append(out, f)
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}

// similarity 1 - 编辑距离/较长串长度，先做语音折叠
func similarity(a, b string) float64 {
	a, b = foldWord(a), foldWord(b)
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}
	d := levenshtein(ra, rb, maxLen)
	return 1.0 - float64(d)/float64(maxLen)
}

// levenshtein 带上界的编辑距离；超过 bound 直接返回 bound
func levenshtein(a, b []rune, bound int) int {
	if len(a) == 0 {
		return min(len(b), bound)
	}
	if len(b) == 0 {
		return min(len(a), bound)
	}
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff >= bound {
		return bound
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(min(curr[j-1]+1, prev[j]+1), prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin >= bound {
			return bound
		}
		prev, curr = curr, prev
	}
	return min(prev[len(b)], bound)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
