package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExactKeywordMatch(t *testing.T) {
	m := New(DefaultConfig())

	match, ok := m.Evaluate("please help me", nil)
	require.True(t, ok)
	assert.Equal(t, 1.0, match.Similarity)
	assert.Equal(t, "please help me", match.SourceUtterance)
}

func TestChineseKeywordMatch(t *testing.T) {
	m := New(DefaultConfig())

	// 中文关键词走子串匹配
	match, ok := m.Evaluate("快来救命啊", nil)
	require.True(t, ok)
	assert.Equal(t, "救命", match.MatchedKeyword)
	assert.Equal(t, 1.0, match.Similarity)
}

func TestFuzzyMatchAboveThreshold(t *testing.T) {
	m := New(DefaultConfig())

	// 语音识别常见误转写，"halp" 折叠后与 "help" 足够接近
	match, ok := m.Evaluate("halp", nil)
	require.True(t, ok)
	assert.Equal(t, "help", match.MatchedKeyword)
	assert.GreaterOrEqual(t, match.Similarity, 0.70)
}

func TestNoMatchBelowThreshold(t *testing.T) {
	m := New(DefaultConfig())

	_, ok := m.Evaluate("what a lovely day", nil)
	assert.False(t, ok)

	// 空文本不命中
	_, ok = m.Evaluate("", nil)
	assert.False(t, ok)
}

func TestAlternativesAreEvaluated(t *testing.T) {
	m := New(DefaultConfig())

	// 首选假设没命中，候选假设里有关键词
	match, ok := m.Evaluate("kelp", []string{"i said call the police now"})
	require.True(t, ok)
	assert.Equal(t, 1.0, match.Similarity)
	assert.Equal(t, "call the police", match.MatchedKeyword)
}

func TestBestMatchWins(t *testing.T) {
	m := New(DefaultConfig())

	// 精确命中应压过模糊命中
	match, ok := m.Evaluate("halp", []string{"help"})
	require.True(t, ok)
	assert.Equal(t, 1.0, match.Similarity)
}

func TestCaseAndPunctuationInsensitive(t *testing.T) {
	m := New(DefaultConfig())

	match, ok := m.Evaluate("HELP!!! Somebody!", nil)
	require.True(t, ok)
	assert.Equal(t, "help", match.MatchedKeyword)
}

func TestDebouncerWindow(t *testing.T) {
	d := NewDebouncer(30 * time.Second)
	now := time.Now()

	// 同一监听会话窗口内只放行一次
	assert.True(t, d.Allow("session-1", now))
	assert.False(t, d.Allow("session-1", now.Add(10*time.Second)))
	assert.False(t, d.Allow("session-1", now.Add(29*time.Second)))
	assert.True(t, d.Allow("session-1", now.Add(31*time.Second)))

	// 不同会话互不影响
	assert.True(t, d.Allow("session-2", now))
}

func TestDebouncerSweep(t *testing.T) {
	d := NewDebouncer(30 * time.Second)
	now := time.Now()

	d.Allow("stale", now.Add(-time.Hour))
	d.Allow("fresh", now)
	d.Sweep(now)

	// 过期条目清掉后该会话重新可放行
	assert.True(t, d.Allow("stale", now))
	assert.False(t, d.Allow("fresh", now))
}
