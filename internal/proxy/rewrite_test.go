package proxy

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPortRule(t testing.TB, from, to uint32) Rule {
	t.Helper()
	rule, err := PortRule(from, to)
	require.NoError(t, err)
	return rule
}

// stream feeds chunks and returns everything emitted including the flush
func stream(rule Rule, chunks ...[]byte) []byte {
	rw := NewRewriter(rule)
	var out bytes.Buffer
	for _, c := range chunks {
		out.Write(rw.Feed(c))
	}
	out.Write(rw.Flush())
	return out.Bytes()
}

func TestNewRule(t *testing.T) {
	_, err := NewRule(":9223", ":922")
	assert.ErrorIs(t, err, ErrRuleLength)

	_, err = NewRule("", "")
	assert.ErrorIs(t, err, ErrRuleLength)

	_, err = PortRule(9999, 10000)
	assert.ErrorIs(t, err, ErrRuleLength)

	rule, err := PortRule(9223, 9222)
	require.NoError(t, err)
	assert.Equal(t, ":9223", rule.From())
	assert.Equal(t, ":9222", rule.To())
}

func TestFeedSingleChunk(t *testing.T) {
	rule := mustPortRule(t, 9223, 9222)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no token", "hello world", "hello world"},
		{"one token", `"ws://127.0.0.1:9223/devtools/page/1"`, `"ws://127.0.0.1:9222/devtools/page/1"`},
		{"adjacent tokens", ":9223:9223", ":9222:9222"},
		{"token at start and end", ":9223 x :9223", ":9222 x :9222"},
		{"near miss", ":9224 :922 :92230", ":9224 :922 :92220"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stream(rule, []byte(tt.input))
			assert.Equal(t, tt.want, string(got))
			assert.Len(t, got, len(tt.input))
		})
	}
}

func TestFeedTokenSplitAtEveryOffset(t *testing.T) {
	rule := mustPortRule(t, 9223, 9222)
	input := []byte(`{"webSocketDebuggerUrl":"ws://127.0.0.1:9223/devtools/browser/abc","x":":9223"}`)
	want := strings.ReplaceAll(string(input), ":9223", ":9222")

	for i := 0; i <= len(input); i++ {
		for j := i; j <= len(input); j++ {
			got := stream(rule, input[:i], input[i:j], input[j:])
			require.Equal(t, want, string(got), "split at %d,%d", i, j)
		}
	}
}

func TestFeedByteAtATime(t *testing.T) {
	rule := mustPortRule(t, 9224, 9223)
	input := []byte("a:9224b:9:92:922:9224:9224")
	want := strings.ReplaceAll(string(input), ":9224", ":9223")

	chunks := make([][]byte, len(input))
	for i := range input {
		chunks[i] = input[i : i+1]
	}
	assert.Equal(t, want, string(stream(rule, chunks...)))
}

func TestFeedRandomChunks(t *testing.T) {
	rule := mustPortRule(t, 9223, 9222)
	r := rand.New(rand.NewPCG(1, 2))

	alphabet := []byte(":9223ab")
	for round := 0; round < 200; round++ {
		input := make([]byte, r.IntN(200))
		for i := range input {
			input[i] = alphabet[r.IntN(len(alphabet))]
		}

		var chunks [][]byte
		for rest := input; len(rest) > 0; {
			n := 1 + r.IntN(min(len(rest), 9))
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}

		want := strings.ReplaceAll(string(input), ":9223", ":9222")
		require.Equal(t, want, string(stream(rule, chunks...)), "input %q", input)
	}
}

func TestFeedHoldsBackPartialToken(t *testing.T) {
	rw := NewRewriter(mustPortRule(t, 9223, 9222))

	assert.Equal(t, "abc", string(rw.Feed([]byte("abc:92"))))
	assert.Equal(t, 3, rw.Pending())

	// the held back bytes were not a token after all
	assert.Equal(t, ":924", string(rw.Feed([]byte("4"))))
	assert.Equal(t, 0, rw.Pending())

	assert.Equal(t, "", string(rw.Feed([]byte(":9"))))
	assert.Equal(t, ":9", string(rw.Flush()))
	assert.Nil(t, rw.Flush())
}

func TestFeedSelfOverlappingToken(t *testing.T) {
	rule, err := NewRule("aab", "xyz")
	require.NoError(t, err)

	assert.Equal(t, "axyz", string(stream(rule, []byte("aa"), []byte("ab"))))
	assert.Equal(t, "aaxyz", string(stream(rule, []byte("aaa"), []byte("ab"))))
}

func TestRewriterCount(t *testing.T) {
	rw := NewRewriter(mustPortRule(t, 9223, 9222))
	rw.Feed([]byte(":9223 :92"))
	rw.Feed([]byte("23"))
	assert.Equal(t, uint64(2), rw.Count())
}

func BenchmarkFeed(b *testing.B) {
	rule := mustPortRule(b, 9223, 9222)
	chunk := bytes.Repeat([]byte(`{"url":"ws://127.0.0.1:9223/devtools/page/ABCDEF"}`), 2500)

	rw := NewRewriter(rule)
	b.SetBytes(int64(len(chunk)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rw.Feed(chunk)
	}
}
