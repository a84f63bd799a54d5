package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// ErrRuleLength is returned for tokens of different or zero length
var ErrRuleLength = errors.New("rewrite tokens must be non-empty and of equal length")

// Rule replaces every occurrence of one token with another of the same length
type Rule struct {
	from []byte
	to   []byte
}

// NewRule validates and builds a rule
func NewRule(from, to string) (Rule, error) {
	if len(from) == 0 || len(from) != len(to) {
		return Rule{}, fmt.Errorf("%w: %q -> %q", ErrRuleLength, from, to)
	}
	return Rule{from: []byte(from), to: []byte(to)}, nil
}

// PortRule rewrites ":<from>" into ":<to>". Both ports need the same
// number of digits.
func PortRule(from, to uint32) (Rule, error) {
	return NewRule(":"+strconv.FormatUint(uint64(from), 10), ":"+strconv.FormatUint(uint64(to), 10))
}

// From returns the searched token
func (r Rule) From() string { return string(r.from) }

// To returns the replacement token
func (r Rule) To() string { return string(r.to) }

// Rewriter applies a Rule to a byte stream delivered in arbitrary chunks.
// A token split across chunks is still replaced: trailing bytes that could
// start a token are held back until the next Feed or Flush.
type Rewriter struct {
	rule  Rule
	work  []byte
	carry []byte
	count uint64
}

// NewRewriter creates a rewriter for rule
func NewRewriter(rule Rule) *Rewriter {
	return &Rewriter{
		rule:  rule,
		carry: make([]byte, 0, len(rule.from)),
	}
}

// Feed rewrites p and returns the bytes that are safe to emit. The result
// aliases an internal buffer and is only valid until the next call.
func (r *Rewriter) Feed(p []byte) []byte {
	from, to := r.rule.from, r.rule.to

	r.work = append(r.work[:0], r.carry...)
	r.work = append(r.work, p...)
	data := r.work

	end := 0
	for {
		i := bytes.Index(data[end:], from)
		if i < 0 {
			break
		}
		copy(data[end+i:], to)
		end += i + len(from)
		r.count++
	}

	// hold back the longest suffix that is a proper prefix of the token
	cut := len(data)
	for s := max(end, len(data)-len(from)+1); s < len(data); s++ {
		if bytes.HasPrefix(from, data[s:]) {
			cut = s
			break
		}
	}

	r.carry = append(r.carry[:0], data[cut:]...)
	return data[:cut]
}

// Flush returns the held back bytes. Call it once the source is exhausted.
func (r *Rewriter) Flush() []byte {
	if len(r.carry) == 0 {
		return nil
	}
	out := append([]byte(nil), r.carry...)
	r.carry = r.carry[:0]
	return out
}

// Pending returns the number of held back bytes
func (r *Rewriter) Pending() int {
	return len(r.carry)
}

// Count returns the number of tokens replaced so far
func (r *Rewriter) Count() uint64 {
	return r.count
}
