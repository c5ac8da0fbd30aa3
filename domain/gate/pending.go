package gate

import "github.com/google/uuid"

// PendingPolicy is an author's unsaved edit of a post's policy. It belongs
// to a single editing session and is not safe for concurrent use.
type PendingPolicy struct {
	id      string
	initial Policy
	allow   []AllowRule
	embed   EmbeddingPolicy
}

// NewPendingPolicy opens an edit starting from the given policy.
func NewPendingPolicy(initial Policy) *PendingPolicy {
	initial = initial.Canonical()
	return &PendingPolicy{
		id:      uuid.NewString(),
		initial: initial,
		allow:   append([]AllowRule(nil), initial.Allow...),
		embed:   initial.Embedding,
	}
}

// ID returns the session identifier of the edit.
func (p *PendingPolicy) ID() string {
	return p.id
}

// Initial returns the policy the edit started from.
func (p *PendingPolicy) Initial() Policy {
	return Policy{
		Allow:     append([]AllowRule(nil), p.initial.Allow...),
		Embedding: p.initial.Embedding,
	}
}

// SetAllow replaces the reply rules.
func (p *PendingPolicy) SetAllow(rules []AllowRule) {
	p.allow = Canonicalize(rules)
}

// ToggleRule flips one rule the way the settings dialog does. Choosing
// everybody or nobody replaces the set. Choosing a granular rule drops
// everybody and nobody; deselecting it removes only that rule.
func (p *PendingPolicy) ToggleRule(rule AllowRule) {
	if rule.IsExclusive() {
		p.allow = []AllowRule{rule}
		return
	}

	next := make([]AllowRule, 0, len(p.allow)+1)
	var removed bool
	for _, r := range p.allow {
		if r.IsExclusive() {
			continue
		}
		if r == rule {
			removed = true
			continue
		}
		next = append(next, r)
	}
	if !removed {
		next = append(next, rule)
	}
	p.allow = Canonicalize(next)
}

// SetEmbedding replaces the quote policy.
func (p *PendingPolicy) SetEmbedding(e EmbeddingPolicy) {
	p.embed = e.Normalize()
}

// Policy returns the canonical working copy.
func (p *PendingPolicy) Policy() Policy {
	return Policy{
		Allow:     Canonicalize(p.allow),
		Embedding: p.embed.Normalize(),
	}
}

// Dirty reports whether the working copy differs from the initial policy.
func (p *PendingPolicy) Dirty() bool {
	return !p.Policy().Equal(p.initial)
}

// Discard resets the working copy and returns the initial policy.
func (p *PendingPolicy) Discard() Policy {
	p.allow = append([]AllowRule(nil), p.initial.Allow...)
	p.embed = p.initial.Embedding
	return p.Initial()
}
