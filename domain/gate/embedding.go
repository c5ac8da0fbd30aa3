package gate

// EmbeddingPolicy governs whether others may quote a post.
type EmbeddingPolicy string

// Embedding policies.
const (
	// EmbeddingOpen allows anyone to quote the post.
	EmbeddingOpen EmbeddingPolicy = "open"
	// EmbeddingDisabled allows no one but the author to quote the post.
	EmbeddingDisabled EmbeddingPolicy = "disabled"
)

// Normalize maps unknown values to EmbeddingOpen.
func (p EmbeddingPolicy) Normalize() EmbeddingPolicy {
	if p == EmbeddingDisabled {
		return EmbeddingDisabled
	}
	return EmbeddingOpen
}

// Policy is the complete interaction policy of a post.
type Policy struct {
	// Allow is the reply policy.
	Allow []AllowRule `json:"allow"`
	// Embedding is the quote policy.
	Embedding EmbeddingPolicy `json:"embedding"`
}

// DefaultPolicy returns the policy of a post without gate records.
func DefaultPolicy() Policy {
	return Policy{
		Allow:     []AllowRule{Everybody()},
		Embedding: EmbeddingOpen,
	}
}

// Canonical returns the policy with both halves normalized.
func (p Policy) Canonical() Policy {
	return Policy{
		Allow:     Canonicalize(p.Allow),
		Embedding: p.Embedding.Normalize(),
	}
}

// Equal reports whether two policies are equal after canonicalization.
func (p Policy) Equal(other Policy) bool {
	return Equal(p.Allow, other.Allow) && p.Embedding.Normalize() == other.Embedding.Normalize()
}
