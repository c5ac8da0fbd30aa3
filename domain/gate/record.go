package gate

import (
	"bytes"
	"encoding/json"
)

// Lexicon identifiers of the persisted gate records.
const (
	// ThreadgateCollection is the collection holding reply-policy records.
	ThreadgateCollection = "app.bsky.feed.threadgate"
	// PostgateCollection is the collection holding quote-policy records.
	PostgateCollection = "app.bsky.feed.postgate"
	// PostCollection is the collection holding posts.
	PostCollection = "app.bsky.feed.post"

	mentionRuleType   = ThreadgateCollection + "#mentionRule"
	followingRuleType = ThreadgateCollection + "#followingRule"
	listRuleType      = ThreadgateCollection + "#listRule"

	// DisableRuleType is the embedding rule value meaning no one may quote.
	DisableRuleType = PostgateCollection + "#disableRule"
)

// ThreadgateAllowEntry is one typed entry of a threadgate allow list.
type ThreadgateAllowEntry struct {
	Type string `json:"$type"`
	List string `json:"list,omitempty"`
}

// ThreadgateRecord is the persisted reply-policy record.
//
// A nil Allow means anyone may reply; a non-nil empty Allow means no one may.
type ThreadgateRecord struct {
	Type          string                  `json:"$type"`
	Post          string                  `json:"post"`
	Allow         *[]ThreadgateAllowEntry `json:"allow,omitempty"`
	HiddenReplies []string                `json:"hiddenReplies,omitempty"`
	CreatedAt     string                  `json:"createdAt"`
}

// PostgateEmbeddingRule is one typed entry of a postgate rule list.
type PostgateEmbeddingRule struct {
	Type string `json:"$type"`
}

// PostgateRecord is the persisted quote-policy record.
type PostgateRecord struct {
	Type                  string                  `json:"$type"`
	Post                  string                  `json:"post"`
	EmbeddingRules        []PostgateEmbeddingRule `json:"embeddingRules,omitempty"`
	DetachedEmbeddingURIs []string                `json:"detachedEmbeddingUris,omitempty"`
	CreatedAt             string                  `json:"createdAt"`
}

// isAbsent reports whether raw holds no record at all.
func isAbsent(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseThreadgate decodes a threadgate record. ok is false when the record
// is absent or malformed.
func ParseThreadgate(raw []byte) (rec ThreadgateRecord, ok bool) {
	if isAbsent(raw) {
		return ThreadgateRecord{}, false
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ThreadgateRecord{}, false
	}
	return rec, true
}

// ParsePostgate decodes a postgate record. ok is false when the record is
// absent or malformed.
func ParsePostgate(raw []byte) (rec PostgateRecord, ok bool) {
	if isAbsent(raw) {
		return PostgateRecord{}, false
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return PostgateRecord{}, false
	}
	return rec, true
}

// DecodeAllowRules decodes a raw threadgate record into a canonical rule set.
// Absent or malformed records yield [everybody].
func DecodeAllowRules(raw []byte) []AllowRule {
	rec, ok := ParseThreadgate(raw)
	if !ok {
		return []AllowRule{Everybody()}
	}
	return rec.AllowRules()
}

// AllowRules returns the canonical rule set carried by the record.
func (r ThreadgateRecord) AllowRules() []AllowRule {
	if r.Allow == nil {
		return []AllowRule{Everybody()}
	}
	entries := *r.Allow
	if len(entries) == 0 {
		return []AllowRule{Nobody()}
	}

	rules := make([]AllowRule, 0, len(entries))
	for _, e := range entries {
		switch e.Type {
		case mentionRuleType:
			rules = append(rules, Mention())
		case followingRuleType:
			rules = append(rules, Following())
		case listRuleType:
			if e.List != "" {
				rules = append(rules, ListMember(e.List))
			}
		}
	}
	// The record restricts replies even when none of its rules are known.
	if len(rules) == 0 {
		return []AllowRule{Nobody()}
	}
	return Canonicalize(rules)
}

// EncodeAllowRules builds the threadgate record for a rule set. The set is
// canonicalized first, so [] and [everybody] encode identically.
func EncodeAllowRules(rules []AllowRule, postURI, createdAt string) ThreadgateRecord {
	rec := ThreadgateRecord{
		Type:      ThreadgateCollection,
		Post:      postURI,
		CreatedAt: createdAt,
	}

	canonical := Canonicalize(rules)
	switch canonical[0].Type {
	case RuleEverybody:
		return rec
	case RuleNobody:
		rec.Allow = &[]ThreadgateAllowEntry{}
		return rec
	}

	entries := make([]ThreadgateAllowEntry, 0, len(canonical))
	for _, r := range canonical {
		switch r.Type {
		case RuleMention:
			entries = append(entries, ThreadgateAllowEntry{Type: mentionRuleType})
		case RuleFollowing:
			entries = append(entries, ThreadgateAllowEntry{Type: followingRuleType})
		case RuleList:
			entries = append(entries, ThreadgateAllowEntry{Type: listRuleType, List: r.List})
		}
	}
	rec.Allow = &entries
	return rec
}

// MarshalAllowRules encodes a rule set to its canonical JSON bytes.
func MarshalAllowRules(rules []AllowRule, postURI, createdAt string) ([]byte, error) {
	return json.Marshal(EncodeAllowRules(rules, postURI, createdAt))
}

// DecodeEmbeddingPolicy decodes a raw postgate record. Absent or malformed
// records yield EmbeddingOpen.
func DecodeEmbeddingPolicy(raw []byte) EmbeddingPolicy {
	rec, ok := ParsePostgate(raw)
	if !ok {
		return EmbeddingOpen
	}
	return rec.EmbeddingPolicy()
}

// EmbeddingPolicy returns the quote policy carried by the record.
func (r PostgateRecord) EmbeddingPolicy() EmbeddingPolicy {
	if len(r.EmbeddingRules) == 1 && r.EmbeddingRules[0].Type == DisableRuleType {
		return EmbeddingDisabled
	}
	return EmbeddingOpen
}

// EncodeEmbeddingPolicy builds the postgate record for a quote policy.
func EncodeEmbeddingPolicy(policy EmbeddingPolicy, postURI, createdAt string) PostgateRecord {
	rec := PostgateRecord{
		Type:      PostgateCollection,
		Post:      postURI,
		CreatedAt: createdAt,
	}
	if policy.Normalize() == EmbeddingDisabled {
		rec.EmbeddingRules = []PostgateEmbeddingRule{{Type: DisableRuleType}}
	}
	return rec
}

// MarshalEmbeddingPolicy encodes a quote policy to JSON bytes.
func MarshalEmbeddingPolicy(policy EmbeddingPolicy, postURI, createdAt string) ([]byte, error) {
	return json.Marshal(EncodeEmbeddingPolicy(policy, postURI, createdAt))
}
