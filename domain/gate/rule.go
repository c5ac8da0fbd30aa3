// Package gate provides the domain model for post interaction policies:
// who may reply to a post and whether it may be quoted.
package gate

// RuleType identifies the kind of an allow rule.
type RuleType string

// Rule types.
const (
	// RuleEverybody means the post has no reply restriction.
	RuleEverybody RuleType = "everybody"
	// RuleNobody means replies are disabled.
	RuleNobody RuleType = "nobody"
	// RuleMention allows accounts mentioned in the post.
	RuleMention RuleType = "mention"
	// RuleFollowing allows accounts followed by the post's author.
	RuleFollowing RuleType = "following"
	// RuleList allows members of a referenced list.
	RuleList RuleType = "list"
)

// AllowRule is a single reply permission.
type AllowRule struct {
	// Type is the rule kind.
	Type RuleType `json:"type"`
	// List is the list URI for RuleList; empty otherwise.
	List string `json:"list,omitempty"`
}

// Everybody returns the unrestricted rule.
func Everybody() AllowRule { return AllowRule{Type: RuleEverybody} }

// Nobody returns the replies-disabled rule.
func Nobody() AllowRule { return AllowRule{Type: RuleNobody} }

// Mention returns the mentioned-users rule.
func Mention() AllowRule { return AllowRule{Type: RuleMention} }

// Following returns the followed-by-author rule.
func Following() AllowRule { return AllowRule{Type: RuleFollowing} }

// ListMember returns a rule allowing members of the given list.
func ListMember(listURI string) AllowRule {
	return AllowRule{Type: RuleList, List: listURI}
}

// IsExclusive reports whether the rule must be the only element of a set.
func (r AllowRule) IsExclusive() bool {
	return r.Type == RuleEverybody || r.Type == RuleNobody
}

func (r AllowRule) valid() bool {
	switch r.Type {
	case RuleEverybody, RuleNobody, RuleMention, RuleFollowing:
		return true
	case RuleList:
		return r.List != ""
	default:
		return false
	}
}

// Canonicalize reduces a rule set to its canonical form.
//
// A set containing nobody collapses to [nobody]; otherwise a set containing
// everybody collapses to [everybody]. Granular rules keep their stored order
// with later duplicates dropped. An empty result is [everybody].
func Canonicalize(rules []AllowRule) []AllowRule {
	var hasEverybody bool
	for _, r := range rules {
		switch r.Type {
		case RuleNobody:
			return []AllowRule{Nobody()}
		case RuleEverybody:
			hasEverybody = true
		}
	}
	if hasEverybody {
		return []AllowRule{Everybody()}
	}

	out := make([]AllowRule, 0, len(rules))
	seen := make(map[AllowRule]struct{}, len(rules))
	for _, r := range rules {
		if !r.valid() {
			continue
		}
		if r.Type != RuleList {
			r.List = ""
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 {
		return []AllowRule{Everybody()}
	}
	return out
}

// Equal reports whether two rule sets are equal after canonicalization.
// Order is significant.
func Equal(a, b []AllowRule) bool {
	ca, cb := Canonicalize(a), Canonicalize(b)
	if len(ca) != len(cb) {
		return false
	}
	for i := range ca {
		if ca[i] != cb[i] {
			return false
		}
	}
	return true
}

// IsEverybody reports whether the set places no restriction on replies.
func IsEverybody(rules []AllowRule) bool {
	c := Canonicalize(rules)
	return c[0].Type == RuleEverybody
}

// IsNobody reports whether the set disables replies.
func IsNobody(rules []AllowRule) bool {
	c := Canonicalize(rules)
	return c[0].Type == RuleNobody
}
