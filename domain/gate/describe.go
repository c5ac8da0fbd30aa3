package gate

import "strings"

// SegmentKind distinguishes plain text from linked text.
type SegmentKind string

// Segment kinds.
const (
	SegmentText SegmentKind = "text"
	SegmentLink SegmentKind = "link"
)

// Segment is one fragment of a rendered description.
type Segment struct {
	Kind SegmentKind `json:"kind"`
	Text string      `json:"text"`
	// Target is the in-app route of a link segment.
	Target string `json:"target,omitempty"`
}

// Description is a toolkit-independent display tree.
type Description struct {
	Segments []Segment `json:"segments"`
}

// String flattens the description to plain text.
func (d Description) String() string {
	var b strings.Builder
	for _, s := range d.Segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

func (d *Description) text(s string) {
	if s == "" {
		return
	}
	// Merge adjacent text fragments.
	if n := len(d.Segments); n > 0 && d.Segments[n-1].Kind == SegmentText {
		d.Segments[n-1].Text += s
		return
	}
	d.Segments = append(d.Segments, Segment{Kind: SegmentText, Text: s})
}

func (d *Description) link(s, target string) {
	d.Segments = append(d.Segments, Segment{Kind: SegmentLink, Text: s, Target: target})
}

// ListView is the display data of a list referenced by a list rule.
type ListView struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// DescribeContext supplies the data needed to name rules.
type DescribeContext struct {
	// AuthorHandle is the post author's handle, without the leading @.
	AuthorHandle string
	// Lists resolves list rules to display names.
	Lists []ListView
}

func (c DescribeContext) list(uri string) (ListView, bool) {
	for _, l := range c.Lists {
		if l.URI == uri {
			return l, true
		}
	}
	return ListView{}, false
}

// Short descriptions.
const (
	everybodyShort = "Everybody can reply"
	nobodyShort    = "Replies disabled"
	someShort      = "Some people can reply"
)

// Describe renders the full sentence describing who can reply.
func Describe(rules []AllowRule, dc DescribeContext) Description {
	var d Description
	canonical := Canonicalize(rules)

	switch canonical[0].Type {
	case RuleEverybody:
		d.text("Everybody can reply to this post.")
		return d
	case RuleNobody:
		d.text("Replies to this post are disabled.")
		return d
	}

	d.text("Only ")
	for i, r := range canonical {
		describeRule(&d, r, dc)
		d.text(separator(i, len(canonical)))
	}
	d.text(" can reply.")
	return d
}

func describeRule(d *Description, r AllowRule, dc DescribeContext) {
	switch r.Type {
	case RuleMention:
		d.text("mentioned users")
	case RuleFollowing:
		d.text("users followed by ")
		handle := "@" + dc.AuthorHandle
		d.link(handle, "/profile/"+dc.AuthorHandle)
	case RuleList:
		l, ok := dc.list(r.List)
		if !ok {
			d.text("list members")
			return
		}
		d.link(l.Name, listRoute(l.URI))
		d.text(" members")
	}
}

// separator returns the text placed after item i of n: nothing after the
// last item, " and " between exactly two, ", and " before the last of three
// or more, and ", " otherwise.
func separator(i, n int) string {
	switch {
	case n < 2 || i == n-1:
		return ""
	case i == n-2 && n == 2:
		return " and "
	case i == n-2:
		return ", and "
	default:
		return ", "
	}
}

// listRoute maps at://<did>/app.bsky.graph.list/<rkey> to its in-app route.
func listRoute(uri string) string {
	ref, err := ParseATURI(uri)
	if err != nil {
		return ""
	}
	return "/profile/" + ref.Repo + "/lists/" + ref.RKey
}

// GetDescription returns the description of a rule set as a string. The
// unrestricted and disabled sets use their short forms.
func GetDescription(rules []AllowRule, dc DescribeContext) string {
	canonical := Canonicalize(rules)
	switch canonical[0].Type {
	case RuleEverybody:
		return everybodyShort
	case RuleNobody:
		return nobodyShort
	}
	return Describe(canonical, dc).String()
}

// Summary returns the one-line label shown next to a post.
func Summary(rules []AllowRule) string {
	canonical := Canonicalize(rules)
	switch canonical[0].Type {
	case RuleEverybody:
		return everybodyShort
	case RuleNobody:
		return nobodyShort
	default:
		return someShort
	}
}

// DescribeEmbedding returns the sentence describing a quote policy, or an
// empty string when quoting is open.
func DescribeEmbedding(p EmbeddingPolicy) string {
	if p.Normalize() == EmbeddingDisabled {
		return "No one but the author can quote this post."
	}
	return ""
}

// Icon is the icon variant shown for a rule set.
type Icon string

// Icon variants.
const (
	IconEverybody Icon = "everybody"
	IconNobody    Icon = "nobody"
	IconGroup     Icon = "group"
)

// GetIcon returns the icon variant for a rule set.
func GetIcon(rules []AllowRule) Icon {
	switch Canonicalize(rules)[0].Type {
	case RuleEverybody:
		return IconEverybody
	case RuleNobody:
		return IconNobody
	default:
		return IconGroup
	}
}
