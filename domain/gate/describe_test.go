package gate

import "testing"

func TestGetDescription(t *testing.T) {
	t.Parallel()

	dc := DescribeContext{
		AuthorHandle: "alice.bsky.social",
		Lists:        []ListView{{URI: testList, Name: "Friends"}},
	}

	tests := []struct {
		name  string
		rules []AllowRule
		want  string
	}{
		{"everybody", []AllowRule{Everybody()}, "Everybody can reply"},
		{"empty", nil, "Everybody can reply"},
		{"nobody", []AllowRule{Nobody()}, "Replies disabled"},
		{"single rule", []AllowRule{Mention()}, "Only mentioned users can reply."},
		{
			"two rules",
			[]AllowRule{Mention(), Following()},
			"Only mentioned users and users followed by @alice.bsky.social can reply.",
		},
		{
			"three rules",
			[]AllowRule{Mention(), Following(), ListMember(testList)},
			"Only mentioned users, users followed by @alice.bsky.social, and Friends members can reply.",
		},
		{
			"four rules",
			[]AllowRule{Mention(), Following(), ListMember(testList), ListMember(otherList)},
			"Only mentioned users, users followed by @alice.bsky.social, Friends members, and list members can reply.",
		},
		{"stored order", []AllowRule{Following(), Mention()}, "Only users followed by @alice.bsky.social and mentioned users can reply."},
		{"nobody collapses", []AllowRule{Mention(), Nobody()}, "Replies disabled"},
		{"everybody collapses", []AllowRule{Following(), Everybody()}, "Everybody can reply"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := GetDescription(tt.rules, dc); got != tt.want {
				t.Errorf("GetDescription() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescribe_Segments(t *testing.T) {
	t.Parallel()

	dc := DescribeContext{
		AuthorHandle: "alice.bsky.social",
		Lists:        []ListView{{URI: testList, Name: "Friends"}},
	}
	d := Describe([]AllowRule{Following(), ListMember(testList)}, dc)

	want := []Segment{
		{Kind: SegmentText, Text: "Only users followed by "},
		{Kind: SegmentLink, Text: "@alice.bsky.social", Target: "/profile/alice.bsky.social"},
		{Kind: SegmentText, Text: " and "},
		{Kind: SegmentLink, Text: "Friends", Target: "/profile/did:plc:author/lists/3klist"},
		{Kind: SegmentText, Text: " members can reply."},
	}
	if len(d.Segments) != len(want) {
		t.Fatalf("got %d segments, want %d: %+v", len(d.Segments), len(want), d.Segments)
	}
	for i := range want {
		if d.Segments[i] != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, d.Segments[i], want[i])
		}
	}

	if got := Describe(nil, dc).String(); got != "Everybody can reply to this post." {
		t.Errorf("Describe(everybody) = %q", got)
	}
	if got := Describe([]AllowRule{Nobody()}, dc).String(); got != "Replies to this post are disabled." {
		t.Errorf("Describe(nobody) = %q", got)
	}
}

func TestSeparator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		i, n int
		want string
	}{
		{0, 1, ""},
		{0, 2, " and "},
		{1, 2, ""},
		{0, 3, ", "},
		{1, 3, ", and "},
		{2, 3, ""},
		{2, 4, ", and "},
	}
	for _, tt := range tests {
		if got := separator(tt.i, tt.n); got != tt.want {
			t.Errorf("separator(%d, %d) = %q, want %q", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestSummaryAndIcon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rules   []AllowRule
		summary string
		icon    Icon
	}{
		{"empty", nil, "Everybody can reply", IconEverybody},
		{"everybody", []AllowRule{Everybody()}, "Everybody can reply", IconEverybody},
		{"nobody", []AllowRule{Nobody()}, "Replies disabled", IconNobody},
		{"granular", []AllowRule{Mention()}, "Some people can reply", IconGroup},
		{"corrupt", []AllowRule{Mention(), Nobody()}, "Replies disabled", IconNobody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Summary(tt.rules); got != tt.summary {
				t.Errorf("Summary() = %q, want %q", got, tt.summary)
			}
			if got := GetIcon(tt.rules); got != tt.icon {
				t.Errorf("GetIcon() = %q, want %q", got, tt.icon)
			}
		})
	}
}

func TestDescribeEmbedding(t *testing.T) {
	t.Parallel()

	if got := DescribeEmbedding(EmbeddingDisabled); got != "No one but the author can quote this post." {
		t.Errorf("DescribeEmbedding(disabled) = %q", got)
	}
	if got := DescribeEmbedding(EmbeddingOpen); got != "" {
		t.Errorf("DescribeEmbedding(open) = %q, want empty", got)
	}
}
