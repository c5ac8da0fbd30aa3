package gate

import (
	"fmt"
	"strings"
)

const atScheme = "at://"

// RecordRef addresses one record in a repository.
type RecordRef struct {
	// Repo is the DID (or handle) owning the record.
	Repo string
	// Collection is the record's lexicon NSID.
	Collection string
	// RKey is the record key.
	RKey string
}

// String returns the at:// URI of the record.
func (r RecordRef) String() string {
	return atScheme + r.Repo + "/" + r.Collection + "/" + r.RKey
}

// ParseATURI parses at://<repo>/<collection>/<rkey>.
func ParseATURI(uri string) (RecordRef, error) {
	rest, ok := strings.CutPrefix(uri, atScheme)
	if !ok {
		return RecordRef{}, fmt.Errorf("%w: %q", ErrInvalidATURI, uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return RecordRef{}, fmt.Errorf("%w: %q", ErrInvalidATURI, uri)
	}
	return RecordRef{Repo: parts[0], Collection: parts[1], RKey: parts[2]}, nil
}

// PostRef identifies a post. Its gate records share its repo and record key.
type PostRef struct {
	RecordRef
}

// ParsePostURI parses the at:// URI of a post.
func ParsePostURI(uri string) (PostRef, error) {
	ref, err := ParseATURI(uri)
	if err != nil {
		return PostRef{}, fmt.Errorf("%w: %w", ErrInvalidPostURI, err)
	}
	if ref.Collection != PostCollection {
		return PostRef{}, fmt.Errorf("%w: collection %q is not %s", ErrInvalidPostURI, ref.Collection, PostCollection)
	}
	return PostRef{RecordRef: ref}, nil
}

// URI returns the post's at:// URI.
func (p PostRef) URI() string {
	return p.String()
}

// Threadgate addresses the post's reply-policy record.
func (p PostRef) Threadgate() RecordRef {
	return RecordRef{Repo: p.Repo, Collection: ThreadgateCollection, RKey: p.RKey}
}

// Postgate addresses the post's quote-policy record.
func (p PostRef) Postgate() RecordRef {
	return RecordRef{Repo: p.Repo, Collection: PostgateCollection, RKey: p.RKey}
}
