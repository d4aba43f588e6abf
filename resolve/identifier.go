package resolve

import "strings"

// IdentifierKind classifies how an application identifier should be
// interpreted. The kind is determined once, at the boundary, so the
// resolution logic never has to re-derive it from the raw string.
type IdentifierKind int

const (
	// KindUnspecified means no identifier was provided at all.
	KindUnspecified IdentifierKind = iota
	// KindURL means the identifier is a direct endpoint URL.
	KindURL
	// KindReference means the identifier is an opaque instance name or id.
	// Names and ids cannot be told apart until the identifier is matched
	// against a directory listing, so they share a kind.
	KindReference
)

// Identifier is an application identifier as passed to Resolve.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// ParseIdentifier classifies a raw identifier string. The given flag
// indicates whether the caller supplied an identifier at all; an empty
// string with given=true is still a (degenerate) reference.
//
// URL detection is a pure prefix match on http:// and https://. A malformed
// string that happens to begin with one of these prefixes is still treated
// as a URL; resolution against it will surface the failure.
func ParseIdentifier(raw string, given bool) Identifier {
	if !given {
		return Identifier{Kind: KindUnspecified}
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return Identifier{Kind: KindURL, Value: raw}
	}
	return Identifier{Kind: KindReference, Value: raw}
}

// Unspecified returns an Identifier carrying no value.
func Unspecified() Identifier {
	return Identifier{Kind: KindUnspecified}
}
