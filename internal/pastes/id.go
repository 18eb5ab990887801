package pastes

import gonanoid "github.com/matoous/go-nanoid/v2"

// pasteIDLength is the length of generated short identifiers.
const pasteIDLength = 8

// pasteIDAlphabet excludes lookalike characters (O/0, I/l/1) so identifiers
// survive being read aloud or retyped.
const pasteIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

// IDProvider issues new paste identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type nanoidProvider struct{}

// NewNanoIDProvider constructs an IDProvider that issues 8-character ids from
// the restricted alphabet.
func NewNanoIDProvider() IDProvider {
	return &nanoidProvider{}
}

func (p *nanoidProvider) NewID() (string, error) {
	return gonanoid.Generate(pasteIDAlphabet, pasteIDLength)
}
