package util

import (
	"net/url"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// URL-safe nanoid alphabet.
const codeAlphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const DefaultCodeLength = 6

func ValidateURL(raw string) bool {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// CodeGenerator draws random short codes.
type CodeGenerator interface {
	Generate() (string, error)
}

type NanoIDGenerator struct {
	Length int
}

func NewCodeGenerator(length int) *NanoIDGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &NanoIDGenerator{Length: length}
}

func (g *NanoIDGenerator) Generate() (string, error) {
	return gonanoid.Generate(codeAlphabet, g.Length)
}
