package ai

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

var offerPattern = regexp.MustCompile(`(\d+)(?:[.,](\d{1,2}))?`)

// Parser is the dependency-free extractor: it reads the first number in the text.
type Parser struct{}

// NewParser returns the deterministic extractor.
func NewParser() *Parser {
	return &Parser{}
}

// Enabled is always true; the parser needs no configuration.
func (p *Parser) Enabled() bool {
	return true
}

// Extract ignores the negotiation context and parses the raw text.
func (p *Parser) Extract(_ context.Context, text string, _ ExtractionContext) (Extraction, error) {
	price, err := ParseOffer(text)
	if err != nil {
		return Extraction{Source: SourceParser}, err
	}
	return Extraction{Kind: KindOffer, Price: price, Source: SourceParser}, nil
}

// ParseOffer finds the first run of digits, optionally followed by a comma or period
// and up to two fraction digits, and returns it as an amount.
func ParseOffer(text string) (float64, error) {
	match := offerPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, ErrUnparseable
	}
	number := match[1]
	if match[2] != "" {
		number += "." + match[2]
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(number), 64)
	if err != nil {
		return 0, ErrUnparseable
	}
	return value, nil
}
