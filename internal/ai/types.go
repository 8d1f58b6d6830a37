package ai

import (
	"context"
	"errors"
)

// Kind tells an extracted offer apart from a conversational reply.
type Kind string

const (
	KindOffer Kind = "OFFER"
	KindChat  Kind = "CHAT"
)

// Source records which extractor produced a result.
type Source string

const (
	SourceModel  Source = "model"
	SourceParser Source = "parser"
)

var (
	// ErrDisabled is returned by extractors that cannot run.
	ErrDisabled = errors.New("price extractor disabled")
	// ErrUnparseable means no numeric price could be found in the text.
	ErrUnparseable = errors.New("unparseable offer")
)

// Extraction is the structured result of reading a shopper message.
type Extraction struct {
	Kind    Kind    `json:"type"`
	Price   float64 `json:"price,omitempty"`
	Message string  `json:"message,omitempty"`
	Source  Source  `json:"-"`
}

// ExtractionContext is the negotiation context handed to the model. MinAcceptedPrice
// is secret and must never be echoed to the shopper.
type ExtractionContext struct {
	ProductTitle     string
	OriginalPrice    float64
	MinAcceptedPrice float64
	Locale           string
}

// Extractor turns free-form text into an offer or a chat reply.
type Extractor interface {
	Enabled() bool
	Extract(ctx context.Context, text string, input ExtractionContext) (Extraction, error)
}
