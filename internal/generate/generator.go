// Package generate produces natural-language answers from retrieved context
// via a remote generative-language model.
package generate

import (
	"context"
	"errors"
)

// ErrGeneration indicates the remote model failed or returned an empty
// response. Distinguishable from "no relevant content found".
var ErrGeneration = errors.New("answer generation failed")

// Generator produces an answer for a query grounded in the given context
// chunks. Implementations must include the query and every chunk verbatim.
type Generator interface {
	Generate(ctx context.Context, query string, contextChunks []string) (string, error)
}
