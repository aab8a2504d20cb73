package extract

import "context"

// Document is one input image or PDF to extract from.
type Document struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Service turns a document into the model's raw text response. The
// response is parsed and validated downstream; implementations only
// report transport-level failures.
type Service interface {
	Extract(ctx context.Context, doc Document) (string, error)
}
