package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/deveshk/invoicescan/internal/extract"
	"github.com/deveshk/invoicescan/internal/invoice"
	"github.com/deveshk/invoicescan/internal/store"
)

// PostBatchFunc runs after every batch, successful or not. Deployments
// hook auto-summarize or export here.
type PostBatchFunc func(ctx context.Context, ownerID string, result *BatchResult)

// Pipeline wires extraction, parsing, normalization and storage into
// the document flow. One Pipeline serves all owners.
type Pipeline struct {
	extractor extract.Service
	store     store.Store
	opts      Options
	norm      *Normalizer
	log       zerolog.Logger

	// PostBatch is invoked at the end of ProcessBatch when non-nil.
	PostBatch PostBatchFunc
}

// New creates a pipeline over the given extractor and store.
func New(extractor extract.Service, st store.Store, opts Options, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		store:     st,
		opts:      opts,
		norm:      NewNormalizer(opts),
		log:       log,
	}
}

// ProcessDocument runs one document end to end: extract, parse,
// normalize, upsert. Failures are typed so callers can classify them;
// an extraction failure is wrapped as transient, everything downstream
// keeps its own type.
func (p *Pipeline) ProcessDocument(ctx context.Context, ownerID string, doc extract.Document) (*DocumentResult, error) {
	log := p.log.With().Str("owner_id", ownerID).Str("filename", doc.Filename).Logger()

	raw, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, &TransientExtractionError{Err: err}
	}

	payload, err := ParsePayload(raw)
	if err != nil {
		return nil, err
	}

	records, err := p.norm.Normalize(ownerID, payload)
	if err != nil {
		return nil, err
	}

	result := &DocumentResult{Filename: doc.Filename, Records: len(records)}
	for _, rec := range records {
		created, err := p.store.Upsert(ctx, rec)
		if err != nil {
			return nil, err
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	log.Info().
		Int("records", result.Records).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Msg("document processed")

	return result, nil
}

// ProcessBatch runs every document independently: one bad image never
// fails its siblings. Each document lands in exactly one of the result
// lists, and the post-batch hook fires once at the end.
func (p *Pipeline) ProcessBatch(ctx context.Context, ownerID string, docs []extract.Document) *BatchResult {
	result := &BatchResult{
		Processed: make([]DocumentResult, 0, len(docs)),
		Failed:    make([]DocumentFailure, 0),
	}

	for _, doc := range docs {
		res, err := p.ProcessDocument(ctx, ownerID, doc)
		if err != nil {
			kind := ClassifyFailure(err)
			p.log.Warn().
				Str("owner_id", ownerID).
				Str("filename", doc.Filename).
				Str("kind", string(kind)).
				Err(err).
				Msg("document failed")
			result.Failed = append(result.Failed, DocumentFailure{
				Filename: doc.Filename,
				Kind:     kind,
				Message:  err.Error(),
			})
			continue
		}
		result.Processed = append(result.Processed, *res)
	}

	if p.PostBatch != nil {
		p.PostBatch(ctx, ownerID, result)
	}

	return result
}

// Records returns all stored records for the owner.
func (p *Pipeline) Records(ctx context.Context, ownerID string) ([]*invoice.Record, error) {
	return p.store.List(ctx, ownerID)
}

// Delete removes a stored record by its identity key. Returns false
// when no record matched.
func (p *Pipeline) Delete(ctx context.Context, key invoice.Key) (bool, error) {
	return p.store.Delete(ctx, key)
}

// Summarize rolls the owner's stored records up by month. Returns nil
// when the owner has no records.
func (p *Pipeline) Summarize(ctx context.Context, ownerID string) (*Summary, error) {
	records, err := p.store.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return Aggregate(records, p.opts.GroupByVendor), nil
}
