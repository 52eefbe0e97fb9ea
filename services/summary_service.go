package services

import (
	"context"
	"errors"
	"fmt"

	"congress-digest/internal/summarizer"
	"congress-digest/models"
)

// ErrNoPDF is returned for records that have no PDF link to summarize.
var ErrNoPDF = errors.New("record has no PDF to summarize")

// RecordLookup finds stored records.
type RecordLookup interface {
	Get(ctx context.Context, docID string) (*models.Record, error)
}

// DocumentSummarizer is the summarization pipeline.
type DocumentSummarizer interface {
	SummarizeDocument(ctx context.Context, req summarizer.Request, emitter summarizer.Emitter) (*summarizer.Result, error)
}

// SummaryService summarizes stored records and ad-hoc documents.
type SummaryService struct {
	records RecordLookup
	pipe    DocumentSummarizer
}

func NewSummaryService(records RecordLookup, pipe DocumentSummarizer) *SummaryService {
	return &SummaryService{records: records, pipe: pipe}
}

// SummarizeRequest summarizes the document named in an API request.
func (s *SummaryService) SummarizeRequest(ctx context.Context, req *models.SummarizeRequest, emitter summarizer.Emitter) (*summarizer.Result, error) {
	return s.pipe.SummarizeDocument(ctx, summarizer.Request{
		DocID:    models.RecordID(req.VolumeNumber, string(req.DocumentIdentity)),
		Locator:  req.DocumentLocator,
		MaxWords: req.MaxWords,
	}, emitter)
}

// RecordRequest resolves a stored record to a pipeline request.
func (s *SummaryService) RecordRequest(ctx context.Context, docID string, maxWords int) (summarizer.Request, error) {
	rec, err := s.records.Get(ctx, docID)
	if err != nil {
		return summarizer.Request{}, err
	}
	link, ok := rec.PDFLink()
	if !ok {
		return summarizer.Request{}, fmt.Errorf("%w: %s", ErrNoPDF, docID)
	}
	return summarizer.Request{DocID: rec.DocID, Locator: link, MaxWords: maxWords}, nil
}

// Summarize runs a request already resolved by RecordRequest.
func (s *SummaryService) Summarize(ctx context.Context, req summarizer.Request, emitter summarizer.Emitter) (*summarizer.Result, error) {
	return s.pipe.SummarizeDocument(ctx, req, emitter)
}

// SummarizeRecord summarizes a stored record from its preferred PDF.
func (s *SummaryService) SummarizeRecord(ctx context.Context, docID string, maxWords int, emitter summarizer.Emitter) (*summarizer.Result, error) {
	req, err := s.RecordRequest(ctx, docID, maxWords)
	if err != nil {
		return nil, err
	}
	return s.Summarize(ctx, req, emitter)
}
