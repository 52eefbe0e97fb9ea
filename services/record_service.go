package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"congress-digest/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultListLimit = 50
	dateLayout       = "2006-01-02"
)

// ErrRecordNotFound is returned when no record has the requested identity.
var ErrRecordNotFound = errors.New("record not found")

// ErrInvalidFilter is returned for malformed search parameters.
var ErrInvalidFilter = errors.New("invalid record filter")

// RecordService stores and searches Congressional Record issues.
type RecordService struct {
	records *mongo.Collection
}

func NewRecordService(records *mongo.Collection) *RecordService {
	return &RecordService{records: records}
}

// BuildQueryFilter turns a RecordFilter into a MongoDB filter.
func BuildQueryFilter(f *models.RecordFilter) (bson.M, error) {
	filter := bson.M{}

	if f.From != "" || f.To != "" {
		dateFilter := bson.M{}
		if f.From != "" {
			from, err := time.Parse(dateLayout, f.From)
			if err != nil {
				return nil, fmt.Errorf("%w: from date %q, expected YYYY-MM-DD", ErrInvalidFilter, f.From)
			}
			dateFilter["$gte"] = from
		}
		if f.To != "" {
			to, err := time.Parse(dateLayout, f.To)
			if err != nil {
				return nil, fmt.Errorf("%w: to date %q, expected YYYY-MM-DD", ErrInvalidFilter, f.To)
			}
			// inclusive of the whole day
			dateFilter["$lt"] = to.AddDate(0, 0, 1)
		}
		filter["issue_date"] = dateFilter
	}

	if f.Section != "" {
		if !slices.Contains(models.SectionKeys, f.Section) {
			return nil, fmt.Errorf("%w: unknown section %q", ErrInvalidFilter, f.Section)
		}
		filter["sections."+f.Section+".0"] = bson.M{"$exists": true}
	}
	if f.Volume > 0 {
		filter["volume_number"] = f.Volume
	}
	if f.Session > 0 {
		filter["session_number"] = f.Session
	}
	if f.Congress > 0 {
		filter["congress"] = f.Congress
	}

	var and []bson.M
	if f.HasSummary != nil {
		if *f.HasSummary {
			filter["summary"] = bson.M{"$exists": true, "$ne": ""}
		} else {
			and = append(and, bson.M{"$or": bson.A{
				bson.M{"summary": bson.M{"$exists": false}},
				bson.M{"summary": ""},
			}})
		}
	}
	if f.Query != "" {
		re := bson.M{"$regex": regexp.QuoteMeta(f.Query), "$options": "i"}
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"doc_id": re},
			bson.M{"issue_number": re},
			bson.M{"summary": re},
		}})
	}
	if len(and) > 0 {
		filter["$and"] = and
	}

	return filter, nil
}

// List returns one page of records matching f, newest issue first.
func (s *RecordService) List(ctx context.Context, f *models.RecordFilter) (*models.RecordList, error) {
	filter, err := BuildQueryFilter(f)
	if err != nil {
		return nil, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "issue_date", Value: -1}, {Key: "doc_id", Value: -1}}).
		SetSkip(int64(f.Offset)).
		SetLimit(int64(limit))

	cursor, err := s.records.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.Record{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	total, err := s.records.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	return &models.RecordList{Records: records, Total: total, Limit: limit, Offset: f.Offset}, nil
}

// Get returns the record with the given identity.
func (s *RecordService) Get(ctx context.Context, docID string) (*models.Record, error) {
	var rec models.Record
	err := s.records.FindOne(ctx, bson.M{"doc_id": docID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch record %s: %w", docID, err)
	}
	return &rec, nil
}

// UpsertIssue stores issue metadata without touching summary fields and
// reports whether the record is new.
func (s *RecordService) UpsertIssue(ctx context.Context, rec *models.Record) (bool, error) {
	now := time.Now().UTC()
	set := bson.M{
		"issue_number":   rec.IssueNumber,
		"volume_number":  rec.VolumeNumber,
		"congress":       rec.Congress,
		"session_number": rec.SessionNumber,
		"issue_date":     rec.IssueDate,
		"url":            rec.URL,
		"updated_at":     now,
	}
	if rec.UpdateDate != nil {
		set["update_date"] = rec.UpdateDate
	}
	if len(rec.Sections) > 0 {
		set["sections"] = rec.Sections
	}

	res, err := s.records.UpdateOne(ctx,
		bson.M{"doc_id": rec.DocID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"created_at": now}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert record %s: %w", rec.DocID, err)
	}
	return res.UpsertedCount > 0, nil
}

// SetSections replaces the PDF links of a record.
func (s *RecordService) SetSections(ctx context.Context, docID string, sections map[string][]string) error {
	_, err := s.records.UpdateOne(ctx,
		bson.M{"doc_id": docID},
		bson.M{"$set": bson.M{"sections": sections, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update sections of %s: %w", docID, err)
	}
	return nil
}

// Unsummarized returns up to limit records that have PDF links but no
// summary yet, oldest issue first.
func (s *RecordService) Unsummarized(ctx context.Context, limit int) ([]models.Record, error) {
	hasSummary := false
	filter, err := BuildQueryFilter(&models.RecordFilter{HasSummary: &hasSummary})
	if err != nil {
		return nil, err
	}
	filter["sections"] = bson.M{"$exists": true, "$ne": bson.M{}}

	opts := options.Find().
		SetSort(bson.D{{Key: "issue_date", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.records.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsummarized records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return records, nil
}
