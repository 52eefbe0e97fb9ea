package models

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Section keys of a daily Congressional Record issue, in the order a PDF is
// preferred for summarization.
const (
	SectionEntireIssue = "entireIssue"
	SectionHouse       = "houseSection"
	SectionSenate      = "senateSection"
	SectionExtensions  = "extensionsSection"
	SectionDailyDigest = "dailyDigest"
)

// SectionKeys lists every known section key by summarization preference.
var SectionKeys = []string{
	SectionEntireIssue,
	SectionSenate,
	SectionHouse,
	SectionExtensions,
	SectionDailyDigest,
}

// Record is one issue of the daily Congressional Record.
type Record struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	DocID         string              `bson:"doc_id" json:"doc_id"`
	IssueNumber   string              `bson:"issue_number" json:"issue_number"`
	VolumeNumber  int                 `bson:"volume_number" json:"volume_number"`
	Congress      int                 `bson:"congress" json:"congress"`
	SessionNumber int                 `bson:"session_number" json:"session_number"`
	IssueDate     time.Time           `bson:"issue_date" json:"issue_date"`
	UpdateDate    *time.Time          `bson:"update_date,omitempty" json:"update_date,omitempty"`
	URL           string              `bson:"url,omitempty" json:"url,omitempty"` // congress.gov API url
	Sections      map[string][]string `bson:"sections,omitempty" json:"sections,omitempty"`

	Summary              string     `bson:"summary,omitempty" json:"summary,omitempty"`
	SummaryPromptVersion string     `bson:"summary_prompt_version,omitempty" json:"summary_prompt_version,omitempty"`
	SummarySplitWords    int        `bson:"summary_split_words,omitempty" json:"summary_split_words,omitempty"`
	SummaryChunks        int        `bson:"summary_chunks,omitempty" json:"summary_chunks,omitempty"`
	SummarizedAt         *time.Time `bson:"summarized_at,omitempty" json:"summarized_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// RecordID builds the identity of an issue. Issue numbers restart with every
// volume, so the volume is part of the identity whenever it is known.
func RecordID(volume int, issue string) string {
	issue = strings.TrimSpace(issue)
	if volume <= 0 {
		return issue
	}
	return fmt.Sprintf("%d-%s", volume, issue)
}

// HasSummary reports whether the record already carries a usable summary.
func (r *Record) HasSummary() bool {
	return strings.TrimSpace(r.Summary) != ""
}

// PDFLink returns the PDF to summarize: the first link of the most preferred
// section that has one.
func (r *Record) PDFLink() (string, bool) {
	for _, key := range SectionKeys {
		for _, link := range r.Sections[key] {
			if link = strings.TrimSpace(link); link != "" {
				return link, true
			}
		}
	}
	return "", false
}

// RecordFilter narrows a record search. Zero values mean "no constraint".
type RecordFilter struct {
	From       string `form:"from"` // YYYY-MM-DD, inclusive
	To         string `form:"to"`   // YYYY-MM-DD, inclusive
	Section    string `form:"section"`
	Volume     int    `form:"volume" binding:"omitempty,min=1"`
	Session    int    `form:"session" binding:"omitempty,min=1"`
	Congress   int    `form:"congress" binding:"omitempty,min=1"`
	HasSummary *bool  `form:"has_summary"`
	Query      string `form:"q"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset     int    `form:"offset" binding:"omitempty,min=0"`
}

// RecordList is a page of search results.
type RecordList struct {
	Records []Record `json:"records"`
	Total   int64    `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}
