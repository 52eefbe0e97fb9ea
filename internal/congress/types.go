package congress

import (
	"strings"
	"time"

	"congress-digest/models"
)

// Issue is one entry of the daily Congressional Record listing.
type Issue struct {
	Congress      int       `json:"congress"`
	IssueDate     time.Time `json:"issueDate"`
	IssueNumber   string    `json:"issueNumber"`
	SessionNumber int       `json:"sessionNumber"`
	UpdateDate    time.Time `json:"updateDate"`
	URL           string    `json:"url"`
	VolumeNumber  int       `json:"volumeNumber"`
}

type pagination struct {
	Count int    `json:"count"`
	Next  string `json:"next"`
}

type listResponse struct {
	Issues     []Issue    `json:"dailyCongressionalRecord"`
	Pagination pagination `json:"pagination"`
}

// Page is one page of the issue listing.
type Page struct {
	Issues []Issue
	Total  int
	More   bool
}

type link struct {
	Part string `json:"part,omitempty"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

type section struct {
	Name      string `json:"name"`
	StartPage string `json:"startPage"`
	EndPage   string `json:"endPage"`
	Text      []link `json:"text"`
}

// IssueDetail is an issue with its per-section documents.
type IssueDetail struct {
	Issue
	FullIssue struct {
		EntireIssue []link    `json:"entireIssue"`
		Sections    []section `json:"sections"`
	} `json:"fullIssue"`
}

type detailResponse struct {
	Issue IssueDetail `json:"issue"`
}

var sectionKeys = map[string]string{
	"senate":                models.SectionSenate,
	"house":                 models.SectionHouse,
	"extensions of remarks": models.SectionExtensions,
	"daily digest":          models.SectionDailyDigest,
}

// PDFLinks groups the issue's PDF urls by section key.
func (d *IssueDetail) PDFLinks() map[string][]string {
	out := make(map[string][]string)
	add := func(key string, links []link) {
		for _, l := range links {
			if strings.EqualFold(l.Type, "PDF") && l.URL != "" {
				out[key] = append(out[key], l.URL)
			}
		}
	}

	add(models.SectionEntireIssue, d.FullIssue.EntireIssue)
	for _, s := range d.FullIssue.Sections {
		key, ok := sectionKeys[strings.ToLower(strings.TrimSpace(s.Name))]
		if !ok {
			continue
		}
		add(key, s.Text)
	}
	return out
}

// Record converts an issue to the stored record shape. Summary fields are
// left empty; they are owned by the summarizer.
func (i Issue) Record() models.Record {
	rec := models.Record{
		DocID:         models.RecordID(i.VolumeNumber, i.IssueNumber),
		IssueNumber:   i.IssueNumber,
		VolumeNumber:  i.VolumeNumber,
		Congress:      i.Congress,
		SessionNumber: i.SessionNumber,
		IssueDate:     i.IssueDate.UTC(),
		URL:           i.URL,
	}
	if !i.UpdateDate.IsZero() {
		u := i.UpdateDate.UTC()
		rec.UpdateDate = &u
	}
	return rec
}
