package services

import (
	"bytes"
	"testing"
	"time"

	"congress-digest/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestRecordsToExcel(t *testing.T) {
	records := []models.Record{
		{
			DocID:        "170-95",
			IssueNumber:  "95",
			VolumeNumber: 170,
			Congress:     118,
			IssueDate:    time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
			Sections: map[string][]string{
				models.SectionSenate: {"https://www.congress.gov/senate.pdf"},
			},
			Summary: "**Senate** convened.",
		},
		{DocID: "170-94", IssueNumber: "94", VolumeNumber: 170},
	}

	data, err := RecordsToExcel(records, ExportInfo{TotalRecords: 2, Summarized: 1})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Records")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, recordHeaders, rows[0])
	assert.Equal(t, "170-95", rows[1][0])
	assert.Equal(t, "senateSection", rows[1][6])
	assert.Equal(t, "https://www.congress.gov/senate.pdf", rows[1][7])
	assert.Equal(t, "**Senate** convened.", rows[1][10])

	info, err := f.GetRows("Export Info")
	require.NoError(t, err)
	assert.Equal(t, []string{"Total Records", "2"}, info[1])
}
