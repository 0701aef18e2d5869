package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"postpilot/internal/core"
)

const (
	postsSheet   = "Calendar"
	summarySheet = "Summary"
)

var calendarHeader = []any{"Date", "Time", "Weekday", "Platform", "Category", "Status", "Content", "Image", "Published At", "Remote ID"}

// WriteCalendarXLSX renders posts as a workbook with one row per post in
// schedule order, plus a per-platform and per-status summary sheet. Times
// are shown in loc.
func WriteCalendarXLSX(w io.Writer, posts []*core.ScheduledPost, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", postsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writePosts(f, posts, loc); err != nil {
		return err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := writeSummary(f, posts); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writePosts(f *excelize.File, posts []*core.ScheduledPost, loc *time.Location) error {
	sorted := make([]*core.ScheduledPost, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ScheduledFor.Before(sorted[j].ScheduledFor)
	})

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	wrap, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("content style: %w", err)
	}

	if err := f.SetSheetRow(postsSheet, "A1", &calendarHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(postsSheet, "A1", "J1", header); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, p := range sorted {
		at := p.ScheduledFor.In(loc)
		row := []any{
			at.Format("2006-01-02"),
			at.Format("15:04"),
			at.Weekday().String(),
			string(p.Platform),
			string(p.Category),
			string(p.Status),
			p.Content,
			deref(p.ImageURL),
			"",
			deref(p.RemoteID),
		}
		if p.PublishedAt != nil {
			row[8] = p.PublishedAt.In(loc).Format("2006-01-02 15:04")
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(postsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if len(sorted) > 0 {
		last := fmt.Sprintf("G%d", len(sorted)+1)
		if err := f.SetCellStyle(postsSheet, "G2", last, wrap); err != nil {
			return fmt.Errorf("style content: %w", err)
		}
	}

	widths := map[string]float64{"A": 12, "B": 8, "C": 11, "D": 11, "E": 15, "F": 11, "G": 80, "H": 30, "I": 17, "J": 20}
	for col, width := range widths {
		if err := f.SetColWidth(postsSheet, col, col, width); err != nil {
			return fmt.Errorf("set width %s: %w", col, err)
		}
	}
	return f.SetPanes(postsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeSummary(f *excelize.File, posts []*core.ScheduledPost) error {
	byPlatform := map[string]int{}
	byStatus := map[string]int{}
	byCategory := map[string]int{}
	for _, p := range posts {
		byPlatform[string(p.Platform)]++
		byStatus[string(p.Status)]++
		byCategory[string(p.Category)]++
	}

	row := 1
	put := func(values ...any) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		row++
		return f.SetSheetRow(summarySheet, cell, &values)
	}
	if err := put("Total posts", len(posts)); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	for _, section := range []struct {
		title  string
		counts map[string]int
	}{
		{"Platform", byPlatform},
		{"Status", byStatus},
		{"Category", byCategory},
	} {
		row++
		if err := put(section.title, "Posts"); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
		keys := make([]string, 0, len(section.counts))
		for k := range section.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := put(k, section.counts[k]); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
