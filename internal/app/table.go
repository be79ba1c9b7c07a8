package app

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/lvcoi/ytbatch/internal/catalog"
	"github.com/lvcoi/ytbatch/internal/model"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

const timeLayout = "2006-01-02 15:04:05"

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// RenderFailures lists stored failures, one row per key.
func RenderFailures(records []model.FailureRecord) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ItemID,
			r.Config.Format().String(),
			r.Config.QualityLabel(),
			strconv.FormatUint(uint64(r.RetryCount), 10),
			r.Timestamp.Local().Format(timeLayout),
			r.ErrorMessage,
		})
	}
	return renderTable(
		[]string{"Item", "Format", "Quality", "Failures", "Last Attempt", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

// RenderHistory lists rows of the success store.
func RenderHistory(successes []model.Success) string {
	rows := make([][]string, 0, len(successes))
	for _, s := range successes {
		rows = append(rows, []string{
			s.Timestamp.Local().Format(timeLayout),
			s.ItemID,
			s.Config.String(),
			s.FileName,
			fmt.Sprintf("%.2f", s.SizeMB),
		})
	}
	return renderTable(
		[]string{"Downloaded", "Item", "Config", "File", "Size (MB)"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

// RenderCatalog lists catalog entries.
func RenderCatalog(entries []catalog.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.DownloadedAt.Local().Format(timeLayout),
			e.ItemID,
			e.Config.String(),
			e.MediaType,
			e.Author,
			e.FilePath,
			fmt.Sprintf("%.2f", e.SizeMB),
		})
	}
	return renderTable(
		[]string{"Downloaded", "Item", "Config", "Type", "Channel", "Path", "Size (MB)"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

// RenderSummary prints the totals of a run and its failed items.
func RenderSummary(report Report) string {
	totals := renderTable(
		[]string{"Run", "Succeeded", "Failed", "Size (MB)", "Elapsed"},
		[][]string{{
			report.RunID,
			strconv.Itoa(report.Succeeded),
			strconv.Itoa(report.Failed),
			fmt.Sprintf("%.2f", report.SizeMB),
			report.Elapsed.Round(time.Millisecond).String(),
		}},
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	)
	failures := report.Failures()
	if len(failures) == 0 {
		return totals
	}
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, []string{f.ItemID, f.Config.String(), f.ErrorMessage})
	}
	return totals + "\n" + renderTable([]string{"Item", "Config", "Error"}, rows, nil)
}
