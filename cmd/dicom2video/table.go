package main

import (
	"path/filepath"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ivlev/dicom2video/internal/engine"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderSummary(outcomes []engine.Outcome) string {
	headers := []string{"Study", "State", "Frames", "Stored", "Dropped", "Video", "Error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft}

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		videoName := ""
		if o.Video != "" {
			videoName = filepath.Base(o.Video)
		}
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		rows = append(rows, []string{
			o.Study.Name,
			o.State.String(),
			strconv.Itoa(o.Frames),
			strconv.Itoa(o.Stored),
			strconv.Itoa(len(o.FailedFrames) + o.Dropped),
			videoName,
			errText,
		})
	}
	return renderTable(headers, rows, aligns)
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
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
