// Package printer renders SELECT results as column-aligned text
// tables for the REPL. It is presentation only and not part of the
// query engine core.
package printer

import (
	"fmt"
	"io"
	"strings"
)

func stringWidth(value string) int {
	max := 0
	for _, line := range strings.Split(value, "\n") {
		if n := len([]rune(line)); n > max {
			max = n
		}
	}
	return max
}

// PrettySelect writes rows as a bordered table, one table per page of
// pageLength rows, with column widths computed separately for each
// page. It returns the number of rows written.
func PrettySelect(out io.Writer, columnNames []string, rows [][]string, pageLength int) (int, error) {
	const padding = 1

	rowCount := 0
	for start := 0; start < len(rows); start += pageLength {
		end := start + pageLength
		if end > len(rows) {
			end = len(rows)
		}
		page := rows[start:end]
		rowCount += len(page)

		widths := make([]int, len(columnNames))
		for i, name := range columnNames {
			widths[i] = stringWidth(name)
			for _, row := range page {
				if w := stringWidth(row[i]); w > widths[i] {
					widths[i] = w
				}
			}
		}

		tableWidth, err := printHeaders(out, widths, padding, columnNames)
		if err != nil {
			return rowCount, err
		}
		for _, row := range page {
			if err := printRow(out, widths, padding, row); err != nil {
				return rowCount, err
			}
		}
		if err := printSeparator(out, tableWidth); err != nil {
			return rowCount, err
		}
		if _, err := fmt.Fprintln(out); err != nil {
			return rowCount, err
		}
	}

	if rowCount == 0 {
		// No rows; print a headers-only table.
		widths := make([]int, len(columnNames))
		for i, name := range columnNames {
			widths[i] = stringWidth(name)
		}
		if _, err := printHeaders(out, widths, padding, columnNames); err != nil {
			return 0, err
		}
		if _, err := fmt.Fprintln(out); err != nil {
			return 0, err
		}
	}
	return rowCount, nil
}

func printHeaders(out io.Writer, widths []int, padding int, columnNames []string) (int, error) {
	tableWidth := 1
	for _, w := range widths {
		tableWidth += w + 2*padding + 1
	}
	if err := printSeparator(out, tableWidth); err != nil {
		return 0, err
	}
	if err := printRow(out, widths, padding, columnNames); err != nil {
		return 0, err
	}
	if err := printSeparator(out, tableWidth); err != nil {
		return 0, err
	}
	return tableWidth, nil
}

func printSeparator(out io.Writer, tableWidth int) error {
	_, err := fmt.Fprintln(out, strings.Repeat("-", tableWidth))
	return err
}

func printRow(out io.Writer, widths []int, padding int, columns []string) error {
	var sb strings.Builder
	for i, column := range columns {
		sb.WriteString("|")
		sb.WriteString(strings.Repeat(" ", padding))
		sb.WriteString(column)
		sb.WriteString(strings.Repeat(" ", widths[i]-len([]rune(column))+padding))
	}
	sb.WriteString("|")
	_, err := fmt.Fprintln(out, sb.String())
	return err
}
