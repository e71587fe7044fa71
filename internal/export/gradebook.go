// Package export builds spreadsheet exports from reporting rows.
package export

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/openedu/course-service/internal/repositories"
)

const gradebookSheet = "Gradebook"

// GradebookXLSX pivots (student, question) rows into one worksheet: a row
// per student, a column per question, plus a weighted total. Rows arrive
// ordered by student and content position; column order follows the first
// student's rows.
func GradebookXLSX(courseName string, rows []*repositories.GradebookRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", gradebookSheet)

	columns, byStudent, studentOrder := pivot(rows)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			WrapText:   true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetCellValue(gradebookSheet, "A1", courseName); err != nil {
		return nil, err
	}
	if err := setCell(f, 1, 2, "Student"); err != nil {
		return nil, err
	}
	for i, col := range columns {
		if err := setCell(f, i+2, 2, col.label); err != nil {
			return nil, err
		}
	}
	if err := setCell(f, len(columns)+2, 2, "Total"); err != nil {
		return nil, err
	}
	endHeader, _ := excelize.CoordinatesToCellName(len(columns)+2, 2)
	if err := f.SetCellStyle(gradebookSheet, "A2", endHeader, headerStyle); err != nil {
		return nil, err
	}

	for r, userID := range studentOrder {
		rowNum := r + 3
		scores := byStudent[userID]
		if err := setCell(f, 1, rowNum, scores.fullName); err != nil {
			return nil, err
		}
		var total, totalWeight float64
		for c, col := range columns {
			score, ok := scores.byColumn[col.key]
			if !ok {
				continue
			}
			if err := setCell(f, c+2, rowNum, score); err != nil {
				return nil, err
			}
			total += score * col.weight
			totalWeight += col.weight
		}
		if totalWeight > 0 {
			if err := setCell(f, len(columns)+2, rowNum, total/totalWeight); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetColWidth(gradebookSheet, "A", "A", 28); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type gradebookColumn struct {
	key    string
	label  string
	weight float64
	order  int
}

type studentScores struct {
	fullName string
	byColumn map[string]float64
}

func pivot(rows []*repositories.GradebookRow) ([]gradebookColumn, map[string]*studentScores, []string) {
	columnSet := map[string]gradebookColumn{}
	byStudent := map[string]*studentScores{}
	var studentOrder []string

	for i, row := range rows {
		key := fmt.Sprintf("%s|%s|%d", row.UnitName, row.TopicName, row.ProblemNumber)
		if _, ok := columnSet[key]; !ok {
			columnSet[key] = gradebookColumn{
				key:    key,
				label:  fmt.Sprintf("%s\n%s #%d", row.UnitName, row.TopicName, row.ProblemNumber),
				weight: row.Weight,
				order:  i,
			}
		}

		scores, ok := byStudent[row.UserID]
		if !ok {
			scores = &studentScores{
				fullName: row.FullName,
				byColumn: map[string]float64{},
			}
			byStudent[row.UserID] = scores
			studentOrder = append(studentOrder, row.UserID)
		}
		scores.byColumn[key] = row.EffectiveScore
	}

	columns := make([]gradebookColumn, 0, len(columnSet))
	for _, col := range columnSet {
		columns = append(columns, col)
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].order < columns[j].order })
	return columns, byStudent, studentOrder
}

func setCell(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(gradebookSheet, cell, value)
}
