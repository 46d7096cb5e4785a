package artifacts

import (
	"bytes"
	"fmt"
	"strings"

	md "github.com/nao1215/markdown"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// renderSummary emits the human-readable README for one schema group.
// Intentionally timestamp-free so regeneration without metadata changes
// is a no-op diff.
func renderSummary(g *group) ([]byte, error) {
	var buf bytes.Buffer
	builder := md.NewMarkdown(&buf)

	builder.H1(fmt.Sprintf("%s.%s", g.database(), g.schema())).LF().
		PlainText(fmt.Sprintf("Synced metadata for %d tables.", len(g.tables))).LF().LF()

	rows := make([][]string, 0, len(g.tables))
	for _, table := range g.tables {
		rows = append(rows, []string{
			table.ref.Table,
			table.description(),
			orDash(table.owner()),
			orDash(tableSource(table)),
			fmt.Sprintf("%d", len(table.columns)),
		})
	}
	builder.H2("Tables").LF().
		Table(md.TableSet{
			Header: []string{"Table", "Description", "Owner", "Source", "Columns"},
			Rows:   rows,
		}).LF()

	if review := reviewRows(g); len(review) > 0 {
		builder.H2("Needs Review").LF().
			PlainText("Facts below the confidence threshold, held back from the warehouse.").LF().LF().
			Table(md.TableSet{
				Header: []string{"Entity", "Description", "Confidence"},
				Rows:   review,
			}).LF()
	}

	if err := builder.Build(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tableSource(t *tableDoc) string {
	if t.record != nil && t.record.Current != nil {
		return t.record.Current.SourceSystem
	}
	return ""
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func reviewRows(g *group) [][]string {
	var rows [][]string
	appendReview := func(rec *models.EntityRecord) {
		if rec == nil || !rec.NeedsReview || rec.Current == nil {
			return
		}
		rows = append(rows, []string{
			rec.Entity.String(),
			rec.Current.Description,
			fmt.Sprintf("%.2f", rec.Current.Confidence),
		})
	}
	for _, table := range g.tables {
		appendReview(table.record)
		for _, col := range table.columns {
			appendReview(col)
		}
	}
	return rows
}
