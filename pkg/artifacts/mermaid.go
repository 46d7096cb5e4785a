package artifacts

import (
	"fmt"
	"sort"
	"strings"
)

// renderMermaid emits a mermaid erDiagram for one schema group. Tables
// without extracted columns still appear so the diagram shows every known
// entity.
func renderMermaid(g *group) []byte {
	var b strings.Builder
	b.WriteString("erDiagram\n")

	for _, table := range g.tables {
		fmt.Fprintf(&b, "    %s {\n", table.ref.Table)
		for _, col := range table.columns {
			dataType := "unknown"
			var markers []string
			if col.Current != nil {
				if col.Current.DataType != "" {
					dataType = strings.ToLower(col.Current.DataType)
				}
				if col.Current.PrimaryKey {
					markers = append(markers, "PK")
				}
				if col.Current.ForeignKey != "" {
					markers = append(markers, "FK")
				}
			}
			fmt.Fprintf(&b, "        %s %s", dataType, col.Entity.Column)
			if len(markers) > 0 {
				fmt.Fprintf(&b, " %s", strings.Join(markers, ","))
			}
			b.WriteString("\n")
		}
		b.WriteString("    }\n")
	}

	for _, rel := range collectRelationships(g) {
		fmt.Fprintf(&b, "    %s ||--o{ %s : references\n", rel.target, rel.source)
	}

	return []byte(b.String())
}

type relationship struct {
	source string // referencing table
	target string // referenced table
}

// collectRelationships resolves foreign-key hints to tables within the
// group. References to tables outside the group are dropped rather than
// rendered dangling.
func collectRelationships(g *group) []relationship {
	known := make(map[string]bool, len(g.tables))
	for _, table := range g.tables {
		known[table.ref.Table] = true
	}

	seen := make(map[relationship]bool)
	var rels []relationship
	for _, table := range g.tables {
		for _, col := range table.columns {
			if col.Current == nil || col.Current.ForeignKey == "" {
				continue
			}
			target := referencedTable(col.Current.ForeignKey)
			if !known[target] || target == table.ref.Table {
				continue
			}
			rel := relationship{source: table.ref.Table, target: target}
			if !seen[rel] {
				seen[rel] = true
				rels = append(rels, rel)
			}
		}
	}

	sort.Slice(rels, func(i, j int) bool {
		if rels[i].target != rels[j].target {
			return rels[i].target < rels[j].target
		}
		return rels[i].source < rels[j].source
	})
	return rels
}

// referencedTable extracts the table name from a foreign-key hint, which
// may be bare ("CUSTOMERS") or qualified ("CUSTOMERS.CUSTOMER_ID").
func referencedTable(hint string) string {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(hint)), ".")
	// A qualified hint ends in a column name; everything longer than one
	// segment carries the table in the second-to-last position.
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return parts[0]
}
