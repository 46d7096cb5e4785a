// Package artifacts generates documentation artifacts from entity record
// snapshots: dbt staging models, source and schema definitions, an ER
// diagram, and a human-readable summary per database.schema grouping.
//
// Generation is pure and deterministic: the same snapshot always produces
// byte-identical artifacts, so output diffs reflect metadata changes only.
package artifacts

import (
	"fmt"
	"sort"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// placeholderDescription stands in for entities that are known but have
// no accepted fact yet.
const placeholderDescription = "No description yet."

// Generator renders artifacts from a record snapshot.
type Generator interface {
	// Generate produces the full artifact set for every group present in
	// the snapshot. Output order is deterministic.
	Generate(records []*models.EntityRecord) ([]models.Artifact, error)
}

type generator struct {
	materialization string
}

// New creates a generator. The materialization is stamped into each dbt
// model's config block.
func New(materialization string) Generator {
	if materialization == "" {
		materialization = "table"
	}
	return &generator{materialization: materialization}
}

var _ Generator = (*generator)(nil)

// tableDoc is one table with its column records, assembled from the flat
// per-entity record list.
type tableDoc struct {
	ref     models.EntityRef
	record  *models.EntityRecord   // nil when only columns are known
	columns []*models.EntityRecord // sorted by column name
}

// description returns the table's accepted description or the placeholder.
func (t *tableDoc) description() string {
	if t.record != nil && t.record.Current != nil {
		return t.record.Current.Description
	}
	return placeholderDescription
}

func (t *tableDoc) owner() string {
	if t.record != nil && t.record.Current != nil {
		return t.record.Current.Owner
	}
	return ""
}

// columnDescription returns a column record's description or the placeholder.
func columnDescription(rec *models.EntityRecord) string {
	if rec.Current != nil {
		return rec.Current.Description
	}
	return placeholderDescription
}

// group is every table under one database.schema key.
type group struct {
	key    string
	tables []*tableDoc
}

func (g *group) database() string { return g.tables[0].ref.Database }
func (g *group) schema() string   { return g.tables[0].ref.Schema }

// buildGroups folds the flat record list into sorted per-schema groups.
func buildGroups(records []*models.EntityRecord) []*group {
	byTable := make(map[string]*tableDoc)
	for _, rec := range records {
		tableRef := rec.Entity.TableRef()
		doc, ok := byTable[tableRef.String()]
		if !ok {
			doc = &tableDoc{ref: tableRef}
			byTable[tableRef.String()] = doc
		}
		if rec.Entity.IsColumn() {
			doc.columns = append(doc.columns, rec)
		} else {
			doc.record = rec
		}
	}

	byGroup := make(map[string]*group)
	for _, doc := range byTable {
		sort.Slice(doc.columns, func(i, j int) bool {
			return doc.columns[i].Entity.Column < doc.columns[j].Entity.Column
		})
		key := doc.ref.GroupKey()
		g, ok := byGroup[key]
		if !ok {
			g = &group{key: key}
			byGroup[key] = g
		}
		g.tables = append(g.tables, doc)
	}

	groups := make([]*group, 0, len(byGroup))
	for _, g := range byGroup {
		sort.Slice(g.tables, func(i, j int) bool {
			return g.tables[i].ref.Table < g.tables[j].ref.Table
		})
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].key < groups[j].key })
	return groups
}

func (g *generator) Generate(records []*models.EntityRecord) ([]models.Artifact, error) {
	var out []models.Artifact

	for _, grp := range buildGroups(records) {
		sources, err := renderSourcesYAML(grp)
		if err != nil {
			return nil, fmt.Errorf("failed to render sources for %s: %w", grp.key, err)
		}
		out = append(out, models.Artifact{GroupKey: grp.key, Name: "sources.yml", Content: sources})

		schema, err := renderSchemaYAML(grp)
		if err != nil {
			return nil, fmt.Errorf("failed to render schema for %s: %w", grp.key, err)
		}
		out = append(out, models.Artifact{GroupKey: grp.key, Name: "schema.yml", Content: schema})

		for _, table := range grp.tables {
			out = append(out, models.Artifact{
				GroupKey: grp.key,
				Name:     modelFileName(table.ref),
				Content:  renderModelSQL(grp, table, g.materialization),
			})
		}

		out = append(out, models.Artifact{
			GroupKey: grp.key,
			Name:     "er_diagram.mmd",
			Content:  renderMermaid(grp),
		})

		summary, err := renderSummary(grp)
		if err != nil {
			return nil, fmt.Errorf("failed to render summary for %s: %w", grp.key, err)
		}
		out = append(out, models.Artifact{GroupKey: grp.key, Name: "README.md", Content: summary})
	}

	return out, nil
}
