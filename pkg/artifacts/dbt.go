package artifacts

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// dbt project file shapes. Field order matters for readable diffs, so
// these are structs rather than maps.

type sourcesFile struct {
	Version int          `yaml:"version"`
	Sources []sourceDefn `yaml:"sources"`
}

type sourceDefn struct {
	Name     string        `yaml:"name"`
	Database string        `yaml:"database"`
	Schema   string        `yaml:"schema"`
	Tables   []sourceTable `yaml:"tables"`
}

type sourceTable struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

type schemaFile struct {
	Version int          `yaml:"version"`
	Models  []modelDefn  `yaml:"models"`
}

type modelDefn struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Columns     []columnDefn `yaml:"columns,omitempty"`
}

type columnDefn struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	DataType    string   `yaml:"data_type,omitempty"`
	Tests       []string `yaml:"tests,omitempty"`
}

// modelName derives the staging model identifier from a table ref, using
// the singular form so ORDERS becomes stg_order.
func modelName(ref models.EntityRef) string {
	return "stg_" + inflection.Singular(strings.ToLower(ref.Table))
}

func modelFileName(ref models.EntityRef) string {
	return modelName(ref) + ".sql"
}

func sourceName(g *group) string {
	return strings.ToLower(g.schema())
}

func renderSourcesYAML(g *group) ([]byte, error) {
	defn := sourceDefn{
		Name:     sourceName(g),
		Database: strings.ToLower(g.database()),
		Schema:   strings.ToLower(g.schema()),
	}
	for _, table := range g.tables {
		defn.Tables = append(defn.Tables, sourceTable{
			Name:        strings.ToLower(table.ref.Table),
			Description: table.description(),
		})
	}
	return yaml.Marshal(sourcesFile{Version: 2, Sources: []sourceDefn{defn}})
}

func renderSchemaYAML(g *group) ([]byte, error) {
	file := schemaFile{Version: 2}
	for _, table := range g.tables {
		model := modelDefn{
			Name:        modelName(table.ref),
			Description: table.description(),
		}
		for _, col := range table.columns {
			defn := columnDefn{
				Name:        strings.ToLower(col.Entity.Column),
				Description: columnDescription(col),
			}
			if col.Current != nil {
				defn.DataType = strings.ToLower(col.Current.DataType)
				if col.Current.PrimaryKey {
					defn.Tests = []string{"unique", "not_null"}
				}
			}
			model.Columns = append(model.Columns, defn)
		}
		file.Models = append(file.Models, model)
	}
	return yaml.Marshal(file)
}

// renderModelSQL emits a passthrough staging model selecting the known
// columns, or star when no columns were extracted.
func renderModelSQL(g *group, table *tableDoc, materialization string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "{{ config(materialized='%s') }}\n\nselect\n", materialization)

	if len(table.columns) == 0 {
		b.WriteString("    *\n")
	} else {
		for i, col := range table.columns {
			sep := ","
			if i == len(table.columns)-1 {
				sep = ""
			}
			fmt.Fprintf(&b, "    %s%s\n", strings.ToLower(col.Entity.Column), sep)
		}
	}

	fmt.Fprintf(&b, "from {{ source('%s', '%s') }}\n",
		sourceName(g), strings.ToLower(table.ref.Table))
	return []byte(b.String())
}
