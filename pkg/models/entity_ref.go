package models

import (
	"fmt"
	"regexp"
	"strings"
)

// identPattern is the allow-list for warehouse identifiers. Anything the
// extractor returns outside this pattern is treated as malformed output.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// EntityRef identifies a warehouse table or column by fully qualified path
// (database.schema.table or database.schema.table.column).
type EntityRef struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`
	Column   string `json:"column,omitempty"`
}

// ParseEntityRef parses "DB.SCHEMA.TABLE" or "DB.SCHEMA.TABLE.COLUMN".
func ParseEntityRef(s string) (EntityRef, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 3 || len(parts) > 4 {
		return EntityRef{}, fmt.Errorf("entity ref %q: want database.schema.table[.column]", s)
	}

	ref := EntityRef{
		Database: strings.ToUpper(parts[0]),
		Schema:   strings.ToUpper(parts[1]),
		Table:    strings.ToUpper(parts[2]),
	}
	if len(parts) == 4 {
		ref.Column = strings.ToUpper(parts[3])
	}

	if err := ref.Validate(); err != nil {
		return EntityRef{}, err
	}
	return ref, nil
}

// Validate checks every path segment against the identifier allow-list.
func (r EntityRef) Validate() error {
	segments := []string{r.Database, r.Schema, r.Table}
	if r.Column != "" {
		segments = append(segments, r.Column)
	}
	for _, seg := range segments {
		if !identPattern.MatchString(seg) {
			return fmt.Errorf("invalid identifier %q in entity ref %s", seg, r)
		}
	}
	return nil
}

// IsColumn reports whether the ref addresses a column rather than a table.
func (r EntityRef) IsColumn() bool {
	return r.Column != ""
}

// TableRef returns the ref with the column segment stripped.
func (r EntityRef) TableRef() EntityRef {
	r.Column = ""
	return r
}

// GroupKey returns the artifact grouping key (database.schema).
func (r EntityRef) GroupKey() string {
	return r.Database + "." + r.Schema
}

func (r EntityRef) String() string {
	s := r.Database + "." + r.Schema + "." + r.Table
	if r.Column != "" {
		s += "." + r.Column
	}
	return s
}

// ValidIdentifier reports whether s matches the identifier allow-list.
func ValidIdentifier(s string) bool {
	return identPattern.MatchString(s)
}
