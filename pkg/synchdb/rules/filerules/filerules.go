// Package filerules is the config-file-backed rules.RuleSource: the
// admin surface's add_objmap/del_objmap/reload_objmap operations
// (spec.md §6) edit a YAML rule file on disk, and FileSource loads it
// the same way pkg/config.LoadConfig loads the bridge's own
// configuration, via viper.
package filerules

import (
	"context"
	"fmt"
	"os"

	"github.com/cdcbridge/synchdb/pkg/synchdb/rules"
	"github.com/spf13/viper"
)

// TypeRuleEntry is one row of the file's "types" section.
type TypeRuleEntry struct {
	Token          string `mapstructure:"token"`
	AutoIncrement  bool   `mapstructure:"autoIncrement"`
	DestType       string `mapstructure:"destType"`
	LengthOverride int    `mapstructure:"lengthOverride"`
}

// NameRuleEntry is one row of the file's "names" section. Kind is
// "table" or "column".
type NameRuleEntry struct {
	ID   string `mapstructure:"id"`
	Kind string `mapstructure:"kind"`
	Name string `mapstructure:"name"`
}

// TransformRuleEntry is one row of the file's "transforms" section.
type TransformRuleEntry struct {
	ID   string `mapstructure:"id"`
	Expr string `mapstructure:"expr"`
}

type fileDoc struct {
	Types      []TypeRuleEntry      `mapstructure:"types"`
	Names      []NameRuleEntry      `mapstructure:"names"`
	Transforms []TransformRuleEntry `mapstructure:"transforms"`
}

// FileSource loads the three rule tables from a YAML file at Path,
// re-reading it on every Load* call so a Reload always reflects
// whatever add_objmap/del_objmap last wrote.
type FileSource struct {
	Path string
}

// NewFileSource returns a FileSource reading from path. The file need
// not exist yet; a missing file loads as empty rule tables.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) load() (fileDoc, error) {
	var doc fileDoc
	if _, err := os.Stat(f.Path); os.IsNotExist(err) {
		return doc, nil
	}

	v := viper.New()
	v.SetConfigFile(f.Path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return doc, fmt.Errorf("filerules: read %s: %w", f.Path, err)
	}
	if err := v.Unmarshal(&doc); err != nil {
		return doc, fmt.Errorf("filerules: decode %s: %w", f.Path, err)
	}
	return doc, nil
}

func (f *FileSource) LoadTypeRules(ctx context.Context) (map[rules.TypeKey]rules.TypeRule, error) {
	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make(map[rules.TypeKey]rules.TypeRule, len(doc.Types))
	for _, e := range doc.Types {
		out[rules.TypeKey{Token: e.Token, AutoIncrement: e.AutoIncrement}] = rules.TypeRule{
			DestType:       e.DestType,
			LengthOverride: e.LengthOverride,
		}
	}
	return out, nil
}

func (f *FileSource) LoadNameRules(ctx context.Context) (map[rules.NameKey]string, error) {
	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make(map[rules.NameKey]string, len(doc.Names))
	for _, e := range doc.Names {
		kind := rules.ObjectTable
		if e.Kind == "column" {
			kind = rules.ObjectColumn
		}
		out[rules.NameKey{ID: e.ID, Kind: kind}] = e.Name
	}
	return out, nil
}

func (f *FileSource) LoadTransformRules(ctx context.Context) (map[string]string, error) {
	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(doc.Transforms))
	for _, e := range doc.Transforms {
		out[e.ID] = e.Expr
	}
	return out, nil
}

// AddNameRule appends (or overwrites) a rename rule for id and
// persists the file immediately, implementing the admin surface's
// add_objmap(name) operation for the "rename" rule family (spec.md
// §6). A caller then submits a RequestReloadObjmap so the running
// connector picks it up.
func (f *FileSource) AddNameRule(id string, kind rules.ObjectKind, newName string) error {
	doc, err := f.load()
	if err != nil {
		return err
	}
	kindStr := "table"
	if kind == rules.ObjectColumn {
		kindStr = "column"
	}
	replaced := false
	for i, e := range doc.Names {
		if e.ID == id && e.Kind == kindStr {
			doc.Names[i].Name = newName
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Names = append(doc.Names, NameRuleEntry{ID: id, Kind: kindStr, Name: newName})
	}
	return f.save(doc)
}

// DelNameRule removes the rename rule for id, if any, implementing
// del_objmap(name).
func (f *FileSource) DelNameRule(id string, kind rules.ObjectKind) error {
	doc, err := f.load()
	if err != nil {
		return err
	}
	kindStr := "table"
	if kind == rules.ObjectColumn {
		kindStr = "column"
	}
	out := doc.Names[:0]
	for _, e := range doc.Names {
		if e.ID == id && e.Kind == kindStr {
			continue
		}
		out = append(out, e)
	}
	doc.Names = out
	return f.save(doc)
}

func (f *FileSource) save(doc fileDoc) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("types", doc.Types)
	v.Set("names", doc.Names)
	v.Set("transforms", doc.Transforms)
	return v.WriteConfigAs(f.Path)
}
