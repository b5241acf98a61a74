// Package event defines the neutral change-record types that decouple
// the wire parsers (debezium, olr) from the converter and applier: Ddl,
// Dml, their column descriptors, and the scalar classification tags
// (DbzType, TimeRep) the codec dispatches on.
package event

import (
	"sort"
	"time"
)

// DbzType is the on-wire scalar tag carried by a change event's schema
// section (Debezium's "type" field, or the OLR equivalent).
type DbzType string

const (
	Float32 DbzType = "float32"
	Float64 DbzType = "float64"
	Bytes   DbzType = "bytes"
	Int8    DbzType = "int8"
	Int16   DbzType = "int16"
	Int32   DbzType = "int32"
	Int64   DbzType = "int64"
	Struct  DbzType = "struct"
	String  DbzType = "string"
)

// TimeRep sub-classifies a temporal value on top of its DbzType,
// selecting the epoch unit (or "not temporal") for the codec.
type TimeRep string

const (
	TimeRepDate           TimeRep = "date"
	TimeRepTime           TimeRep = "time"
	TimeRepMicroTime      TimeRep = "microtime"
	TimeRepNanoTime       TimeRep = "nanotime"
	TimeRepTimestamp      TimeRep = "timestamp"
	TimeRepMicroTimestamp TimeRep = "microtimestamp"
	TimeRepNanoTimestamp  TimeRep = "nanotimestamp"
	TimeRepZonedTimestamp TimeRep = "zonedtimestamp"
	TimeRepMicroDuration  TimeRep = "microduration"
	TimeRepVariableScale  TimeRep = "variablescale"
	TimeRepEnum           TimeRep = "enum"
	TimeRepUndef          TimeRep = "undef"
)

// Op classifies a DML record.
type Op byte

const (
	OpRead   Op = 'r'
	OpCreate Op = 'c'
	OpUpdate Op = 'u'
	OpDelete Op = 'd'
)

// DdlKind classifies a DDL record.
type DdlKind int

const (
	DdlCreate DdlKind = iota
	DdlAlter
	DdlDrop
)

// AlterSubkind further classifies a DdlAlter record; only meaningful for
// the OLR source, which reports it explicitly in the parsed AST.
type AlterSubkind int

const (
	AlterNone AlterSubkind = iota
	AlterAddColumn
	AlterDropColumn
	AlterAlterColumn
	AlterAddConstraint
	AlterDropConstraint
)

// ColumnDescriptor is one column definition inside a Ddl record.
type ColumnDescriptor struct {
	Name          string
	RemoteType    string
	Length        int
	Scale         int
	Optional      bool
	AutoIncrement bool
	Default       string
	EnumValues    string
	Charset       string
}

// Ddl is the neutral schema-change record produced by both parsers and
// consumed by the converter.
type Ddl struct {
	SourceID         string // "db[.schema].table", lowercased
	Kind             DdlKind
	AlterSubkind     AlterSubkind
	PrimaryKeyJSON   string // verbatim JSON array literal, e.g. `["id"]`
	Columns          []ColumnDescriptor
	ConstraintName   string
	SourceTimestamp  time.Time
	PipelineObserved time.Time
}

// ColumnValue is one column's value inside a Dml record's before/after
// image.
type ColumnValue struct {
	Name         string // mapped destination column name
	RemoteName   string // kept for transform-rule lookup
	Value        string // value in its on-the-wire string form
	DestOID      uint32
	DestCategory string // destination type category, e.g. "Numeric", "DateTime"
	DestTypeName string // destination pg_type.typname, e.g. "money", "numeric"
	DestTypmod   int32
	WireType     DbzType
	TimeRep      TimeRep
	Scale        int
	IsPrimaryKey bool
	Ordinal      int // 1-based, aligned with destination attnum
}

// Dml is the neutral row-change record produced by both parsers and
// consumed by the converter.
type Dml struct {
	Op           Op
	SourceID     string
	DestID       string // mapped "schema.table"
	DestTableOID uint32
	ColumnCount  int
	Before       []ColumnValue
	After        []ColumnValue
}

// TxBoundary marks the start or end of a source transaction; it carries
// no row data and only updates batch timestamp bookkeeping.
type TxBoundary struct {
	Status          string
	SourceTimestamp time.Time
}

// SortByOrdinal reorders cols in place by ascending Ordinal, matching the
// data model invariant that before/after images are sorted by
// destination ordinal position.
func SortByOrdinal(cols []ColumnValue) {
	sort.Slice(cols, func(i, j int) bool { return cols[i].Ordinal < cols[j].Ordinal })
}
