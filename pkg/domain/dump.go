package domain

// DumpFormatVersion is bumped whenever the Dump layout changes incompatibly.
const DumpFormatVersion = 1

// Dump is the serializable form of a snapshot. It is the contract between the
// store and any concrete codec; the store never defines a byte layout.
type Dump struct {
	FormatVersion     int             `json:"format_version" msgpack:"format_version"`
	SchemaFingerprint string          `json:"schema_fingerprint" msgpack:"schema_fingerprint"`
	Lineage           string          `json:"lineage,omitempty" msgpack:"lineage,omitempty"`
	Version           uint64          `json:"version" msgpack:"version"`
	Sequences         map[Kind]uint64 `json:"sequences" msgpack:"sequences"`
	Entities          []DumpEntity    `json:"entities" msgpack:"entities"`
	Relations         []DumpRelation  `json:"relations" msgpack:"relations"`
}

// DumpEntity is one serialized entity record.
type DumpEntity struct {
	ID     EntityID       `json:"id" msgpack:"id"`
	Source EntitySource   `json:"source" msgpack:"source"`
	Fields map[string]any `json:"fields,omitempty" msgpack:"fields,omitempty"`
}

// DumpRelation lists the ordered children of one parent in one connection.
type DumpRelation struct {
	Connection string     `json:"connection" msgpack:"connection"`
	Parent     EntityID   `json:"parent" msgpack:"parent"`
	Children   []EntityID `json:"children" msgpack:"children"`
}
