package model

// Report maps each violated relation to its sampled, explained rows.
// Keys are relation names; encoding/json sorts them, so output is stable.
type Report map[string][]ViolationEntry

// ViolationEntry is one sampled violating tuple
type ViolationEntry struct {
	Details   []FieldDetail  `json:"details"`   // One entry per relation column, in schema order
	Inference map[string]any `json:"inference"` // Oracle derivation tree, null when unavailable
}

// FieldDetail describes a single value of a violating tuple
type FieldDetail struct {
	Name  string        `json:"name"`  // Column name from the declaration
	Type  string        `json:"type"`  // Declared column type
	Value string        `json:"value"` // Raw value from the tuple file
	Props IdentityProps `json:"props"` // Identity hints, empty for non-identity columns
}

// IdentityProps carries resolved identity hints for an identity-bearing value.
// It is a map rather than a struct because presence matters: parent_ids is
// reported (possibly empty) only when no direct name exists.
type IdentityProps map[string]any

// Identity property keys
const (
	PropIDName    = "idName"     // Direct display name of the view
	PropParentIDs = "parent_ids" // Display names of named ancestors
	PropClass     = "class"      // View class name
	PropText      = "text"       // Sorted text contents
	PropActivity  = "activity"   // Activity owning the view's root
)

// Entries returns the number of sampled rows across all relations
func (r Report) Entries() int {
	n := 0
	for _, entries := range r {
		n += len(entries)
	}
	return n
}
