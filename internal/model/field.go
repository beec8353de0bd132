package model

// FieldCategory groups fields by capability so checks and retry strategies
// can dispatch on what a field is, not what it is named.
type FieldCategory string

const (
	// CategoryIdentifier covers contact identifiers (email addresses).
	CategoryIdentifier FieldCategory = "identifier"
	// CategoryURL covers profile and website URLs.
	CategoryURL FieldCategory = "url"
	// CategoryFreeText covers model-synthesized prose fields.
	CategoryFreeText FieldCategory = "free_text"
	// CategoryBasic covers short factual fields copied from structured sources.
	CategoryBasic FieldCategory = "basic"
)

// FieldSpec describes one field of a candidate profile.
type FieldSpec struct {
	Key      string        `json:"key"`
	Category FieldCategory `json:"category"`
	// Critical fields quarantine the whole record when they fail with a
	// detected problem.
	Critical bool `json:"critical"`
	// Required fields block verification when missing despite the extraction
	// method claiming to populate them.
	Required bool `json:"required"`
}

// Identifier reports whether the field holds an identifier-shaped value
// (email or URL) subject to strict format validation.
func (f FieldSpec) Identifier() bool {
	return f.Category == CategoryIdentifier || f.Category == CategoryURL
}

// FreeText reports whether the field value originated from free-text
// synthesis and is therefore eligible for source grounding.
func (f FieldSpec) FreeText() bool {
	return f.Category == CategoryFreeText
}

// FieldRegistry is an indexed collection of field specs.
type FieldRegistry struct {
	Fields   []FieldSpec
	byKey    map[string]*FieldSpec
	critical []*FieldSpec
}

// NewFieldRegistry creates a FieldRegistry with indexed lookups.
func NewFieldRegistry(fields []FieldSpec) *FieldRegistry {
	r := &FieldRegistry{
		Fields: fields,
		byKey:  make(map[string]*FieldSpec, len(fields)),
	}
	for i := range r.Fields {
		f := &r.Fields[i]
		r.byKey[f.Key] = f
		if f.Critical {
			r.critical = append(r.critical, f)
		}
	}
	return r
}

// ByKey returns the spec for the given field key, or nil if not found.
func (r *FieldRegistry) ByKey(key string) *FieldSpec {
	return r.byKey[key]
}

// Critical returns all critical field specs.
func (r *FieldRegistry) Critical() []*FieldSpec {
	return r.critical
}

// DefaultFields returns the standard profile field set.
func DefaultFields() []FieldSpec {
	return []FieldSpec{
		{Key: "email", Category: CategoryIdentifier, Critical: true, Required: true},
		{Key: "website", Category: CategoryURL},
		{Key: "linkedin_url", Category: CategoryURL},
		{Key: "name", Category: CategoryBasic, Required: true},
		{Key: "title", Category: CategoryBasic},
		{Key: "company", Category: CategoryBasic},
		{Key: "location", Category: CategoryBasic},
		{Key: "bio", Category: CategoryFreeText},
		{Key: "seeking", Category: CategoryFreeText},
		{Key: "topics", Category: CategoryFreeText},
	}
}

// DefaultRegistry returns a registry over the standard profile field set.
func DefaultRegistry() *FieldRegistry {
	return NewFieldRegistry(DefaultFields())
}
