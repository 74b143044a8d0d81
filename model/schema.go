package model

import (
	"fmt"
	"regexp"
	"strings"
)

// EntityType tags the kind of an entity.
type EntityType string

const (
	EntityTypePerson   EntityType = "Person"
	EntityTypeEmail    EntityType = "Email"
	EntityTypeLocation EntityType = "Location"
	EntityTypeEvent    EntityType = "Event"
	EntityTypeCompany  EntityType = "Company"
	EntityTypeEvidence EntityType = "Evidence"
	EntityTypeImage    EntityType = "Image"
	EntityTypePhone    EntityType = "Phone"
	EntityTypeText     EntityType = "Text"
	EntityTypeUsername EntityType = "Username"
	EntityTypeVehicle  EntityType = "Vehicle"
	EntityTypeWebsite  EntityType = "Website"
)

// Field is one typed property of a schema.
type Field struct {
	Name      string
	Kind      PropertyKind
	Validator Validator
}

// Schema describes one entity kind: its fields, display attributes and
// the rule that derives the label from the properties.
type Schema struct {
	Type        EntityType
	Description string
	Color       string
	TypeLabel   string
	Fields      []Field

	derive func(e *Entity)
	label  func(e *Entity) string
}

// Field returns the field with the given name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

var (
	domainPattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	locationTypes   = []string{"residential", "commercial", "industrial"}
	websiteStatuses = []string{"active", "inactive", "redirecting"}
)

func plain() Field {
	return Field{Kind: KindString, Validator: &StringValidator{}}
}

func str(name string, minLength int) Field {
	return Field{Name: name, Kind: KindString, Validator: &StringValidator{MinLength: minLength}}
}

func named(name string, f Field) Field {
	f.Name = name
	return f
}

func bound[T int | float64](v T) *T {
	return &v
}

// standardFields are appended to every schema.
func standardFields() []Field {
	return []Field{
		named("notes", plain()),
		named("source", plain()),
		named("image", plain()),
	}
}

// labelFrom joins the non-empty values of props, falling back to the kind name.
func labelFrom(props ...string) func(e *Entity) string {
	return func(e *Entity) string {
		return e.formatLabel(props, ", ")
	}
}

var schemas = []*Schema{
	{
		Type:        EntityTypePerson,
		Description: "A person representing an individual",
		Color:       "#4CAF50",
		Fields: []Field{
			str("full_name", 2),
			{Name: "age", Kind: KindInt, Validator: &IntegerValidator{Min: bound(0), Max: bound(150)}},
			{Name: "height", Kind: KindFloat, Validator: &FloatValidator{Min: bound(0.0), Max: bound(300.0)}},
			str("nationality", 2),
			named("occupation", plain()),
		},
		label: labelFrom("full_name"),
	},
	{
		Type:        EntityTypeEmail,
		Description: "An email address",
		Color:       "#2196F3",
		Fields: []Field{
			{Name: "address", Kind: KindString, Validator: EmailValidator{}},
			{Name: "domain", Kind: KindString, Validator: &StringValidator{MinLength: 3, Pattern: domainPattern}},
		},
		derive: func(e *Entity) {
			if e.String("domain") != "" {
				return
			}
			if _, domain, ok := strings.Cut(e.String("address"), "@"); ok && domain != "" {
				e.Properties["domain"] = domain
			}
		},
		label: labelFrom("address"),
	},
	{
		Type:        EntityTypeLocation,
		Description: "A physical location, address, or place of interest",
		Color:       "#FF5722",
		Fields: []Field{
			named("address", plain()),
			named("city", plain()),
			named("state", plain()),
			named("country", plain()),
			named("postal_code", plain()),
			named("latitude", plain()),
			named("longitude", plain()),
			{Name: "location_type", Kind: KindChoice, Validator: &ListValidator{Choices: locationTypes, AllowEmpty: true}},
		},
		label: labelFrom("address", "city", "country"),
	},
	{
		Type:        EntityTypeEvent,
		Description: "An event",
		Color:       "#F22416",
		Fields: []Field{
			named("name", plain()),
			named("description", plain()),
			{Name: "start_date", Kind: KindDateTime, Validator: DateTimeValidator{}},
			{Name: "end_date", Kind: KindDateTime, Validator: DateTimeValidator{}},
			{Name: "add_to_timeline", Kind: KindBool, Validator: BoolValidator{}},
		},
		label: labelFrom("name"),
	},
	{
		Type:        EntityTypeCompany,
		Description: "A company",
		Color:       "#037d9e",
		Fields: []Field{
			named("name", plain()),
			named("description", plain()),
		},
		label: labelFrom("name"),
	},
	{
		Type:        EntityTypeEvidence,
		Description: "Evidence",
		Color:       "#02bfd4",
		Fields: []Field{
			named("name", plain()),
			named("description", plain()),
			{Name: "is_tampered", Kind: KindBool, Validator: BoolValidator{}},
		},
		label: labelFrom("name"),
	},
	{
		Type:        EntityTypeImage,
		Description: "An image",
		Color:       "#E9B96E",
		Fields: []Field{
			named("title", plain()),
			named("url", plain()),
			named("description", plain()),
		},
		label: labelFrom("title"),
	},
	{
		Type:        EntityTypePhone,
		Description: "A phone number with country code and metadata",
		Color:       "#b82549",
		Fields: []Field{
			str("number", 5),
			str("country_code", 1),
			named("phone_type", plain()),
			named("carrier", plain()),
		},
		derive: func(e *Entity) {
			number := e.String("number")
			if cc := e.String("country_code"); cc != "" {
				e.Properties["_display_number"] = fmt.Sprintf("+%s %s", cc, number)
				return
			}
			e.Properties["_display_number"] = number
		},
		label: labelFrom("_display_number"),
	},
	{
		Type:        EntityTypeText,
		Description: "A text",
		Color:       "#D0BD1D",
		Fields: []Field{
			named("text", plain()),
		},
		label: labelFrom("text"),
	},
	{
		Type:        EntityTypeUsername,
		Description: "A username",
		Color:       "#21B57D",
		Fields: []Field{
			named("username", plain()),
		},
		label: labelFrom("username"),
	},
	{
		Type:        EntityTypeVehicle,
		Description: "A vehicle with make, model, and metadata",
		Color:       "#6c5952",
		Fields: []Field{
			named("model", plain()),
			{Name: "year", Kind: KindInt, Validator: &IntegerValidator{}},
			named("vin", plain()),
		},
		label: func(e *Entity) string {
			return e.formatLabel([]string{"model", "year"}, " ")
		},
	},
	{
		Type:        EntityTypeWebsite,
		Description: "A website, domain, or specific URL",
		Color:       "#9C27B0",
		Fields: []Field{
			str("url", 4),
			str("domain", 3),
			named("title", plain()),
			named("description", plain()),
			named("ip_address", plain()),
			{Name: "status", Kind: KindChoice, Validator: &ListValidator{Choices: websiteStatuses, AllowEmpty: true}},
			named("technologies", plain()),
		},
		label: labelFrom("title", "url"),
	},
}

var schemaByType = func() map[EntityType]*Schema {
	m := make(map[EntityType]*Schema, len(schemas))
	for _, s := range schemas {
		s.TypeLabel = strings.ToUpper(string(s.Type))
		s.Fields = append(s.Fields, standardFields()...)
		m[s.Type] = s
	}
	return m
}()

// Schemas returns all entity schemas in a stable order.
func Schemas() []*Schema {
	return schemas
}

// SchemaFor returns the schema of the given entity type.
func SchemaFor(t EntityType) (*Schema, error) {
	s, ok := schemaByType[t]
	if !ok {
		return nil, fmt.Errorf("unknown entity type: %s", t)
	}
	return s, nil
}

// EntityTypes returns all known entity types.
func EntityTypes() []EntityType {
	types := make([]EntityType, len(schemas))
	for i, s := range schemas {
		types[i] = s.Type
	}
	return types
}
