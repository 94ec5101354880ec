package domain

import (
	"fmt"
	"strings"
)

// FieldMapping renames one source-shape field to its target-shape counterpart.
type FieldMapping struct {
	SourceField string `json:"source_field" mapstructure:"source_field"`
	TargetField string `json:"target_field" mapstructure:"target_field"`
	Required    bool   `json:"required" mapstructure:"required"`
}

// EnumRemap is an explicit total mapping of enumerated source values onto target
// values, with a defined default for unknown or null inputs. Remapping never
// raises on an unrecognized value; it falls back to Default.
type EnumRemap struct {
	SourceField string            `json:"source_field" mapstructure:"source_field"`
	TargetField string            `json:"target_field" mapstructure:"target_field"`
	Values      map[string]string `json:"values" mapstructure:"values"`
	Default     string            `json:"default" mapstructure:"default"`
}

// TimestampMapping marks a timestamp field pair subject to fidelity checking.
type TimestampMapping struct {
	SourceField string `json:"source_field" mapstructure:"source_field"`
	TargetField string `json:"target_field" mapstructure:"target_field"`
}

// ReferenceMapping marks a foreign reference in the new shape that must resolve
// to an already-bridged target id of the referenced entity type.
type ReferenceMapping struct {
	SourceField          string `json:"source_field" mapstructure:"source_field"`
	TargetField          string `json:"target_field" mapstructure:"target_field"`
	ReferencedEntityType string `json:"referenced_entity_type" mapstructure:"referenced_entity_type"`
	Optional             bool   `json:"optional" mapstructure:"optional"`
}

// EntityDescriptor describes how one entity type moves from its old relational
// shape to its new one. The engine is driven entirely by descriptors and knows
// nothing about the host application's business objects.
type EntityDescriptor struct {
	EntityType     string             `json:"entity_type" mapstructure:"entity_type"`
	SourceTable    string             `json:"source_table" mapstructure:"source_table"`
	SourceIDColumn string             `json:"source_id_column" mapstructure:"source_id_column"`
	SourceColumns  []string           `json:"source_columns" mapstructure:"source_columns"`
	TargetTable    string             `json:"target_table" mapstructure:"target_table"`
	TargetIDColumn string             `json:"target_id_column" mapstructure:"target_id_column"`
	Fields         []FieldMapping     `json:"fields" mapstructure:"fields"`
	EnumRemaps     []EnumRemap        `json:"enum_remaps" mapstructure:"enum_remaps"`
	Timestamps     []TimestampMapping `json:"timestamps" mapstructure:"timestamps"`
	References     []ReferenceMapping `json:"references" mapstructure:"references"`
}

// Validate checks the descriptor is internally consistent before the engine
// accepts it.
func (d EntityDescriptor) Validate() error {
	if strings.TrimSpace(d.EntityType) == "" {
		return fmt.Errorf("entity descriptor missing entity_type")
	}
	if strings.TrimSpace(d.SourceTable) == "" {
		return fmt.Errorf("descriptor %s missing source_table", d.EntityType)
	}
	if strings.TrimSpace(d.SourceIDColumn) == "" {
		return fmt.Errorf("descriptor %s missing source_id_column", d.EntityType)
	}
	if strings.TrimSpace(d.TargetTable) == "" {
		return fmt.Errorf("descriptor %s missing target_table", d.EntityType)
	}
	if len(d.Fields) == 0 && len(d.EnumRemaps) == 0 {
		return fmt.Errorf("descriptor %s maps no fields", d.EntityType)
	}
	seen := map[string]string{}
	for _, field := range d.Fields {
		if strings.TrimSpace(field.SourceField) == "" || strings.TrimSpace(field.TargetField) == "" {
			return fmt.Errorf("descriptor %s has a field mapping with empty names", d.EntityType)
		}
		if prior, ok := seen[field.TargetField]; ok {
			return fmt.Errorf("descriptor %s maps both %s and %s to target field %s", d.EntityType, prior, field.SourceField, field.TargetField)
		}
		seen[field.TargetField] = field.SourceField
	}
	for _, remap := range d.EnumRemaps {
		if strings.TrimSpace(remap.Default) == "" {
			return fmt.Errorf("descriptor %s enum remap for %s missing default value", d.EntityType, remap.SourceField)
		}
		if prior, ok := seen[remap.TargetField]; ok {
			return fmt.Errorf("descriptor %s maps both %s and enum %s to target field %s", d.EntityType, prior, remap.SourceField, remap.TargetField)
		}
		seen[remap.TargetField] = remap.SourceField
	}
	for _, ref := range d.References {
		if strings.TrimSpace(ref.ReferencedEntityType) == "" {
			return fmt.Errorf("descriptor %s reference %s missing referenced_entity_type", d.EntityType, ref.SourceField)
		}
		if prior, ok := seen[ref.TargetField]; ok {
			return fmt.Errorf("descriptor %s maps both %s and reference %s to target field %s", d.EntityType, prior, ref.SourceField, ref.TargetField)
		}
		seen[ref.TargetField] = ref.SourceField
	}
	for _, ts := range d.Timestamps {
		if _, ok := seen[ts.TargetField]; !ok {
			return fmt.Errorf("descriptor %s timestamp check references unmapped target field %s", d.EntityType, ts.TargetField)
		}
	}
	return nil
}

// TargetIDColumnOrDefault returns the configured target id column, defaulting to "id".
func (d EntityDescriptor) TargetIDColumnOrDefault() string {
	if strings.TrimSpace(d.TargetIDColumn) == "" {
		return "id"
	}
	return d.TargetIDColumn
}

// TargetColumns returns the ordered list of target columns the descriptor writes,
// excluding the target id column.
func (d EntityDescriptor) TargetColumns() []string {
	columns := make([]string, 0, len(d.Fields)+len(d.EnumRemaps)+len(d.References))
	for _, field := range d.Fields {
		columns = append(columns, field.TargetField)
	}
	for _, remap := range d.EnumRemaps {
		columns = append(columns, remap.TargetField)
	}
	for _, ref := range d.References {
		columns = append(columns, ref.TargetField)
	}
	return columns
}
