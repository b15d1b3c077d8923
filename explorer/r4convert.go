package explorer

import (
	"encoding/json"
	"fmt"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/snapgen/element"
)

// ConvertStructureDefinition turns a typed r4.StructureDefinition into the
// engine's opaque element model. Unlike loader.R4Converter's field-by-field
// mapping into a fixed service.StructureDefinition, this re-serializes each
// ElementDefinition through encoding/json into a map[string]any: the engine
// requires every element to carry its unknown fields opaquely (mapping,
// extension, vendor fields), which a fixed destination struct cannot do
// losslessly. Decoding into the typed r4 model first still buys validation
// of the resource's outer shape before the element-level data is handed to
// the rest of the engine.
func ConvertStructureDefinition(sd *r4.StructureDefinition) (*StructureDefinition, error) {
	if sd == nil {
		return nil, fmt.Errorf("explorer: nil StructureDefinition")
	}

	meta := ResourceMeta{
		ID:             derefString(sd.Id),
		URL:            derefString(sd.Url),
		Name:           derefString(sd.Name),
		Type:           derefString(sd.Type),
		Kind:           stringOf(sd.Kind),
		Derivation:     stringOf(sd.Derivation),
		BaseDefinition: derefString(sd.BaseDefinition),
		FHIRVersion:    stringOf(sd.FhirVersion),
		Abstract:       derefBool(sd.Abstract),
	}

	out := &StructureDefinition{Meta: meta}

	raw, err := json.Marshal(sd)
	if err != nil {
		return nil, fmt.Errorf("explorer: re-marshaling %s: %w", meta.URL, err)
	}
	var resource map[string]any
	if err := json.Unmarshal(raw, &resource); err != nil {
		return nil, fmt.Errorf("explorer: decoding resource fields of %s: %w", meta.URL, err)
	}
	resource["resourceType"] = "StructureDefinition"
	out.Resource = resource

	if sd.Snapshot != nil {
		elems, err := convertElements(sd.Snapshot.Element)
		if err != nil {
			return nil, fmt.Errorf("explorer: converting snapshot of %s: %w", meta.URL, err)
		}
		out.Snapshot = elems
	}
	if sd.Differential != nil {
		elems, err := convertElements(sd.Differential.Element)
		if err != nil {
			return nil, fmt.Errorf("explorer: converting differential of %s: %w", meta.URL, err)
		}
		out.Differential = elems
	}
	return out, nil
}

func convertElements(src []r4.ElementDefinition) ([]element.Element, error) {
	if len(src) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	var decoded []map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	out := make([]element.Element, len(decoded))
	for i, m := range decoded {
		out[i] = element.Element(m)
	}
	return out, nil
}

// stringOf dereferences a pointer to any of r4's string-backed enum types
// (StructureDefinitionKind, TypeDerivationRule, FHIRVersion, ...), mirroring
// loader.R4Converter's convertKind/convertFHIRVersion helpers generically.
func stringOf[T ~string](p *T) string {
	if p == nil {
		return ""
	}
	return string(*p)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}
