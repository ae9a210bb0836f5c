package prov

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// PROV-JSON structural keys per relation kind. Anything outside these keys
// (and prov:time) is carried as a relation attribute.
var relationKeys = map[RelationKind]struct {
	from   string
	to     string
	extras []string
}{
	Generation:     {"prov:entity", "prov:activity", nil},
	Usage:          {"prov:activity", "prov:entity", nil},
	Derivation:     {"prov:generatedEntity", "prov:usedEntity", []string{"prov:activity", "prov:generation", "prov:usage"}},
	Specialization: {"prov:specificEntity", "prov:generalEntity", nil},
	Attribution:    {"prov:entity", "prov:agent", nil},
	Association:    {"prov:activity", "prov:agent", []string{"prov:plan"}},
	Alternate:      {"prov:alternate1", "prov:alternate2", nil},
	Communication:  {"prov:informed", "prov:informant", nil},
	Start:          {"prov:activity", "prov:trigger", []string{"prov:starter"}},
	End:            {"prov:activity", "prov:trigger", []string{"prov:ender"}},
	Invalidation:   {"prov:entity", "prov:activity", nil},
	Membership:     {"prov:collection", "prov:entity", nil},
	Delegation:     {"prov:delegate", "prov:responsible", []string{"prov:activity"}},
	Influence:      {"prov:influencee", "prov:influencer", nil},
}

var recordSections = map[string]RecordKind{
	"entity":   KindEntity,
	"activity": KindActivity,
	"agent":    KindAgent,
}

// DecodeDocument parses a PROV-JSON document.
func DecodeDocument(data []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse PROV-JSON: %w", err)
	}

	doc := &Document{}
	doc.Namespaces = decodePrefixes(top["prefix"])

	if raw, ok := top["bundle"]; ok {
		var bundles map[string]json.RawMessage
		if err := json.Unmarshal(raw, &bundles); err != nil {
			return nil, fmt.Errorf("parse bundle section: %w", err)
		}
		names := make([]string, 0, len(bundles))
		for name := range bundles {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			bundle, err := decodeBundle(name, bundles[name], doc.Namespaces)
			if err != nil {
				return nil, err
			}
			doc.Bundles = append(doc.Bundles, bundle)
		}
	}
	return doc, nil
}

// DecodeBundle parses a single PROV-JSON bundle body (the object that would
// appear under the document's "bundle" section).
func DecodeBundle(id QualifiedName, data []byte) (*Bundle, error) {
	b, err := decodeBundle(id.String(), data, nil)
	if err != nil {
		return nil, err
	}
	// Preserve the caller's resolved identifier; the string form may not
	// resolve against the bundle's own prefixes.
	b.ID = id
	return b, nil
}

func decodeBundle(name string, data []byte, parent []Namespace) (*Bundle, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("parse bundle %s: %w", name, err)
	}

	namespaces := append(append([]Namespace(nil), parent...), decodePrefixes(sections["prefix"])...)
	bundle := NewBundle(ParseQualifiedName(name, namespaces))
	for _, ns := range decodePrefixes(sections["prefix"]) {
		bundle.AddNamespace(ns)
	}

	for section, kind := range recordSections {
		raw, ok := sections[section]
		if !ok {
			continue
		}
		var entries map[string]map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("parse %s section of bundle %s: %w", section, name, err)
		}
		ids := sortedKeys(entries)
		for _, id := range ids {
			record := NewRecord(kind, ParseQualifiedName(id, namespaces))
			for key, val := range entries[id] {
				switch {
				case kind == KindActivity && key == "prov:startTime":
					record.StartTime = decodeTime(val)
				case kind == KindActivity && key == "prov:endTime":
					record.EndTime = decodeTime(val)
				default:
					vs, err := decodeValues(val, namespaces)
					if err != nil {
						return nil, fmt.Errorf("attribute %s of %s: %w", key, id, err)
					}
					record.Attributes[key] = vs
				}
			}
			bundle.AddRecord(record)
		}
	}

	for kind, keys := range relationKeys {
		raw, ok := sections[string(kind)]
		if !ok {
			continue
		}
		var entries map[string]map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("parse %s section of bundle %s: %w", kind, name, err)
		}
		ids := sortedKeys(entries)
		for _, id := range ids {
			body := entries[id]
			rel := NewRelation(kind, QualifiedName{}, QualifiedName{})
			if id != "" && id[0] != '_' {
				rel.ID = ParseQualifiedName(id, namespaces)
			}
			for key, val := range body {
				switch key {
				case keys.from:
					rel.From = decodeRef(val, namespaces)
				case keys.to:
					rel.To = decodeRef(val, namespaces)
				case "prov:time":
					rel.Time = decodeTime(val)
				default:
					if containsKey(keys.extras, key) {
						rel.Extra = append(rel.Extra, decodeRef(val, namespaces))
						continue
					}
					vs, err := decodeValues(val, namespaces)
					if err != nil {
						return nil, fmt.Errorf("attribute %s of %s: %w", key, id, err)
					}
					rel.Attributes[key] = vs
				}
			}
			bundle.AddRelation(rel)
		}
	}

	return bundle, nil
}

// EncodeDocument serializes a document to PROV-JSON.
func EncodeDocument(doc *Document) ([]byte, error) {
	top := make(map[string]any)
	if len(doc.Namespaces) > 0 {
		top["prefix"] = encodePrefixes(doc.Namespaces)
	}
	if len(doc.Bundles) > 0 {
		bundles := make(map[string]any, len(doc.Bundles))
		for _, b := range doc.Bundles {
			bundles[b.ID.String()] = encodeBundleBody(b)
		}
		top["bundle"] = bundles
	}
	return json.MarshalIndent(top, "", "  ")
}

// EncodeBundle serializes a single bundle body to PROV-JSON.
func EncodeBundle(b *Bundle) ([]byte, error) {
	return json.MarshalIndent(encodeBundleBody(b), "", "  ")
}

func encodeBundleBody(b *Bundle) map[string]any {
	body := make(map[string]any)
	if len(b.Namespaces) > 0 {
		body["prefix"] = encodePrefixes(b.Namespaces)
	}

	for section, kind := range recordSections {
		records := b.RecordsOfKind(kind)
		if len(records) == 0 {
			continue
		}
		entries := make(map[string]any, len(records))
		for _, r := range records {
			attrs := make(map[string]any, len(r.Attributes))
			for key, vs := range r.Attributes {
				attrs[key] = encodeValues(vs)
			}
			if r.StartTime != nil {
				attrs["prov:startTime"] = r.StartTime.Format(time.RFC3339)
			}
			if r.EndTime != nil {
				attrs["prov:endTime"] = r.EndTime.Format(time.RFC3339)
			}
			entries[r.ID.String()] = attrs
		}
		body[section] = entries
	}

	counters := make(map[RelationKind]int)
	for _, rel := range b.Relations() {
		keys := relationKeys[rel.Kind]
		entry := make(map[string]any)
		entry[keys.from] = rel.From.String()
		entry[keys.to] = rel.To.String()
		for i, extra := range rel.Extra {
			if i < len(keys.extras) {
				entry[keys.extras[i]] = extra.String()
			}
		}
		if rel.Time != nil {
			entry["prov:time"] = rel.Time.Format(time.RFC3339)
		}
		for key, vs := range rel.Attributes {
			entry[key] = encodeValues(vs)
		}

		section, _ := body[string(rel.Kind)].(map[string]any)
		if section == nil {
			section = make(map[string]any)
			body[string(rel.Kind)] = section
		}
		id := rel.ID.String()
		if rel.ID.IsZero() {
			counters[rel.Kind]++
			id = fmt.Sprintf("_:%s%d", rel.Kind, counters[rel.Kind])
		}
		section[id] = entry
	}

	return body
}

func decodePrefixes(raw json.RawMessage) []Namespace {
	if raw == nil {
		return nil
	}
	var prefixes map[string]string
	if err := json.Unmarshal(raw, &prefixes); err != nil {
		return nil
	}
	out := make([]Namespace, 0, len(prefixes))
	keys := make([]string, 0, len(prefixes))
	for prefix := range prefixes {
		keys = append(keys, prefix)
	}
	sort.Strings(keys)
	for _, prefix := range keys {
		out = append(out, Namespace{Prefix: prefix, URI: prefixes[prefix]})
	}
	return out
}

func encodePrefixes(namespaces []Namespace) map[string]string {
	out := make(map[string]string, len(namespaces))
	for _, ns := range namespaces {
		out[ns.Prefix] = ns.URI
	}
	return out
}

// typedLiteral is the PROV-JSON {"$": ..., "type": ...} value form.
type typedLiteral struct {
	Value json.RawMessage `json:"$"`
	Type  string          `json:"type"`
}

func decodeValues(raw json.RawMessage, namespaces []Namespace) ([]Value, error) {
	// Multi-valued attributes arrive as arrays.
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		items = []json.RawMessage{raw}
	}
	out := make([]Value, 0, len(items))
	for _, item := range items {
		v, err := decodeValue(item, namespaces)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeValue(raw json.RawMessage, namespaces []Namespace) (Value, error) {
	var lit typedLiteral
	if err := json.Unmarshal(raw, &lit); err == nil && lit.Type != "" {
		switch lit.Type {
		case "prov:QUALIFIED_NAME", "xsd:QName":
			var s string
			if err := json.Unmarshal(lit.Value, &s); err != nil {
				return Value{}, fmt.Errorf("qualified name literal: %w", err)
			}
			return NameValue(ParseQualifiedName(s, namespaces)), nil
		case "xsd:int", "xsd:integer", "xsd:long":
			var i int64
			if err := json.Unmarshal(lit.Value, &i); err != nil {
				return Value{}, fmt.Errorf("integer literal: %w", err)
			}
			return IntValue(i), nil
		case "xsd:double", "xsd:float", "xsd:decimal":
			var f float64
			if err := json.Unmarshal(lit.Value, &f); err != nil {
				// Decimal literals may be quoted.
				var s string
				if err := json.Unmarshal(lit.Value, &s); err != nil {
					return Value{}, fmt.Errorf("float literal: %w", err)
				}
				f, err = strconv.ParseFloat(s, 64)
				if err != nil {
					return Value{}, fmt.Errorf("float literal: %w", err)
				}
			}
			return FloatValue(f), nil
		default:
			var s string
			if err := json.Unmarshal(lit.Value, &s); err != nil {
				return Value{}, fmt.Errorf("typed literal: %w", err)
			}
			return StringValue(s), nil
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return StringValue(s), nil
	}
	var i int64
	if err := json.Unmarshal(raw, &i); err == nil {
		return IntValue(i), nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return FloatValue(f), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return StringValue(fmt.Sprintf("%t", b)), nil
	}
	return Value{}, fmt.Errorf("unsupported attribute value %s", string(raw))
}

func encodeValues(vs []Value) any {
	encoded := make([]any, len(vs))
	for i, v := range vs {
		switch v.Kind {
		case ValueName:
			encoded[i] = map[string]any{"$": v.Name.String(), "type": "prov:QUALIFIED_NAME"}
		case ValueInt:
			encoded[i] = map[string]any{"$": v.Int, "type": "xsd:int"}
		case ValueFloat:
			encoded[i] = map[string]any{"$": v.Float, "type": "xsd:double"}
		default:
			encoded[i] = v.Str
		}
	}
	if len(encoded) == 1 {
		return encoded[0]
	}
	return encoded
}

func decodeRef(raw json.RawMessage, namespaces []Namespace) QualifiedName {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return QualifiedName{}
	}
	return ParseQualifiedName(s, namespaces)
}

func decodeTime(raw json.RawMessage) *time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
