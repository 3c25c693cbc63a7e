package instrument

import (
	"fmt"
	"reflect"
	"sort"
	"unicode/utf8"
)

// Descriptor is a compact, JSON-serializable summary of one captured value.
type Descriptor map[string]any

const (
	// NoLimit disables preview truncation.
	NoLimit = -1

	// TruncationMarker is appended to previews cut at their limit.
	TruncationMarker = "... [truncated]"

	// RedactedMarker replaces prompt-like field contents that must not be
	// exported.
	RedactedMarker = "redacted-prompt"

	// DefaultPreviewChars is the preview limit for ordinary input fields.
	DefaultPreviewChars = 120

	// LongFieldPreviewChars is the preview limit for known long-text fields
	// such as converted markdown and raw model responses.
	LongFieldPreviewChars = 200

	// OutputPreviewChars is the preview limit for output fields.
	OutputPreviewChars = 200

	// reprPreviewChars caps the formatted fallback representation.
	reprPreviewChars = 300

	// columnSampleSize caps the number of column names recorded for tabular
	// values.
	columnSampleSize = 10

	// keySampleSize caps the number of keys recorded for maps and field
	// dumps.
	keySampleSize = 20
)

// Tabular describes row/column shaped values such as loaded document tables.
// Summarize records their dimensions and a sample of column names instead of
// their contents.
type Tabular interface {
	Rows() int
	Cols() int
	Columns() []string
}

// FieldDumper lets a value expose its fields for summarization and dotted
// path lookup without reflection.
type FieldDumper interface {
	DumpFields() map[string]any
}

// Summarize produces a Descriptor for an arbitrary value. It is total: it
// never panics and never returns an error, falling back to a type-and-error
// descriptor when inspection itself fails. maxPreview bounds string previews;
// pass NoLimit to keep full text.
//
// The dispatch order is fixed: nil, Tabular, strings, collections, scalars,
// FieldDumper, then a formatted fallback.
func Summarize(value any, maxPreview int) (descriptor Descriptor) {
	defer func() {
		if recovered := recover(); recovered != nil {
			descriptor = Descriptor{
				"type":  fmt.Sprintf("%T", value),
				"error": fmt.Sprintf("failed to summarize: %v", recovered),
			}
		}
	}()

	if value == nil {
		return nil
	}

	if table, isTabular := value.(Tabular); isTabular {
		return summarizeTabular(table)
	}

	reflected := reflect.ValueOf(value)

	switch reflected.Kind() {
	case reflect.String:
		return summarizeText(reflected.String(), fmt.Sprintf("%T", value), maxPreview)

	case reflect.Slice, reflect.Array:
		return Descriptor{
			"type": fmt.Sprintf("%T", value),
			"len":  reflected.Len(),
		}

	case reflect.Map:
		return summarizeMap(reflected, fmt.Sprintf("%T", value))

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Descriptor{
			"type":  fmt.Sprintf("%T", value),
			"value": value,
		}
	}

	if dumper, isDumper := value.(FieldDumper); isDumper {
		return summarizeFields(dumper.DumpFields(), fmt.Sprintf("%T", value))
	}

	if reflected.Kind() == reflect.Pointer {
		if reflected.IsNil() {
			return nil
		}
		return Summarize(reflected.Elem().Interface(), maxPreview)
	}

	return summarizeRepr(value)
}

func summarizeTabular(table Tabular) Descriptor {
	columns := table.Columns()
	sample := columns
	if len(sample) > columnSampleSize {
		sample = sample[:columnSampleSize]
	}

	return Descriptor{
		"type":           fmt.Sprintf("%T", table),
		"rows":           table.Rows(),
		"cols":           table.Cols(),
		"columns_sample": append([]string(nil), sample...),
	}
}

func summarizeText(text, typeName string, maxPreview int) Descriptor {
	return Descriptor{
		"type":    typeName,
		"len":     len(text),
		"preview": truncatePreview(text, maxPreview),
	}
}

// truncatePreview cuts text at the limit without splitting a multi-byte rune,
// so previews stay valid UTF-8 after truncation.
func truncatePreview(text string, maxPreview int) string {
	if maxPreview == NoLimit || len(text) <= maxPreview {
		return text
	}
	cut := maxPreview
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + TruncationMarker
}

func summarizeMap(reflected reflect.Value, typeName string) Descriptor {
	keys := make([]string, 0, reflected.Len())
	for _, key := range reflected.MapKeys() {
		keys = append(keys, fmt.Sprint(key.Interface()))
	}
	sort.Strings(keys)

	sample := keys
	if len(sample) > keySampleSize {
		sample = sample[:keySampleSize]
	}

	return Descriptor{
		"type":        typeName,
		"len":         reflected.Len(),
		"keys_sample": sample,
	}
}

func summarizeFields(fields map[string]any, typeName string) Descriptor {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sample := keys
	if len(sample) > keySampleSize {
		sample = sample[:keySampleSize]
	}

	return Descriptor{
		"type":        typeName,
		"fields":      sample,
		"field_count": len(fields),
	}
}

func summarizeRepr(value any) Descriptor {
	return Descriptor{
		"type": fmt.Sprintf("%T", value),
		"repr": truncatePreview(fmt.Sprintf("%+v", value), reprPreviewChars),
	}
}
