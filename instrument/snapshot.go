package instrument

import (
	"reflect"
	"strings"

	"chapterflow/graph"
)

// longTextFields are dotted-path fragments whose values are known to be long
// prose (converted documents, raw model output). Their previews get a larger
// limit than ordinary fields.
var longTextFields = []string{"markdown", "llm_response"}

// promptField marks fields carrying prompt text. They are redacted everywhere
// except in the configured prompt stage, so the full prompt is exported from
// exactly one place in a trace.
const promptField = "prompt"

// snapshotInput summarizes the configured input paths against the stage's
// input state. Prompt-like fields are redacted unless stage is the prompt
// stage; known long-text fields get an extended preview.
func (recorder *Recorder) snapshotInput(source any, paths []string, stage string, truncate bool) map[string]Descriptor {
	snapshot := make(map[string]Descriptor, len(paths))

	for _, path := range paths {
		lowered := strings.ToLower(path)
		isPromptStage := stage == recorder.promptStage

		if strings.Contains(lowered, promptField) && !isPromptStage && truncate {
			snapshot[path] = Descriptor{
				"type": "string",
				"note": RedactedMarker,
			}
			continue
		}

		limit := DefaultPreviewChars
		if containsAny(lowered, longTextFields) {
			limit = LongFieldPreviewChars
		}
		if !truncate || (isPromptStage && (strings.Contains(lowered, promptField) || containsAny(lowered, longTextFields))) {
			limit = NoLimit
		}

		snapshot[path] = Summarize(ResolvePath(source, path), limit)
	}

	return snapshot
}

// snapshotOutput summarizes the configured output paths against the stage's
// result, falling back to the input state for paths the result does not
// cover. This keeps output snapshots meaningful for stages that return only
// a partial update.
func (recorder *Recorder) snapshotOutput(result graph.State, input graph.State, paths []string, truncate bool) map[string]Descriptor {
	limit := OutputPreviewChars
	if !truncate {
		limit = NoLimit
	}

	snapshot := make(map[string]Descriptor, len(paths))

	for _, path := range paths {
		var value any

		top, rest, nested := strings.Cut(path, ".")
		if nested {
			if topValue, inResult := result[top]; inResult && topValue != nil {
				value = ResolvePath(topValue, rest)
			} else {
				value = ResolvePath(input, path)
			}
		} else {
			if topValue, inResult := result[path]; inResult {
				value = topValue
			} else {
				value = ResolvePath(input, path)
			}
		}

		snapshot[path] = Summarize(value, limit)
	}

	return snapshot
}

func containsAny(text string, fragments []string) bool {
	for _, fragment := range fragments {
		if strings.Contains(text, fragment) {
			return true
		}
	}
	return false
}

// ResolvePath walks a dotted path through nested maps, field dumpers and
// structs. A missing segment resolves to nil rather than an error: snapshot
// paths are configuration, and stale configuration must not break execution.
func ResolvePath(source any, path string) any {
	current := source
	for _, segment := range strings.Split(path, ".") {
		if current == nil {
			return nil
		}
		current = lookupSegment(current, segment)
	}
	return current
}

// lookupSegment resolves one path segment against a container value.
// Supported containers, in order: string-keyed maps, FieldDumper values,
// and structs (matched by yaml tag, json tag, exact field name, then
// case-insensitive field name).
func lookupSegment(container any, segment string) any {
	if stateMap, isState := container.(graph.State); isState {
		return stateMap[segment]
	}
	if plainMap, isMap := container.(map[string]any); isMap {
		return plainMap[segment]
	}

	if dumper, isDumper := container.(FieldDumper); isDumper {
		return dumper.DumpFields()[segment]
	}

	reflected := reflect.ValueOf(container)
	for reflected.Kind() == reflect.Pointer {
		if reflected.IsNil() {
			return nil
		}
		reflected = reflected.Elem()
	}

	switch reflected.Kind() {
	case reflect.Map:
		if reflected.Type().Key().Kind() != reflect.String {
			return nil
		}
		entry := reflected.MapIndex(reflect.ValueOf(segment).Convert(reflected.Type().Key()))
		if !entry.IsValid() {
			return nil
		}
		return entry.Interface()

	case reflect.Struct:
		return lookupStructField(reflected, segment)
	}

	return nil
}

func lookupStructField(structValue reflect.Value, segment string) any {
	structType := structValue.Type()

	for index := 0; index < structType.NumField(); index++ {
		field := structType.Field(index)
		if !field.IsExported() {
			continue
		}
		if tagName(field, "yaml") == segment || tagName(field, "json") == segment {
			return structValue.Field(index).Interface()
		}
	}

	for index := 0; index < structType.NumField(); index++ {
		field := structType.Field(index)
		if !field.IsExported() {
			continue
		}
		if field.Name == segment || strings.EqualFold(field.Name, segment) {
			return structValue.Field(index).Interface()
		}
	}

	return nil
}

func tagName(field reflect.StructField, tagKey string) string {
	tag := field.Tag.Get(tagKey)
	if tag == "" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}
