package gemini

import (
	"google.golang.org/genai"

	"github.com/spigell/socius/internal/ai"
)

var schemaTypes = map[ai.SchemaType]genai.Type{
	ai.TypeObject:  genai.TypeObject,
	ai.TypeString:  genai.TypeString,
	ai.TypeInteger: genai.TypeInteger,
	ai.TypeNumber:  genai.TypeNumber,
	ai.TypeBoolean: genai.TypeBoolean,
	ai.TypeArray:   genai.TypeArray,
}

func toGenaiSchema(s *ai.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Type:        schemaTypes[s.Type],
		Description: s.Description,
		Required:    append([]string(nil), s.Required...),
		Enum:        append([]string(nil), s.Enum...),
		Items:       toGenaiSchema(s.Items),
	}

	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}

	return out
}
