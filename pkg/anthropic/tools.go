package anthropic

import (
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
)

// Tool describes a tool the model may call. Properties is the JSON Schema
// "properties" object of the tool input.
type Tool struct {
	Name        string
	Description string
	Properties  map[string]any
}

func toSDKTools(tools []Tool) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, len(tools))
	for i, t := range tools {
		tool := sdk.ToolParam{
			Name:        t.Name,
			InputSchema: sdk.ToolInputSchemaParam{Properties: t.Properties},
		}
		if t.Description != "" {
			tool.Description = sdk.String(t.Description)
		}
		out[i] = sdk.ToolUnionParam{OfTool: &tool}
	}
	return out
}

// DecodeToolInput unmarshals the input of the named tool call into v and
// returns the raw input.
func DecodeToolInput(resp *MessageResponse, name string, v any) (json.RawMessage, error) {
	raw, ok := resp.ToolInput(name)
	if !ok {
		return nil, eris.Errorf("anthropic: response has no %s tool call", name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return raw, eris.Wrapf(err, "anthropic: decode %s input", name)
	}
	return raw, nil
}
