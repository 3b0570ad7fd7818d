package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/eflow-agent/server/internal/resolver"
)

type ResolveEntityInput struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

type ResolveEntityOutput struct {
	Kind        string                `json:"kind"`
	Found       bool                  `json:"found"`
	ID          any                   `json:"id,omitempty"`
	Name        string                `json:"name,omitempty"`
	Match       string                `json:"match,omitempty"`
	Score       float64               `json:"score,omitempty"`
	Suggestions []resolver.Suggestion `json:"suggestions,omitempty"`
}

func createResolveEntityTool(r Resolver) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolResolveEntity,
			Desc: "Look up the Everflow identifier of an affiliate, offer or country by name. Numeric ids and two or three letter country codes are returned as is. When nothing matches, up to five similar names are suggested with a match percentage.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"kind": kindParam(),
				"value": {
					Type:     schema.String,
					Desc:     "Name to look up, e.g. \"Summer Promo [US]\", \"Acme Media\", \"United Kingdom\". An id or country code is also accepted.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *ResolveEntityInput) (*ResolveEntityOutput, error) {
			kind, err := parseKind(in.Kind)
			if err != nil {
				return nil, err
			}

			res, err := r.ResolveWithSuggestions(ctx, kind, in.Value)
			if err != nil {
				return nil, err
			}

			out := &ResolveEntityOutput{Kind: string(kind), Found: res.Found(), Suggestions: res.Suggestions}
			if res.Found() {
				out.ID = res.Value()
				out.Name = res.Name
				out.Match = res.Rung.String()
				out.Score = res.Score
			}
			return out, nil
		},
	)
}
