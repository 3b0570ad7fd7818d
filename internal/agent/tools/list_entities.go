package tools

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/eflow-agent/server/internal/resolver"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type ListEntitiesInput struct {
	Kind   string `json:"kind"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type EntitySummary struct {
	ID     any    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

type ListEntitiesOutput struct {
	Kind      string          `json:"kind"`
	Entities  []EntitySummary `json:"entities"`
	Total     int             `json:"total"`
	Truncated bool            `json:"truncated,omitempty"`
}

func createListEntitiesTool(up Upstream) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolListEntities,
			Desc: "List Everflow affiliates, offers or countries with their ids. Optionally narrow the list to names containing a search string.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"kind": kindParam(),
				"search": {
					Type: schema.String,
					Desc: "Case-insensitive text the name must contain.",
				},
				"limit": {
					Type: schema.Integer,
					Desc: "Maximum number of entities to return (default: 50, max: 500)",
				},
			}),
		},
		func(ctx context.Context, in *ListEntitiesInput) (*ListEntitiesOutput, error) {
			kind, err := parseKind(in.Kind)
			if err != nil {
				return nil, err
			}
			limit := in.Limit
			if limit <= 0 {
				limit = defaultListLimit
			}
			limit = clampInt(limit, 1, maxListLimit)

			search := resolver.NormalizeTerm(in.Search)
			fetchLimit := 0
			if search == "" {
				// one extra record tells us whether the list was cut
				fetchLimit = limit + 1
			}

			all, err := listKind(ctx, up, kind, fetchLimit)
			if err != nil {
				return nil, err
			}

			out := &ListEntitiesOutput{Kind: string(kind), Entities: []EntitySummary{}}
			for _, e := range all {
				if search != "" && !strings.Contains(resolver.NormalizeTerm(e.Name), search) {
					continue
				}
				out.Total++
				if len(out.Entities) < limit {
					out.Entities = append(out.Entities, e)
				}
			}
			out.Truncated = out.Total > len(out.Entities)
			if search == "" {
				out.Total = len(out.Entities)
			}
			return out, nil
		},
	)
}

func listKind(ctx context.Context, up Upstream, kind resolver.Kind, limit int) ([]EntitySummary, error) {
	var out []EntitySummary
	switch kind {
	case resolver.KindAffiliate:
		affs, err := up.FetchAffiliates(ctx, limit)
		if err != nil {
			return nil, err
		}
		for _, a := range affs {
			out = append(out, EntitySummary{ID: a.ID, Name: a.Name, Status: a.AccountStatus})
		}
	case resolver.KindOffer:
		offers, err := up.FetchOffers(ctx, limit)
		if err != nil {
			return nil, err
		}
		for _, o := range offers {
			out = append(out, EntitySummary{ID: o.ID, Name: o.Name, Status: o.OfferStatus})
		}
	case resolver.KindCountry:
		countries, err := up.FetchCountries(ctx, limit)
		if err != nil {
			return nil, err
		}
		for _, c := range countries {
			out = append(out, EntitySummary{ID: c.Code, Name: c.Name})
		}
	}
	return out, nil
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
