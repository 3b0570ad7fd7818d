package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/eflow-agent/server/internal/everflow"
	"github.com/eflow-agent/server/internal/resolver"
)

// Tool names exposed to the agent.
const (
	ToolResolveEntity          = "resolve_entity"
	ToolListEntities           = "list_entities"
	ToolEntityReport           = "entity_report"
	ToolUpdateConversionStatus = "update_conversion_status"
)

// Resolver turns entity names into identifiers.
type Resolver interface {
	ResolveWithSuggestions(ctx context.Context, kind resolver.Kind, value any) (resolver.Resolution, error)
	ResolveFilterBundle(ctx context.Context, filters map[string]any) (map[string]any, error)
}

// Upstream is the subset of the Everflow client the tools call.
type Upstream interface {
	resolver.Source
	EntityReport(ctx context.Context, req everflow.ReportRequest) (*everflow.ReportResponse, error)
	UpdateConversionStatus(ctx context.Context, ids []string, status string) (*everflow.StatusUpdate, error)
}

type Deps struct {
	Resolver Resolver
	Upstream Upstream
}

// New returns every workflow tool bound to deps.
func New(deps Deps) ([]tool.BaseTool, error) {
	if deps.Resolver == nil || deps.Upstream == nil {
		return nil, fmt.Errorf("tools need both a resolver and an upstream client")
	}
	return []tool.BaseTool{
		createResolveEntityTool(deps.Resolver),
		createListEntitiesTool(deps.Upstream),
		createEntityReportTool(deps.Resolver, deps.Upstream),
		createUpdateConversionStatusTool(deps.Upstream),
	}, nil
}

func kindParam() *schema.ParameterInfo {
	return &schema.ParameterInfo{
		Type:     schema.String,
		Desc:     "Entity type to look up.",
		Enum:     []string{string(resolver.KindAffiliate), string(resolver.KindOffer), string(resolver.KindCountry)},
		Required: true,
	}
}

func parseKind(s string) (resolver.Kind, error) {
	kind, ok := resolver.ParseKind(s)
	if !ok {
		return "", fmt.Errorf("unknown kind %q (expected affiliate, offer or country)", s)
	}
	return kind, nil
}
