package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/eflow-agent/server/internal/everflow"
	"github.com/eflow-agent/server/internal/resolver"
	logx "github.com/eflow-agent/server/pkg/logger"
)

const (
	dateLayout        = "2006-01-02"
	maxReportPageSize = 100
)

type EntityReportInput struct {
	Columns  []string       `json:"columns"`
	Filters  map[string]any `json:"filters,omitempty"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to,omitempty"`
	Page     int            `json:"page,omitempty"`
	PageSize int            `json:"page_size,omitempty"`
}

type EntityReportOutput struct {
	Filters    []everflow.Filter       `json:"filters,omitempty"`
	Ignored    []string                `json:"ignored_filters,omitempty"`
	Rows       []everflow.ReportRow    `json:"rows,omitempty"`
	Total      int                     `json:"total,omitempty"`
	Unresolved []resolver.FieldFailure `json:"unresolved,omitempty"`
	Message    string                  `json:"message,omitempty"`
}

func createEntityReportTool(r Resolver, up Upstream) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolEntityReport,
			Desc: "Run an Everflow entity report grouped by the given columns. Filters may use names (offer_name, affiliate_name, country_name, country) or ids (offer_id, affiliate_id, advertiser_id, country_code); names are resolved to ids first. Dates default to the last 30 days.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"columns": {
					Type:     schema.Array,
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Desc:     "Grouping columns, e.g. [\"offer\", \"country\"].",
					Required: true,
				},
				"filters": {
					Type: schema.Object,
					Desc: "Filter bundle keyed by filter name.",
					SubParams: map[string]*schema.ParameterInfo{
						"offer_name":     {Type: schema.String},
						"affiliate_name": {Type: schema.String},
						"country_name":   {Type: schema.String},
						"country":        {Type: schema.String},
						"offer_id":       {Type: schema.Integer},
						"affiliate_id":   {Type: schema.Integer},
						"advertiser_id":  {Type: schema.Integer},
						"country_code":   {Type: schema.String},
					},
				},
				"from":      {Type: schema.String, Desc: "Start date, YYYY-MM-DD."},
				"to":        {Type: schema.String, Desc: "End date, YYYY-MM-DD."},
				"page":      {Type: schema.Integer, Desc: "Page number, starting at 1."},
				"page_size": {Type: schema.Integer, Desc: "Rows per page (max: 100)"},
			}),
		},
		func(ctx context.Context, in *EntityReportInput) (*EntityReportOutput, error) {
			req := everflow.ReportRequest{Page: in.Page, PageSize: in.PageSize}
			for _, c := range in.Columns {
				if c = strings.TrimSpace(c); c != "" {
					req.Columns = append(req.Columns, c)
				}
			}
			if len(req.Columns) == 0 {
				return nil, fmt.Errorf("columns is required")
			}
			if req.PageSize > maxReportPageSize {
				req.PageSize = maxReportPageSize
			}

			var err error
			if req.From, err = parseDate("from", in.From); err != nil {
				return nil, err
			}
			if req.To, err = parseDate("to", in.To); err != nil {
				return nil, err
			}

			bundle, err := r.ResolveFilterBundle(ctx, in.Filters)
			if err != nil {
				var bundleErr *resolver.BundleError
				if errors.As(err, &bundleErr) {
					return &EntityReportOutput{Unresolved: bundleErr.Failures, Message: bundleErr.Error()}, nil
				}
				return nil, err
			}

			var ignored []string
			req.Filters, ignored = everflow.FiltersFromBundle(bundle)
			if len(ignored) > 0 {
				logx.Debug().Strs("ignored", ignored).Msg("Filters without a report resource")
			}

			resp, err := up.EntityReport(ctx, req)
			if err != nil {
				return nil, err
			}
			return &EntityReportOutput{
				Filters: req.Filters,
				Ignored: ignored,
				Rows:    resp.Table,
				Total:   resp.Paging.TotalCount,
			}, nil
		},
	)
}

func parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a YYYY-MM-DD date, got %q", field, v)
	}
	return t, nil
}
