package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	errx "github.com/eflow-agent/server/internal/core/error"
	"github.com/eflow-agent/server/internal/everflow"
	"github.com/eflow-agent/server/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	affiliates []everflow.Affiliate
	offers     []everflow.Offer
	countries  []everflow.Country

	fetchErr   error
	lastLimit  int
	reports    []everflow.ReportRequest
	reportResp *everflow.ReportResponse
	statusIDs  []string
	status     string
}

func (f *fakeUpstream) FetchAffiliates(_ context.Context, limit int) ([]everflow.Affiliate, error) {
	f.lastLimit = limit
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit > 0 && limit < len(f.affiliates) {
		return f.affiliates[:limit], nil
	}
	return f.affiliates, nil
}

func (f *fakeUpstream) FetchOffers(_ context.Context, limit int) ([]everflow.Offer, error) {
	f.lastLimit = limit
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit > 0 && limit < len(f.offers) {
		return f.offers[:limit], nil
	}
	return f.offers, nil
}

func (f *fakeUpstream) FetchCountries(_ context.Context, limit int) ([]everflow.Country, error) {
	f.lastLimit = limit
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.countries, nil
}

func (f *fakeUpstream) EntityReport(_ context.Context, req everflow.ReportRequest) (*everflow.ReportResponse, error) {
	f.reports = append(f.reports, req)
	if f.reportResp == nil {
		return &everflow.ReportResponse{}, nil
	}
	return f.reportResp, nil
}

func (f *fakeUpstream) UpdateConversionStatus(_ context.Context, ids []string, status string) (*everflow.StatusUpdate, error) {
	f.statusIDs, f.status = ids, status
	return &everflow.StatusUpdate{Raw: map[string]any{"result": true}}, nil
}

func newUpstream() *fakeUpstream {
	return &fakeUpstream{
		affiliates: []everflow.Affiliate{
			{ID: 7, Name: "Acme Media", AccountStatus: "active"},
			{ID: 8, Name: "Blue Ocean Partners", AccountStatus: "active"},
			{ID: 9, Name: "Acme Labs", AccountStatus: "inactive"},
		},
		offers: []everflow.Offer{
			{ID: 42, Name: "Summer Promo [US]", OfferStatus: "active"},
			{ID: 44, Name: "toes-nut-exalt", OfferStatus: "paused"},
		},
		countries: []everflow.Country{{Code: "US", Name: "United States"}},
	}
}

func buildTools(t *testing.T, up *fakeUpstream) map[string]tool.InvokableTool {
	t.Helper()
	ts, err := New(Deps{Resolver: resolver.New(up), Upstream: up})
	require.NoError(t, err)

	out := make(map[string]tool.InvokableTool, len(ts))
	for _, bt := range ts {
		info, err := bt.Info(context.Background())
		require.NoError(t, err)
		it, ok := bt.(tool.InvokableTool)
		require.True(t, ok, info.Name)
		out[info.Name] = it
	}
	return out
}

func run(t *testing.T, it tool.InvokableTool, args string) map[string]any {
	t.Helper()
	raw, err := it.InvokableRun(context.Background(), args)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestToolOrder(t *testing.T) {
	up := newUpstream()
	ts, err := New(Deps{Resolver: resolver.New(up), Upstream: up})
	require.NoError(t, err)

	names := make([]string, 0, len(ts))
	for _, bt := range ts {
		info, err := bt.Info(context.Background())
		require.NoError(t, err)
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{ToolResolveEntity, ToolListEntities, ToolEntityReport, ToolUpdateConversionStatus}, names)
}

func TestResolveEntityTool(t *testing.T) {
	ts := buildTools(t, newUpstream())

	out := run(t, ts[ToolResolveEntity], `{"kind":"offer","value":"summer promo (us)"}`)
	assert.Equal(t, true, out["found"])
	assert.Equal(t, 42.0, out["id"])
	assert.Equal(t, "Summer Promo [US]", out["name"])
	assert.Equal(t, "normalized", out["match"])

	out = run(t, ts[ToolResolveEntity], `{"kind":"affiliate","value":8}`)
	assert.Equal(t, 8.0, out["id"])
	assert.Equal(t, "pass_through", out["match"])

	out = run(t, ts[ToolResolveEntity], `{"kind":"offer","value":"does-not-exist"}`)
	assert.Equal(t, false, out["found"])
	require.NotEmpty(t, out["suggestions"])
	first := out["suggestions"].([]any)[0].(map[string]any)
	assert.Equal(t, "toes-nut-exalt", first["name"])

	_, err := ts[ToolResolveEntity].InvokableRun(context.Background(), `{"kind":"advertiser","value":"x"}`)
	assert.ErrorContains(t, err, "unknown kind")
}

func TestResolveEntityToolFetchFailure(t *testing.T) {
	up := newUpstream()
	up.fetchErr = errors.New("boom")
	ts := buildTools(t, up)

	_, err := ts[ToolResolveEntity].InvokableRun(context.Background(), `{"kind":"offer","value":"x"}`)
	assert.Error(t, err)
}

func TestListEntitiesTool(t *testing.T) {
	up := newUpstream()
	ts := buildTools(t, up)

	out := run(t, ts[ToolListEntities], `{"kind":"affiliate","search":"ACME"}`)
	assert.Equal(t, 2.0, out["total"])
	assert.Zero(t, up.lastLimit, "search lists the whole collection")
	entities := out["entities"].([]any)
	require.Len(t, entities, 2)
	assert.Equal(t, "Acme Media", entities[0].(map[string]any)["name"])

	out = run(t, ts[ToolListEntities], `{"kind":"affiliate","limit":2}`)
	assert.Equal(t, 3, up.lastLimit)
	assert.Len(t, out["entities"], 2)
	assert.Equal(t, true, out["truncated"])

	out = run(t, ts[ToolListEntities], `{"kind":"country"}`)
	assert.Equal(t, "US", out["entities"].([]any)[0].(map[string]any)["id"])
	assert.Nil(t, out["truncated"])
}

func TestEntityReportTool(t *testing.T) {
	up := newUpstream()
	up.reportResp = &everflow.ReportResponse{
		Table: []everflow.ReportRow{{
			Columns:   []everflow.ReportColumn{{ColumnType: "offer", ID: "42", Label: "Summer Promo [US]"}},
			Reporting: map[string]any{"total_click": 10.0},
		}},
	}
	up.reportResp.Paging.TotalCount = 1
	ts := buildTools(t, up)

	out := run(t, ts[ToolEntityReport], `{
		"columns": ["offer"],
		"filters": {"offer_name": "Summer Promo [US]", "affiliate_id": 7, "source_id": 3},
		"from": "2024-03-01", "to": "2024-03-31", "page_size": 50
	}`)
	assert.Equal(t, 1.0, out["total"])
	assert.Len(t, out["rows"], 1)
	assert.Equal(t, []any{"source_id"}, out["ignored_filters"])

	require.Len(t, up.reports, 1)
	req := up.reports[0]
	assert.Equal(t, []string{"offer"}, req.Columns)
	assert.Equal(t, []everflow.Filter{
		{ResourceType: everflow.ColumnAffiliate, FilterIDValue: "7"},
		{ResourceType: everflow.ColumnOffer, FilterIDValue: "42"},
	}, req.Filters)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), req.From)
	assert.Equal(t, 50, req.PageSize)
}

func TestEntityReportToolUnresolved(t *testing.T) {
	up := newUpstream()
	ts := buildTools(t, up)

	out := run(t, ts[ToolEntityReport], `{"columns":["offer"],"filters":{"offer_name":"does-not-exist"}}`)
	assert.Contains(t, out["message"], `offer_name "does-not-exist" not found`)
	assert.Len(t, out["unresolved"], 1)
	assert.Empty(t, up.reports, "no report is run with unresolved filters")
}

func TestEntityReportToolInputErrors(t *testing.T) {
	ts := buildTools(t, newUpstream())
	ctx := context.Background()

	_, err := ts[ToolEntityReport].InvokableRun(ctx, `{"columns":[]}`)
	assert.ErrorContains(t, err, "columns is required")

	_, err = ts[ToolEntityReport].InvokableRun(ctx, `{"columns":["offer"],"from":"03/01/2024"}`)
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestEntityReportToolFetchFailure(t *testing.T) {
	up := newUpstream()
	up.fetchErr = errx.WrapFetch(errors.New("down"))
	ts := buildTools(t, up)

	_, err := ts[ToolEntityReport].InvokableRun(context.Background(), `{"columns":["offer"],"filters":{"offer_name":"x"}}`)
	assert.Error(t, err)
	assert.Empty(t, up.reports)
}

func TestUpdateConversionStatusTool(t *testing.T) {
	up := newUpstream()
	ts := buildTools(t, up)

	out := run(t, ts[ToolUpdateConversionStatus], `{"conversion_ids":["c1","c2"],"status":"approved"}`)
	assert.Equal(t, 2.0, out["updated"])
	assert.Equal(t, []string{"c1", "c2"}, up.statusIDs)
	assert.Equal(t, "approved", up.status)
}

func TestSanitizeArguments(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		tool string
		in   string
		want string
	}{
		{"kind lowered", ToolResolveEntity, `{"kind":" Offer ","value":" Summer "}`, `{"kind":"offer","value":"Summer"}`},
		{"numeric value kept", ToolResolveEntity, `{"kind":"offer","value":42}`, `{"kind":"offer","value":42}`},
		{"limit clamped", ToolListEntities, `{"kind":"offer","limit":9000}`, `{"kind":"offer","limit":500}`},
		{"limit from string", ToolListEntities, `{"kind":"offer","limit":"20"}`, `{"kind":"offer","limit":20}`},
		{"bad limit dropped", ToolListEntities, `{"kind":"offer","limit":"lots"}`, `{"kind":"offer"}`},
		{"column string", ToolEntityReport, `{"columns":"offer, country"}`, `{"columns":["offer","country"]}`},
		{"column objects", ToolEntityReport, `{"columns":[{"column":"offer"}]}`, `{"columns":["offer"]}`},
		{"filters must be an object", ToolEntityReport, `{"columns":["offer"],"filters":"offer_id=1"}`, `{"columns":["offer"]}`},
		{"page size clamped", ToolEntityReport, `{"columns":["offer"],"page_size":500}`, `{"columns":["offer"],"page_size":100}`},
		{"single id", ToolUpdateConversionStatus, `{"conversion_ids":"c1","status":"APPROVED"}`, `{"conversion_ids":["c1"],"status":"approved"}`},
		{"numeric ids", ToolUpdateConversionStatus, `{"conversion_ids":[123,"c2"],"status":"pending"}`, `{"conversion_ids":["123","c2"],"status":"pending"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeArguments(ctx, tt.tool, tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}

	got, err := SanitizeArguments(ctx, ToolResolveEntity, "not json")
	require.NoError(t, err)
	assert.Equal(t, "not json", got)
}
