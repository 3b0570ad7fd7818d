package everflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	errx "github.com/eflow-agent/server/internal/core/error"
	"github.com/eflow-agent/server/internal/validator"
)

const dateLayout = "2006-01-02"

// Report column and filter resource names.
const (
	ColumnOffer      = "offer"
	ColumnAffiliate  = "affiliate"
	ColumnAdvertiser = "advertiser"
	ColumnCountry    = "country"
)

// bundleFilterKeys maps resolved filter bundle keys to report resource types.
var bundleFilterKeys = map[string]string{
	"offer_id":      ColumnOffer,
	"affiliate_id":  ColumnAffiliate,
	"advertiser_id": ColumnAdvertiser,
	"country_code":  ColumnCountry,
}

// Filter narrows a report to one entity.
type Filter struct {
	ResourceType  string `json:"resource_type"`
	FilterIDValue string `json:"filter_id_value"`
}

// ReportRequest is an entity report query.
type ReportRequest struct {
	Columns    []string
	Filters    []Filter
	From       time.Time
	To         time.Time
	TimezoneID int
	CurrencyID string
	Page       int
	PageSize   int
}

// Payload renders the request body. Columns are sent as {"column": name} objects.
func (r ReportRequest) Payload() map[string]any {
	columns := make([]map[string]any, 0, len(r.Columns))
	for _, c := range r.Columns {
		columns = append(columns, map[string]any{"column": c})
	}
	filters := make([]map[string]any, 0, len(r.Filters))
	for _, f := range r.Filters {
		filters = append(filters, map[string]any{
			"resource_type":   f.ResourceType,
			"filter_id_value": f.FilterIDValue,
		})
	}

	p := map[string]any{
		"columns":     columns,
		"query":       map[string]any{"filters": filters},
		"from":        r.From.Format(dateLayout),
		"to":          r.To.Format(dateLayout),
		"timezone_id": r.TimezoneID,
	}
	if r.CurrencyID != "" {
		p["currency_id"] = r.CurrencyID
	}
	if r.Page > 0 {
		p["page"] = r.Page
	}
	if r.PageSize > 0 {
		p["page_size"] = r.PageSize
	}
	return p
}

// FiltersFromBundle turns a resolved filter bundle into report filters. Keys
// that are not entity identifiers are returned as ignored, sorted.
func FiltersFromBundle(bundle map[string]any) (filters []Filter, ignored []string) {
	keys := make([]string, 0, len(bundle))
	for k := range bundle {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		resource, ok := bundleFilterKeys[k]
		if !ok || bundle[k] == nil {
			ignored = append(ignored, k)
			continue
		}
		filters = append(filters, Filter{ResourceType: resource, FilterIDValue: fmt.Sprint(bundle[k])})
	}
	return filters, ignored
}

// FlexString accepts a JSON string or number.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// ReportColumn identifies the entity a report row is grouped by.
type ReportColumn struct {
	ColumnType string     `json:"column_type"`
	ID         FlexString `json:"id"`
	Label      string     `json:"label"`
}

// ReportRow is one grouped row with its metrics.
type ReportRow struct {
	Columns   []ReportColumn `json:"columns"`
	Reporting map[string]any `json:"reporting"`

	// Flat country fields returned by some report variants.
	CountryCode string `json:"country_code,omitempty"`
	CountryName string `json:"country_name,omitempty"`
	CountryText string `json:"country,omitempty"`
}

// Column returns the grouping column of the given type.
func (r ReportRow) Column(columnType string) (ReportColumn, bool) {
	for _, c := range r.Columns {
		if c.ColumnType == columnType {
			return c, true
		}
	}
	return ReportColumn{}, false
}

// Country extracts the row's country. Code is empty when the row has none.
func (r ReportRow) Country() Country {
	if col, ok := r.Column(ColumnCountry); ok && col.ID != "" {
		name := col.Label
		if name == "" {
			name = string(col.ID)
		}
		return Country{Code: string(col.ID), Name: name}
	}
	if r.CountryCode == "" {
		return Country{}
	}
	c := Country{Code: r.CountryCode}
	for _, name := range []string{r.CountryName, r.CountryText} {
		switch {
		case name == "" || name == c.Name:
		case c.Name == "":
			c.Name = name
		default:
			c.Aliases = append(c.Aliases, name)
		}
	}
	if c.Name == "" {
		c.Name = r.CountryCode
	}
	return c
}

// ReportResponse is an entity report page.
type ReportResponse struct {
	Table   []ReportRow    `json:"table"`
	Paging  paging         `json:"paging"`
	Summary map[string]any `json:"summary,omitempty"`
}

func (c *Client) report(ctx context.Context, req ReportRequest) (*ReportResponse, error) {
	if len(req.Columns) == 0 {
		return nil, errors.New("report needs at least one column")
	}
	if req.TimezoneID == 0 {
		req.TimezoneID = c.cfg.TimezoneID
	}
	if req.CurrencyID == "" {
		req.CurrencyID = c.cfg.CurrencyID
	}
	if req.To.IsZero() {
		req.To = c.now()
	}
	if req.From.IsZero() {
		req.From = req.To.Add(-countryLookbackPeriod)
	}
	if req.From.After(req.To) {
		return nil, fmt.Errorf("report range starts after it ends: %s > %s",
			req.From.Format(dateLayout), req.To.Format(dateLayout))
	}

	var resp ReportResponse
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    validator.PathEntityReport,
		body:    req.Payload(),
		timeout: c.cfg.ReportTimeout,
		policy:  PolicyStrict,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// EntityReport runs one page of an entity report. Missing timezone, currency
// and date range fall back to the client defaults and the last 30 days.
func (c *Client) EntityReport(ctx context.Context, req ReportRequest) (*ReportResponse, error) {
	resp, err := c.report(ctx, req)
	if err != nil {
		if errors.Is(err, errx.ErrValidation) {
			return nil, err
		}
		return nil, errx.WrapFetch(err)
	}
	return resp, nil
}

// Conversion statuses accepted by UpdateConversionStatus.
const (
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusInvalid  = "invalid"
	StatusPending  = "pending"
)

// StatusUpdate is the upstream acknowledgement of a status change.
type StatusUpdate struct {
	Raw map[string]any
}

// UpdateConversionStatus sets the status of the given conversions through the
// bulk status endpoint, the single endpoint used for one or many conversions.
func (c *Client) UpdateConversionStatus(ctx context.Context, ids []string, status string) (*StatusUpdate, error) {
	if len(ids) == 0 {
		return nil, errors.New("at least one conversion id is required")
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case StatusApproved, StatusRejected, StatusInvalid, StatusPending:
	default:
		return nil, fmt.Errorf("unsupported conversion status %q", status)
	}

	var raw map[string]any
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    validator.PathConversionStatuses,
		body:    map[string]any{"conversion_ids": ids, "status": status},
		timeout: c.cfg.ListTimeout,
		policy:  PolicyStrict,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("update conversion status: %w", err)
	}
	return &StatusUpdate{Raw: raw}, nil
}
