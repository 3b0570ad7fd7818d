package everflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	errx "github.com/eflow-agent/server/internal/core/error"
	"github.com/eflow-agent/server/internal/metrics"
	"github.com/eflow-agent/server/internal/validator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "https://api.eflow.team"})
	assert.Error(t, err)

	_, err = NewClient(Config{APIKey: "k", BaseURL: "not a url"})
	assert.Error(t, err)

	c, err := NewClient(Config{APIKey: "k", BaseURL: "https://api.eflow.team/"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezoneID, c.cfg.TimezoneID)
	assert.Equal(t, "https://api.eflow.team", c.baseURL)
}

func TestFetchAffiliatesPaginates(t *testing.T) {
	sizes := []int{50, 50, 20}
	var requests int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, validator.PathAffiliates, r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get(apiKeyHeader))
		assert.Equal(t, "50", r.URL.Query().Get("page_size"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		start := 0
		for _, n := range sizes[:page-1] {
			start += n
		}
		affs := make([]Affiliate, sizes[page-1])
		for i := range affs {
			id := int64(start + i + 1)
			affs[i] = Affiliate{ID: id, Name: fmt.Sprintf("Partner %d", id)}
		}
		writeJSON(w, map[string]any{"affiliates": affs, "paging": map[string]any{"page": page}})
	})

	got, err := c.FetchAffiliates(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 120)
	assert.EqualValues(t, 3, atomic.LoadInt32(&requests))
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "Partner 120", got[119].Name)
}

func TestFetchOffersDecodesNameFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, validator.PathOffers, r.URL.Path)
		fmt.Fprint(w, `{"offers":[{"network_offer_id":42,"name":"Summer Promo [US]","advertiser_name":"Acme","network_advertiser_id":7}],"paging":{"total_count":1}}`)
	})

	got, err := c.FetchOffers(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Offer{ID: 42, Name: "Summer Promo [US]", AdvertiserName: "Acme", AdvertiserID: 7}, got[0])
}

func TestFetchUpstreamErrorIsFetchFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	})

	got, err := c.FetchOffers(context.Background(), 0)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, errx.ErrFetchFailed)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode())
	assert.Contains(t, apiErr.Body, "boom")
}

func TestFetchMalformedBodyIsFetchFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"affiliates": [`)
	})

	_, err := c.FetchAffiliates(context.Background(), 0)
	assert.ErrorIs(t, err, errx.ErrFetchFailed)
}

func TestListTimeoutIsNotRetried(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL, ListTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.FetchAffiliates(context.Background(), 0)
	assert.ErrorIs(t, err, errx.ErrFetchFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, atomic.LoadInt32(&requests))
}

func TestFetchCountriesFromReport(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, validator.PathEntityReport, r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []any{map[string]any{"column": "country"}}, body["columns"])
		assert.Equal(t, "2024-03-01", body["from"])
		assert.Equal(t, "2024-03-31", body["to"])
		assert.EqualValues(t, 67, body["timezone_id"])
		assert.EqualValues(t, 100, body["page_size"])

		fmt.Fprint(w, `{"table":[
			{"columns":[{"column_type":"country","id":"US","label":"United States"}],"reporting":{"total_click":10}},
			{"columns":[{"column_type":"country","id":"US","label":"United States"}],"reporting":{"total_click":3}},
			{"country_code":"GB","country_name":"United Kingdom","country":"Great Britain"},
			{"country_code":"FR","country":"France"},
			{"reporting":{"total_click":1}}
		],"paging":{"total_count":0}}`)
	}, WithClock(func() time.Time { return now }))

	got, err := c.FetchCountries(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []Country{
		{Code: "US", Name: "United States"},
		{Code: "GB", Name: "United Kingdom", Aliases: []string{"Great Britain"}},
		{Code: "FR", Name: "France"},
	}, got)
}

func TestStrictValidationBlocksReport(t *testing.T) {
	var requests int32
	v := validator.New(validator.StaticSource{{
		Path:     validator.PathEntityReport,
		Method:   http.MethodPost,
		Required: []string{"columns", "from", "to", "timezone_id", "currency_id"},
	}})
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}, WithValidator(v), WithMetrics(m))

	_, err := c.EntityReport(context.Background(), ReportRequest{Columns: []string{ColumnOffer}})
	assert.ErrorIs(t, err, errx.ErrValidation)
	assert.NotErrorIs(t, err, errx.ErrFetchFailed)
	assert.Contains(t, err.Error(), "missing required parameter: currency_id")
	assert.Zero(t, atomic.LoadInt32(&requests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationFailures.WithLabelValues(validator.PathEntityReport, "strict")))
}

func TestLenientValidationSendsListRequest(t *testing.T) {
	// table without the affiliates endpoint: the call is flagged but still sent
	v := validator.New(validator.StaticSource{{Path: validator.PathOffers, Method: http.MethodGet}})

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"affiliates": []Affiliate{{ID: 1, Name: "A"}}})
	}, WithValidator(v))

	got, err := c.FetchAffiliates(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestEntityReport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "EUR", body["currency_id"])
		query := body["query"].(map[string]any)
		assert.Equal(t, []any{map[string]any{"resource_type": "offer", "filter_id_value": "42"}}, query["filters"])

		fmt.Fprint(w, `{"table":[{"columns":[{"column_type":"offer","id":42,"label":"Summer Promo"}],"reporting":{"total_click":12,"cv":2}}],"summary":{"total_click":12}}`)
	}, WithValidator(validator.New(nil)))

	resp, err := c.EntityReport(context.Background(), ReportRequest{
		Columns:    []string{ColumnOffer},
		Filters:    []Filter{{ResourceType: ColumnOffer, FilterIDValue: "42"}},
		From:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		CurrencyID: "EUR",
	})
	require.NoError(t, err)
	require.Len(t, resp.Table, 1)

	col, ok := resp.Table[0].Column(ColumnOffer)
	require.True(t, ok)
	assert.Equal(t, FlexString("42"), col.ID)
	assert.EqualValues(t, 12, resp.Table[0].Reporting["total_click"])
}

func TestEntityReportRejectsInvertedRange(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not be sent")
	})

	_, err := c.EntityReport(context.Background(), ReportRequest{
		Columns: []string{ColumnOffer},
		From:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		To:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
}

func TestUpdateConversionStatus(t *testing.T) {
	var requests int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, validator.PathConversionStatuses, r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []any{"c1", "c2"}, body["conversion_ids"])
		assert.Equal(t, "approved", body["status"])
		writeJSON(w, map[string]any{"updated": 2})
	}, WithValidator(validator.New(nil)))

	res, err := c.UpdateConversionStatus(context.Background(), []string{"c1", "c2"}, " Approved ")
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Raw["updated"])

	_, err = c.UpdateConversionStatus(context.Background(), []string{"c1"}, "deleted")
	assert.Error(t, err)
	_, err = c.UpdateConversionStatus(context.Background(), nil, StatusApproved)
	assert.Error(t, err)

	// a single failing call is reported as-is; no alternative endpoints are tried
	failing := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	_, err = failing.UpdateConversionStatus(context.Background(), []string{"c1"}, StatusRejected)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.EqualValues(t, 2, atomic.LoadInt32(&requests))
}

func TestFiltersFromBundle(t *testing.T) {
	filters, ignored := FiltersFromBundle(map[string]any{
		"offer_id":     int64(42),
		"country_code": "US",
		"source_id":    1,
	})
	assert.Equal(t, []Filter{
		{ResourceType: ColumnCountry, FilterIDValue: "US"},
		{ResourceType: ColumnOffer, FilterIDValue: "42"},
	}, filters)
	assert.Equal(t, []string{"source_id"}, ignored)
}

func TestFlexString(t *testing.T) {
	var cols []ReportColumn
	require.NoError(t, json.Unmarshal([]byte(`[{"id":"US"},{"id":123},{"id":null}]`), &cols))
	assert.Equal(t, FlexString("US"), cols[0].ID)
	assert.Equal(t, FlexString("123"), cols[1].ID)
	assert.Equal(t, FlexString(""), cols[2].ID)
}

func TestRequestPayloadFromQuery(t *testing.T) {
	req := request{query: pageQuery(2, 50)}
	assert.Equal(t, map[string]any{"page": 2, "page_size": 50}, req.payload())

	body := map[string]any{"columns": []any{}}
	assert.Equal(t, body, request{body: body, query: pageQuery(1, 50)}.payload())

	assert.Nil(t, request{}.payload())
}
