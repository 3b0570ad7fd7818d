package everflow

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/eflow-agent/server/internal/validator"
)

// Affiliate is a network partner.
type Affiliate struct {
	ID            int64  `json:"network_affiliate_id"`
	Name          string `json:"name"`
	AccountStatus string `json:"account_status,omitempty"`
}

// Offer is a network offer. Any of its name fields may be used to look it up.
type Offer struct {
	ID             int64  `json:"network_offer_id"`
	Name           string `json:"name"`
	AdvertiserID   int64  `json:"network_advertiser_id,omitempty"`
	AdvertiserName string `json:"advertiser_name,omitempty"`
	Advertiser     string `json:"advertiser,omitempty"`
	OfferStatus    string `json:"offer_status,omitempty"`
	DestinationURL string `json:"destination_url,omitempty"`
}

// Country is a country with traffic in the lookback window.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
	// Aliases are other name fields the row carried, such as "country".
	Aliases []string `json:"aliases,omitempty"`
}

type paging struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

type affiliatesPage struct {
	Affiliates []Affiliate `json:"affiliates"`
	Paging     paging      `json:"paging"`
}

type offersPage struct {
	Offers []Offer `json:"offers"`
	Paging paging  `json:"paging"`
}

func pageQuery(page, pageSize int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	return q
}

// FetchAffiliates returns every affiliate, or at most limit when limit > 0.
func (c *Client) FetchAffiliates(ctx context.Context, limit int) ([]Affiliate, error) {
	const resource = "affiliates"
	out, err := FetchAll(ctx, resource, func(ctx context.Context, page, pageSize int) (Page[Affiliate], error) {
		var resp affiliatesPage
		err := c.do(ctx, request{
			method:  http.MethodGet,
			path:    validator.PathAffiliates,
			query:   pageQuery(page, pageSize),
			timeout: c.cfg.ListTimeout,
			policy:  PolicyLenient,
		}, &resp)
		if err != nil {
			return Page[Affiliate]{}, err
		}
		c.metrics.ObservePage(resource)
		return Page[Affiliate]{Records: resp.Affiliates, TotalCount: resp.Paging.TotalCount}, nil
	}, PageOptions[Affiliate]{
		PageSize: listPageSize,
		Limit:    limit,
		Key:      func(a Affiliate) string { return idKey(a.ID) },
	})
	if err != nil {
		c.metrics.ObserveFetchFailure(resource)
	}
	return out, err
}

// FetchOffers returns every offer, or at most limit when limit > 0.
func (c *Client) FetchOffers(ctx context.Context, limit int) ([]Offer, error) {
	const resource = "offers"
	out, err := FetchAll(ctx, resource, func(ctx context.Context, page, pageSize int) (Page[Offer], error) {
		var resp offersPage
		err := c.do(ctx, request{
			method:  http.MethodGet,
			path:    validator.PathOffers,
			query:   pageQuery(page, pageSize),
			timeout: c.cfg.ListTimeout,
			policy:  PolicyLenient,
		}, &resp)
		if err != nil {
			return Page[Offer]{}, err
		}
		c.metrics.ObservePage(resource)
		return Page[Offer]{Records: resp.Offers, TotalCount: resp.Paging.TotalCount}, nil
	}, PageOptions[Offer]{
		PageSize: listPageSize,
		Limit:    limit,
		Key:      func(o Offer) string { return idKey(o.ID) },
	})
	if err != nil {
		c.metrics.ObserveFetchFailure(resource)
	}
	return out, err
}

// FetchCountries returns the countries that had traffic in the last 30 days,
// read from an entity report grouped by country.
func (c *Client) FetchCountries(ctx context.Context, limit int) ([]Country, error) {
	const resource = "countries"
	to := c.now()
	from := to.Add(-countryLookbackPeriod)

	out, err := FetchAll(ctx, resource, func(ctx context.Context, page, pageSize int) (Page[Country], error) {
		resp, err := c.report(ctx, ReportRequest{
			Columns:  []string{ColumnCountry},
			From:     from,
			To:       to,
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			return Page[Country]{}, err
		}
		c.metrics.ObservePage(resource)

		// one record per row so a short page still ends the fetch;
		// rows without a code carry an empty key and are dropped
		countries := make([]Country, len(resp.Table))
		for i, row := range resp.Table {
			countries[i] = row.Country()
		}
		return Page[Country]{Records: countries, TotalCount: resp.Paging.TotalCount}, nil
	}, PageOptions[Country]{
		PageSize: reportPageSize,
		Limit:    limit,
		Key:      func(country Country) string { return country.Code },
	})
	if err != nil {
		c.metrics.ObserveFetchFailure(resource)
	}
	return out, err
}

func idKey(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
