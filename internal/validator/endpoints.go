package validator

import "net/http"

// Endpoint paths known to the default table.
const (
	PathEntityReport       = "/v1/networks/reporting/entity"
	PathEntityExport       = "/v1/networks/reporting/entity/table/export"
	PathConversions        = "/v1/networks/reporting/conversions"
	PathConversionsExport  = "/v1/networks/reporting/conversions/export"
	PathAffiliates         = "/v1/networks/affiliates"
	PathOffers             = "/v1/networks/offers"
	PathConversionStatuses = "/v1/networks/conversions/bulk-status"
)

// Parameter type names used in EndpointSpec.Types.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// EndpointSpec describes one upstream API surface.
type EndpointSpec struct {
	Path        string            `yaml:"path"`
	Method      string            `yaml:"method"`
	Description string            `yaml:"description,omitempty"`
	Required    []string          `yaml:"required,omitempty"`
	Optional    []string          `yaml:"optional,omitempty"`
	Types       map[string]string `yaml:"types,omitempty"`
	Deprecated  bool              `yaml:"deprecated,omitempty"`
	Replacement string            `yaml:"replacement,omitempty"`
}

func (s EndpointSpec) known(param string) bool {
	for _, p := range s.Required {
		if p == param {
			return true
		}
	}
	for _, p := range s.Optional {
		if p == param {
			return true
		}
	}
	return false
}

// DefaultEndpoints is the built-in table used when no source is configured or
// the configured source cannot be loaded.
func DefaultEndpoints() []EndpointSpec {
	return []EndpointSpec{
		{
			Path:        PathEntityReport,
			Method:      http.MethodPost,
			Description: "Entity reporting with grouping and filtering",
			Required:    []string{"columns", "from", "to", "timezone_id"},
			Optional:    []string{"query", "currency_id", "page", "page_size"},
			Types: map[string]string{
				"columns":     TypeArray,
				"query":       TypeObject,
				"from":        TypeString,
				"to":          TypeString,
				"timezone_id": TypeInteger,
				"currency_id": TypeString,
				"page":        TypeInteger,
				"page_size":   TypeInteger,
			},
		},
		{
			Path:        PathEntityExport,
			Method:      http.MethodPost,
			Description: "Export entity reports to CSV",
			Required:    []string{"columns", "from", "to", "timezone_id"},
			Optional:    []string{"query", "currency_id", "format"},
			Types: map[string]string{
				"columns":     TypeArray,
				"from":        TypeString,
				"to":          TypeString,
				"timezone_id": TypeInteger,
				"format":      TypeString,
			},
		},
		{
			Path:        PathConversions,
			Method:      http.MethodPost,
			Description: "Fetch conversion data",
			Required:    []string{"from", "to", "timezone_id", "show_conversions"},
			Optional:    []string{"show_events", "query", "page", "page_size"},
			Types: map[string]string{
				"from":             TypeString,
				"to":               TypeString,
				"timezone_id":      TypeInteger,
				"show_conversions": TypeBoolean,
				"show_events":      TypeBoolean,
				"page":             TypeInteger,
				"page_size":        TypeInteger,
			},
		},
		{
			Path:        PathAffiliates,
			Method:      http.MethodGet,
			Description: "Get list of affiliates",
			Optional:    []string{"page", "page_size", "limit"},
			Types: map[string]string{
				"page":      TypeInteger,
				"page_size": TypeInteger,
				"limit":     TypeInteger,
			},
		},
		{
			Path:        PathOffers,
			Method:      http.MethodGet,
			Description: "Get list of offers",
			Optional:    []string{"page", "page_size", "limit"},
			Types: map[string]string{
				"page":      TypeInteger,
				"page_size": TypeInteger,
				"limit":     TypeInteger,
			},
		},
		{
			Path:        PathConversionsExport,
			Method:      http.MethodPost,
			Description: "Export conversion reports to CSV",
			Required:    []string{"from", "to", "timezone_id"},
			Optional:    []string{"query", "format", "show_conversions", "show_events"},
			Types: map[string]string{
				"from":             TypeString,
				"to":               TypeString,
				"timezone_id":      TypeInteger,
				"format":           TypeString,
				"show_conversions": TypeBoolean,
				"show_events":      TypeBoolean,
			},
		},
		{
			Path:        PathConversionStatuses,
			Method:      http.MethodPost,
			Description: "Update the status of one or more conversions",
			Required:    []string{"conversion_ids", "status"},
			Types: map[string]string{
				"conversion_ids": TypeArray,
				"status":         TypeString,
			},
		},
	}
}
