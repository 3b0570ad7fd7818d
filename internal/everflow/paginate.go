package everflow

import (
	"context"
	"fmt"

	errx "github.com/eflow-agent/server/internal/core/error"
	logx "github.com/eflow-agent/server/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxPages bounds a single FetchAll against upstreams that never signal the end.
const MaxPages = 50

// Page is one upstream page of records.
type Page[T any] struct {
	Records []T
	// TotalCount is the server-reported collection size; 0 when unknown.
	TotalCount int
}

// PageFunc fetches one 1-based page.
type PageFunc[T any] func(ctx context.Context, page, pageSize int) (Page[T], error)

type PageOptions[T any] struct {
	// PageSize is the nominal page size; a shorter page ends the fetch.
	PageSize int
	// Limit caps the number of records returned; 0 means all.
	Limit int
	// Key deduplicates records by identifier. Records with an empty key are dropped.
	Key func(T) string
}

// FetchAll requests pages in order until the collection is exhausted. Any page
// error aborts the fetch and discards what was already collected.
func FetchAll[T any](ctx context.Context, resource string, fetch PageFunc[T], opts PageOptions[T]) ([]T, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = listPageSize
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "Everflow.FetchAll",
		trace.WithAttributes(
			attribute.String("everflow.resource", resource),
			attribute.Int("everflow.page_size", pageSize),
		),
	)
	defer span.End()

	var (
		out   []T
		seen  map[string]struct{}
		pages int
	)
	if opts.Key != nil {
		seen = make(map[string]struct{})
	}
	limitReached := func() bool { return opts.Limit > 0 && len(out) >= opts.Limit }

	for page := 1; page <= MaxPages; page++ {
		res, err := fetch(ctx, page, pageSize)
		pages++
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "page fetch failed")
			return nil, errx.WrapFetch(fmt.Errorf("fetch %s page %d: %w", resource, page, err))
		}
		if len(res.Records) == 0 {
			break
		}

		for _, rec := range res.Records {
			if seen != nil {
				k := opts.Key(rec)
				if k == "" {
					continue
				}
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
			}
			out = append(out, rec)
			if limitReached() {
				break
			}
		}

		if limitReached() {
			break
		}
		if res.TotalCount > 0 && len(out) >= res.TotalCount {
			break
		}
		if len(res.Records) < pageSize {
			break
		}
		if page == MaxPages {
			logx.Warn().Str("resource", resource).Int("pages", pages).Int("records", len(out)).
				Msg("Page ceiling reached; collection may be truncated")
		}
	}

	span.SetAttributes(attribute.Int("everflow.pages", pages), attribute.Int("everflow.records", len(out)))
	logx.Debug().Str("resource", resource).Int("pages", pages).Int("records", len(out)).Msg("Fetched collection")
	return out, nil
}
