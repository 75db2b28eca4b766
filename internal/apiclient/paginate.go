package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vthunder/culturedb/internal/logging"
)

// DefaultPageSize is the page size used by the list stages.
const DefaultPageSize = 200

// PageIterator walks a limit/offset list endpoint one page at a time.
// Pages are fetched through the cache, so a resumed run replays earlier
// pages without network traffic.
type PageIterator struct {
	client   *Client
	endpoint string
	pageSize int
	extra    Params

	offset int
	page   int
	done   bool
}

// Paginate returns an iterator over endpoint. extra parameters are added to
// every page request.
func (c *Client) Paginate(endpoint string, pageSize int, extra Params) *PageIterator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &PageIterator{client: c, endpoint: endpoint, pageSize: pageSize, extra: extra}
}

// Next returns the next page of raw items. ok is false once the listing is
// exhausted: an empty page, a missing "data" key or a page shorter than the
// page size ends iteration.
func (it *PageIterator) Next(ctx context.Context) (items []json.RawMessage, ok bool, err error) {
	if it.done {
		return nil, false, nil
	}

	params := Params{
		"limit":  strconv.Itoa(it.pageSize),
		"offset": strconv.Itoa(it.offset),
	}
	for k, v := range it.extra {
		params[k] = v
	}

	logging.Debug("apiclient", "fetching %s page=%d offset=%d", it.endpoint, it.page, it.offset)

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := it.client.Get(ctx, it.endpoint, params, &env); err != nil {
		return nil, false, err
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &items); err != nil {
			return nil, false, &ProtocolError{
				Endpoint:    it.endpoint,
				StatusCode:  http.StatusOK,
				ContentType: "application/json",
				Reason:      `"data" is not a list`,
			}
		}
	}

	if len(items) == 0 {
		it.done = true
		return nil, false, nil
	}
	if len(items) < it.pageSize {
		it.done = true
	}
	it.offset += it.pageSize
	it.page++
	return items, true, nil
}

// Each calls fn for every page until the listing ends, fn fails or ctx is
// cancelled.
func (it *PageIterator) Each(ctx context.Context, fn func(items []json.RawMessage) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		items, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(items); err != nil {
			return err
		}
	}
}

// Pages reports how many pages have been returned so far.
func (it *PageIterator) Pages() int { return it.page }
