package docstore

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTimeout bounds every bridge call.
const DefaultTimeout = 15 * time.Second

// ClientConfig points a Client at a bridge endpoint and namespace.
type ClientConfig struct {
	Endpoint  string
	Namespace string
	Timeout   time.Duration
	// APIKey is sent as a bearer token when set
	APIKey string
}

// Client is the HTTP Gateway that talks to the document bridge.
type Client struct {
	http      *httpclient.Client
	endpoint  string
	namespace string
	headers   map[string]string
	logger    ectologger.Logger
}

// NewClient uses DefaultTimeout when cfg.Timeout is not positive.
func NewClient(cfg ClientConfig, logger ectologger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = timeout

	return &Client{
		http:      httpclient.NewClient(httpCfg, logger),
		endpoint:  cfg.Endpoint,
		namespace: namespace,
		headers:   headers,
		logger:    logger,
	}
}

// Namespace returns the default database name sent with each request.
func (c *Client) Namespace() string { return c.namespace }

func (c *Client) List(ctx context.Context, kind Kind, filter Filter) ([]Document, error) {
	resp, err := c.call(ctx, Request{Action: ActionFind, Collection: kind, Filter: filter})
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(resp.Documents))
	for _, doc := range resp.Documents {
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (c *Client) Upsert(ctx context.Context, kind Kind, doc Document) error {
	id := doc.ID()
	upsert := true
	if id == "" {
		return rejected(ActionUpdateOne, kind, 0, "missing unique id", "every document must carry a string id")
	}
	_, err := c.call(ctx, Request{
		Action:     ActionUpdateOne,
		Collection: kind,
		Filter:     ByID(id),
		Update:     &Update{Set: doc},
		Upsert:     &upsert,
	})
	return err
}

func (c *Client) DeleteOne(ctx context.Context, kind Kind, id string) error {
	_, err := c.call(ctx, Request{Action: ActionDeleteOne, Collection: kind, Filter: ByID(id)})
	return err
}

func (c *Client) ClearAll(ctx context.Context, kind Kind) error {
	_, err := c.call(ctx, Request{Action: ActionDeleteMany, Collection: kind, Filter: Filter{}})
	return err
}

func (c *Client) Ping(ctx context.Context) bool {
	resp, err := c.call(ctx, Request{Action: ActionPing})
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Debug("document store ping failed")
		return false
	}
	return resp.OK
}

func (c *Client) call(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracing.StartSpan(ctx, "docstore."+string(req.Action),
		attribute.String("docstore.collection", string(req.Collection)),
	)
	defer span.End()

	req.DBName = c.namespace
	if ns := appctx.GetNamespace(ctx); ns != "" {
		req.DBName = ns
	}

	start := time.Now()
	resp, err := c.http.PostJSON(ctx, c.endpoint, req, c.headers)
	if err != nil {
		span.RecordError(err)
		metrics.RecordStoreRequest(string(req.Action), "unavailable", time.Since(start).Seconds())
		return nil, unavailable(req.Action, req.Collection, 0, err)
	}

	out, storeErr := interpret(req, resp)
	result := "ok"
	if storeErr != nil {
		result = "rejected"
		if storeErr.Kind == KindUnavailable {
			result = "unavailable"
		}
		span.RecordError(storeErr)
		c.logger.WithContext(ctx).WithError(storeErr).WithFields(map[string]any{
			"action":     req.Action,
			"collection": req.Collection,
			"status":     resp.StatusCode,
		}).Warn("document store request failed")
	}
	metrics.RecordStoreRequest(string(req.Action), result, time.Since(start).Seconds())
	if storeErr != nil {
		return nil, storeErr
	}
	return out, nil
}

// interpret classifies a bridge reply. A gateway-level 5xx (502/503/504) or a 5xx without an
// error verdict means the store was not reached; any reply carrying an error verdict is a rejection.
func interpret(req Request, resp *httpclient.Response) (*Response, *StoreError) {
	var out Response
	decodeErr := resp.Decode(&out)

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, unavailable(req.Action, req.Collection, resp.StatusCode, statusError(resp.StatusCode, out.Error))
	}

	if decodeErr == nil && out.Error != "" {
		return nil, rejected(req.Action, req.Collection, resp.StatusCode, out.Error, out.Suggestion)
	}
	if httpclient.IsServerError(resp.StatusCode) {
		return nil, unavailable(req.Action, req.Collection, resp.StatusCode, statusError(resp.StatusCode, ""))
	}
	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		return nil, rejected(req.Action, req.Collection, resp.StatusCode, http.StatusText(resp.StatusCode), "")
	}
	if decodeErr != nil {
		return nil, unavailable(req.Action, req.Collection, resp.StatusCode, decodeErr)
	}
	return &out, nil
}

type statusErr struct {
	status int
	detail string
}

func (e statusErr) Error() string {
	msg := "bridge returned " + strconv.Itoa(e.status)
	if e.detail != "" {
		msg += ": " + e.detail
	}
	return msg
}

func statusError(status int, detail string) error {
	return statusErr{status: status, detail: detail}
}
