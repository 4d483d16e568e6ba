// Package graph is the messaging platform client: page discovery, conversation and thread
// reads, and outbound sends against a Graph-style API.
package graph

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultBaseURL = "https://graph.facebook.com"
	DefaultVersion = "v22.0"
	// DefaultMaxMessagePages bounds how many pages of one thread a single fetch follows.
	DefaultMaxMessagePages = 10

	conversationFields        = "id,snippet,updated_time,participants{id,name,picture.type(large)},unread_count"
	conversationFieldsNoNames = "id,snippet,updated_time,unread_count"
	messageFields             = "id,message,created_time,from"
)

// Config configures a Client. Zero values take the package defaults.
type Config struct {
	BaseURL         string
	Version         string
	Timeout         time.Duration
	MaxMessagePages int
}

// Client performs single requests with no retry. Callers own retry and backoff policy.
type Client struct {
	http    *httpclient.Client
	baseURL string
	logger   ectologger.Logger
	eval     *evaluator
	maxPages int
}

// NewClient builds a client for the configured API version.
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	version := cfg.Version
	if version == "" {
		version = DefaultVersion
	}

	maxPages := cfg.MaxMessagePages
	if maxPages <= 0 {
		maxPages = DefaultMaxMessagePages
	}

	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}

	return &Client{
		http:    httpclient.NewClient(httpCfg, logger),
		baseURL: strings.TrimRight(base, "/") + "/" + version,
		logger:   logger,
		eval:     newEvaluator(),
		maxPages: maxPages,
	}
}

// SendResult is the platform acknowledgement of an outbound message.
type SendResult struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

func (c *Client) endpoint(path string, token string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", token)
	return c.baseURL + "/" + strings.TrimLeft(path, "/") + "?" + params.Encode()
}

// do runs one request and decodes the Graph envelope into out. Any error is a *PlatformError.
func (c *Client) do(ctx context.Context, operation string, call func(context.Context) (*httpclient.Response, error), out any) error {
	ctx, span := tracing.StartSpan(ctx, "graph."+operation)
	defer span.End()

	start := time.Now()
	resp, err := call(ctx)
	if err != nil {
		metrics.RecordPlatformRequest(operation, "transport", time.Since(start).Seconds())
		span.RecordError(err)
		return &PlatformError{Code: CodeTransport, Message: "platform unreachable", Err: err}
	}
	metrics.RecordPlatformRequest(operation, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var env struct {
		Error *PlatformError `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return &PlatformError{Code: CodeUnreadableResponse, Message: "unreadable platform response", StatusCode: resp.StatusCode, Err: err}
	}
	if env.Error != nil {
		env.Error.StatusCode = resp.StatusCode
		span.RecordError(env.Error)
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"operation": operation,
			"code":      env.Error.Code,
			"status":    resp.StatusCode,
		}).Warnf("platform returned an error: %s", env.Error.Message)
		return env.Error
	}
	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		return &PlatformError{Code: resp.StatusCode, Message: "unexpected platform status", StatusCode: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &PlatformError{Code: CodeUnreadableResponse, Message: "unreadable platform response", StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) get(ctx context.Context, operation, path, token string, params url.Values, out any) error {
	target := c.endpoint(path, token, params)
	return c.do(ctx, operation, func(ctx context.Context) (*httpclient.Response, error) {
		return c.http.Get(ctx, target, nil)
	}, out)
}

// ListAccessiblePages lists the pages a platform user token can manage.
func (c *Client) ListAccessiblePages(ctx context.Context, userToken string) ([]models.Page, error) {
	var body struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Category    string `json:"category"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := c.get(ctx, "list_pages", "me/accounts", userToken, nil, &body); err != nil {
		return nil, err
	}

	pages := make([]models.Page, 0, len(body.Data))
	for _, p := range body.Data {
		pages = append(pages, models.Page{
			ID:               p.ID,
			Name:             p.Name,
			Category:         p.Category,
			IsConnected:      true,
			AccessToken:      p.AccessToken,
			AssignedAgentIDs: []string{},
		})
	}
	return pages, nil
}

// VerifyPageToken reports whether token can read the page. A platform refusal is (false, nil);
// only a transport failure returns an error.
func (c *Client) VerifyPageToken(ctx context.Context, pageID, token string) (bool, error) {
	var body struct {
		ID string `json:"id"`
	}
	err := c.get(ctx, "verify_page", pageID, token, url.Values{"fields": {"id,name"}}, &body)
	if err != nil {
		if pe, ok := AsPlatformError(err); ok && pe.IsTransport() {
			return false, err
		}
		return false, nil
	}
	return body.ID != "", nil
}

// ListConversations returns up to limit of the page's most recent threads. When
// includeCustomerProfile is false, participants are not requested and the customer fields
// carry defaults.
func (c *Client) ListConversations(ctx context.Context, pageID, token string, limit int, includeCustomerProfile bool) ([]models.Conversation, error) {
	fields := conversationFieldsNoNames
	if includeCustomerProfile {
		fields = conversationFields
	}
	params := url.Values{"fields": {fields}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var body struct {
		Data []map[string]any `json:"data"`
	}
	if err := c.get(ctx, "list_conversations", pageID+"/conversations", token, params, &body); err != nil {
		return nil, err
	}

	expr := customerExpression(pageID)
	conversations := make([]models.Conversation, 0, len(body.Data))
	for _, raw := range body.Data {
		conv := models.Conversation{
			ID:            c.eval.searchString("id", raw),
			PageID:        pageID,
			CustomerID:    models.DefaultCustomerID,
			CustomerName:  models.DefaultCustomerName,
			LastMessage:   c.eval.searchString("snippet", raw),
			LastTimestamp: ParseTime(c.eval.searchString("updated_time", raw)),
			Status:        models.ConversationOpen,
			UnreadCount:   intValue(raw["unread_count"]),
		}
		if conv.LastMessage == "" {
			conv.LastMessage = models.DefaultSnippet
		}

		if includeCustomerProfile {
			if customer, err := c.eval.search(expr, raw); err == nil && customer != nil {
				if id := c.eval.searchString("id", customer); id != "" {
					conv.CustomerID = id
				}
				if name := c.eval.searchString("name", customer); name != "" {
					conv.CustomerName = name
				}
				conv.CustomerAvatar = c.eval.searchString(avatarExpression, customer)
			}
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

type messagePage struct {
	Data []struct {
		ID          string `json:"id"`
		Message     string `json:"message"`
		CreatedTime string `json:"created_time"`
		From        struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"from"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// ListThreadMessages returns the thread's messages oldest first. since, when set, limits the
// result to messages created at or after it. Follows paging.next until the since boundary is
// passed or the client's page bound is reached.
func (c *Client) ListThreadMessages(ctx context.Context, conversationID, pageID, token string, since *time.Time) ([]models.Message, error) {
	params := url.Values{"fields": {messageFields}}
	if since != nil {
		params.Set("since", strconv.FormatInt(since.Unix(), 10))
	}

	// the platform returns newest first across pages
	var newestFirst []models.Message
	target := c.endpoint(conversationID+"/messages", token, params)
	seen := map[string]bool{}
	for page := 0; target != "" && page < c.maxPages; page++ {
		var body messagePage
		pageURL := target
		err := c.do(ctx, "list_messages", func(ctx context.Context) (*httpclient.Response, error) {
			return c.http.Get(ctx, pageURL, nil)
		}, &body)
		if err != nil {
			return nil, err
		}

		passedSince := false
		for _, m := range body.Data {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			ts := ParseTime(m.CreatedTime)
			if since != nil && !ts.IsZero() && ts.Before(*since) {
				passedSince = true
				continue
			}
			newestFirst = append(newestFirst, models.Message{
				ID:             m.ID,
				ConversationID: conversationID,
				SenderID:       m.From.ID,
				SenderName:     m.From.Name,
				Text:           m.Message,
				Timestamp:      ts,
				IsIncoming:     m.From.ID != pageID,
				IsRead:         true,
			})
		}

		if passedSince || body.Paging.Next == target {
			break
		}
		target = body.Paging.Next
		if target != "" && page+1 == c.maxPages {
			c.logger.WithContext(ctx).WithFields(map[string]any{
				"conversation_id": conversationID,
				"pages":           c.maxPages,
			}).Warn("thread has more messages than the page bound allows, older messages skipped")
		}
	}

	messages := make([]models.Message, len(newestFirst))
	for i, m := range newestFirst {
		messages[len(newestFirst)-1-i] = m
	}
	return messages, nil
}

// SendMessage posts a text reply to a customer inside the standard response window.
func (c *Client) SendMessage(ctx context.Context, recipientID, text, token string) (SendResult, error) {
	payload := map[string]any{
		"recipient":      map[string]string{"id": recipientID},
		"message":        map[string]string{"text": text},
		"messaging_type": "RESPONSE",
	}
	target := c.endpoint("me/messages", token, nil)

	var result SendResult
	err := c.do(ctx, "send_message", func(ctx context.Context) (*httpclient.Response, error) {
		return c.http.PostJSON(ctx, target, payload, nil)
	}, &result)
	return result, err
}

var timeLayouts = []string{"2006-01-02T15:04:05-0700", time.RFC3339Nano, time.RFC3339}

// ParseTime parses Graph timestamps ("2024-01-02T03:04:05+0000"). Unparseable values yield the zero time.
func ParseTime(value string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}
