package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"threadsync/pkg/logger"
	"threadsync/pkg/models"
	"threadsync/pkg/telemetry"
)

const DefaultTimeout = 3 * time.Second

// Client is a Source over the server's JSON HTTP API.
type Client struct {
	baseURL string
	timeout time.Duration
	hc      *fasthttp.Client
}

type ClientOptions struct {
	BaseURL string
	Timeout time.Duration
	// Dial overrides how connections are made; tests use an in-memory
	// listener.
	Dial fasthttp.DialFunc
}

func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: invalid base url %q", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: base,
		timeout: timeout,
		hc: &fasthttp.Client{
			Name:                "threadsync",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 30 * time.Second,
			Dial:                opts.Dial,

			// keep escaped separators inside thread guids intact
			DisablePathNormalizing: true,
		},
	}, nil
}

// BaseURL is the server root requests are made against.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) ListThreads(ctx context.Context, limit int, since *time.Time) ([]models.Thread, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if since != nil {
		q.Set("since", formatTime(*since))
	}
	var out models.ThreadsResponse
	if err := c.doJSON(ctx, "list_threads", fasthttp.MethodGet, "/threads?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}
	return out.Threads, nil
}

func (c *Client) ListMessages(ctx context.Context, threadGUID string, limit int, before *time.Time) ([]models.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before != nil {
		q.Set("before", formatTime(*before))
	}
	path := fmt.Sprintf("/threads/%s/messages?%s", url.PathEscape(threadGUID), q.Encode())
	var out models.MessagesResponse
	if err := c.doJSON(ctx, "list_messages", fasthttp.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return out.Messages, nil
}

func (c *Client) ListRecentMessages(ctx context.Context, limit int, since time.Time) ([]models.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if !since.IsZero() {
		q.Set("since", formatTime(since))
	}
	var out models.MessagesResponse
	if err := c.doJSON(ctx, "list_recent_messages", fasthttp.MethodGet, "/messages/recent?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch recent messages: %w", err)
	}
	return out.Messages, nil
}

// SendMessage posts the payload. The server may answer with the persisted
// message, a wrapped {"message": ...} body, or a bare status; the latter
// yields a nil message.
func (c *Client) SendMessage(ctx context.Context, threadGUID string, out models.OutgoingMessage) (*models.Message, error) {
	if out.Empty() {
		return nil, errors.New("send message: empty payload")
	}
	path := fmt.Sprintf("/threads/%s/send", url.PathEscape(threadGUID))
	var raw json.RawMessage
	if err := c.doJSON(ctx, "send_message", fasthttp.MethodPost, path, out, &raw); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return decodeSent(raw, threadGUID), nil
}

func decodeSent(raw json.RawMessage, threadGUID string) *models.Message {
	if len(raw) == 0 {
		return nil
	}
	var direct models.Message
	if err := json.Unmarshal(raw, &direct); err == nil && direct.GUID != "" {
		if direct.ThreadGUID == "" {
			direct.ThreadGUID = threadGUID
		}
		return &direct
	}
	var wrapped models.SendResponse
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Message != nil && wrapped.Message.GUID != "" {
		if wrapped.Message.ThreadGUID == "" {
			wrapped.Message.ThreadGUID = threadGUID
		}
		return wrapped.Message
	}
	return nil
}

// AttachmentURL is the absolute URL the server serves filename from.
func (c *Client) AttachmentURL(filename string) string {
	return c.baseURL + "/attachments/" + url.PathEscape(filename)
}

// FetchAttachment downloads an attachment body.
func (c *Client) FetchAttachment(ctx context.Context, filename string) ([]byte, string, error) {
	var body []byte
	var contentType string
	err := c.do(ctx, "fetch_attachment", fasthttp.MethodGet, "/attachments/"+url.PathEscape(filename), nil, func(resp *fasthttp.Response) error {
		body = append([]byte(nil), resp.Body()...)
		contentType = string(resp.Header.ContentType())
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch attachment: %w", err)
	}
	return body, contentType, nil
}

// TestConnection probes the server with a one-thread listing and returns a
// classified error when it is unreachable.
func (c *Client) TestConnection(ctx context.Context) error {
	q := url.Values{}
	q.Set("limit", "1")
	if err := c.doJSON(ctx, "test_connection", fasthttp.MethodGet, "/threads?"+q.Encode(), nil, nil); err != nil {
		return Classify(err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, op, method, requestPath string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	return c.do(ctx, op, method, requestPath, payload, func(resp *fasthttp.Response) error {
		if out == nil || len(resp.Body()) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, op, method, requestPath string, payload []byte, handle func(*fasthttp.Response) error) (err error) {
	tr := telemetry.Track(op)
	defer func() { tr.Finish(err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	reqID := uuid.NewString()
	req.SetRequestURI(c.baseURL + requestPath)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	if err := c.hc.DoDeadline(req, resp, deadline); err != nil {
		logger.Warn("remote_request_failed", "op", op, "request_id", reqID, "error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		he := &HTTPError{StatusCode: status, Message: errorMessage(resp.Body())}
		logger.Warn("remote_request_rejected", "op", op, "request_id", reqID, "status", status, "error", he.Message)
		return he
	}
	return handle(resp)
}

// errorMessage extracts {"error": "..."} when present, else the trimmed body.
func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// IsTimeout reports whether err is a network or fasthttp timeout.
func IsTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
