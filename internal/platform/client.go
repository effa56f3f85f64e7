package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/scrum-callbot/internal/metrics"
	"github.com/jmehdipour/scrum-callbot/internal/model"
)

var ErrBreakerOpen = errors.New("platform circuit open")

// StatusError is returned when the platform answers a command with a non-2xx status.
type StatusError struct {
	Command string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform command=%s status=%d body=%s", e.Command, e.Status, e.Body)
}

// Client issues call-control commands. Every command is asynchronous on the platform side:
// success means the request was accepted, results arrive later as notifications.
type Client interface {
	CreateCall(ctx context.Context, req model.OutboundCallRequest) (string, error)
	AnswerCall(ctx context.Context, callID string, req AnswerRequest) error
	PlayPrompt(ctx context.Context, callID string, prompts []model.MediaInfo) (string, error)
	TransferCall(ctx context.Context, callID string, target model.InvitationTarget) error
}

type AnswerRequest struct {
	CallbackURI        string                         `json:"callbackUri"`
	MediaConfig        model.ServiceHostedMediaConfig `json:"mediaConfig"`
	AcceptedModalities []model.Modality               `json:"acceptedModalities"`
}

type mediaPrompt struct {
	ODataType string          `json:"@odata.type"`
	MediaInfo model.MediaInfo `json:"mediaInfo"`
}

type playPromptRequest struct {
	ClientContext string        `json:"clientContext,omitempty"`
	Prompts       []mediaPrompt `json:"prompts"`
}

type transferRequest struct {
	TransferTarget model.InvitationTarget `json:"transferTarget"`
}

type resourceRef struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// HTTPClient talks to the platform's REST API. The http.Client is expected to attach credentials.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	br      *MicroBreaker
}

func NewHTTPClient(baseURL string, client *http.Client, failThreshold, openForMs int) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if openForMs <= 0 {
		openForMs = 15000
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		br:      NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) CreateCall(ctx context.Context, req model.OutboundCallRequest) (string, error) {
	var out resourceRef
	if err := c.post(ctx, "create_call", "/communications/calls", req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *HTTPClient) AnswerCall(ctx context.Context, callID string, req AnswerRequest) error {
	return c.post(ctx, "answer", callPath(callID, "answer"), req, nil)
}

func (c *HTTPClient) PlayPrompt(ctx context.Context, callID string, prompts []model.MediaInfo) (string, error) {
	body := playPromptRequest{ClientContext: callID}
	for _, p := range prompts {
		body.Prompts = append(body.Prompts, mediaPrompt{ODataType: "#microsoft.graph.mediaPrompt", MediaInfo: p})
	}

	var out resourceRef
	if err := c.post(ctx, "play_prompt", callPath(callID, "playPrompt"), body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *HTTPClient) TransferCall(ctx context.Context, callID string, target model.InvitationTarget) error {
	return c.post(ctx, "transfer", callPath(callID, "transfer"), transferRequest{TransferTarget: target}, nil)
}

func callPath(callID, action string) string {
	return "/communications/calls/" + url.PathEscape(callID) + "/" + action
}

func (c *HTTPClient) post(ctx context.Context, command, path string, in, out any) error {
	if !c.br.TryAcquire() {
		metrics.PlatformCommandsTotal.WithLabelValues(command, "breaker_open").Inc()
		c.reportBreaker()
		return ErrBreakerOpen
	}

	err := c.do(ctx, command, path, in, out)
	var se *StatusError
	switch {
	case err == nil:
		c.br.OnSuccess()
		metrics.PlatformCommandsTotal.WithLabelValues(command, "ok").Inc()
	case errors.As(err, &se) && se.Status < http.StatusInternalServerError:
		// the platform is healthy, the command itself was refused
		c.br.OnSuccess()
		metrics.PlatformCommandsTotal.WithLabelValues(command, "rejected").Inc()
	default:
		c.br.OnFailure()
		metrics.PlatformCommandsTotal.WithLabelValues(command, "error").Inc()
	}
	c.reportBreaker()
	return err
}

func (c *HTTPClient) reportBreaker() {
	if c.br.Open() {
		metrics.PlatformBreakerOpen.Set(1)
		return
	}
	metrics.PlatformBreakerOpen.Set(0)
}

func (c *HTTPClient) do(ctx context.Context, command, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", command, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return &StatusError{Command: command, Status: res.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", command, err)
	}
	return nil
}
