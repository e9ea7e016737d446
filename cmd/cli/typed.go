// cmd/cli/typed.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Kind enumerates the requests a client can make.
type Kind string

const (
	KindPing         Kind = "ping"
	KindGetUser      Kind = "get-user"
	KindGetPlans     Kind = "get-plans"
	KindGetSettings  Kind = "get-settings"
	KindSetSettings  Kind = "set-settings"
	KindGetAPIKeys   Kind = "get-api-keys"
	KindSetAPIKey    Kind = "set-api-keys"
	KindDeleteAPIKey Kind = "delete-api-keys"
	KindGetHistory   Kind = "get-api-history"
	KindGetQuota     Kind = "get-api-quota"
	KindEnhance      Kind = "enhance-prompt"
)

type route struct {
	method string
	path   string
	authed bool
}

var routes = map[Kind]route{
	KindPing:         {http.MethodGet, "/healthz", false},
	KindGetPlans:     {http.MethodGet, "/api/plans", false},
	KindGetUser:      {http.MethodGet, "/api/user", true},
	KindGetSettings:  {http.MethodGet, "/api/user/settings", true},
	KindSetSettings:  {http.MethodPut, "/api/user/settings", true},
	KindGetAPIKeys:   {http.MethodGet, "/api/user/api-keys", true},
	KindSetAPIKey:    {http.MethodPut, "/api/user/api-keys", true},
	KindDeleteAPIKey: {http.MethodDelete, "/api/user/api-keys", true},
	KindGetHistory:   {http.MethodGet, "/api/user/history", true},
	KindGetQuota:     {http.MethodGet, "/api/user/quota", true},
	KindEnhance:      {http.MethodPost, "/api/enhance", true},
}

// Message is one request to the API.
type Message struct {
	Kind  Kind
	Body  any
	Query url.Values
}

// Result is the outcome of a Message. Exactly one of Data and Err is set.
type Result struct {
	Kind   Kind
	Status int
	Data   json.RawMessage
	Err    error
}

// OK reports whether the request succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Decode unmarshals Data into v, or returns Err.
func (r Result) Decode(v any) error {
	if r.Err != nil {
		return r.Err
	}
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// apiError is a non-2xx response.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s msg=%s", e.Status, e.Code, e.Message)
}

var errUnknownKind = errors.New("unknown message type")

type client struct {
	base  string
	token string
	hc    *http.Client
}

func newClient(base, token string, timeout time.Duration) *client {
	return &client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		hc:    &http.Client{Timeout: timeout},
	}
}

// Send performs m and never panics; every failure is carried in the Result.
func (c *client) Send(ctx context.Context, m Message) Result {
	res := Result{Kind: m.Kind}
	rt, ok := routes[m.Kind]
	if !ok {
		res.Err = fmt.Errorf("%w: %q", errUnknownKind, m.Kind)
		return res
	}
	if rt.authed && c.token == "" {
		res.Err = errors.New("no valid token (login required)")
		return res
	}

	target := c.base + rt.path
	if len(m.Query) > 0 {
		target += "?" + m.Query.Encode()
	}
	var body io.Reader
	if m.Body != nil {
		b, err := json.Marshal(m.Body)
		if err != nil {
			res.Err = err
			return res
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, rt.method, target, body)
	if err != nil {
		res.Err = err
		return res
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rt.authed {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		res.Err = err
		return res
	}
	if resp.StatusCode/100 != 2 {
		ae := &apiError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var eb struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			ae.Message, ae.Code = eb.Error, eb.Code
		}
		res.Err = ae
		return res
	}
	res.Data = raw
	return res
}

// ------- payloads -------

type enhanceRequest struct {
	OriginalText string `json:"originalText"`
	Context      string `json:"conversationContext,omitempty"`
	Site         string `json:"site"`
}

type enhanceResponse struct {
	EnhancedText string `json:"enhancedText"`
	PromptID     string `json:"promptId"`
	Method       string `json:"method"`
	TokensUsed   int    `json:"tokensUsed"`
	Cost         any    `json:"cost,omitempty"`
	QuotaInfo    any    `json:"quotaInfo,omitempty"`
	Warning      string `json:"warning,omitempty"`
}

// keyBody builds a set-api-keys body for a single provider.
func keyBody(provider string, read func() (string, error)) (map[string]string, error) {
	if provider != "openai" && provider != "anthropic" {
		return nil, errors.New("provider must be one of: openai, anthropic")
	}
	key, err := read()
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, errors.New("empty key (use key-rm to remove)")
	}
	return map[string]string{provider: key}, nil
}

type settingsPatch struct {
	values map[string]*string
	enable *bool
}

func settingsFlags(fs *flag.FlagSet) *settingsPatch {
	p := &settingsPatch{values: map[string]*string{}}
	for _, name := range []string{"provider", "openaiModel", "anthropicModel", "tone", "detail", "audience"} {
		p.values[name] = fs.String(name, "", name)
	}
	p.enable = fs.Bool("enabled", true, "enhancement enabled")
	return p
}

// body holds only the flags set on the command line.
func (p *settingsPatch) body(fs *flag.FlagSet) map[string]any {
	out := map[string]any{}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "enabled" {
			out["enabled"] = *p.enable
			return
		}
		if v, ok := p.values[f.Name]; ok {
			out[f.Name] = *v
		}
	})
	return out
}
