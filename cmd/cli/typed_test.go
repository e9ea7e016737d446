package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

type seen struct {
	method, path, query, auth, body string
}

func apiServer(t *testing.T, status int, reply string) (*httptest.Server, *seen) {
	t.Helper()
	s := &seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*s = seen{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization"), string(b)}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, s
}

func Test_Send_Enhance(t *testing.T) {
	t.Parallel()

	srv, got := apiServer(t, http.StatusOK, `{"enhancedText":"better","method":"template","tokensUsed":0}`)
	cli := newClient(srv.URL+"/", "T", 5*time.Second)

	res := cli.Send(context.Background(), Message{
		Kind: KindEnhance,
		Body: enhanceRequest{OriginalText: "what is go?", Site: "ChatGPT"},
	})
	if !res.OK() || res.Status != http.StatusOK || res.Kind != KindEnhance {
		t.Fatalf("unexpected result: %+v", res)
	}
	var out enhanceResponse
	if err := res.Decode(&out); err != nil || out.EnhancedText != "better" || out.Method != "template" {
		t.Fatalf("decode: %+v %v", out, err)
	}
	if got.method != http.MethodPost || got.path != "/api/enhance" || got.auth != "Bearer T" {
		t.Fatalf("request mismatch: %+v", got)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(got.body), &body); err != nil || body["originalText"] != "what is go?" {
		t.Fatalf("body mismatch: %s", got.body)
	}
	if _, ok := body["conversationContext"]; ok {
		t.Fatalf("empty context must be omitted: %s", got.body)
	}
}

func Test_Send_APIError(t *testing.T) {
	t.Parallel()

	srv, _ := apiServer(t, http.StatusTooManyRequests, `{"error":"Daily quota exceeded","code":"QUOTA_EXCEEDED"}`)
	res := newClient(srv.URL, "T", 5*time.Second).Send(context.Background(), Message{Kind: KindEnhance, Body: enhanceRequest{}})

	var ae *apiError
	if res.OK() || !errors.As(res.Err, &ae) {
		t.Fatalf("want apiError, got %+v", res)
	}
	if ae.Status != http.StatusTooManyRequests || ae.Code != "QUOTA_EXCEEDED" || ae.Message != "Daily quota exceeded" {
		t.Fatalf("apiError mismatch: %+v", ae)
	}
	if res.Data != nil {
		t.Fatalf("failed result must not carry data")
	}
	var v any
	if err := res.Decode(&v); !errors.Is(err, res.Err) {
		t.Fatalf("Decode should return Err: %v", err)
	}
}

func Test_Send_NonJSONError(t *testing.T) {
	t.Parallel()

	srv, _ := apiServer(t, http.StatusBadGateway, "upstream down")
	res := newClient(srv.URL, "", 5*time.Second).Send(context.Background(), Message{Kind: KindPing})
	var ae *apiError
	if !errors.As(res.Err, &ae) || ae.Message != "Bad Gateway" || ae.Code != "" {
		t.Fatalf("want status text fallback, got %v", res.Err)
	}
}

func Test_Send_QueryAndPublicRoutes(t *testing.T) {
	t.Parallel()

	srv, got := apiServer(t, http.StatusOK, `{"message":"API keys removed"}`)
	cli := newClient(srv.URL, "T", 5*time.Second)

	res := cli.Send(context.Background(), Message{Kind: KindDeleteAPIKey, Query: url.Values{"provider": {"anthropic"}}})
	if !res.OK() || got.method != http.MethodDelete || got.query != "provider=anthropic" {
		t.Fatalf("delete mismatch: %+v %+v", res, got)
	}

	anon := newClient(srv.URL, "", 5*time.Second)
	if res := anon.Send(context.Background(), Message{Kind: KindGetPlans}); !res.OK() || got.auth != "" {
		t.Fatalf("public route must not send a token: %+v %+v", res, got)
	}
}

func Test_Send_RejectsLocally(t *testing.T) {
	t.Parallel()

	cli := newClient("http://127.0.0.1:1", "", time.Second)
	if res := cli.Send(context.Background(), Message{Kind: "bogus"}); !errors.Is(res.Err, errUnknownKind) {
		t.Fatalf("want unknown kind, got %v", res.Err)
	}
	if res := cli.Send(context.Background(), Message{Kind: KindGetQuota}); res.OK() {
		t.Fatalf("authed kind without token must fail")
	}
}

func Test_Send_NetworkError(t *testing.T) {
	t.Parallel()

	srv, _ := apiServer(t, http.StatusOK, `{}`)
	srv.Close()
	res := newClient(srv.URL, "T", time.Second).Send(context.Background(), Message{Kind: KindGetUser})
	var ae *apiError
	if res.OK() || errors.As(res.Err, &ae) {
		t.Fatalf("want transport error, got %+v", res)
	}
}

func Test_everyKindHasRoute(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{KindPing, KindGetUser, KindGetPlans, KindGetSettings, KindSetSettings,
		KindGetAPIKeys, KindSetAPIKey, KindDeleteAPIKey, KindGetHistory, KindGetQuota, KindEnhance} {
		if _, ok := routes[k]; !ok {
			t.Fatalf("no route for %s", k)
		}
	}
}

func Test_keyBody(t *testing.T) {
	t.Parallel()

	read := func(s string, err error) func() (string, error) {
		return func() (string, error) { return s, err }
	}
	b, err := keyBody("anthropic", read("sk-ant-x", nil))
	if err != nil || b["anthropic"] != "sk-ant-x" || len(b) != 1 {
		t.Fatalf("keyBody: %v %v", b, err)
	}
	if _, err := keyBody("gemini", read("k", nil)); err == nil {
		t.Fatalf("unknown provider must fail")
	}
	if _, err := keyBody("openai", read("", nil)); err == nil {
		t.Fatalf("empty key must fail")
	}
	boom := errors.New("tty closed")
	if _, err := keyBody("openai", read("", boom)); !errors.Is(err, boom) {
		t.Fatalf("read error must propagate: %v", err)
	}
}

func Test_settingsPatch_OnlySetFlags(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	p := settingsFlags(fs)
	if err := fs.Parse([]string{"-tone", "casual", "-enabled=false"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	body := p.body(fs)
	if len(body) != 2 || body["tone"] != "casual" || body["enabled"] != false {
		t.Fatalf("body mismatch: %v", body)
	}

	empty := flag.NewFlagSet("settings", flag.ContinueOnError)
	p = settingsFlags(empty)
	_ = empty.Parse(nil)
	if len(p.body(empty)) != 0 {
		t.Fatalf("no flags should mean no patch")
	}
}
