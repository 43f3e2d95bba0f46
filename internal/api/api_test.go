package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDoReturnsHTTPErrorWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"E1001","message":"market closed"}`))
	}))
	defer srv.Close()

	c := NewClient()
	_, err := c.POST(context.Background(), srv.URL, map[string]int{"a": 1})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *HTTPError, got %T", err)
	}
	if he.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", he.StatusCode)
	}
	code, msg := BrokerMessage(he.Body)
	if code != "E1001" || msg != "market closed" {
		t.Errorf("unexpected broker message %q %q", code, msg)
	}
	if StatusOf(err) != 400 {
		t.Errorf("StatusOf = %d", StatusOf(err))
	}
}

func TestDoSendsJSONAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("X-Default"); got != "yes" {
			t.Errorf("default header = %q", got)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(WithHeader("X-Default", "yes"))
	resp, err := c.Do(NewRequest(http.MethodPost, srv.URL).WithBody(struct{}{}).WithBearer("tok"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out struct{ OK bool }
	if err := resp.ParseJSON(&out); err != nil || !out.OK {
		t.Fatalf("parse: %v %+v", err, out)
	}
}

func TestDoHonoursTimeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	defer close(done)

	c := NewClient(WithTimeout(50 * time.Millisecond))
	start := time.Now()
	if _, err := c.GET(context.Background(), srv.URL); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Errorf("request was not bounded by timeout")
	}
}

func TestBrokerMessageShapes(t *testing.T) {
	cases := []struct {
		body, code, msg string
	}{
		{`{"title":"Bad Request","detail":"invalid captcha"}`, "", "invalid captcha"},
		{`{"errors":[{"code":"42","message":"insufficient funds"}]}`, "42", "insufficient funds"},
		{`{"errors":["invalid instrument"]}`, "", "invalid instrument"},
		{`plain failure`, "", "plain failure"},
		{`"quoted text"`, "", "quoted text"},
		{``, "", ""},
	}
	for _, c := range cases {
		code, msg := BrokerMessage([]byte(c.body))
		if code != c.code || msg != c.msg {
			t.Errorf("BrokerMessage(%s) = %q %q, want %q %q", c.body, code, msg, c.code, c.msg)
		}
	}
}
