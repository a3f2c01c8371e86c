package httpegress

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rafbgarcia/wws/internal/workerconfig"
)

func TestPolicyDeniesUnlistedHost(t *testing.T) {
	h := NewHost()
	policy := workerconfig.HTTPRequests{
		AllowedHosts:   []string{"api.example.com"},
		AllowedMethods: []string{"GET"},
		ForceHTTPS:     true,
	}

	_, errResp := h.Send(Request{Method: "GET", URI: "https://evil.example.net/"}, policy)
	if errResp == nil {
		t.Fatalf("Send() error = nil, want NotAllowed")
	}
	if errResp.Kind != NotAllowed {
		t.Errorf("Kind = %v, want NotAllowed", errResp.Kind)
	}
}

func TestPolicyDeniesNonHTTPSWhenForced(t *testing.T) {
	h := NewHost()
	policy := workerconfig.HTTPRequests{
		AllowedHosts:   []string{"api.example.com"},
		AllowedMethods: []string{"GET"},
		ForceHTTPS:     true,
	}

	_, errResp := h.Send(Request{Method: "GET", URI: "http://api.example.com/"}, policy)
	if errResp == nil || errResp.Kind != NotAllowed {
		t.Fatalf("Send() = %v, want NotAllowed for non-https", errResp)
	}
}

func TestPolicyDeniesDisallowedMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	h := NewHost()
	policy := workerconfig.HTTPRequests{
		AllowedHosts:   []string{hostOf(srv.URL)},
		AllowedMethods: []string{"GET"},
		ForceHTTPS:     false,
	}

	_, errResp := h.Send(Request{Method: "DELETE", URI: srv.URL}, policy)
	if errResp == nil || errResp.Kind != NotAllowed {
		t.Fatalf("Send() = %v, want NotAllowed for disallowed method", errResp)
	}
}

func TestAllowedRequestSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "1")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	h := NewHost()
	policy := workerconfig.HTTPRequests{
		AllowedHosts:   []string{hostOf(srv.URL)},
		AllowedMethods: []string{"GET"},
		ForceHTTPS:     false,
	}

	resp, errResp := h.Send(Request{Method: "GET", URI: srv.URL}, policy)
	if errResp != nil {
		t.Fatalf("Send() error = %v", errResp)
	}
	if resp.Status != 200 {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("Body = %q, want ok", resp.Body)
	}
}

func TestEmptyAllowedHostsDeniesAll(t *testing.T) {
	h := NewHost()
	policy := workerconfig.DefaultHTTPRequests()
	policy.ForceHTTPS = false

	_, errResp := h.Send(Request{Method: "GET", URI: "http://anything.example.com/"}, policy)
	if errResp == nil || errResp.Kind != NotAllowed {
		t.Fatalf("Send() = %v, want NotAllowed for default empty allow-list", errResp)
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return u.Host
}
