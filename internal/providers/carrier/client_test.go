package carrier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient("user", "pass",
		WithBaseURL(srv.URL),
		WithSettleDelay(0),
		WithLogger(testLogger()))
}

const locationsXML = `<locations xmlns:atom="http://www.w3.org/2005/Atom"><location><name>Home</name><atom:link rel="self" href="https://www.app-api.ing.carrier.com/users/user/locations/loc1"/><systems><system><atom:link rel="self" href="https://www.app-api.ing.carrier.com/systems/SER123"/></system><system><atom:link rel="self" href="https://www.app-api.ing.carrier.com/systems/SER456"/></system></systems></location></locations>`

func TestLoginStoresToken(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/users/authenticated" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing login form: %v", err)
		}
		if data := r.PostFormValue("data"); !strings.Contains(data, "<username>user</username>") {
			t.Errorf("login payload missing username: %q", data)
		}
		fmt.Fprint(w, `{"result":{"accessToken":"tok123"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if c.cred.AccessToken != "tok123" {
		t.Errorf("access token = %q, want tok123", c.cred.AccessToken)
	}
	if !strings.HasPrefix(gotAuth, "OAuth realm=") {
		t.Errorf("Authorization header = %q", gotAuth)
	}
	if !strings.Contains(gotAuth, "oauth_token=user") {
		t.Errorf("Authorization header missing identity: %q", gotAuth)
	}
	if gotAccept != "application/json" {
		t.Errorf("login Accept = %q, want application/json", gotAccept)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	err := c.Login(context.Background())

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Login error = %v, want AuthError", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Errorf("AuthError status = %d, want 401", authErr.Status)
	}
	if c.cred.AccessToken != "" {
		t.Errorf("failed login left a token behind: %q", c.cred.AccessToken)
	}
}

func TestRequestReauthenticatesOnceOnTokenExpiry(t *testing.T) {
	var statusCalls, loginCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/users/authenticated", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		loginCalls++
		fmt.Fprint(w, `{"result":{"accessToken":"fresh"}}`)
	})
	mux.HandleFunc("/users/user/activateSystems", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/systems/SER123/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		statusCalls++
		if statusCalls == 1 {
			http.Error(w, "signature doesn't match", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, sampleStatusXML)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	c.cred.AccessToken = "stale"

	status, err := c.Status(context.Background(), "SER123")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if status.Mode() != "heat" {
		t.Errorf("Mode = %q, want heat", status.Mode())
	}
	if statusCalls != 2 {
		t.Errorf("status endpoint called %d times, want 2", statusCalls)
	}
	if loginCalls != 1 {
		t.Errorf("re-authenticated %d times, want exactly 1", loginCalls)
	}
	if c.cred.AccessToken != "fresh" {
		t.Errorf("token = %q after refresh, want fresh", c.cred.AccessToken)
	}
}

func TestRequestSecondAuthFailureNotRetried(t *testing.T) {
	var statusCalls, loginCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/users/authenticated", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		loginCalls++
		fmt.Fprint(w, `{"result":{"accessToken":"fresh"}}`)
	})
	mux.HandleFunc("/systems/SER123/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		statusCalls++
		http.Error(w, "signature doesn't match", http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	c.cred.AccessToken = "stale"

	_, err := c.request(context.Background(), "GET", "/systems/SER123/status", "", nil)

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthError", err)
	}
	if statusCalls != 2 {
		t.Errorf("status endpoint called %d times, want 2 (original + single retry)", statusCalls)
	}
	if loginCalls != 1 {
		t.Errorf("re-authenticated %d times, want exactly 1", loginCalls)
	}
}

func TestRequestSurfacesTransientFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.cred.AccessToken = "tok"

	_, err := c.request(context.Background(), "GET", "/systems/SER123/status", "", nil)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want RequestError", err)
	}
	if reqErr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", reqErr.Status)
	}
	if !strings.Contains(reqErr.Body, "maintenance") {
		t.Errorf("body = %q, want server detail", reqErr.Body)
	}
}

func TestSystemsDiscoveryAndCaching(t *testing.T) {
	var locationCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/users/user/locations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		locationCalls++
		fmt.Fprint(w, locationsXML)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	c.cred.AccessToken = "tok"

	systems, err := c.Systems(context.Background())
	if err != nil {
		t.Fatalf("Systems returned error: %v", err)
	}
	if len(systems) != 2 || systems[0] != "SER123" || systems[1] != "SER456" {
		t.Errorf("Systems = %v, want [SER123 SER456]", systems)
	}

	if _, err := c.Systems(context.Background()); err != nil {
		t.Fatalf("cached Systems returned error: %v", err)
	}
	if locationCalls != 1 {
		t.Errorf("locations fetched %d times, want 1 (cached)", locationCalls)
	}
}

func TestReadTelemetryJoinsDocuments(t *testing.T) {
	statusXML := `<status><oat>41</oat><mode>dehumidify</mode><zones><zone id="1"><rt>69.5</rt><rh>42</rh><currentActivity>home</currentActivity><htsp>68.0</htsp><clsp>74.0</clsp></zone><zone id="2"><rt>71.0</rt></zone><zone id="3"><rt>60.0</rt></zone></zones></status>`
	configXML := `<config><zones><zone id="1"><name>Downstairs</name></zone><zone id="2"><name>Upstairs</name></zone></zones></config>`
	profileXML := `<system_profile><zones><zone id="1"><present>on</present></zone><zone id="2"><present>on</present></zone><zone id="3"><present>off</present></zone></zones></system_profile>`

	mux := http.NewServeMux()
	mux.HandleFunc("/users/user/activateSystems", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/systems/SER123/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fmt.Fprint(w, statusXML)
	})
	mux.HandleFunc("/systems/SER123/config", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fmt.Fprint(w, configXML)
	})
	mux.HandleFunc("/systems/SER123/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fmt.Fprint(w, profileXML)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	c.cred.AccessToken = "tok"

	sample, err := c.ReadTelemetry(context.Background(), "SER123")
	if err != nil {
		t.Fatalf("ReadTelemetry returned error: %v", err)
	}

	if sample.System != "SER123" {
		t.Errorf("System = %q", sample.System)
	}
	if sample.OutdoorTemp == nil || *sample.OutdoorTemp != 41.0 {
		t.Errorf("OutdoorTemp = %v, want 41", sample.OutdoorTemp)
	}
	if sample.Mode != "cool" {
		t.Errorf("Mode = %q, want cool (normalized from dehumidify)", sample.Mode)
	}

	if len(sample.Zones) != 2 {
		t.Fatalf("got %d zones, want 2 (zone 3 is not present)", len(sample.Zones))
	}
	if sample.Zones[0].Name != "Downstairs" || sample.Zones[0].Temp != 69.5 {
		t.Errorf("zone 1 = %+v", sample.Zones[0])
	}
	if sample.Zones[1].Name != "Upstairs" || sample.Zones[1].Activity != "unknown" {
		t.Errorf("zone 2 = %+v", sample.Zones[1])
	}
}
