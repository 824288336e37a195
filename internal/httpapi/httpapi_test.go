package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/framegrace/pixelwell/internal/canvas"
	"github.com/framegrace/pixelwell/internal/clients"
	"github.com/framegrace/pixelwell/internal/config"
	"github.com/framegrace/pixelwell/internal/heart"
)

func newTestServer(t *testing.T) (*Server, *canvas.Canvas) {
	t.Helper()
	store := heart.New(16, 16, heart.NewClock())
	cv := canvas.New(store, heart.NewStats(), time.Millisecond, nil)
	cv.Start()
	t.Cleanup(cv.Stop)

	registry := clients.New(1000000, 1000000)

	hash, err := bcrypt.GenerateFromPassword([]byte("secretpw"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg := config.Default()
	cfg.General.Admin.Username = "admin"
	cfg.General.Admin.PasswordHash = string(hash)
	cfg.General.Admin.JWTSecret = "test-secret"
	cfg.Frontend.API.EnableAdmin = true
	cfg.Frontend.API.DeltaCutoff = 1000

	s := New(cv, registry, cfg, config.NewReloader("/nonexistent", nil), nil)
	return s, cv
}

func doRequest(s *Server, method, target string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.5:4000"
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestCanvasSize(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/canvas/size", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"x":16`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestPutThenGetPixel(t *testing.T) {
	s, cv := newTestServer(t)
	rec := doRequest(s, http.MethodPut, "/canvas/pixel?x=5&y=5&color=00ff00", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT status = %d body=%s", rec.Code, rec.Body.String())
	}
	cv.Tick()

	rec = doRequest(s, http.MethodGet, "/canvas/pixel?x=5&y=5", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "00ff00" {
		t.Fatalf("GET = %d %q", rec.Code, rec.Body.String())
	}
}

func TestPutPixelOutOfBoundsIs422(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodPut, "/canvas/pixel?x=999&y=5&color=00ff00", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPutPixelMalformedColorIs422(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodPut, "/canvas/pixel?x=1&y=1&color=ff00", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPutPixelOnCooldownIs403(t *testing.T) {
	store := heart.New(8, 8, heart.NewClock())
	cv := canvas.New(store, heart.NewStats(), time.Millisecond, nil)
	cv.Start()
	defer cv.Stop()
	registry := clients.New(1, 1) // 1 pps
	cfg := config.Default()
	s := New(cv, registry, cfg, config.NewReloader("/nonexistent", nil), nil)

	rec := doRequest(s, http.MethodPut, "/canvas/pixel?x=0&y=0&color=000000", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("first write status = %d", rec.Code)
	}
	rec = doRequest(s, http.MethodPut, "/canvas/pixel?x=1&y=0&color=000000", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("second write status = %d, want 403", rec.Code)
	}
}

func TestSinceReturnsDeltasAndRedirectsPastCutoff(t *testing.T) {
	s, cv := newTestServer(t)
	cv.Enqueue(3, 4, 0xff, 0, 0, 255)
	cv.Tick()

	rec := doRequest(s, http.MethodGet, "/canvas/since?timestamp=0&raw=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ff0000"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}

	cfgWithLowCutoff := *s.cfg.Load()
	cfgWithLowCutoff.Frontend.API.DeltaCutoff = 0
	s.cfg.Store(&cfgWithLowCutoff)

	rec = doRequest(s, http.MethodGet, "/canvas/since?timestamp=0&raw=false", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302 redirect past cutoff", rec.Code)
	}
}

func TestLoginSucceedsWithValidCredentials(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=admin&password=secretpw"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "access_token") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestLoginFailsWithOneOfTheObfuscationCodes(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=admin&password=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	found := false
	for _, code := range badCredentialCodes {
		if rec.Code == code {
			found = true
		}
	}
	if !found {
		t.Fatalf("status %d is not one of the obfuscation codes", rec.Code)
	}
}

func TestAdminRoutesRejectMissingToken(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/admin/reload", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAdminPixelAppliesImmediatelyWithValidToken(t *testing.T) {
	s, cv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=admin&password=secretpw"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	var loginResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	body := fmt.Sprintf(`{"pixels":[[2,2,"112233ff"]]}`)
	req2 := httptest.NewRequest(http.MethodPut, "/admin/pixel", strings.NewReader(body))
	req2.Header.Set("Authorization", "Bearer "+loginResp.AccessToken)
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec2.Code, rec2.Body.String())
	}

	got := cv.Store().Read(2, 2)
	if got != (heart.RGB{R: 0x11, G: 0x22, B: 0x33}) {
		t.Fatalf("admin pixel not applied immediately: %+v", got)
	}
}
