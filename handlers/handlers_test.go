package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"safehaven/auth"
	"safehaven/config"
	"safehaven/i18n"
	"safehaven/store"
)

const testSessionKey = "test-secret-key-12345678901234567890123456789012"

func TestMain(m *testing.M) {
	if err := i18n.LoadTranslations("../i18n"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func newTestApp() *App {
	cfg := config.Config{AppName: "SafeHaven", SessionKey: testSessionKey}
	app := New(store.NewMemory(), auth.NewManager(testSessionKey, false), zap.NewNop(), cfg)
	app.Templates = "../templates"
	return app
}

func newTestMux(app *App) *http.ServeMux {
	mux := http.NewServeMux()
	app.RegisterHandlers(mux)
	return mux
}

// browser replays cookies between requests the way a real client would.
type browser struct {
	t       *testing.T
	mux     *http.ServeMux
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, mux *http.ServeMux) *browser {
	return &browser{t: t, mux: mux, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	b.mux.ServeHTTP(rr, req)
	for _, c := range rr.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
		} else {
			b.cookies[c.Name] = c
		}
	}
	return rr
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(http.MethodGet, path, nil)
}

func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	return b.do(http.MethodPost, path, form)
}

// follow asserts rr is a redirect and fetches its target, returning the body
// (where any flash set by the redirecting handler is rendered).
func (b *browser) follow(rr *httptest.ResponseRecorder) string {
	b.t.Helper()
	if rr.Code != http.StatusSeeOther {
		b.t.Fatalf("Expected 303 redirect, got %d", rr.Code)
	}
	resp := b.get(rr.Header().Get("Location"))
	if resp.Code != http.StatusOK {
		b.t.Fatalf("Following redirect to %s returned %d", rr.Header().Get("Location"), resp.Code)
	}
	return resp.Body.String()
}

func (b *browser) register(username, password string) *httptest.ResponseRecorder {
	return b.post("/register", url.Values{"username": {username}, "password": {password}})
}

func (b *browser) login(username, password string) *httptest.ResponseRecorder {
	return b.post("/login", url.Values{"username": {username}, "password": {password}})
}

func assertRedirect(t *testing.T, rr *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("Expected 303, got %d", rr.Code)
	}
	if got := rr.Header().Get("Location"); got != location {
		t.Fatalf("Expected redirect to %s, got %s", location, got)
	}
}

func TestSessionGuard(t *testing.T) {
	app := newTestApp()
	mux := newTestMux(app)

	gated := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/dashboard"},
		{http.MethodGet, "/add_patient"},
		{http.MethodPost, "/add_patient"},
		{http.MethodGet, "/update_patient/some-id"},
		{http.MethodPost, "/update_patient/some-id"},
		{http.MethodPost, "/delete_patient/some-id"},
	}

	for _, route := range gated {
		b := newBrowser(t, mux)
		rr := b.do(route.method, route.path, url.Values{})
		if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
			t.Errorf("%s %s without session: expected redirect to /login, got %d %s",
				route.method, route.path, rr.Code, rr.Header().Get("Location"))
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	b := newBrowser(t, newTestMux(newTestApp()))

	rr := b.register("alice", "")
	assertRedirect(t, rr, "/register")
	if body := b.follow(rr); !strings.Contains(body, "All fields are required.") {
		t.Error("Expected required-fields flash on the registration form")
	}

	rr = b.register("", "pw123")
	assertRedirect(t, rr, "/register")
}

func TestRegisterAndLogin(t *testing.T) {
	b := newBrowser(t, newTestMux(newTestApp()))

	rr := b.register("alice", "pw123")
	assertRedirect(t, rr, "/login")
	if body := b.follow(rr); !strings.Contains(body, "Registration successful") {
		t.Error("Expected registration success flash on the login form")
	}

	// Wrong password and unknown user show the same generic message
	rr = b.login("alice", "wrong")
	assertRedirect(t, rr, "/login")
	wrongPass := b.follow(rr)
	rr = b.login("nobody", "pw123")
	assertRedirect(t, rr, "/login")
	unknownUser := b.follow(rr)
	for _, body := range []string{wrongPass, unknownUser} {
		if !strings.Contains(body, "Invalid credentials") {
			t.Error("Expected generic invalid-credentials flash")
		}
	}

	rr = b.login("alice", "pw123")
	assertRedirect(t, rr, "/dashboard")
	if body := b.follow(rr); !strings.Contains(body, "Login successful!") {
		t.Error("Expected login success flash on the dashboard")
	}

	// The session now grants access to every gated route
	if rr := b.get("/add_patient"); rr.Code != http.StatusOK {
		t.Errorf("Expected 200 on /add_patient with session, got %d", rr.Code)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	b := newBrowser(t, newTestMux(newTestApp()))

	assertRedirect(t, b.register("bob", "pw1"), "/login")

	rr := b.register("bob", "pw2")
	assertRedirect(t, rr, "/register")
	if body := b.follow(rr); !strings.Contains(body, "already taken") {
		t.Error("Expected duplicate-username flash")
	}
}

func TestLogout(t *testing.T) {
	b := newBrowser(t, newTestMux(newTestApp()))

	b.register("alice", "pw123")
	assertRedirect(t, b.login("alice", "pw123"), "/dashboard")

	rr := b.get("/logout")
	assertRedirect(t, rr, "/login")
	if body := b.follow(rr); !strings.Contains(body, "You have been logged out.") {
		t.Error("Expected logout flash on the login form")
	}

	// The cleared session no longer opens gated routes
	assertRedirect(t, b.get("/dashboard"), "/login")
}

func TestPatientLifecycle(t *testing.T) {
	app := newTestApp()
	b := newBrowser(t, newTestMux(app))

	b.register("alice", "pw123")
	b.login("alice", "pw123")

	rr := b.post("/add_patient", url.Values{
		"patient_name": {"Bob"},
		"age":          {"45"},
		"condition":    {"flu"},
	})
	assertRedirect(t, rr, "/dashboard")
	body := b.follow(rr)
	for _, want := range []string{"Patient added successfully!", "Bob", "45", "flu"} {
		if !strings.Contains(body, want) {
			t.Errorf("Dashboard missing %q after add", want)
		}
	}

	patients, err := app.Store.Patients(context.Background())
	if err != nil || len(patients) != 1 {
		t.Fatalf("Expected 1 stored patient, got %d (err=%v)", len(patients), err)
	}
	id := patients[0].ID

	// Edit form comes pre-populated
	if rr := b.get("/update_patient/" + id); rr.Code != http.StatusOK ||
		!strings.Contains(rr.Body.String(), `value="Bob"`) {
		t.Error("Expected pre-populated edit form")
	}

	rr = b.post("/update_patient/"+id, url.Values{
		"name":      {"Robert"},
		"age":       {"46"},
		"condition": {"recovered"},
	})
	assertRedirect(t, rr, "/dashboard")
	body = b.follow(rr)
	if !strings.Contains(body, "Patient updated successfully!") || !strings.Contains(body, "Robert") {
		t.Error("Expected updated patient on the dashboard")
	}
	if strings.Contains(body, "Bob<") {
		t.Error("Old name still listed after update")
	}

	patients, _ = app.Store.Patients(context.Background())
	if patients[0].ID != id {
		t.Error("Update changed the patient identifier")
	}

	rr = b.post("/delete_patient/"+id, url.Values{})
	assertRedirect(t, rr, "/dashboard")
	body = b.follow(rr)
	if !strings.Contains(body, "Patient deleted successfully!") {
		t.Error("Expected delete success flash")
	}
	if strings.Contains(body, "Robert") {
		t.Error("Deleted patient still listed")
	}
}

func TestAddPatientValidation(t *testing.T) {
	app := newTestApp()
	b := newBrowser(t, newTestMux(app))

	b.register("alice", "pw123")
	b.login("alice", "pw123")

	rr := b.post("/add_patient", url.Values{
		"patient_name": {"Bob"},
		"age":          {"45"},
		// condition missing
	})
	assertRedirect(t, rr, "/add_patient")
	if body := b.follow(rr); !strings.Contains(body, "All fields are required.") {
		t.Error("Expected required-fields flash on the add form")
	}

	if patients, _ := app.Store.Patients(context.Background()); len(patients) != 0 {
		t.Error("Invalid submission created a patient")
	}
}

func TestUpdateMissingPatient(t *testing.T) {
	b := newBrowser(t, newTestMux(newTestApp()))

	b.register("alice", "pw123")
	b.login("alice", "pw123")

	// The edit form is never rendered for an unknown id
	rr := b.get("/update_patient/no-such-id")
	assertRedirect(t, rr, "/dashboard")
	if body := b.follow(rr); !strings.Contains(body, "Patient not found.") {
		t.Error("Expected not-found flash for unknown id on GET")
	}

	rr = b.post("/update_patient/no-such-id", url.Values{
		"name":      {"X"},
		"age":       {"1"},
		"condition": {"y"},
	})
	assertRedirect(t, rr, "/dashboard")
	if body := b.follow(rr); !strings.Contains(body, "Patient not found.") {
		t.Error("Expected not-found flash for unknown id on POST")
	}
}

func TestDeleteMissingPatient(t *testing.T) {
	app := newTestApp()
	b := newBrowser(t, newTestMux(app))

	b.register("alice", "pw123")
	b.login("alice", "pw123")
	b.post("/add_patient", url.Values{
		"patient_name": {"Bob"},
		"age":          {"45"},
		"condition":    {"flu"},
	})

	// Deleting an id that never existed still succeeds and touches nothing
	rr := b.post("/delete_patient/no-such-id", url.Values{})
	assertRedirect(t, rr, "/dashboard")
	body := b.follow(rr)
	if !strings.Contains(body, "Patient deleted successfully!") {
		t.Error("Expected success flash for no-op delete")
	}
	if !strings.Contains(body, "Bob") {
		t.Error("No-op delete affected another record")
	}
}

func TestIndexRedirectsWhenLoggedIn(t *testing.T) {
	b := newBrowser(t, newTestMux(newTestApp()))

	if rr := b.get("/"); rr.Code != http.StatusOK {
		t.Errorf("Expected 200 on landing page, got %d", rr.Code)
	}

	b.register("alice", "pw123")
	b.login("alice", "pw123")
	assertRedirect(t, b.get("/"), "/dashboard")
}

func TestLoginRateLimit(t *testing.T) {
	app := newTestApp()
	b := newBrowser(t, newTestMux(app))

	b.register("alice", "pw123")

	// httptest requests all come from 192.0.2.1
	for i := 0; i < maxAttempts; i++ {
		app.loginLimiter.RecordFailure("192.0.2.1")
	}

	// Even the right password is turned away while blocked
	rr := b.login("alice", "pw123")
	assertRedirect(t, rr, "/login")
	if body := b.follow(rr); !strings.Contains(body, "Too many failed attempts") {
		t.Error("Expected rate-limit flash")
	}
}

func TestRegisterCaptcha(t *testing.T) {
	app := newTestApp()
	app.Cfg.CaptchaEnabled = true
	mux := newTestMux(app)
	b := newBrowser(t, mux)

	if rr := b.get("/register"); !strings.Contains(rr.Body.String(), "/captcha/") {
		t.Error("Expected captcha image on the registration form")
	}

	rr := b.post("/register", url.Values{
		"username":         {"alice"},
		"password":         {"pw123"},
		"captcha_id":       {"bogus"},
		"captcha_solution": {"000000"},
	})
	assertRedirect(t, rr, "/register")
	if body := b.follow(rr); !strings.Contains(body, "Captcha verification failed") {
		t.Error("Expected captcha failure flash")
	}
}
