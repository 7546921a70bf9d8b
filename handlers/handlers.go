package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dchest/captcha"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"safehaven/auth"
	"safehaven/config"
	"safehaven/creds"
	"safehaven/i18n"
	"safehaven/models"
	"safehaven/store"
)

// App carries every dependency the handlers need. Nothing is read from
// package-level state, so tests can build an App around the in-memory store.
type App struct {
	Store     store.Store
	Sessions  *auth.Manager
	Log       *zap.Logger
	Cfg       config.Config
	Templates string // directory holding layout.html and the page templates

	loginLimiter *rateLimiter
}

func New(st store.Store, sessions *auth.Manager, log *zap.Logger, cfg config.Config) *App {
	return &App{
		Store:        st,
		Sessions:     sessions,
		Log:          log,
		Cfg:          cfg,
		Templates:    "templates",
		loginLimiter: newRateLimiter(),
	}
}

func (a *App) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", a.IndexHandler)
	mux.HandleFunc("/register", a.RegisterHandler)
	mux.HandleFunc("/login", a.LoginHandler)
	mux.HandleFunc("GET /logout", a.LogoutHandler)
	mux.HandleFunc("GET /dashboard", a.DashboardHandler)
	mux.HandleFunc("/add_patient", a.AddPatientHandler)
	mux.HandleFunc("POST /delete_patient/{id}", a.DeletePatientHandler)
	mux.HandleFunc("/update_patient/{id}", a.UpdatePatientHandler)

	if a.Cfg.CaptchaEnabled {
		mux.Handle("/captcha/", captcha.Server(captcha.StdWidth, captcha.StdHeight))
	}
}

func (a *App) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if a.Sessions.UserID(r) != "" {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	a.render(w, r, "index.html", nil)
}

func (a *App) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		lang := i18n.DetectLanguage(r)
		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")

		if username == "" || password == "" {
			a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "AllFieldsRequired"))
			http.Redirect(w, r, "/register", http.StatusSeeOther)
			return
		}

		if a.Cfg.CaptchaEnabled &&
			!captcha.VerifyString(r.FormValue("captcha_id"), r.FormValue("captcha_solution")) {
			a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "CaptchaFailed"))
			http.Redirect(w, r, "/register", http.StatusSeeOther)
			return
		}

		hash, err := creds.HashPassword(password)
		if err != nil {
			a.Log.Error("hashing password", zap.Error(err))
			a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "RegistrationFailed"))
			http.Redirect(w, r, "/register", http.StatusSeeOther)
			return
		}

		if _, err := a.Store.CreateUser(r.Context(), username, hash); err != nil {
			if errors.Is(err, store.ErrDuplicateUsername) {
				a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "UsernameAlreadyExists"))
			} else {
				a.Log.Error("creating user", zap.Error(err))
				a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "RegistrationFailed"))
			}
			http.Redirect(w, r, "/register", http.StatusSeeOther)
			return
		}

		a.Sessions.Flash(w, r, auth.FlashSuccess, i18n.T(lang, "RegistrationSuccess"))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	data := map[string]any{}
	if a.Cfg.CaptchaEnabled {
		data["CaptchaID"] = captcha.New()
	}
	a.render(w, r, "register.html", data)
}

func (a *App) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		lang := i18n.DetectLanguage(r)

		ip := getClientIP(r)
		if !a.loginLimiter.Allow(ip) {
			a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "TooManyAttempts"))
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")

		user, err := a.Store.UserByUsername(r.Context(), username)

		// Always run one bcrypt comparison so "unknown user" and "wrong
		// password" take the same time.
		targetHash := user.PasswordHash
		if err != nil {
			targetHash = creds.DummyHash()
		}
		match := creds.CheckPasswordHash(password, targetHash)

		if err != nil || !match {
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				a.Log.Error("looking up user", zap.Error(err))
			}
			a.loginLimiter.RecordFailure(ip)
			// Same message for both failure kinds, no username enumeration
			a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "InvalidCredentials"))
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		a.loginLimiter.Reset(ip)
		a.Sessions.SetSession(w, r, user.ID, user.Username)
		a.Sessions.Flash(w, r, auth.FlashSuccess, i18n.T(lang, "LoginSuccess"))
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	a.render(w, r, "login.html", nil)
}

func (a *App) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	a.Sessions.ClearSession(w, r)
	a.Sessions.Flash(w, r, auth.FlashSuccess, i18n.T(lang, "LoggedOut"))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (a *App) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	if a.Sessions.UserID(r) == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	lang := i18n.DetectLanguage(r)
	patients, err := a.Store.Patients(r.Context())
	if err != nil {
		a.Log.Error("listing patients", zap.Error(err))
		a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "StoreError"))
		patients = nil
	}

	a.render(w, r, "dashboard.html", map[string]any{"Patients": patients})
}

func (a *App) AddPatientHandler(w http.ResponseWriter, r *http.Request) {
	if a.Sessions.UserID(r) == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if r.Method == http.MethodPost {
		lang := i18n.DetectLanguage(r)
		name := strings.TrimSpace(r.FormValue("patient_name"))
		age := strings.TrimSpace(r.FormValue("age"))
		condition := strings.TrimSpace(r.FormValue("condition"))

		if name == "" || age == "" || condition == "" {
			a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "AllFieldsRequired"))
			http.Redirect(w, r, "/add_patient", http.StatusSeeOther)
			return
		}

		_, err := a.Store.CreatePatient(r.Context(), models.Patient{
			Name:      name,
			Age:       age,
			Condition: condition,
		})
		if err != nil {
			a.Log.Error("creating patient", zap.Error(err))
			a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "StoreError"))
			http.Redirect(w, r, "/add_patient", http.StatusSeeOther)
			return
		}

		a.Sessions.Flash(w, r, auth.FlashSuccess, i18n.T(lang, "PatientAdded"))
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	a.render(w, r, "add_patient.html", nil)
}

func (a *App) UpdatePatientHandler(w http.ResponseWriter, r *http.Request) {
	if a.Sessions.UserID(r) == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	lang := i18n.DetectLanguage(r)
	id := r.PathValue("id")

	if r.Method == http.MethodPost {
		name := strings.TrimSpace(r.FormValue("name"))
		age := strings.TrimSpace(r.FormValue("age"))
		condition := strings.TrimSpace(r.FormValue("condition"))

		if name == "" || age == "" || condition == "" {
			a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "AllFieldsRequired"))
			http.Redirect(w, r, "/update_patient/"+id, http.StatusSeeOther)
			return
		}

		err := a.Store.UpdatePatient(r.Context(), id, name, age, condition)
		switch {
		case errors.Is(err, store.ErrNotFound):
			a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "PatientNotFound"))
		case err != nil:
			a.Log.Error("updating patient", zap.Error(err), zap.String("id", id))
			a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "StoreError"))
		default:
			a.Sessions.Flash(w, r, auth.FlashSuccess, i18n.T(lang, "PatientUpdated"))
		}
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	patient, err := a.Store.PatientByID(r.Context(), id)
	if err != nil {
		// Never render the edit form with absent data
		if errors.Is(err, store.ErrNotFound) {
			a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "PatientNotFound"))
		} else {
			a.Log.Error("loading patient", zap.Error(err), zap.String("id", id))
			a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "StoreError"))
		}
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	a.render(w, r, "update_patient.html", map[string]any{"Patient": patient})
}

func (a *App) DeletePatientHandler(w http.ResponseWriter, r *http.Request) {
	if a.Sessions.UserID(r) == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	lang := i18n.DetectLanguage(r)
	if err := a.Store.DeletePatient(r.Context(), r.PathValue("id")); err != nil {
		a.Log.Error("deleting patient", zap.Error(err))
		a.Sessions.Flash(w, r, auth.FlashError, i18n.T(lang, "StoreError"))
	} else {
		// Deleting an id that no longer exists is still a success
		a.Sessions.Flash(w, r, auth.FlashSuccess, i18n.T(lang, "PatientDeleted"))
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (a *App) render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	lang := i18n.DetectLanguage(r)

	funcMap := template.FuncMap{
		"T": func(key string) string {
			return i18n.T(lang, key)
		},
	}

	tmpl, err := template.New(name).Funcs(funcMap).ParseFiles(
		filepath.Join(a.Templates, "layout.html"),
		filepath.Join(a.Templates, name),
	)
	if err != nil {
		a.Log.Error("parsing template", zap.Error(err), zap.String("template", name))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Flashes must be consumed before the body is written
	flashes := a.Sessions.Flashes(w, r)

	if data == nil {
		data = map[string]any{}
	}
	data["AppName"] = a.Cfg.AppName
	data["Lang"] = lang
	data["csrfField"] = csrf.TemplateField(r)
	data["Flashes"] = flashes
	data["Username"] = a.Sessions.Username(r)

	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		a.Log.Error("rendering template", zap.Error(err), zap.String("template", name))
	}
}
