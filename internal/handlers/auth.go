package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"budget-tracker/internal/auth"
	"budget-tracker/internal/storage"

	"github.com/rs/zerolog/log"
)

// RegisterViewModel holds data for the registration page.
type RegisterViewModel struct {
	Page
	Error    string
	Username string
	Email    string
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, "register.html", RegisterViewModel{Page: h.newPage(w, r)})
}

// Register handles the registration form submission.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, "register.html", RegisterViewModel{Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	confirm := r.FormValue("confirm_password")

	fail := func(msg string) {
		h.render(w, "register.html", RegisterViewModel{
			Page:     h.newPage(w, r),
			Error:    msg,
			Username: username,
			Email:    email,
		})
	}

	if len(username) < 3 || len(username) > 50 {
		fail("Username must be between 3 and 50 characters")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		fail("Please enter a valid email address")
		return
	}
	if len(password) < 8 {
		fail("Password must be at least 8 characters")
		return
	}
	if password != confirm {
		fail("Passwords do not match")
		return
	}

	if _, err := h.db.GetUserByEmail(email); err == nil {
		fail("Email is already in use.")
		return
	}
	if _, err := h.db.GetUserByUsername(username); err == nil {
		fail("Username is already taken.")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Error().Err(err).Msg("password hashing failed")
		fail("An error occurred. Please try again.")
		return
	}

	if _, err := h.db.CreateUser(username, email, hash); err != nil {
		log.Error().Err(err).Msg("user creation failed")
		fail("An error occurred. Please try again.")
		return
	}

	h.setFlash(w, "success", "Registration successful! You can now log in.")
	http.Redirect(w, r, "/login", http.StatusFound)
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Page
	Error string
	Email string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to the dashboard
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if _, err := h.db.ValidateSession(cookie.Value); err == nil {
			http.Redirect(w, r, "/dashboard", http.StatusFound)
			return
		}
	}
	h.render(w, "login.html", LoginViewModel{Page: h.newPage(w, r)})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, "login.html", LoginViewModel{Error: "Invalid form submission"})
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	if email == "" || password == "" {
		h.render(w, "login.html", LoginViewModel{Error: "Email and password are required", Email: email})
		return
	}

	user, err := h.db.GetUserByEmail(email)
	if err != nil || !auth.CheckPassword(password, user.PasswordHash) {
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Error().Err(err).Msg("user lookup failed")
		}
		h.render(w, "login.html", LoginViewModel{Error: "Invalid credentials. Please try again.", Email: email})
		return
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		log.Error().Err(err).Msg("session token generation failed")
		h.render(w, "login.html", LoginViewModel{Error: "An error occurred. Please try again.", Email: email})
		return
	}

	expiresAt := time.Now().Add(SessionDuration)
	if err := h.db.CreateSession(token, user.ID, expiresAt); err != nil {
		log.Error().Err(err).Msg("session creation failed")
		h.render(w, "login.html", LoginViewModel{Error: "An error occurred. Please try again.", Email: email})
		return
	}

	h.setSessionCookie(w, token)
	h.setFlash(w, "success", "Login successful!")
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.db.DeleteSession(cookie.Value); err != nil {
			log.Error().Err(err).Msg("session deletion failed")
		}
	}
	h.clearSessionCookie(w)
	h.setFlash(w, "info", "You have been logged out.")
	http.Redirect(w, r, "/", http.StatusFound)
}
