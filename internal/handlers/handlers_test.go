package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"

	"budget-tracker/internal/models"
	"budget-tracker/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const testTemplateDir = "../../web/templates"

// HandlersTestSuite drives the HTTP surface end to end against an in-memory
// database.
type HandlersTestSuite struct {
	suite.Suite
	db  *storage.DB
	mux *chi.Mux
}

// SetupTest runs before each test
func (suite *HandlersTestSuite) SetupTest() {
	if _, err := os.Stat(testTemplateDir); os.IsNotExist(err) {
		suite.T().Skip("Template directory not found, skipping handler tests")
	}

	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	h := NewHandlers(db, testTemplateDir, false)

	mux := chi.NewRouter()
	mux.Get("/", h.Home)
	mux.Get("/register", h.RegisterForm)
	mux.Post("/register", h.Register)
	mux.Get("/login", h.LoginForm)
	mux.Post("/login", h.Login)
	mux.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Get("/logout", h.Logout)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/add_transaction", h.AddTransactionForm)
		r.Post("/add_transaction", h.AddTransaction)
		r.Get("/edit_transaction/{id}", h.EditTransactionForm)
		r.Post("/edit_transaction/{id}", h.EditTransaction)
		r.Post("/delete_transaction/{id}", h.DeleteTransaction)
		r.Get("/manage_categories", h.ManageCategories)
		r.Post("/manage_categories", h.CreateCategory)
		r.Post("/delete_category/{id}", h.DeleteCategory)
		r.Get("/reports", h.Reports)
	})
	suite.mux = mux
}

// TearDownTest runs after each test
func (suite *HandlersTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *HandlersTestSuite) get(path string, session *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, http.NoBody)
	if session != nil {
		req.AddCookie(session)
	}
	w := httptest.NewRecorder()
	suite.mux.ServeHTTP(w, req)
	return w
}

func (suite *HandlersTestSuite) postForm(path string, form url.Values, session *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if session != nil {
		req.AddCookie(session)
	}
	w := httptest.NewRecorder()
	suite.mux.ServeHTTP(w, req)
	return w
}

func (suite *HandlersTestSuite) register(username, email, password string) {
	w := suite.postForm("/register", url.Values{
		"username":         {username},
		"email":            {email},
		"password":         {password},
		"confirm_password": {password},
	}, nil)
	require.Equal(suite.T(), http.StatusFound, w.Code, "registration should redirect")
	require.Equal(suite.T(), "/login", w.Header().Get("Location"))
}

func (suite *HandlersTestSuite) login(email, password string) *http.Cookie {
	w := suite.postForm("/login", url.Values{
		"email":    {email},
		"password": {password},
	}, nil)
	require.Equal(suite.T(), http.StatusFound, w.Code, "login should redirect")
	require.Equal(suite.T(), "/dashboard", w.Header().Get("Location"))

	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == SessionCookieName && cookie.Value != "" {
			return cookie
		}
	}
	suite.T().Fatal("no session cookie set on login")
	return nil
}

func (suite *HandlersTestSuite) signUp(username, email, password string) *http.Cookie {
	suite.register(username, email, password)
	return suite.login(email, password)
}

func (suite *HandlersTestSuite) createCategory(session *http.Cookie, name string) *models.Category {
	w := suite.postForm("/manage_categories", url.Values{"name": {name}}, session)
	require.Equal(suite.T(), http.StatusFound, w.Code)

	user := suite.userForSession(session)
	categories, err := suite.db.ListCategories(user.ID)
	require.NoError(suite.T(), err)
	for i := range categories {
		if categories[i].Name == name {
			return &categories[i]
		}
	}
	suite.T().Fatalf("category %s not created", name)
	return nil
}

func (suite *HandlersTestSuite) userForSession(session *http.Cookie) *models.User {
	user, err := suite.db.ValidateSession(session.Value)
	require.NoError(suite.T(), err)
	return user
}

func (suite *HandlersTestSuite) addTransaction(session *http.Cookie, description, amount, date string, categoryID int64) *httptest.ResponseRecorder {
	return suite.postForm("/add_transaction", url.Values{
		"description": {description},
		"amount":      {amount},
		"date":        {date},
		"category_id": {strconv.FormatInt(categoryID, 10)},
	}, session)
}

func (suite *HandlersTestSuite) TestRegisterValidation() {
	tests := []struct {
		name    string
		form    url.Values
		wantErr string
	}{
		{
			name: "short username",
			form: url.Values{
				"username": {"ab"}, "email": {"a@x.com"},
				"password": {"pw12345678"}, "confirm_password": {"pw12345678"},
			},
			wantErr: "Username must be between 3 and 50 characters",
		},
		{
			name: "invalid email",
			form: url.Values{
				"username": {"alice"}, "email": {"not-an-email"},
				"password": {"pw12345678"}, "confirm_password": {"pw12345678"},
			},
			wantErr: "Please enter a valid email address",
		},
		{
			name: "short password",
			form: url.Values{
				"username": {"alice"}, "email": {"a@x.com"},
				"password": {"short"}, "confirm_password": {"short"},
			},
			wantErr: "Password must be at least 8 characters",
		},
		{
			name: "password mismatch",
			form: url.Values{
				"username": {"alice"}, "email": {"a@x.com"},
				"password": {"pw12345678"}, "confirm_password": {"pw12345679"},
			},
			wantErr: "Passwords do not match",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w := suite.postForm("/register", tt.form, nil)
			assert.Equal(suite.T(), http.StatusOK, w.Code, "validation errors re-render the form")
			assert.Contains(suite.T(), w.Body.String(), tt.wantErr)
		})
	}
}

func (suite *HandlersTestSuite) TestRegisterDuplicateEmail() {
	suite.register("alice", "a@x.com", "pw12345678")

	w := suite.postForm("/register", url.Values{
		"username":         {"alice2"},
		"email":            {"a@x.com"},
		"password":         {"pw12345678"},
		"confirm_password": {"pw12345678"},
	}, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Email is already in use.")
}

func (suite *HandlersTestSuite) TestLoginWrongPassword() {
	suite.register("alice", "a@x.com", "pw12345678")

	w := suite.postForm("/login", url.Values{
		"email":    {"a@x.com"},
		"password": {"wrongpassword"},
	}, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Invalid credentials. Please try again.")
}

func (suite *HandlersTestSuite) TestDashboardScenario() {
	session := suite.signUp("alice", "a@x.com", "pw12345678")
	income := suite.createCategory(session, "Income")

	w := suite.addTransaction(session, "Salary", "2000", "2024-01-01", income.ID)
	require.Equal(suite.T(), http.StatusFound, w.Code)
	require.Equal(suite.T(), "/dashboard", w.Header().Get("Location"))

	dash := suite.get("/dashboard", session)
	require.Equal(suite.T(), http.StatusOK, dash.Code)

	body := dash.Body.String()
	assert.Contains(suite.T(), body, "Salary")
	assert.Contains(suite.T(), body, `<span class="amount income" id="total-income">2000.00</span>`)
	assert.Contains(suite.T(), body, `<span class="amount expense" id="total-expenses">0.00</span>`)
	assert.Contains(suite.T(), body, `<span class="amount" id="remaining-budget">2000.00</span>`)
}

func (suite *HandlersTestSuite) TestDashboardMixedTotals() {
	session := suite.signUp("alice", "a@x.com", "pw12345678")
	income := suite.createCategory(session, "Income")
	groceries := suite.createCategory(session, "Groceries")

	require.Equal(suite.T(), http.StatusFound, suite.addTransaction(session, "Salary", "2000", "2024-01-01", income.ID).Code)
	require.Equal(suite.T(), http.StatusFound, suite.addTransaction(session, "Food", "-350.50", "2024-01-02", groceries.ID).Code)

	dash := suite.get("/dashboard", session)
	body := dash.Body.String()
	assert.Contains(suite.T(), body, `id="total-income">2000.00<`)
	assert.Contains(suite.T(), body, `id="total-expenses">-350.50<`)
	assert.Contains(suite.T(), body, `id="remaining-budget">1649.50<`)
}

func (suite *HandlersTestSuite) TestAddTransactionWithoutCategory() {
	session := suite.signUp("alice", "a@x.com", "pw12345678")

	w := suite.postForm("/add_transaction", url.Values{
		"description": {"Salary"},
		"amount":      {"2000"},
		"date":        {"2024-01-01"},
	}, session)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Please select a valid category.")
}

func (suite *HandlersTestSuite) TestAddTransactionForgedCategory() {
	alice := suite.signUp("alice", "a@x.com", "pw12345678")
	bob := suite.signUp("bob", "b@x.com", "pw12345678")
	bobCat := suite.createCategory(bob, "Rent")

	// Alice submits bob's category id
	w := suite.addTransaction(alice, "Sneaky", "-100", "2024-01-01", bobCat.ID)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Please select a valid category.")

	aliceUser := suite.userForSession(alice)
	transactions, err := suite.db.ListTransactions(aliceUser.ID, storage.TransactionFilter{})
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), transactions, "forged category id must not create a transaction")
}

func (suite *HandlersTestSuite) TestEditAndDeleteRequireOwnership() {
	alice := suite.signUp("alice", "a@x.com", "pw12345678")
	bob := suite.signUp("bob", "b@x.com", "pw12345678")

	income := suite.createCategory(alice, "Income")
	require.Equal(suite.T(), http.StatusFound, suite.addTransaction(alice, "Salary", "2000", "2024-01-01", income.ID).Code)

	aliceUser := suite.userForSession(alice)
	transactions, err := suite.db.ListTransactions(aliceUser.ID, storage.TransactionFilter{})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), transactions, 1)
	id := strconv.FormatInt(transactions[0].ID, 10)

	// Bob cannot view, edit or delete alice's transaction
	assert.Equal(suite.T(), http.StatusNotFound, suite.get("/edit_transaction/"+id, bob).Code)

	w := suite.postForm("/edit_transaction/"+id, url.Values{
		"description": {"Hijacked"},
		"amount":      {"0"},
		"date":        {"2024-01-01"},
		"category_id": {strconv.FormatInt(income.ID, 10)},
	}, bob)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)

	assert.Equal(suite.T(), http.StatusNotFound, suite.postForm("/delete_transaction/"+id, url.Values{}, bob).Code)

	// Alice can edit her own
	w = suite.postForm("/edit_transaction/"+id, url.Values{
		"description": {"Monthly salary"},
		"amount":      {"2100"},
		"date":        {"2024-01-01"},
		"category_id": {strconv.FormatInt(income.ID, 10)},
	}, alice)
	assert.Equal(suite.T(), http.StatusFound, w.Code)

	updated, err := suite.db.ListTransactions(aliceUser.ID, storage.TransactionFilter{})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), updated, 1)
	assert.Equal(suite.T(), "Monthly salary", updated[0].Description)
	assert.Equal(suite.T(), 2100.0, updated[0].Amount)
}

func (suite *HandlersTestSuite) TestDeleteCategoryCascadesToDashboard() {
	session := suite.signUp("alice", "a@x.com", "pw12345678")
	income := suite.createCategory(session, "Income")
	require.Equal(suite.T(), http.StatusFound, suite.addTransaction(session, "Salary", "2000", "2024-01-01", income.ID).Code)

	w := suite.postForm("/delete_category/"+strconv.FormatInt(income.ID, 10), url.Values{}, session)
	require.Equal(suite.T(), http.StatusFound, w.Code)

	dash := suite.get("/dashboard", session)
	require.Equal(suite.T(), http.StatusOK, dash.Code)
	assert.Contains(suite.T(), dash.Body.String(), "No transactions yet")
}

func (suite *HandlersTestSuite) TestReportsFilterByCategory() {
	session := suite.signUp("alice", "a@x.com", "pw12345678")
	income := suite.createCategory(session, "Income")
	groceries := suite.createCategory(session, "Groceries")

	require.Equal(suite.T(), http.StatusFound, suite.addTransaction(session, "Salary", "2000", "2024-01-01", income.ID).Code)
	require.Equal(suite.T(), http.StatusFound, suite.addTransaction(session, "Food", "-50", "2024-01-15", groceries.ID).Code)

	w := suite.get("/reports?category_id="+strconv.FormatInt(groceries.ID, 10), session)
	require.Equal(suite.T(), http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(suite.T(), body, "Food")
	assert.NotContains(suite.T(), body, "Salary")
}

func (suite *HandlersTestSuite) TestReportsDateRange() {
	session := suite.signUp("alice", "a@x.com", "pw12345678")
	misc := suite.createCategory(session, "Misc")

	require.Equal(suite.T(), http.StatusFound, suite.addTransaction(session, "January expense", "-10", "2024-01-15", misc.ID).Code)
	require.Equal(suite.T(), http.StatusFound, suite.addTransaction(session, "February expense", "-20", "2024-02-15", misc.ID).Code)

	w := suite.get("/reports?start_date=2024-02-01&end_date=2024-02-28", session)
	require.Equal(suite.T(), http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(suite.T(), body, "February expense")
	assert.NotContains(suite.T(), body, "January expense")
}

func (suite *HandlersTestSuite) TestLogoutInvalidatesSession() {
	session := suite.signUp("alice", "a@x.com", "pw12345678")

	w := suite.get("/logout", session)
	require.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/", w.Header().Get("Location"))

	// The session is gone server-side, not just the cookie
	dash := suite.get("/dashboard", session)
	assert.Equal(suite.T(), http.StatusFound, dash.Code)
	assert.Equal(suite.T(), "/login", dash.Header().Get("Location"))
}

func (suite *HandlersTestSuite) TestFlashShownOnce() {
	suite.register("alice", "a@x.com", "pw12345678")

	login := suite.postForm("/login", url.Values{
		"email":    {"a@x.com"},
		"password": {"pw12345678"},
	}, nil)
	require.Equal(suite.T(), http.StatusFound, login.Code)

	// Follow the redirect with every cookie the login response set
	req := httptest.NewRequest("GET", "/dashboard", http.NoBody)
	for _, cookie := range login.Result().Cookies() {
		req.AddCookie(cookie)
	}
	first := httptest.NewRecorder()
	suite.mux.ServeHTTP(first, req)
	require.Equal(suite.T(), http.StatusOK, first.Code)
	assert.Contains(suite.T(), first.Body.String(), "Login successful!")

	// The flash cookie was cleared by that render
	var clearedFlash bool
	var session *http.Cookie
	for _, cookie := range first.Result().Cookies() {
		if cookie.Name == FlashCookieName && cookie.MaxAge < 0 {
			clearedFlash = true
		}
	}
	for _, cookie := range login.Result().Cookies() {
		if cookie.Name == SessionCookieName {
			session = cookie
		}
	}
	assert.True(suite.T(), clearedFlash, "flash cookie should be cleared after display")

	second := suite.get("/dashboard", session)
	assert.NotContains(suite.T(), second.Body.String(), "Login successful!")
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
