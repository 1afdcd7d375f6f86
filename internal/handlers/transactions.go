package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"budget-tracker/internal/models"
	"budget-tracker/internal/storage"

	"github.com/rs/zerolog/log"
)

// dashboardLimit is the number of recent transactions shown on the dashboard.
// The totals are computed over this limited set, not the full history.
const dashboardLimit = 5

// transactionDateFormat is the date input format on transaction forms.
const transactionDateFormat = "2006-01-02"

// DashboardViewModel holds data for the dashboard page.
type DashboardViewModel struct {
	Page
	Transactions    []models.Transaction
	TotalIncome     float64
	TotalExpenses   float64
	RemainingBudget float64
}

// Dashboard renders the recent transactions and their totals.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	transactions, err := h.db.ListRecentTransactions(user.ID, dashboardLimit)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("listing recent transactions failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var totalIncome, totalExpenses float64
	for _, t := range transactions {
		if t.Amount > 0 {
			totalIncome += t.Amount
		} else {
			totalExpenses += t.Amount
		}
	}

	h.render(w, "dashboard.html", DashboardViewModel{
		Page:            h.newPage(w, r),
		Transactions:    transactions,
		TotalIncome:     totalIncome,
		TotalExpenses:   totalExpenses,
		RemainingBudget: totalIncome + totalExpenses,
	})
}

// TransactionFormViewModel holds data for the add/edit transaction forms.
type TransactionFormViewModel struct {
	Page
	Error       string
	Transaction *models.Transaction
	Categories  []models.Category
	IsEdit      bool
}

// transactionForm holds parsed and validated transaction form input.
type transactionForm struct {
	Description string
	Amount      float64
	Date        time.Time
	CategoryID  *int64
}

// parseTransactionForm validates the transaction form. A missing or
// unselected category is reported through a nil CategoryID, never through a
// magic placeholder id.
func parseTransactionForm(r *http.Request) (*transactionForm, string) {
	if err := r.ParseForm(); err != nil {
		return nil, "Invalid form submission"
	}

	form := &transactionForm{
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if form.Description == "" {
		return nil, "Description is required"
	}

	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	if err != nil {
		return nil, "Please enter a valid amount"
	}
	form.Amount = amount

	form.Date, err = time.Parse(transactionDateFormat, r.FormValue("date"))
	if err != nil {
		return nil, "Please enter a valid date"
	}

	if raw := r.FormValue("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, "Please select a valid category."
		}
		form.CategoryID = &id
	}
	if form.CategoryID == nil {
		return nil, "Please select a valid category."
	}

	return form, ""
}

// AddTransactionForm renders the form to create a new transaction.
func (h *Handlers) AddTransactionForm(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	categories, err := h.db.ListCategories(user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("listing categories failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, "add_transaction.html", TransactionFormViewModel{
		Page:       h.newPage(w, r),
		Categories: categories,
	})
}

// AddTransaction handles the creation of a new transaction.
func (h *Handlers) AddTransaction(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	form, errMsg := parseTransactionForm(r)
	if errMsg != "" {
		h.renderTransactionForm(w, r, user, "add_transaction.html", nil, errMsg)
		return
	}

	transaction := &models.Transaction{
		Description: form.Description,
		Amount:      form.Amount,
		Date:        form.Date,
		UserID:      user.ID,
		CategoryID:  *form.CategoryID,
	}

	if err := h.db.CreateTransaction(transaction); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.renderTransactionForm(w, r, user, "add_transaction.html", nil, "Please select a valid category.")
			return
		}
		log.Error().Err(err).Int64("user_id", user.ID).Msg("transaction creation failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.setFlash(w, "success", "Transaction added successfully!")
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// EditTransactionForm renders the form to edit an existing transaction.
func (h *Handlers) EditTransactionForm(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}

	transaction, err := h.db.GetTransactionForUser(id, user.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Transaction not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("user_id", user.ID).Msg("transaction lookup failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.renderTransactionForm(w, r, user, "edit_transaction.html", transaction, "")
}

// EditTransaction handles the update of an existing transaction.
func (h *Handlers) EditTransaction(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}

	transaction, err := h.db.GetTransactionForUser(id, user.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Transaction not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("user_id", user.ID).Msg("transaction lookup failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	form, errMsg := parseTransactionForm(r)
	if errMsg != "" {
		h.renderTransactionForm(w, r, user, "edit_transaction.html", transaction, errMsg)
		return
	}

	transaction.Description = form.Description
	transaction.Amount = form.Amount
	transaction.Date = form.Date
	transaction.CategoryID = *form.CategoryID

	if err := h.db.UpdateTransaction(transaction); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.renderTransactionForm(w, r, user, "edit_transaction.html", transaction, "Please select a valid category.")
			return
		}
		log.Error().Err(err).Int64("user_id", user.ID).Msg("transaction update failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.setFlash(w, "success", "Transaction updated successfully!")
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// DeleteTransaction handles the deletion of a transaction.
func (h *Handlers) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}

	if err := h.db.DeleteTransaction(id, user.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Transaction not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("user_id", user.ID).Msg("transaction deletion failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.setFlash(w, "success", "Transaction deleted successfully!")
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (h *Handlers) renderTransactionForm(w http.ResponseWriter, r *http.Request, user *models.User, view string, transaction *models.Transaction, errMsg string) {
	categories, err := h.db.ListCategories(user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("listing categories failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, view, TransactionFormViewModel{
		Page:        h.newPage(w, r),
		Error:       errMsg,
		Transaction: transaction,
		Categories:  categories,
		IsEdit:      transaction != nil,
	})
}
