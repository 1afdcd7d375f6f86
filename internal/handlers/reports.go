package handlers

import (
	"net/http"
	"strconv"
	"time"

	"budget-tracker/internal/models"
	"budget-tracker/internal/storage"

	"github.com/rs/zerolog/log"
)

// ReportsViewModel holds data for the filtered transaction report.
type ReportsViewModel struct {
	Page
	Transactions []models.Transaction
	Categories   []models.Category

	// Raw filter values, echoed back into the form.
	StartDate  string
	EndDate    string
	CategoryID string
}

// Reports renders the transaction report. The start_date, end_date and
// category_id parameters are optional and AND-combined; an unparseable value
// is treated as absent.
func (h *Handlers) Reports(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	startRaw := r.FormValue("start_date")
	endRaw := r.FormValue("end_date")
	categoryRaw := r.FormValue("category_id")

	var filter storage.TransactionFilter
	if startRaw != "" {
		if start, err := time.Parse(transactionDateFormat, startRaw); err == nil {
			filter.StartDate = &start
		}
	}
	if endRaw != "" {
		if end, err := time.Parse(transactionDateFormat, endRaw); err == nil {
			filter.EndDate = &end
		}
	}
	if categoryRaw != "" {
		if id, err := strconv.ParseInt(categoryRaw, 10, 64); err == nil {
			filter.CategoryID = &id
		}
	}

	transactions, err := h.db.ListTransactions(user.ID, filter)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("listing transactions failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	categories, err := h.db.ListCategories(user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("listing categories failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, "reports.html", ReportsViewModel{
		Page:         h.newPage(w, r),
		Transactions: transactions,
		Categories:   categories,
		StartDate:    startRaw,
		EndDate:      endRaw,
		CategoryID:   categoryRaw,
	})
}
