package handlers

import (
	"errors"
	"net/http"
	"strings"

	"budget-tracker/internal/models"
	"budget-tracker/internal/storage"

	"github.com/rs/zerolog/log"
)

// CategoriesViewModel holds data for the category management page.
type CategoriesViewModel struct {
	Page
	Error      string
	Categories []models.Category
}

// ManageCategories renders the category list with its creation form.
func (h *Handlers) ManageCategories(w http.ResponseWriter, r *http.Request) {
	h.renderCategories(w, r, "")
}

// CreateCategory handles the category creation form submission.
func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	if err := r.ParseForm(); err != nil {
		h.renderCategories(w, r, "Invalid form submission")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		h.renderCategories(w, r, "Category name is required")
		return
	}

	if _, err := h.db.CreateCategory(user.ID, name); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("category creation failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.setFlash(w, "success", "Category added successfully!")
	http.Redirect(w, r, "/manage_categories", http.StatusFound)
}

// DeleteCategory deletes a category together with all transactions
// referencing it.
func (h *Handlers) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Category not found", http.StatusNotFound)
		return
	}

	if err := h.db.DeleteCategory(id, user.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Category not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("user_id", user.ID).Msg("category deletion failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.setFlash(w, "success", "Category and its associated transactions deleted successfully!")
	http.Redirect(w, r, "/manage_categories", http.StatusFound)
}

func (h *Handlers) renderCategories(w http.ResponseWriter, r *http.Request, errMsg string) {
	user := GetUserFromContext(r)

	categories, err := h.db.ListCategories(user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("listing categories failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.render(w, "manage_categories.html", CategoriesViewModel{
		Page:       h.newPage(w, r),
		Error:      errMsg,
		Categories: categories,
	})
}
