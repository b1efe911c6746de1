package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/product"
)

// AdminProductHandler は管理画面の商品一覧・削除ページのハンドラー。
type AdminProductHandler struct {
	renderer    *Renderer
	newServices ProductServicesFactory
}

// NewAdminProductHandler はAdminProductHandlerを生成する。
func NewAdminProductHandler(renderer *Renderer, newServices ProductServicesFactory) *AdminProductHandler {
	return &AdminProductHandler{
		renderer:    renderer,
		newServices: newServices,
	}
}

// productListPage は商品一覧ページのテンプレートデータ。
type productListPage struct {
	Title    string
	Products []model.Product
	Flash    string
	Error    string
}

// productDeletePage は削除ページ・確認ダイアログのテンプレートデータ。
type productDeletePage struct {
	Title     string
	View      product.View
	CSRFToken string
}

// List は商品一覧を表示する。削除直後は?deleted=商品名で成功メッセージを表示する。
// GET /admin/products
func (h *AdminProductHandler) List(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.services(w, r)
	if !ok {
		return
	}

	page := productListPage{Title: "商品一覧"}
	if title := r.URL.Query().Get("deleted"); title != "" {
		page.Flash = product.DeletedMessage(title)
	}

	products, err := svc.Lister.List(r.Context())
	if err != nil {
		slog.Error("failed to list products", slog.String("error", err.Error()))
		page.Error = "商品一覧の取得に失敗しました。"
		h.renderer.Render(w, http.StatusBadGateway, "admin_products", page)
		return
	}
	page.Products = products

	h.renderer.Render(w, http.StatusOK, "admin_products", page)
}

// ShowDelete は削除対象の商品詳細を表示する。?step=confirmの場合は確認ダイアログを表示する。
// GET /admin/products/{id}/delete
func (h *AdminProductHandler) ShowDelete(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.services(w, r)
	if !ok {
		return
	}

	view := svc.Flow.Load(r.Context(), chi.URLParam(r, "id"))

	if view.State == product.StateLoaded && r.URL.Query().Get("step") == "confirm" {
		h.renderer.Render(w, http.StatusOK, "admin_product_confirm", productDeletePage{
			Title:     "削除の確認",
			View:      view,
			CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		})
		return
	}

	h.renderDeletePage(w, r, view)
}

// Delete は確認済みの削除を実行する。
// 成功時は一覧ページへリダイレクトし、失敗時はエラーを表示して削除ページに留まる。
// POST /admin/products/{id}/delete (confirmed=yes)
func (h *AdminProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.services(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	// 1. 確認済みでなければ確認ダイアログへ戻す
	if r.PostFormValue("confirmed") != "yes" {
		http.Redirect(w, r, deletePath(id)+"?step=confirm", http.StatusSeeOther)
		return
	}

	// 2. 削除対象を再取得
	view := svc.Flow.Load(r.Context(), id)
	if view.State != product.StateLoaded {
		h.renderDeletePage(w, r, view)
		return
	}

	// 3. 削除の実行
	view = svc.Flow.Confirm(r.Context(), view)
	if view.State == product.StateDeleted {
		http.Redirect(w, r, "/admin/products?deleted="+url.QueryEscape(view.Product.Title), http.StatusSeeOther)
		return
	}

	h.renderDeletePage(w, r, view)
}

func (h *AdminProductHandler) renderDeletePage(w http.ResponseWriter, r *http.Request, view product.View) {
	status := http.StatusOK
	switch view.State {
	case product.StateNotFound:
		status = http.StatusNotFound
	case product.StateLoadFailed:
		status = http.StatusBadGateway
	}

	h.renderer.Render(w, status, "admin_product_delete", productDeletePage{
		Title:     "商品の削除",
		View:      view,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	})
}

// services はリクエストのセッションストアにスコープされた商品操作を返す。
func (h *AdminProductHandler) services(w http.ResponseWriter, r *http.Request) (ProductServices, bool) {
	store, err := middleware.StoreFromContext(r.Context())
	if err != nil {
		slog.Error("session store missing", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return ProductServices{}, false
	}
	return h.newServices(store), true
}

func deletePath(id string) string {
	return "/admin/products/" + url.PathEscape(id) + "/delete"
}
