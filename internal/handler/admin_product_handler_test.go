package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/storefront/internal/session"
)

const productP1 = `{"data":{"id":"p1","title":"Blue Mug","price":"12.50","description":"<p>Nice</p><script>alert(1)</script>","brand":"Acme","color":"blue","quantity":3,"shipping":true,"images":["https://img.example.com/1.jpg"],"totalrating":4.5,"reviewCount":2}}`

func formRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func confirmedForm() url.Values {
	return url.Values{"csrf_token": {testCSRF}, "confirmed": {"yes"}}
}

// --- 管理者ガード ---

func TestAdmin_Unauthenticated_Returns401(t *testing.T) {
	app := newTestApp(t)

	w := app.do(httptest.NewRequest(http.MethodGet, "/admin/products", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAdmin_NonAdmin_Returns403(t *testing.T) {
	app := newTestApp(t)
	app.seed(t, session.KeyAccessToken, "access-1")
	app.seed(t, session.KeyUser, `{"id":"u1","role":"user"}`)

	w := app.do(httptest.NewRequest(http.MethodGet, "/admin/products/p1/delete", nil))

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if app.backend.callCount() != 0 {
		t.Error("backend should not be called for non-admin users")
	}
}

// --- 一覧 ---

func TestList_RendersProducts(t *testing.T) {
	app := newTestApp(t)
	app.seedAdmin(t)
	app.backend.on(http.MethodGet, "/admin/products", http.StatusOK, `{"data":[{"id":"p1","title":"Blue Mug","price":12.5,"quantity":3}]}`)

	w := app.do(httptest.NewRequest(http.MethodGet, "/admin/products", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Blue Mug") || !strings.Contains(body, "12.50") {
		t.Errorf("product row not rendered: %s", body)
	}
	if !strings.Contains(body, `href="/admin/products/p1/delete"`) {
		t.Error("delete link should be rendered")
	}
	calls := app.backend.callsTo(http.MethodGet, "/admin/products")
	if len(calls) != 1 || calls[0].Authorization != "Bearer admin-access" {
		t.Errorf("list should be authorized with the session token, calls=%+v", calls)
	}
}

func TestList_DeletedFlash(t *testing.T) {
	app := newTestApp(t)
	app.seedAdmin(t)
	app.backend.on(http.MethodGet, "/admin/products", http.StatusOK, `{"data":[]}`)

	w := app.do(httptest.NewRequest(http.MethodGet, "/admin/products?deleted="+url.QueryEscape("Blue Mug"), nil))

	if !strings.Contains(w.Body.String(), "商品「Blue Mug」を削除しました。") {
		t.Errorf("flash message not rendered: %s", w.Body.String())
	}
}

func TestList_BackendFailure_Returns502(t *testing.T) {
	app := newTestApp(t)
	app.seedAdmin(t)
	app.backend.on(http.MethodGet, "/admin/products", http.StatusInternalServerError, `{"message":"boom"}`)

	w := app.do(httptest.NewRequest(http.MethodGet, "/admin/products", nil))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	if !strings.Contains(w.Body.String(), `id="error"`) {
		t.Error("error message should be rendered")
	}
}

// --- 削除ページ ---

func TestShowDelete_Loaded_RendersDetailsAndSanitizedDescription(t *testing.T) {
	app := newTestApp(t)
	app.seedAdmin(t)
	app.backend.on(http.MethodGet, "/admin/products/p1", http.StatusOK, productP1)

	w := app.do(httptest.NewRequest(http.MethodGet, "/admin/products/p1/delete", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{"Blue Mug", "12.50", "Acme", "<p>Nice</p>", `id="delete-start"`, "https://img.example.com/1.jpg"} {
		if !strings.Contains(body, want) {
			t.Errorf("body should contain %q", want)
		}
	}
	if strings.Contains(body, "<script>") {
		t.Error("description must be sanitized")
	}
	if app.backend.callCount() != 1 {
		t.Errorf("backend calls = %d, want 1 (no delete on view)", app.backend.callCount())
	}
}

func TestShowDelete_IDMismatch_RendersNotFound(t *testing.T) {
	app := newTestApp(t)
	app.seedAdmin(t)
	app.backend.on(http.MethodGet, "/admin/products/p2", http.StatusOK, productP1)

	w := app.do(httptest.NewRequest(http.MethodGet, "/admin/products/p2/delete", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	body := w.Body.String()
	if !strings.Contains(body, `id="not-found"`) {
		t.Error("not-found notice should be rendered")
	}
	if strings.Contains(body, "delete-start") || strings.Contains(body, "Blue Mug") {
		t.Error("not-found page should offer only the return link")
	}
	if !strings.Contains(body, `href="/admin/products"`) {
		t.Error("return link should be rendered")
	}
}

func TestShowDelete_Backend404_RendersNotFound(t *testing.T) {
	app := newTestApp(t)
	app.seedAdmin(t)

	w := app.do(httptest.NewRequest(http.MethodGet, "/admin/products/missing/delete", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if !strings.Contains(w.Body.String(), `id="not-found"`) {
		t.Error("not-found notice should be rendered")
	}
}

func TestShowDelete_LoadFailed_Returns502(t *testing.T) {
	app := newTestApp(t)
	app.seedAdmin(t)
	app.backend.on(http.MethodGet, "/admin/products/p1", http.StatusInternalServerError, `{"message":"database down"}`)

	w := app.do(httptest.NewRequest(http.MethodGet, "/admin/products/p1/delete", nil))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	body := w.Body.String()
	if !strings.Contains(body, `id="error"`) {
		t.Error("load error should be rendered")
	}
	if strings.Contains(body, "delete-start") {
		t.Error("delete action should not be offered when loading failed")
	}
}

func TestShowDelete_ConfirmStep_EchoesTitleWithCSRFToken(t *testing.T) {
	app := newTestApp(t)
	app.seedAdmin(t)
	app.backend.on(http.MethodGet, "/admin/products/p1", http.StatusOK, productP1)

	w := app.do(httptest.NewRequest(http.MethodGet, "/admin/products/p1/delete?step=confirm", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, "商品「Blue Mug」を削除します") {
		t.Error("confirmation should echo the product title")
	}
	if !strings.Contains(body, `name="csrf_token" value="`+testCSRF+`"`) {
		t.Error("confirmation form should carry the CSRF token")
	}
	if len(app.backend.callsTo(http.MethodDelete, "/admin/products/p1")) != 0 {
		t.Error("showing the confirmation must not delete")
	}
}

// --- 削除の実行 ---

func TestDelete_WithoutConfirmation_RedirectsToConfirmStep(t *testing.T) {
	app := newTestApp(t)
	app.seedAdmin(t)

	w := app.do(formRequest("/admin/products/p1/delete", url.Values{"csrf_token": {testCSRF}}))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if got := w.Header().Get("Location"); got != "/admin/products/p1/delete?step=confirm" {
		t.Errorf("Location = %q, want confirm step", got)
	}
	if app.backend.callCount() != 0 {
		t.Error("backend should not be called without confirmation")
	}
}

func TestDelete_MissingCSRFToken_Returns403(t *testing.T) {
	app := newTestApp(t)
	app.seedAdmin(t)

	w := app.do(formRequest("/admin/products/p1/delete", url.Values{"confirmed": {"yes"}}))

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if app.backend.callCount() != 0 {
		t.Error("backend should not be called when CSRF validation fails")
	}
}

func TestDelete_Success_RedirectsWithFlash(t *testing.T) {
	app := newTestApp(t)
	app.seedAdmin(t)
	app.backend.on(http.MethodGet, "/admin/products/p1", http.StatusOK, productP1)
	app.backend.on(http.MethodDelete, "/admin/products/p1", http.StatusOK, `{"success":true}`)

	w := app.do(formRequest("/admin/products/p1/delete", confirmedForm()))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusSeeOther, w.Body.String())
	}
	if got, want := w.Header().Get("Location"), "/admin/products?deleted="+url.QueryEscape("Blue Mug"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
	calls := app.backend.callsTo(http.MethodDelete, "/admin/products/p1")
	if len(calls) != 1 {
		t.Fatalf("delete calls = %d, want 1", len(calls))
	}
	if calls[0].Authorization != "Bearer admin-access" {
		t.Errorf("Authorization = %q, want admin bearer", calls[0].Authorization)
	}
}

func TestDelete_Failure_StaysOnPageWithInlineError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"message":"constraint violation"}`},
		{"success false", http.StatusOK, `{"success":false,"message":"in use"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			app.seedAdmin(t)
			app.backend.on(http.MethodGet, "/admin/products/p1", http.StatusOK, productP1)
			app.backend.on(http.MethodDelete, "/admin/products/p1", tt.status, tt.body)

			w := app.do(formRequest("/admin/products/p1/delete", confirmedForm()))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			body := w.Body.String()
			if !strings.Contains(body, `id="error"`) {
				t.Error("inline error should be rendered")
			}
			// 詳細は表示されたまま
			if !strings.Contains(body, "Blue Mug") || !strings.Contains(body, "delete-start") {
				t.Error("product details should remain on the page")
			}
		})
	}
}

func TestDelete_ProductGone_RendersNotFoundWithoutDeleting(t *testing.T) {
	app := newTestApp(t)
	app.seedAdmin(t)

	w := app.do(formRequest("/admin/products/p1/delete", confirmedForm()))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if len(app.backend.callsTo(http.MethodDelete, "/admin/products/p1")) != 0 {
		t.Error("delete should not be requested for a missing product")
	}
}
