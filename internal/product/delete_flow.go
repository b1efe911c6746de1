package product

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/hitoshi/storefront/internal/apiclient"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/security"
)

// State は削除ページの表示状態。
type State string

const (
	StateLoaded       State = "loaded"
	StateNotFound     State = "not_found"
	StateLoadFailed   State = "load_failed"
	StateDeleted      State = "deleted"
	StateDeleteFailed State = "delete_failed"
)

// API はDeleteFlowが使う商品操作。
type API interface {
	Get(ctx context.Context, id string) (*model.Product, error)
	Delete(ctx context.Context, id string) (*apiclient.Envelope, error)
}

// compile-time interface check
var _ API = (*Client)(nil)

// View は削除ページの描画内容。
type View struct {
	State       State
	RouteID     string
	Product     *model.Product
	Description template.HTML
	Error       string
	Message     string
}

// DeleteFlow は商品を取得し、確認後に削除する一連の流れを扱う。
type DeleteFlow struct {
	products  API
	sanitizer security.ContentSanitizer
	logger    *slog.Logger
}

// NewDeleteFlow はDeleteFlowを生成する。
func NewDeleteFlow(products API, sanitizer security.ContentSanitizer, logger *slog.Logger) *DeleteFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeleteFlow{products: products, sanitizer: sanitizer, logger: logger}
}

// Load はrouteIDの商品を取得する。
// 404または取得した商品のidがrouteIDと一致しない場合はStateNotFoundとなる。
func (f *DeleteFlow) Load(ctx context.Context, routeID string) View {
	view := View{RouteID: routeID}

	p, err := f.products.Get(ctx, routeID)
	if err != nil {
		if apiclient.IsNotFound(err) {
			view.State = StateNotFound
			return view
		}
		f.logger.Error("failed to load product",
			slog.String("product_id", routeID),
			slog.String("error", err.Error()),
		)
		view.State = StateLoadFailed
		view.Error = errorText(err, "商品の取得に失敗しました。")
		return view
	}

	if p == nil || p.ID != routeID {
		view.State = StateNotFound
		return view
	}

	view.State = StateLoaded
	view.Product = p
	view.Description = f.sanitizer.SanitizeHTML(p.Description)
	return view
}

// Confirm は確認済みの削除を実行する。
// StateLoaded以外のviewはそのまま返す。
// 失敗した場合はStateDeleteFailedとなりページに留まる。
func (f *DeleteFlow) Confirm(ctx context.Context, view View) View {
	if view.State != StateLoaded || view.Product == nil {
		return view
	}

	env, err := f.products.Delete(ctx, view.Product.ID)
	if err != nil {
		view.State = StateDeleteFailed
		view.Error = errorText(err, "商品の削除に失敗しました。")
		return view
	}
	if env != nil && env.Success != nil && !*env.Success {
		view.State = StateDeleteFailed
		view.Error = env.Message
		if view.Error == "" {
			view.Error = "商品の削除に失敗しました。"
		}
		return view
	}

	f.logger.Info("product deleted",
		slog.String("product_id", view.Product.ID),
	)
	view.State = StateDeleted
	view.Message = DeletedMessage(view.Product.Title)
	return view
}

// DeletedMessage は削除成功時に一覧ページへ表示するメッセージ。
func DeletedMessage(title string) string {
	return fmt.Sprintf("商品「%s」を削除しました。", title)
}

func errorText(err error, fallback string) string {
	if msg := apiclient.UserMessage(err); msg != "" {
		return msg
	}
	return fallback
}
