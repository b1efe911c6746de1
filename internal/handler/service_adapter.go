package handler

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/hitoshi/storefront/internal/apiclient"
	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/product"
	"github.com/hitoshi/storefront/internal/security"
	"github.com/hitoshi/storefront/internal/session"
)

// AuthServiceInterface は認証ハンドラーが必要とする認証クライアントのインターフェース。
// auth.Clientが満たす。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, req model.SignUpRequest) (*apiclient.Envelope, error)
	SignIn(ctx context.Context, creds model.Credentials) (*model.AuthResult, error)
	LoginWithGoogle(nav auth.Navigator)
	LoginWithAzure(nav auth.Navigator)
	CompleteOAuth(ctx context.Context, query url.Values) (*model.User, error)
	RefreshTokens(ctx context.Context) (*model.TokenPair, error)
	SignOut(ctx context.Context) error
	DestroyTokenUser(ctx context.Context)
	IsAuthenticated(ctx context.Context) bool
	GetCurrentUser(ctx context.Context) *model.User
	FetchUser(ctx context.Context) (*model.User, error)
	UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.User, error)
	ResetPassword(ctx context.Context, req model.PasswordReset) (*apiclient.Envelope, error)
}

// compile-time interface check
var _ AuthServiceInterface = (*auth.Client)(nil)

// AuthServiceFactory はセッションストアにスコープされた認証クライアントを生成する。
type AuthServiceFactory func(store *session.Store) AuthServiceInterface

// NewAuthServiceFactory はapiを共有し、リクエストごとのストアを注入するAuthServiceFactoryを返す。
func NewAuthServiceFactory(api *apiclient.Client, logger *slog.Logger) AuthServiceFactory {
	return func(store *session.Store) AuthServiceInterface {
		return auth.NewClient(api, store, logger)
	}
}

// ProductListerInterface は商品一覧の取得インターフェース。
type ProductListerInterface interface {
	List(ctx context.Context) ([]model.Product, error)
}

// DeleteFlowInterface は商品削除フローのインターフェース。
type DeleteFlowInterface interface {
	Load(ctx context.Context, routeID string) product.View
	Confirm(ctx context.Context, view product.View) product.View
}

// compile-time interface check
var (
	_ ProductListerInterface = (*product.Client)(nil)
	_ DeleteFlowInterface    = (*product.DeleteFlow)(nil)
)

// ProductServices は1リクエスト分の商品操作。
type ProductServices struct {
	Lister ProductListerInterface
	Flow   DeleteFlowInterface
}

// ProductServicesFactory はセッションストアのトークンで商品APIを呼ぶProductServicesを生成する。
type ProductServicesFactory func(store *session.Store) ProductServices

// NewProductServicesFactory はapiを共有するProductServicesFactoryを返す。
func NewProductServicesFactory(api *apiclient.Client, sanitizer security.ContentSanitizer, logger *slog.Logger) ProductServicesFactory {
	return func(store *session.Store) ProductServices {
		client := product.NewClient(api.WithTokens(store), logger)
		return ProductServices{
			Lister: client,
			Flow:   product.NewDeleteFlow(client, sanitizer, logger),
		}
	}
}
