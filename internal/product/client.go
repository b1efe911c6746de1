// Package product は管理画面の商品取得・削除を提供する。
package product

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/hitoshi/storefront/internal/apiclient"
	"github.com/hitoshi/storefront/internal/model"
)

// Client は商品エンドポイントのクライアント。
// apiには呼び出し元セッションのトークンを付与するクライアントを渡す。
type Client struct {
	api    *apiclient.Client
	logger *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(api *apiclient.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, logger: logger}
}

// Get は商品を1件取得する。
func (c *Client) Get(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	if _, err := c.api.Get(ctx, "/admin/products/"+url.PathEscape(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete は商品を削除し、バックエンドのレスポンスを返す。
func (c *Client) Delete(ctx context.Context, id string) (*apiclient.Envelope, error) {
	env, err := c.api.Delete(ctx, "/admin/products/"+url.PathEscape(id), nil)
	if err != nil {
		c.logger.Warn("product delete failed",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
		return env, err
	}
	return env, nil
}

// List は管理画面の商品一覧を取得する。
func (c *Client) List(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	if _, err := c.api.Get(ctx, "/admin/products", &products); err != nil {
		return nil, err
	}
	return products, nil
}

// ListByCategory はカテゴリに属する商品を取得する。
func (c *Client) ListByCategory(ctx context.Context, categoryID string) ([]model.Product, error) {
	var products []model.Product
	if _, err := c.api.Get(ctx, "/products/category/"+url.PathEscape(categoryID), &products); err != nil {
		return nil, err
	}
	return products, nil
}
