package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Product は管理画面で扱う商品を表す。
// バックエンドのDTOをそのまま受け取り、削除操作以外では読み取り専用として扱う。
type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Brand       string          `json:"brand"`
	Color       string          `json:"color"`
	Quantity    int             `json:"quantity"`
	Shipping    bool            `json:"shipping"`
	Images      []string        `json:"images"`

	// 評価は集計済みの場合のみ存在する
	TotalRating *float64 `json:"totalrating,omitempty"`
	ReviewCount *int     `json:"reviewCount,omitempty"`
}

// UnmarshalJSON はidの型揺れ（文字列/数値/_id）と画像の表現揺れ（URL文字列/オブジェクト）を吸収する。
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	var aux struct {
		plain
		ID     json.RawMessage   `json:"id"`
		ID2    json.RawMessage   `json:"_id"`
		Images []json.RawMessage `json:"images"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*p = Product(aux.plain)
	id := aux.ID
	if len(id) == 0 {
		id = aux.ID2
	}
	p.ID = rawIDString(id)

	p.Images = make([]string, 0, len(aux.Images))
	for _, raw := range aux.Images {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			p.Images = append(p.Images, s)
			continue
		}
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.URL != "" {
			p.Images = append(p.Images, obj.URL)
		}
	}

	return nil
}

// HasRating は集計済みの評価を持つかを返す。
func (p *Product) HasRating() bool {
	return p.TotalRating != nil
}
