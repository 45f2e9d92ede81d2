package models

// ProductSuggestion 搜尋建議項目
type ProductSuggestion struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ProductPage 商品頁：商品本身、同類別商品與同店鋪商品
type ProductPage struct {
	Product       *Product   `json:"product"`
	Related       []*Product `json:"related_products"`
	StoreProducts []*Product `json:"store_products"`
}

// StorePage 店鋪頁
type StorePage struct {
	Name       string     `json:"shop_name"`
	Products   []*Product `json:"store_products"`
	Categories []string   `json:"store_categories"`
}
