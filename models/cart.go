package models

type CartItem struct {
	ProductID string `json:"productId"`
	SizeID    string `json:"sizeId"`
	Quantity  int    `json:"quantity"`
}

// Cart 登录用户按 userId，游客按 cartToken 区分
type Cart struct {
	Owner string     `json:"-"`
	Items []CartItem `json:"items"`
}

func (c Cart) TotalQuantity() int {
	total := 0
	for _, it := range c.Items {
		total += it.Quantity
	}
	return total
}
