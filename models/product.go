package models

// SizeStock 某个尺码的库存
type SizeStock struct {
	SizeID   string `json:"sizeId"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type Product struct {
	ID             string      `json:"id"`
	Code           string      `json:"code"`
	Name           string      `json:"name"`
	Price          int64       `json:"price"`
	Images         []string    `json:"images"`
	Colors         []string    `json:"colors"`
	QuantityBySize []SizeStock `json:"quantityBySize"`
	TotalSold      int64       `json:"totalSold"`
}

func (p Product) Size(sizeID string) (SizeStock, bool) {
	for _, s := range p.QuantityBySize {
		if s.SizeID == sizeID {
			return s, true
		}
	}
	return SizeStock{}, false
}

func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

func (p Product) Clone() Product {
	cp := p
	cp.Images = append([]string(nil), p.Images...)
	cp.Colors = append([]string(nil), p.Colors...)
	cp.QuantityBySize = append([]SizeStock(nil), p.QuantityBySize...)
	return cp
}
