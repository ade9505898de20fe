package memory

import (
	"context"
	"sync"

	"shop-service/models"
)

// CatalogRepository 进程内商品库存，所有条件更新都在同一把锁内完成
type CatalogRepository struct {
	mu       sync.RWMutex
	products map[string]*models.Product
}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		products: make(map[string]*models.Product),
	}
}

// Put 写入或覆盖商品，本地运行和测试时初始化数据用
func (r *CatalogRepository) Put(p models.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p.Clone()
	r.products[p.ID] = &cp
}

func (r *CatalogRepository) FindProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			res = append(res, p.Clone())
		}
	}
	return res, nil
}

func (r *CatalogRepository) ConditionalDecrementStock(ctx context.Context, productID, sizeID string, amount int) (bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.size(productID, sizeID)
	if s == nil || s.Quantity < amount {
		return false, nil
	}
	s.Quantity -= amount
	return true, nil
}

func (r *CatalogRepository) IncrementStock(ctx context.Context, productID, sizeID string, amount int) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.size(productID, sizeID); s != nil {
		s.Quantity += amount
	}
	return nil
}

func (r *CatalogRepository) AccrueSold(ctx context.Context, productID string, amount int) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.products[productID]; ok {
		p.TotalSold += int64(amount)
	}
	return nil
}

func (r *CatalogRepository) ReduceSold(ctx context.Context, productID string, amount int) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.products[productID]; ok {
		p.TotalSold = max(p.TotalSold-int64(amount), 0)
	}
	return nil
}

// Stock 查询当前库存，测试断言用
func (r *CatalogRepository) Stock(productID, sizeID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.size(productID, sizeID); s != nil {
		return s.Quantity
	}
	return 0
}

func (r *CatalogRepository) Sold(productID string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.products[productID]; ok {
		return p.TotalSold
	}
	return 0
}

func (r *CatalogRepository) size(productID, sizeID string) *models.SizeStock {
	p, ok := r.products[productID]
	if !ok {
		return nil
	}
	for i := range p.QuantityBySize {
		if p.QuantityBySize[i].SizeID == sizeID {
			return &p.QuantityBySize[i]
		}
	}
	return nil
}
