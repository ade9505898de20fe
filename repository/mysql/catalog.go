package mysql

import (
	"context"
	"encoding/json"

	"shop-service/errs"
	"shop-service/models"
)

type CatalogRepository struct {
	db querier
}

func NewCatalogRepository(db querier) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) FindProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, code, name, price, images, colors, total_sold FROM products WHERE id IN ("+placeholders(len(ids))+")",
		toArgs(ids)...)
	if err != nil {
		return nil, errs.Storage(err)
	}
	defer rows.Close()

	var (
		products []models.Product
		index    = make(map[string]int, len(ids))
	)
	for rows.Next() {
		var (
			p              models.Product
			images, colors []byte
		)
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Price, &images, &colors, &p.TotalSold); err != nil {
			return nil, errs.Storage(err)
		}
		if len(images) > 0 {
			if err := json.Unmarshal(images, &p.Images); err != nil {
				return nil, errs.Storage(err)
			}
		}
		if len(colors) > 0 {
			if err := json.Unmarshal(colors, &p.Colors); err != nil {
				return nil, errs.Storage(err)
			}
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err)
	}
	if len(products) == 0 {
		return []models.Product{}, nil
	}

	sizeRows, err := r.db.QueryContext(ctx,
		"SELECT product_id, size_id, name, quantity FROM product_sizes WHERE product_id IN ("+placeholders(len(ids))+") ORDER BY product_id, position",
		toArgs(ids)...)
	if err != nil {
		return nil, errs.Storage(err)
	}
	defer sizeRows.Close()
	for sizeRows.Next() {
		var (
			productID string
			s         models.SizeStock
		)
		if err := sizeRows.Scan(&productID, &s.SizeID, &s.Name, &s.Quantity); err != nil {
			return nil, errs.Storage(err)
		}
		if i, ok := index[productID]; ok {
			products[i].QuantityBySize = append(products[i].QuantityBySize, s)
		}
	}
	if err := sizeRows.Err(); err != nil {
		return nil, errs.Storage(err)
	}
	return products, nil
}

// ConditionalDecrementStock 库存检查和扣减在一条语句里完成，不会超卖
func (r *CatalogRepository) ConditionalDecrementStock(ctx context.Context, productID, sizeID string, amount int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE product_sizes SET quantity = quantity - ? WHERE product_id = ? AND size_id = ? AND quantity >= ?",
		amount, productID, sizeID, amount)
	if err != nil {
		return false, errs.Storage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Storage(err)
	}
	return n > 0, nil
}

func (r *CatalogRepository) IncrementStock(ctx context.Context, productID, sizeID string, amount int) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE product_sizes SET quantity = quantity + ? WHERE product_id = ? AND size_id = ?",
		amount, productID, sizeID)
	return errs.Storage(err)
}

func (r *CatalogRepository) AccrueSold(ctx context.Context, productID string, amount int) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE products SET total_sold = total_sold + ? WHERE id = ?",
		amount, productID)
	return errs.Storage(err)
}

func (r *CatalogRepository) ReduceSold(ctx context.Context, productID string, amount int) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE products SET total_sold = GREATEST(total_sold - ?, 0) WHERE id = ?",
		amount, productID)
	return errs.Storage(err)
}
