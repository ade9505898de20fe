// Package memory 进程内仓储，没有事务，订单流水线在它上面走补偿流程。
package memory

import "shop-service/repository"

type Store struct {
	Catalog  *CatalogRepository
	Vouchers *VoucherRepository
	Orders   *OrderRepository
}

func NewStore() *Store {
	return &Store{
		Catalog:  NewCatalogRepository(),
		Vouchers: NewVoucherRepository(),
		Orders:   NewOrderRepository(),
	}
}

func (s *Store) Stores() repository.Stores {
	return repository.Stores{
		Catalog:  s.Catalog,
		Vouchers: s.Vouchers,
		Orders:   s.Orders,
	}
}
