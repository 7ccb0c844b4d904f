package domain

import "github.com/shopspring/decimal"

type Item struct {
	ID          int64
	Name        string
	Price       decimal.Decimal
	Description string
}
