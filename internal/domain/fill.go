package domain

import "time"

// Fill is one match between an incoming (taker) order and a resting
// (maker) order, executed at the maker's price.
type Fill struct {
	FillID       string
	MarketID     MarketID
	TakerOrderID OrderID
	MakerOrderID OrderID
	TakerSide    Side
	Buyer        string
	Seller       string
	Price        int64
	Quantity     int64
	QuoteAmount  int64 // Price × Quantity
	ExecutedAt   time.Time
}

// BuyOrderID returns the id of the buying order in the fill.
func (f Fill) BuyOrderID() OrderID {
	if f.TakerSide == SideBuy {
		return f.TakerOrderID
	}
	return f.MakerOrderID
}

// SellOrderID returns the id of the selling order in the fill.
func (f Fill) SellOrderID() OrderID {
	if f.TakerSide == SideSell {
		return f.TakerOrderID
	}
	return f.MakerOrderID
}
