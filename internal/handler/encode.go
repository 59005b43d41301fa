package handler

import (
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-fulfillment/internal/domain/cart"
	"github.com/xenking/kart-fulfillment/internal/domain/catalog"
	"github.com/xenking/kart-fulfillment/internal/domain/order"
	"github.com/xenking/kart-fulfillment/internal/domain/payment"
	"github.com/xenking/kart-fulfillment/internal/domain/user"
)

func encodeItem(e *jx.Encoder, it *catalog.Item) {
	e.ObjStart()
	strField(e, "id", it.ID)
	strField(e, "name", it.Name)
	strField(e, "description", it.Description)
	decimalField(e, "price", it.Price)
	intField(e, "stock", it.Stock)
	timeField(e, "createdAt", it.CreatedAt)
	timeField(e, "updatedAt", it.UpdatedAt)
	e.ObjEnd()
}

func encodeItems(e *jx.Encoder, items []catalog.Item) {
	e.ArrStart()
	for i := range items {
		encodeItem(e, &items[i])
	}
	e.ArrEnd()
}

func encodeLine(e *jx.Encoder, l *cart.Line) {
	e.ObjStart()
	strField(e, "id", l.ID)
	strField(e, "userId", l.UserID)
	strField(e, "itemId", l.ItemID)
	intField(e, "quantity", l.Quantity)
	timeField(e, "createdAt", l.CreatedAt)
	timeField(e, "updatedAt", l.UpdatedAt)
	e.ObjEnd()
}

func encodeLineView(e *jx.Encoder, v *cart.LineView) {
	e.ObjStart()
	strField(e, "id", v.ID)
	strField(e, "itemId", v.ItemID)
	intField(e, "quantity", v.Quantity)
	e.FieldStart("available")
	e.Bool(v.Available)
	if v.Available {
		strField(e, "name", v.Name)
		decimalField(e, "price", v.Price)
		decimalField(e, "subtotal", v.Subtotal)
	}
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order, in *payment.Intent) {
	e.ObjStart()
	strField(e, "id", o.ID)
	strField(e, "userId", o.UserID)
	strField(e, "status", string(o.Status))
	decimalField(e, "total", o.Total)
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		strField(e, "itemId", l.ItemID)
		strField(e, "name", l.Name)
		intField(e, "quantity", l.Quantity)
		decimalField(e, "unitPrice", l.UnitPrice)
		decimalField(e, "subtotal", l.Subtotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	if in != nil {
		e.FieldStart("payment")
		encodeIntent(e, in)
	}
	timeField(e, "createdAt", o.CreatedAt)
	timeField(e, "updatedAt", o.UpdatedAt)
	e.ObjEnd()
}

func encodeIntent(e *jx.Encoder, in *payment.Intent) {
	e.ObjStart()
	strField(e, "id", in.ID)
	strField(e, "orderId", in.OrderID)
	strField(e, "externalId", in.ExternalID)
	strField(e, "correlationId", in.CorrelationID)
	decimalField(e, "amount", in.Amount)
	strField(e, "status", string(in.Status))
	if in.SettlementLabel != "" {
		strField(e, "settlementLabel", in.SettlementLabel)
	}
	if in.FailureReason != "" {
		strField(e, "failureReason", in.FailureReason)
	}
	timeField(e, "createdAt", in.CreatedAt)
	timeField(e, "updatedAt", in.UpdatedAt)
	e.ObjEnd()
}

func encodeUser(e *jx.Encoder, u *user.User) {
	e.ObjStart()
	strField(e, "id", u.ID)
	strField(e, "username", u.Username)
	strField(e, "email", u.Email)
	strField(e, "role", u.Role)
	timeField(e, "createdAt", u.CreatedAt)
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, userID string, lines []cart.LineView) {
	total := decimal.Zero
	e.ObjStart()
	strField(e, "userId", userID)
	e.FieldStart("lines")
	e.ArrStart()
	for i := range lines {
		encodeLineView(e, &lines[i])
		total = total.Add(lines[i].Subtotal)
	}
	e.ArrEnd()
	decimalField(e, "total", total)
	e.ObjEnd()
}
