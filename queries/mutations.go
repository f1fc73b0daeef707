package queries

import (
	"context"
	"net/http"

	"github.com/stephenolajire/stumart-query/filter"
	"github.com/stephenolajire/stumart-query/models"
	"github.com/stephenolajire/stumart-query/mutation"
)

// AddToCart adds units of a product and bumps the cached cart right away.
// The server-computed summary and count arrive with the confirmatory refetch.
func (q *Queries) AddToCart() *mutation.Hook[models.AddToCartInput] {
	return mutation.NewHook(q.mutator, func(in models.AddToCartInput) mutation.Mutation {
		return mutation.Mutation{
			Name: "add_to_cart",
			Patches: []mutation.Patch{
				mutation.PatchJSON(NamespaceCart, q.cartKey(), func(c models.CartState) models.CartState {
					return c.WithAdded(in.ProductID, in.Quantity, in.UnitPrice)
				}),
			},
			Write: func(ctx context.Context) error {
				return q.send(ctx, http.MethodPost, pathCartAdd, in)
			},
		}
	})
}

// UpdateCartItem sets the quantity of a cart line
func (q *Queries) UpdateCartItem() *mutation.Hook[models.CartItemUpdate] {
	return mutation.NewHook(q.mutator, func(in models.CartItemUpdate) mutation.Mutation {
		return mutation.Mutation{
			Name: "update_cart_item",
			Patches: []mutation.Patch{
				mutation.PatchJSON(NamespaceCart, q.cartKey(), func(c models.CartState) models.CartState {
					return c.WithQuantity(in.ItemID, in.Quantity)
				}),
			},
			Write: func(ctx context.Context) error {
				return q.send(ctx, http.MethodPut, cartItemPath(in.ItemID), in)
			},
		}
	})
}

// RemoveCartItem removes a cart line by item id
func (q *Queries) RemoveCartItem() *mutation.Hook[string] {
	return mutation.NewHook(q.mutator, func(itemID string) mutation.Mutation {
		return mutation.Mutation{
			Name: "remove_cart_item",
			Patches: []mutation.Patch{
				mutation.PatchJSON(NamespaceCart, q.cartKey(), func(c models.CartState) models.CartState {
					return c.Without(itemID)
				}),
			},
			Write: func(ctx context.Context) error {
				return q.send(ctx, http.MethodDelete, cartItemPath(itemID), nil)
			},
		}
	})
}

// UpdateOrderStatus moves an order to a new status in every cached order
// list and in its detail entry
func (q *Queries) UpdateOrderStatus() *mutation.Hook[models.OrderStatusUpdate] {
	return mutation.NewHook(q.mutator, func(in models.OrderStatusUpdate) mutation.Mutation {
		return mutation.Mutation{
			Name:    "update_order_status",
			Patches: q.orderStatusPatches(in.OrderID, in.Status),
			Write: func(ctx context.Context) error {
				return q.send(ctx, http.MethodPatch, orderStatusPath(in.OrderID), in)
			},
		}
	})
}

// CancelOrder cancels an order by id
func (q *Queries) CancelOrder() *mutation.Hook[string] {
	return mutation.NewHook(q.mutator, func(orderID string) mutation.Mutation {
		return mutation.Mutation{
			Name:    "cancel_order",
			Patches: q.orderStatusPatches(orderID, models.OrderStatusCancelled),
			Write: func(ctx context.Context) error {
				return q.send(ctx, http.MethodPost, orderCancelPath(orderID), nil)
			},
		}
	})
}

// SubmitReview posts a product review. Nothing is patched; the product is
// refetched once the review is accepted.
func (q *Queries) SubmitReview() *mutation.Hook[models.ReviewInput] {
	return mutation.NewHook(q.mutator, func(in models.ReviewInput) mutation.Mutation {
		return mutation.Mutation{
			Name: "submit_review",
			Write: func(ctx context.Context) error {
				return q.send(ctx, http.MethodPost, productReviewsPath(in.ProductID), in)
			},
			Refetch: []string{q.productKey(in.ProductID)},
		}
	})
}

func (q *Queries) orderStatusPatches(orderID, status string) []mutation.Patch {
	var patches []mutation.Patch
	for _, key := range q.coord.Store().Keys(NamespaceOrders) {
		patches = append(patches, mutation.PatchJSON(NamespaceOrders, key, func(orders []models.Order) []models.Order {
			return models.WithStatus(orders, orderID, status)
		}))
	}
	return append(patches, mutation.PatchJSON(NamespaceOrderDetail, q.orderKey(orderID), func(o models.Order) models.Order {
		o.Status = status
		return o
	}))
}

func (q *Queries) cartKey() string {
	return q.coord.Key(NamespaceCart, filter.Set{})
}

func (q *Queries) orderKey(id string) string {
	return q.coord.Key(NamespaceOrderDetail, orderFilters(id))
}

func (q *Queries) productKey(id string) string {
	return q.coord.Key(NamespaceProducts, productFilters(id))
}
