package queries

import "net/url"

// Backend REST paths, relative to the API base URL
const (
	pathShops         = "shops/"
	pathShopsBySchool = "shops-by-school/"
	pathProducts      = "products/"
	pathSearch        = "search/"
	pathCart          = "cart/"
	pathCartAdd       = "cart/add/"
	pathOrders        = "orders/"
	pathTransactions  = "payments/transactions/"
)

func productPath(id string) string {
	return pathProducts + url.PathEscape(id) + "/"
}

func productReviewsPath(id string) string {
	return productPath(id) + "reviews/"
}

func cartItemPath(id string) string {
	return pathCart + "items/" + url.PathEscape(id) + "/"
}

func orderPath(id string) string {
	return pathOrders + url.PathEscape(id) + "/"
}

func orderStatusPath(id string) string {
	return orderPath(id) + "status/"
}

func orderCancelPath(id string) string {
	return orderPath(id) + "cancel/"
}
