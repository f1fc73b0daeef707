package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
)

// AuthContext carries the session flags that are folded into every cache key,
// so the same filters resolve to different entries before and after login.
type AuthContext struct {
	Authenticated bool
	Institution   string
}

// Set holds the query parameters selecting one variant of a resource.
// Zero values mean "not set" and never reach the cache key or the request.
type Set struct {
	Category    string
	MinPrice    float64
	MaxPrice    float64
	Sort        string
	Institution string
	State       string
	School      string
	VendorID    string
	ProductID   string
	OrderID     string
	Status      string
	Query       string
	Cursor      string
	Page        int
	PageSize    int
	ViewMode    string

	// Extra carries resource specific parameters without a named field.
	// Named fields win when an Extra entry uses the same name.
	Extra map[string]string
}

// Fields returns the non-empty parameters keyed by their wire name
func (s Set) Fields() map[string]any {
	fields := make(map[string]any)

	for name, value := range s.Extra {
		if value != "" {
			fields[name] = value
		}
	}

	putString(fields, "category", s.Category)
	putFloat(fields, "min_price", s.MinPrice)
	putFloat(fields, "max_price", s.MaxPrice)
	putString(fields, "sort", s.Sort)
	putString(fields, "institution", s.Institution)
	putString(fields, "state", s.State)
	putString(fields, "school", s.School)
	putString(fields, "vendor_id", s.VendorID)
	putString(fields, "product_id", s.ProductID)
	putString(fields, "order_id", s.OrderID)
	putString(fields, "status", s.Status)
	putString(fields, "q", s.Query)
	putString(fields, "cursor", s.Cursor)
	putInt(fields, "page", s.Page)
	putInt(fields, "page_size", s.PageSize)
	putString(fields, "view_mode", s.ViewMode)

	return fields
}

// Values renders the parameters as URL query values for the REST backend
func (s Set) Values() url.Values {
	values := url.Values{}
	for name, value := range s.Fields() {
		switch v := value.(type) {
		case string:
			values.Set(name, v)
		case int:
			values.Set(name, strconv.Itoa(v))
		case float64:
			values.Set(name, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return values
}

// IsEmpty reports whether no parameter is set
func (s Set) IsEmpty() bool {
	return len(s.Fields()) == 0
}

// Key builds the cache key for namespace, filters and auth context.
//
// Field names are sorted and empty values dropped before JSON encoding, so two
// sets holding the same name/value pairs always produce the same key.
func Key(namespace string, s Set, auth AuthContext) string {
	fields := s.Fields()
	if auth.Authenticated {
		fields["authenticated"] = true
	}
	if auth.Institution != "" {
		fields["auth_institution"] = auth.Institution
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([][2]any, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, [2]any{name, fields[name]})
	}

	encoded, err := json.Marshal(pairs)
	if err != nil {
		// Only non-finite floats can fail and those are dropped by putFloat.
		return fmt.Sprintf("%s:%v", namespace, pairs)
	}
	return namespace + ":" + string(encoded)
}

func putString(fields map[string]any, name, value string) {
	if value != "" {
		fields[name] = value
	}
}

func putInt(fields map[string]any, name string, value int) {
	if value != 0 {
		fields[name] = value
	}
}

func putFloat(fields map[string]any, name string, value float64) {
	if value != 0 && !math.IsNaN(value) && !math.IsInf(value, 0) {
		fields[name] = value
	}
}
