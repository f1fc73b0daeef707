package e2etest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// MockBackend mimics the Stumart REST API and its change-event socket
type MockBackend struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	hits     map[string]int
	failures map[string]int
	cart     CartFixture
	orders   []OrderFixture
	conns    map[*websocket.Conn]struct{}
}

// CartFixture is the cart the backend reports
type CartFixture struct {
	Items []map[string]interface{} `json:"items"`
	Count int                      `json:"count"`
}

// OrderFixture is one order the backend reports
type OrderFixture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// NewMockBackend starts the mock with one shop, one product and two orders
func NewMockBackend() *MockBackend {
	b := &MockBackend{
		hits:     make(map[string]int),
		failures: make(map[string]int),
		conns:    make(map[*websocket.Conn]struct{}),
		orders: []OrderFixture{
			{ID: "123", Status: "PENDING"},
			{ID: "456", Status: "PAID"},
		},
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/shops/", b.handleShops).Methods(http.MethodGet)
	api.HandleFunc("/products/", b.handleProducts).Methods(http.MethodGet)
	api.HandleFunc("/search/", b.handleProducts).Methods(http.MethodGet)
	api.HandleFunc("/cart/", b.handleCart).Methods(http.MethodGet)
	api.HandleFunc("/cart/add/", b.handleCartAdd).Methods(http.MethodPost)
	api.HandleFunc("/orders/", b.handleOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/cancel/", b.handleOrderCancel).Methods(http.MethodPost)
	router.HandleFunc("/ws", b.handleWebSocket)
	router.Use(b.countHits)

	b.server = httptest.NewServer(router)
	return b
}

// APIURL is the REST base URL
func (b *MockBackend) APIURL() string {
	return b.server.URL + "/api"
}

// WSURL is the change-event socket URL
func (b *MockBackend) WSURL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws"
}

// Hits returns how many requests reached path
func (b *MockBackend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

// FailNext makes the next n requests to path answer 500
func (b *MockBackend) FailNext(path string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[path] = n
}

// Connections returns the number of open sockets
func (b *MockBackend) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Push sends an event to every connected socket
func (b *MockBackend) Push(event map[string]string) {
	data, _ := json.Marshal(event)
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

// Close stops the server and drops open sockets
func (b *MockBackend) Close() {
	b.mu.Lock()
	for conn := range b.conns {
		conn.Close()
	}
	b.mu.Unlock()
	b.server.Close()
}

func (b *MockBackend) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		fail := b.failures[r.URL.Path] > 0
		if fail {
			b.failures[r.URL.Path]--
		}
		b.mu.Unlock()

		if fail {
			http.Error(w, `{"detail":"backend unavailable"}`, http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (b *MockBackend) handleShops(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, []map[string]interface{}{
		{"id": "1", "name": "Campus Eats", "category": r.URL.Query().Get("category")},
	})
}

func (b *MockBackend) handleProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"results": []map[string]interface{}{
			{"id": "42", "vendor_id": "1", "name": "Jollof rice", "price": 1500, "in_stock": 10},
		},
		"count": 1,
	})
}

func (b *MockBackend) handleCart(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	cart := b.cart
	b.mu.Unlock()
	if cart.Items == nil {
		cart.Items = []map[string]interface{}{}
	}
	writeJSON(w, cart)
}

func (b *MockBackend) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, `{"detail":"bad body"}`, http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.cart.Items = append(b.cart.Items, map[string]interface{}{
		"id":         "line-" + in.ProductID,
		"product_id": in.ProductID,
		"quantity":   in.Quantity,
		"unit_price": 1500,
	})
	b.cart.Count += in.Quantity
	b.mu.Unlock()

	writeJSON(w, map[string]string{"message": "added"})
}

func (b *MockBackend) handleOrders(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	orders := append([]OrderFixture(nil), b.orders...)
	b.mu.Unlock()
	writeJSON(w, orders)
}

func (b *MockBackend) handleOrderCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.orders {
		if b.orders[i].ID == id {
			b.orders[i].Status = "CANCELLED"
			writeJSON(w, b.orders[i])
			return
		}
	}
	http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
}

func (b *MockBackend) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	// Drain until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
	conn.Close()
}
