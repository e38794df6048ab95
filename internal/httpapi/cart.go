package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skinversity/storefront-go/internal/cart"
)

type cartView struct {
	cart.Cart
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

func viewOf(c cart.Cart) cartView {
	if c.Lines == nil {
		c.Lines = []cart.Line{}
	}
	return cartView{Cart: c, TotalItems: c.TotalItems(), TotalPrice: c.TotalPrice()}
}

// cartID returns the caller's cart id, minting a new one when absent.
func cartID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(CartHeader))
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(CartHeader, id)
	return id
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.Carts.Load(r.Context(), cartID(w, r))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	id := cartID(w, r)
	var req addItemRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	p, ok, err := s.Catalog.Get(r.Context(), req.ProductID)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: %s", errProductNotFound, req.ProductID), nil)
		return
	}
	c, err := s.Carts.Mutate(r.Context(), id, func(c *cart.Cart) error { return c.Add(p, req.Quantity) })
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	id := cartID(w, r)
	productID := r.PathValue("productID")
	var req updateItemRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	c, err := s.Carts.Mutate(r.Context(), id, func(c *cart.Cart) error {
		found, err := c.UpdateQuantity(productID, req.Quantity)
		if !found {
			return fmt.Errorf("%w: %s not in cart", errProductNotFound, productID)
		}
		return err
	})
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productID")
	c, err := s.Carts.Mutate(r.Context(), cartID(w, r), func(c *cart.Cart) error {
		c.Remove(productID)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	id := cartID(w, r)
	if err := s.Carts.Clear(r.Context(), id); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(cart.Cart{ID: id}))
}
