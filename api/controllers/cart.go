package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tradeyard/tradeyard-backend/api/middleware"
	"github.com/tradeyard/tradeyard-backend/api/responses"
	"github.com/tradeyard/tradeyard-backend/api/validators"
	cartsvc "github.com/tradeyard/tradeyard-backend/internal/cart"
	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
	"github.com/tradeyard/tradeyard-backend/pkg/logger"
)

type addCartLineRequest struct {
	ProductID  uuid.UUID `json:"product_id" validate:"required"`
	SelfPickup bool      `json:"self_pickup"`
	Delivery   bool      `json:"delivery"`
}

type cartLineResponse struct {
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Quantity   int       `json:"quantity"`
	SelfPickup bool      `json:"self_pickup"`
	Delivery   bool      `json:"delivery"`
	InStock    int       `json:"in_stock"`
}

type cartResponse struct {
	Lines         []cartLineResponse `json:"lines"`
	SubtotalCents int64              `json:"subtotal_cents"`
}

// CartList returns the buyer's cart with current listing state.
func CartList(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.List(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(items))
	}
}

// CartAdd puts a product into the cart with quantity one.
func CartAdd(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addCartLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line, err := svc.Add(r.Context(), cartsvc.AddInput{
			BuyerID:    buyerID,
			ProductID:  payload.ProductID,
			SelfPickup: payload.SelfPickup,
			Delivery:   payload.Delivery,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"product_id": line.ProductID,
			"quantity":   line.Quantity,
		})
	}
}

// CartIncrement bumps a line's quantity by one.
func CartIncrement(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartQuantityHandler(svc.Increment, logg)
}

// CartDecrement lowers a line's quantity by one, never below one.
func CartDecrement(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartQuantityHandler(svc.Decrement, logg)
}

// CartRemove deletes one line from the cart.
func CartRemove(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Remove(r.Context(), buyerID, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "removed"})
	}
}

// CartClear empties the whole cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Clear(r.Context(), buyerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cleared"})
	}
}

// CartVerify runs the full pre-checkout validation pass.
func CartVerify(v cartsvc.Validator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := v.VerifyCart(r.Context(), buyerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "valid"})
	}
}

func cartQuantityHandler(op func(ctx context.Context, buyerID, productID uuid.UUID) (*models.CartLine, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line, err := op(r.Context(), buyerID, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"product_id": line.ProductID,
			"quantity":   line.Quantity,
		})
	}
}

func newCartResponse(items []cartsvc.Item) cartResponse {
	resp := cartResponse{Lines: make([]cartLineResponse, 0, len(items))}
	for _, item := range items {
		resp.Lines = append(resp.Lines, cartLineResponse{
			ProductID:  item.Product.ID,
			Name:       item.Product.Name,
			PriceCents: item.Product.PriceCents,
			Quantity:   item.Line.Quantity,
			SelfPickup: item.Line.SelfPickup,
			Delivery:   item.Line.Delivery,
			InStock:    item.Product.Quantity,
		})
		resp.SubtotalCents += item.Product.PriceCents * int64(item.Line.Quantity)
	}
	return resp
}

func buyerFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.BuyerIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	buyerID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid buyer id")
	}
	return buyerID, nil
}

func productIDParam(r *http.Request) (uuid.UUID, error) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	return productID, nil
}
