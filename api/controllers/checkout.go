package controllers

import (
	"net/http"

	"github.com/tradeyard/tradeyard-backend/api/responses"
	"github.com/tradeyard/tradeyard-backend/api/validators"
	checkoutsvc "github.com/tradeyard/tradeyard-backend/internal/checkout"
	"github.com/tradeyard/tradeyard-backend/pkg/enums"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
	"github.com/tradeyard/tradeyard-backend/pkg/logger"
	"github.com/tradeyard/tradeyard-backend/pkg/types"
)

type reserveRequest struct {
	PaymentMethod   string         `json:"payment_method" validate:"required"`
	DeliveryAddress *types.Address `json:"delivery_address,omitempty"`
}

// CheckoutReserve converts the cart into a timed reservation.
func CheckoutReserve(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reserveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		result, err := svc.Reserve(r.Context(), checkoutsvc.ReserveInput{
			BuyerID:         buyerID,
			PaymentMethod:   method,
			DeliveryAddress: payload.DeliveryAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckoutCurrent returns the buyer's live reservation.
func CheckoutCurrent(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Current(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CheckoutSettle finalizes the reservation inside the settlement window.
func CheckoutSettle(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Settle(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.RequiresAction {
			responses.WriteSuccessStatus(w, http.StatusAccepted, result)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
