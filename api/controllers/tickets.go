package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/events-aggregator/api/responses"
	"github.com/angelmondragon/events-aggregator/api/validators"
	"github.com/angelmondragon/events-aggregator/internal/tickets"
	"github.com/angelmondragon/events-aggregator/pkg/logger"
)

const idempotencyKeyHeader = "Idempotency-Key"

type createTicketRequest struct {
	EventID        uuid.UUID `json:"event_id" validate:"required"`
	FirstName      string    `json:"first_name" validate:"required,max=255"`
	LastName       string    `json:"last_name" validate:"required,max=255"`
	Email          string    `json:"email" validate:"required,email,max=255"`
	Seat           string    `json:"seat" validate:"required,max=32"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
}

type createTicketResponse struct {
	TicketID uuid.UUID `json:"ticket_id"`
}

// CreateTicket registers a ticket. The idempotency key comes from the body,
// falling back to the Idempotency-Key header.
func CreateTicket(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTicketRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := r.Header.Get(idempotencyKeyHeader)
		if req.IdempotencyKey != nil {
			key = *req.IdempotencyKey
		}

		result, err := svc.Register(r.Context(), tickets.RegisterInput{
			EventID:        req.EventID,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			Email:          req.Email,
			Seat:           req.Seat,
			IdempotencyKey: key,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createTicketResponse{TicketID: result.TicketID})
	}
}

func DeleteTicket(svc tickets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, "ticketId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Cancel(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"success": true})
	}
}
