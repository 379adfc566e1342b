package controllers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/events-aggregator/api/responses"
	"github.com/angelmondragon/events-aggregator/api/validators"
	"github.com/angelmondragon/events-aggregator/internal/events"
	"github.com/angelmondragon/events-aggregator/pkg/db/models"
	"github.com/angelmondragon/events-aggregator/pkg/logger"
)

type placeResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	City         string    `json:"city"`
	Address      string    `json:"address"`
	SeatsPattern *string   `json:"seats_pattern,omitempty"`
}

type eventResponse struct {
	ID                   uuid.UUID     `json:"id"`
	Name                 string        `json:"name"`
	Place                placeResponse `json:"place"`
	EventTime            time.Time     `json:"event_time"`
	RegistrationDeadline time.Time     `json:"registration_deadline"`
	Status               string        `json:"status"`
	NumberOfVisitors     int           `json:"number_of_visitors"`
}

type eventListResponse struct {
	Count    int64           `json:"count"`
	Next     *string         `json:"next"`
	Previous *string         `json:"previous"`
	Results  []eventResponse `json:"results"`
}

type seatsResponse struct {
	EventID        uuid.UUID `json:"event_id"`
	AvailableSeats []string  `json:"available_seats"`
}

func toEventResponse(e models.Event, withSeatsPattern bool) eventResponse {
	resp := eventResponse{
		ID:                   e.ID,
		Name:                 e.Name,
		EventTime:            e.EventTime.UTC(),
		RegistrationDeadline: e.RegistrationDeadline.UTC(),
		Status:               e.Status.String(),
		NumberOfVisitors:     e.NumberOfVisitors,
	}
	if e.Place != nil {
		resp.Place = placeResponse{
			ID:      e.Place.ID,
			Name:    e.Place.Name,
			City:    e.Place.City,
			Address: e.Place.Address,
		}
		if withSeatsPattern {
			resp.Place.SeatsPattern = e.Place.SeatsPattern
		}
	}
	return resp
}

// ListEvents returns a page of events ordered by event time.
func ListEvents(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dateFrom, err := validators.ParseQueryDate(r, "date_from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParseQueryInt(r, "page", 1, 1, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pageSize, err := validators.ParseQueryInt(r, "page_size", events.DefaultPageSize, 1, events.MaxPageSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), events.ListParams{DateFrom: dateFrom, Page: page, PageSize: pageSize})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := eventListResponse{
			Count:   result.Total,
			Results: make([]eventResponse, 0, len(result.Items)),
		}
		for _, e := range result.Items {
			resp.Results = append(resp.Results, toEventResponse(e, false))
		}
		if result.HasNext() {
			link := pageLink(r, dateFrom, result.Page+1, result.PageSize)
			resp.Next = &link
		}
		if result.HasPrevious() {
			link := pageLink(r, dateFrom, result.Page-1, result.PageSize)
			resp.Previous = &link
		}
		responses.WriteSuccess(w, resp)
	}
}

func pageLink(r *http.Request, dateFrom *time.Time, page, pageSize int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if dateFrom != nil {
		q.Set("date_from", dateFrom.Format(time.DateOnly))
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return fmt.Sprintf("%s://%s%s?%s", scheme, r.Host, r.URL.Path, q.Encode())
}

func GetEvent(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toEventResponse(*event, true))
	}
}

// EventSeats returns the seats the provider still has for a published event.
func EventSeats(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		seats, err := svc.Seats(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if seats == nil {
			seats = []string{}
		}
		responses.WriteSuccess(w, seatsResponse{EventID: id, AvailableSeats: seats})
	}
}
