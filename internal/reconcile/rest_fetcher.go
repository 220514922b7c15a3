package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/api/dto"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
)

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api returned %d", e.Status)
	}
	return fmt.Sprintf("api returned %d %s: %s", e.Status, e.Code, e.Message)
}

// RESTFetcher implements Fetcher against the REST API.
type RESTFetcher struct {
	baseURL string
	token   string
	timeout time.Duration
}

// NewRESTFetcher creates a fetcher for the API at baseURL. token is sent as
// a bearer token when set.
func NewRESTFetcher(baseURL, token string, timeout time.Duration) *RESTFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
	}
}

type envelope[T any] struct {
	Data  T `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func getJSON[T any](ctx context.Context, f *RESTFetcher, path string, query url.Values) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	timeout := f.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.Get(f.baseURL + path)
	if len(query) > 0 {
		agent.QueryString(query.Encode())
	}
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if f.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+f.token)
	}
	agent.Timeout(timeout)

	var env envelope[T]
	status, _, errs := agent.Struct(&env)
	if status >= fiber.StatusMultipleChoices {
		apiErr := &APIError{Status: status}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return zero, apiErr
	}
	if len(errs) > 0 {
		return zero, fmt.Errorf("GET %s: %w", path, errors.Join(errs...))
	}
	return env.Data, nil
}

func (f *RESTFetcher) ListTickets(ctx context.Context, query ListQuery) (TicketPage, error) {
	query = query.Normalized()
	values := url.Values{}
	values.Set("page", strconv.Itoa(query.Page))
	values.Set("page_size", strconv.Itoa(query.PageSize))
	for _, s := range query.Statuses {
		values.Add("status", string(s))
	}
	for _, p := range query.Priorities {
		values.Add("priority", string(p))
	}
	for _, c := range query.Categories {
		values.Add("category", string(c))
	}
	if query.Search != "" {
		values.Set("search", query.Search)
	}
	if query.AssignedToMe {
		values.Set("assigned_to_me", "true")
	}

	resp, err := getJSON[dto.TicketListResponse](ctx, f, "/api/tickets", values)
	if err != nil {
		return TicketPage{}, err
	}
	return TicketPage{Rows: resp.Items, Total: resp.Total}, nil
}

func (f *RESTFetcher) GetTicket(ctx context.Context, id int64) (domain.Ticket, error) {
	resp, err := getJSON[dto.TicketDetailResponse](ctx, f, "/api/tickets/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	return resp.Domain(), nil
}

func (f *RESTFetcher) ListMessages(ctx context.Context, ticketID int64) ([]domain.TicketMessage, error) {
	resp, err := getJSON[[]dto.MessageResponse](ctx, f, "/api/tickets/"+strconv.FormatInt(ticketID, 10)+"/messages", nil)
	if err != nil {
		return nil, err
	}
	msgs := make([]domain.TicketMessage, 0, len(resp))
	for _, m := range resp {
		msgs = append(msgs, m.Domain())
	}
	return msgs, nil
}

func (f *RESTFetcher) Stats(ctx context.Context) (domain.Stats, error) {
	return getJSON[domain.Stats](ctx, f, "/api/tickets/stats/summary", nil)
}

// EventsSince polls the replay endpoint. It is the fallback for clients
// that cannot hold a websocket open.
func (f *RESTFetcher) EventsSince(ctx context.Context, seq uint64) (dto.EventsResponse, error) {
	values := url.Values{}
	values.Set("since", strconv.FormatUint(seq, 10))
	return getJSON[dto.EventsResponse](ctx, f, "/api/events", values)
}

var _ Fetcher = (*RESTFetcher)(nil)
