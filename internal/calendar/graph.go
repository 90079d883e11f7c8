package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// rateLimitPause is the wait before the single retry of a 429.
const rateLimitPause = time.Second

const eventSelect = "id,subject,start,end,location,showAs"

// ListEvents returns every event of the calendar view over [from, to),
// following pagination links.
func (c *Connector) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	query := url.Values{}
	query.Set("startDateTime", from.UTC().Format(time.RFC3339))
	query.Set("endDateTime", to.UTC().Format(time.RFC3339))
	query.Set("$select", eventSelect)
	query.Set("$top", "100")
	next := c.cfg.GraphBaseURL + "/me/calendarView?" + query.Encode()

	var events []Event
	for next != "" {
		var page graphEventPage
		if err := c.do(ctx, c.cfg.Timeouts.List, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Value {
			events = append(events, raw.normalise(c.cfg.Location))
		}
		next = page.NextLink
	}
	return events, nil
}

// ListBusy returns the events over [from, to) whose showAs is busy and whose
// times parsed.
func (c *Connector) ListBusy(ctx context.Context, from, to time.Time) ([]Event, error) {
	events, err := c.ListEvents(ctx, from, to)
	if err != nil {
		return nil, err
	}
	busy := events[:0]
	for _, event := range events {
		if event.Busy() && event.HasTimes {
			busy = append(busy, event)
		}
	}
	return busy, nil
}

// CreateEvent creates an event and returns its id. An end that is missing or
// not after start is replaced by start plus 30 minutes.
func (c *Connector) CreateEvent(ctx context.Context, input EventInput) (string, error) {
	if input.Start.IsZero() {
		return "", errors.New("calendar: event start is required")
	}
	end := input.End
	if !end.After(input.Start) {
		end = input.Start.Add(30 * time.Minute)
	}

	body := graphCreateEvent{
		Subject: input.Subject,
		Start:   formatGraphTime(input.Start, c.cfg.Location),
		End:     formatGraphTime(end, c.cfg.Location),
		ShowAs:  ShowAsBusy,
	}
	if input.Location != "" {
		body.Location = &graphLocation{DisplayName: input.Location}
	}
	if input.AttendeeEmail != "" {
		attendee := graphAttendee{Type: "required"}
		attendee.EmailAddress.Address = input.AttendeeEmail
		body.Attendees = []graphAttendee{attendee}
	}

	var created graphEvent
	if err := c.do(ctx, c.cfg.Timeouts.Write, http.MethodPost, c.cfg.GraphBaseURL+"/me/events", body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &UpstreamError{Status: http.StatusOK, Message: "created event has no id"}
	}
	return created.ID, nil
}

// GetEvent fetches one event by id.
func (c *Connector) GetEvent(ctx context.Context, id string) (Event, error) {
	var raw graphEvent
	endpoint := c.cfg.GraphBaseURL + "/me/events/" + url.PathEscape(id) + "?$select=" + eventSelect
	if err := c.do(ctx, c.cfg.Timeouts.Write, http.MethodGet, endpoint, nil, &raw); err != nil {
		return Event{}, err
	}
	return raw.normalise(c.cfg.Location), nil
}

// DeleteEvent removes an event. An event that is already gone is not an error.
func (c *Connector) DeleteEvent(ctx context.Context, id string) error {
	err := c.do(ctx, c.cfg.Timeouts.Write, http.MethodDelete, c.cfg.GraphBaseURL+"/me/events/"+url.PathEscape(id), nil, nil)
	if errors.Is(err, ErrEventNotFound) {
		return nil
	}
	return err
}

// do sends an authenticated request, retrying once after a pause on 429.
func (c *Connector) do(ctx context.Context, timeout time.Duration, method, endpoint string, body, out any) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err = c.send(callCtx, token, method, endpoint, body, out)
		cancel()

		if !errors.Is(err, errTooManyRequests) {
			return err
		}
		if attempt > 0 {
			c.logger.WarnContext(ctx, "graph rate limited", "method", method)
			return ErrRateLimited
		}
		if err := c.pause(ctx, rateLimitPause); err != nil {
			return &UpstreamError{Message: err.Error()}
		}
	}
}

var errTooManyRequests = errors.New("calendar: 429")

// send performs a single request and decodes a JSON response into out.
func (c *Connector) send(ctx context.Context, token, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("calendar: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("calendar: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", fmt.Sprintf("outlook.timezone=%q", c.cfg.Location.String()))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errTooManyRequests
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{Status: resp.StatusCode, Message: graphErrorMessage(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Status: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return nil
}

// graphErrorMessage extracts error.message from a Graph error body.
func graphErrorMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Code != "" {
			return envelope.Error.Code + ": " + envelope.Error.Message
		}
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
