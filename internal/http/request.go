package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/leasing-assistant/internal/slots"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// parseTime accepts a date (midnight in loc), an RFC3339 instant or a
// wall-clock time in loc.
func parseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if loc == nil {
		loc = time.UTC
	}
	if day, err := time.ParseInLocation(time.DateOnly, value, loc); err == nil {
		return day.UTC(), nil
	}
	return slots.ParseRequested(value, loc)
}

// queryWindow reads from/to query parameters. A missing from defaults to
// fallbackFrom and a missing to to from+span.
func queryWindow(r *http.Request, loc *time.Location, fallbackFrom time.Time, span, maxSpan time.Duration) (from, to time.Time, err error) {
	query := r.URL.Query()
	from = fallbackFrom
	if raw := query.Get("from"); raw != "" {
		if from, err = parseTime(raw, loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("from: %w", err)
		}
	}
	to = from.Add(span)
	if raw := query.Get("to"); raw != "" {
		if to, err = parseTime(raw, loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("to: %w", err)
		}
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must be after from")
	}
	if maxSpan > 0 && to.Sub(from) > maxSpan {
		return time.Time{}, time.Time{}, fmt.Errorf("window must not exceed %s", maxSpan)
	}
	return from, to, nil
}
