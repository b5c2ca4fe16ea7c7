package connectors

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
)

const calendarBaseURL = "https://www.googleapis.com/calendar/v3"

// GoogleCalendar is the calendar connector. OAuth credential.
type GoogleCalendar struct {
	baseURL  string
	upstream *upstream
}

func NewGoogleCalendar() *GoogleCalendar {
	return &GoogleCalendar{baseURL: calendarBaseURL, upstream: newUpstream()}
}

func (c *GoogleCalendar) SetBaseURL(u string) { c.baseURL = u }

func (c *GoogleCalendar) Descriptor() Descriptor {
	return Descriptor{
		Tool: "google_calendar",
		Ops: map[string]OpSchema{
			"list_events": {ParamSchema: `{
				"type": "object",
				"properties": {
					"calendar_id": {"type": "string"},
					"time_min": {"type": "string"},
					"max_results": {"type": "integer", "minimum": 1, "maximum": 250}
				}
			}`},
			"create_event": {ParamSchema: `{
				"type": "object",
				"properties": {
					"calendar_id": {"type": "string"},
					"summary": {"type": "string", "minLength": 1},
					"start": {"type": "string", "minLength": 1},
					"end": {"type": "string", "minLength": 1},
					"description": {"type": "string"}
				},
				"required": ["summary", "start", "end"]
			}`},
		},
	}
}

func (c *GoogleCalendar) Execute(ctx context.Context, op string, params map[string]any, cred credential.Credential) (json.RawMessage, error) {
	tok, err := oauthFor("google_calendar", cred)
	if err != nil {
		return nil, err
	}
	header := bearerHeader(tok.AccessToken)
	calendarID := strParamOr(params, "calendar_id", "primary")
	eventsURL := c.baseURL + "/calendars/" + url.PathEscape(calendarID) + "/events"

	switch op {
	case "list_events":
		query := url.Values{
			"maxResults":   {strconv.Itoa(clampInt(intParamOr(params, "max_results", 20), 1, 250))},
			"singleEvents": {"true"},
			"orderBy":      {"startTime"},
		}
		if tm := strParam(params, "time_min"); tm != "" {
			query.Set("timeMin", tm)
		}
		return c.upstream.getJSON(ctx, "google_calendar", eventsURL, query, header)
	case "create_event":
		payload := map[string]any{
			"summary": strParam(params, "summary"),
			"start":   map[string]any{"dateTime": strParam(params, "start")},
			"end":     map[string]any{"dateTime": strParam(params, "end")},
		}
		if desc := strParam(params, "description"); desc != "" {
			payload["description"] = desc
		}
		return c.upstream.postJSON(ctx, "google_calendar", eventsURL, nil, header, payload)
	default:
		return nil, types.ErrUnknownOp("google_calendar", op)
	}
}
