package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/skyplanner/skyplanner/internal/agent"
)

const defaultCalendarBaseURL = "https://www.googleapis.com/calendar/v3"

// Free slots are suggested within working hours only.
const (
	workDayStartHour = 9
	workDayEndHour   = 18
)

// CalendarTool reads the user's Google Calendar and reports busy events plus
// free working-hour slots for a date range.
type CalendarTool struct {
	oauth      *oauth2.Config
	tokenFile  string
	baseURL    string
	httpClient *http.Client // overrides oauth transport when set, for tests
	location   *time.Location
}

// CalendarOptions configures Google Calendar access. TokenFile holds a
// previously obtained OAuth token in JSON form.
type CalendarOptions struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
	Timezone     string
}

// NewCalendarTool creates the calendar tool. Google's OAuth endpoints are
// fixed, so they are declared here rather than configured.
func NewCalendarTool(opts CalendarOptions) *CalendarTool {
	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		log.Warn().Str("timezone", opts.Timezone).Msg("unknown timezone, using UTC")
		loc = time.UTC
	}
	return &CalendarTool{
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
			Scopes: []string{"https://www.googleapis.com/auth/calendar.readonly"},
		},
		tokenFile: opts.TokenFile,
		baseURL:   defaultCalendarBaseURL,
		location:  loc,
	}
}

func (t *CalendarTool) Name() string { return "get_calendar_availability" }

func (t *CalendarTool) Description() string {
	return "Check the user's Google Calendar for a date range. Returns existing events and free time slots during working hours (09:00-18:00)."
}

func (t *CalendarTool) Parameters() map[string]agent.Param {
	return map[string]agent.Param{
		"start_date": {
			Type:        "string",
			Description: "Start of the range, YYYY-MM-DD",
		},
		"end_date": {
			Type:        "string",
			Description: "End of the range (inclusive), YYYY-MM-DD. Defaults to start_date.",
		},
		"calendar_id": {
			Type:        "string",
			Description: "Calendar to check, or 'all' for every calendar",
			Default:     "all",
		},
	}
}

type calendarEvent struct {
	Title    string `json:"title"`
	Calendar string `json:"calendar"`
	Start    string `json:"start"`
	End      string `json:"end"`
	AllDay   bool   `json:"all_day"`
	Summary  string `json:"description,omitempty"`

	startTime time.Time
	endTime   time.Time
}

func (t *CalendarTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	startDate, ok := agent.GetString(args, "start_date")
	if !ok || startDate == "" {
		return map[string]any{
			"success": false,
			"error":   "start_date is required",
		}, nil
	}
	endDate := agent.GetStringDefault(args, "end_date", startDate)
	calendarID := agent.GetStringDefault(args, "calendar_id", "all")

	start, err := time.ParseInLocation("2006-01-02", startDate, t.location)
	if err != nil {
		return nil, fmt.Errorf("invalid start_date %q: expected YYYY-MM-DD", startDate)
	}
	end, err := time.ParseInLocation("2006-01-02", endDate, t.location)
	if err != nil {
		return nil, fmt.Errorf("invalid end_date %q: expected YYYY-MM-DD", endDate)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end_date %s is before start_date %s", endDate, startDate)
	}

	client, err := t.client(ctx)
	if err != nil {
		return map[string]any{
			"success": false,
			"error":   fmt.Sprintf("calendar access is not available: %v", err),
		}, nil
	}

	calendars, err := t.resolveCalendars(ctx, client, calendarID)
	if err != nil {
		return nil, err
	}

	timeMin := start
	timeMax := end.AddDate(0, 0, 1)

	var events []calendarEvent
	for _, cal := range calendars {
		calEvents, err := t.fetchEvents(ctx, client, cal, timeMin, timeMax)
		if err != nil {
			// One broken calendar shouldn't sink the whole lookup.
			log.Warn().Err(err).Str("calendar", cal.Summary).Msg("skipping calendar")
			continue
		}
		events = append(events, calEvents...)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].startTime.Before(events[j].startTime)
	})

	return map[string]any{
		"success":    true,
		"start_date": startDate,
		"end_date":   endDate,
		"timezone":   t.location.String(),
		"events":     events,
		"free_slots": freeSlots(events, start, end, t.location),
	}, nil
}

// client builds an authenticated HTTP client from the stored OAuth token.
func (t *CalendarTool) client(ctx context.Context) (*http.Client, error) {
	if t.httpClient != nil {
		return t.httpClient, nil
	}
	if t.oauth.ClientID == "" {
		return nil, fmt.Errorf("google credentials not configured")
	}
	data, err := os.ReadFile(t.tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return t.oauth.Client(ctx, &token), nil
}

type calendarListEntry struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

func (t *CalendarTool) resolveCalendars(ctx context.Context, client *http.Client, calendarID string) ([]calendarListEntry, error) {
	if calendarID != "all" {
		return []calendarListEntry{{ID: calendarID, Summary: calendarID}}, nil
	}

	var list struct {
		Items []calendarListEntry `json:"items"`
	}
	if err := t.getJSON(ctx, client, t.baseURL+"/users/me/calendarList", &list); err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	if len(list.Items) == 0 {
		return []calendarListEntry{{ID: "primary", Summary: "primary"}}, nil
	}
	return list.Items, nil
}

type rawEventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

type rawEvent struct {
	Summary     string       `json:"summary"`
	Description string       `json:"description"`
	Start       rawEventTime `json:"start"`
	End         rawEventTime `json:"end"`
}

func (t *CalendarTool) fetchEvents(ctx context.Context, client *http.Client, cal calendarListEntry, timeMin, timeMax time.Time) ([]calendarEvent, error) {
	q := url.Values{}
	q.Set("timeMin", timeMin.Format(time.RFC3339))
	q.Set("timeMax", timeMax.Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", "100")

	var resp struct {
		Items []rawEvent `json:"items"`
	}
	reqURL := t.baseURL + "/calendars/" + url.PathEscape(cal.ID) + "/events?" + q.Encode()
	if err := t.getJSON(ctx, client, reqURL, &resp); err != nil {
		return nil, err
	}

	events := make([]calendarEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev := calendarEvent{
			Title:    item.Summary,
			Calendar: cal.Summary,
			Summary:  item.Description,
		}
		if item.Start.Date != "" {
			// All-day events carry a date, not a dateTime.
			ev.AllDay = true
			ev.Start = item.Start.Date
			ev.End = item.End.Date
			ev.startTime, _ = time.ParseInLocation("2006-01-02", item.Start.Date, t.location)
			ev.endTime, _ = time.ParseInLocation("2006-01-02", item.End.Date, t.location)
		} else {
			startTime, err := time.Parse(time.RFC3339, item.Start.DateTime)
			if err != nil {
				continue
			}
			endTime, err := time.Parse(time.RFC3339, item.End.DateTime)
			if err != nil {
				continue
			}
			ev.startTime = startTime.In(t.location)
			ev.endTime = endTime.In(t.location)
			ev.Start = ev.startTime.Format("2006-01-02 15:04")
			ev.End = ev.endTime.Format("2006-01-02 15:04")
		}
		events = append(events, ev)
	}
	return events, nil
}

func (t *CalendarTool) getJSON(ctx context.Context, client *http.Client, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("calendar API error (%d): %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type freeSlot struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// freeSlots computes open working-hour windows per day after subtracting the
// given events. All-day events block the whole day.
func freeSlots(events []calendarEvent, start, end time.Time, loc *time.Location) []freeSlot {
	var slots []freeSlot
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), workDayStartHour, 0, 0, 0, loc)
		dayEnd := time.Date(day.Year(), day.Month(), day.Day(), workDayEndHour, 0, 0, 0, loc)

		cursor := dayStart
		blocked := false
		for _, ev := range events {
			if ev.AllDay {
				if !ev.startTime.After(day) && ev.endTime.After(day) {
					blocked = true
					break
				}
				continue
			}
			if !ev.endTime.After(cursor) || !ev.startTime.Before(dayEnd) {
				continue
			}
			if ev.startTime.After(cursor) {
				slots = append(slots, freeSlot{
					Date:  day.Format("2006-01-02"),
					Start: cursor.Format("15:04"),
					End:   ev.startTime.Format("15:04"),
				})
			}
			if ev.endTime.After(cursor) {
				cursor = ev.endTime
			}
		}
		if blocked {
			continue
		}
		if cursor.Before(dayEnd) {
			slots = append(slots, freeSlot{
				Date:  day.Format("2006-01-02"),
				Start: cursor.Format("15:04"),
				End:   dayEnd.Format("15:04"),
			})
		}
	}
	return slots
}
