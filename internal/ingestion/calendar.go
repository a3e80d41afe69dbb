package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

type CalendarOptions struct {
	CalendarID   string
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	From         string // YYYY-MM-DD, optional
	To           string // YYYY-MM-DD, optional
}

// CalendarSource turns marketing-calendar events into a retrievable document,
// so campaign names resolve to concrete date ranges the same way the local
// calendar file does.
type CalendarSource struct {
	service    *calendar.Service
	calendarID string
	from, to   string
}

func NewCalendarSource(ctx context.Context, opts CalendarOptions) (*CalendarSource, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		Scopes:       []string{calendar.CalendarReadonlyScope},
		Endpoint:     google.Endpoint,
	}
	token := &oauth2.Token{AccessToken: opts.AccessToken, RefreshToken: opts.RefreshToken}
	client := oauth2Config.Client(ctx, token)

	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	id := opts.CalendarID
	if id == "" {
		id = "primary"
	}
	return &CalendarSource{service: service, calendarID: id, from: opts.From, to: opts.To}, nil
}

// Document fetches events in the configured window.
func (s *CalendarSource) Document(ctx context.Context) (Document, error) {
	call := s.service.Events.List(s.calendarID).SingleEvents(true).OrderBy("startTime")
	if s.from != "" {
		call = call.TimeMin(s.from + "T00:00:00Z")
	}
	if s.to != "" {
		call = call.TimeMax(s.to + "T23:59:59Z")
	}

	var items []*calendar.Event
	err := call.Pages(ctx, func(page *calendar.Events) error {
		items = append(items, page.Items...)
		return nil
	})
	if err != nil {
		return Document{}, fmt.Errorf("list calendar events: %w", err)
	}

	name := "calendar/" + s.calendarID
	return Document{
		Name:       name,
		Text:       EventsMarkdown(items),
		Source:     "calendar",
		Title:      "Marketing Calendar",
		ImportedAt: time.Now().UTC(),
	}, nil
}

// EventsMarkdown renders events as one "## " section each with inclusive
// YYYY-MM-DD dates. All-day events carry an exclusive end date, so one day is
// taken off.
func EventsMarkdown(items []*calendar.Event) string {
	var b strings.Builder
	b.WriteString("# Marketing Calendar\n")
	for _, item := range items {
		if item == nil || item.Start == nil || item.End == nil {
			continue
		}
		start, startOK := eventDay(item.Start, false)
		end, endOK := eventDay(item.End, item.End.DateTime == "")
		if !startOK || !endOK {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\nDates: %s to %s\n", strings.TrimSpace(item.Summary), start, end)
		if desc := strings.TrimSpace(item.Description); desc != "" {
			b.WriteString(desc)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func eventDay(dt *calendar.EventDateTime, exclusive bool) (string, bool) {
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return "", false
		}
		return t.Format("2006-01-02"), true
	}
	t, err := time.Parse("2006-01-02", dt.Date)
	if err != nil {
		return "", false
	}
	if exclusive {
		t = t.AddDate(0, 0, -1)
	}
	return t.Format("2006-01-02"), true
}
