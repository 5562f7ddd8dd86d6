package handlers

import (
	"net/http"
	"reflect"
	"strings"
	"testing"
)

func seedAnalytics(st *mockEventStore) {
	seedToday(st)
	st.raw[4] = append(st.raw[4], newRawEvent(4, `{"bounceType":"Permanent","bounceSubType":"General"}`))
}

func TestShowAnalytics(t *testing.T) {
	st := newMockEventStore()
	seedAnalytics(st)

	rr := get(st, "/analytics?timeframe=7")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"Recipient domains", "example.com", "example.org", "By weekday", "Saturday", "Permanent", `value="7" selected`} {
		if !strings.Contains(body, want) {
			t.Fatalf("analytics page missing %q", want)
		}
	}
}

func TestShowDataQuality(t *testing.T) {
	st := newMockEventStore()
	seedAnalytics(st)

	rr := get(st, "/analytics/data?timeframe=0")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"Recipients with several statuses", "alice@example.com", "Delivery, Open, Send"} {
		if !strings.Contains(body, want) {
			t.Fatalf("data quality page missing %q", want)
		}
	}
}

func TestAnalyticsPages_StoreError(t *testing.T) {
	for _, target := range []string{"/analytics", "/analytics/data"} {
		st := newMockEventStore()
		st.err = errDBDown
		if rr := get(st, target); rr.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", target, rr.Code)
		}
	}
}

type analyticsResp struct {
	Domain  string `json:"domain"`
	Domains []struct {
		Domain       string  `json:"domain"`
		Total        int64   `json:"total"`
		Delivered    int64   `json:"delivered"`
		Bounced      int64   `json:"bounced"`
		DeliveryRate float64 `json:"delivery_rate"`
		BounceRate   float64 `json:"bounce_rate"`
	} `json:"domains"`
	Hours []struct {
		Label     string `json:"label"`
		Total     int64  `json:"total"`
		Delivered int64  `json:"delivered"`
	} `json:"hours"`
	Weekdays []struct {
		Label string `json:"label"`
		Total int64  `json:"total"`
	} `json:"weekdays"`
	BounceTypes []struct {
		Label string `json:"label"`
		Count int64  `json:"count"`
	} `json:"bounce_types"`
	Engagement struct {
		Sent         int64   `json:"sent"`
		Delivered    int64   `json:"delivered"`
		Opened       int64   `json:"opened"`
		Clicked      int64   `json:"clicked"`
		DeliveryRate float64 `json:"delivery_rate"`
		OpenRate     float64 `json:"open_rate"`
		ClickRate    float64 `json:"click_rate"`
	} `json:"engagement"`
}

func TestHandleAnalytics_Week(t *testing.T) {
	st := newMockEventStore()
	seedAnalytics(st)

	var resp analyticsResp
	if code := getJSON(t, st, "/api/v1/analytics?timeframe=7", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	if len(resp.Domains) != 2 || resp.Domains[0].Domain != "example.com" || resp.Domains[1].Domain != "example.org" {
		t.Fatalf("unexpected domains: %+v", resp.Domains)
	}
	if resp.Domains[0].Total != 3 || resp.Domains[0].DeliveryRate != 33.33 {
		t.Fatalf("unexpected example.com row: %+v", resp.Domains[0])
	}
	if resp.Domains[1].BounceRate != 100 {
		t.Fatalf("unexpected example.org row: %+v", resp.Domains[1])
	}

	if len(resp.Hours) != 24 || resp.Hours[9].Total != 2 || resp.Hours[9].Delivered != 1 || resp.Hours[8].Total != 1 {
		t.Fatalf("unexpected hours: %+v", resp.Hours)
	}
	// 2024-05-30 is a Thursday and 2024-06-01 a Saturday.
	if len(resp.Weekdays) != 7 || resp.Weekdays[3].Total != 1 || resp.Weekdays[5].Total != 3 {
		t.Fatalf("unexpected weekdays: %+v", resp.Weekdays)
	}

	if len(resp.BounceTypes) != 1 || resp.BounceTypes[0].Label != "Permanent" || resp.BounceTypes[0].Count != 1 {
		t.Fatalf("unexpected bounce types: %+v", resp.BounceTypes)
	}
	e := resp.Engagement
	if e.Sent != 1 || e.Delivered != 1 || e.Opened != 1 || e.Clicked != 0 {
		t.Fatalf("unexpected engagement counts: %+v", e)
	}
	if e.DeliveryRate != 100 || e.OpenRate != 100 || e.ClickRate != 0 {
		t.Fatalf("unexpected engagement rates: %+v", e)
	}
}

func TestHandleAnalytics_DomainFilter(t *testing.T) {
	st := newMockEventStore()
	seedAnalytics(st)

	var resp analyticsResp
	if code := getJSON(t, st, "/api/v1/analytics?timeframe=7&domain=@Example.ORG", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.Domain != "Example.ORG" {
		t.Fatalf("unexpected domain echo %q", resp.Domain)
	}
	if len(resp.Domains) != 1 || resp.Domains[0].Domain != "example.org" || resp.Domains[0].Bounced != 1 {
		t.Fatalf("unexpected domains: %+v", resp.Domains)
	}

	if code := getJSON(t, st, "/api/v1/analytics?timeframe=7&domain=nowhere.test", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.Domains == nil || len(resp.Domains) != 0 {
		t.Fatalf("expected an empty domain list, got %+v", resp.Domains)
	}
}

func TestHandleDataQuality_Today(t *testing.T) {
	st := newMockEventStore()
	seedAnalytics(st)

	var resp struct {
		Summary          map[string]int64 `json:"summary"`
		RepeatedMessages []struct {
			MessageID string `json:"message_id"`
		} `json:"repeated_messages"`
		MixedRecipients []struct {
			Recipient string   `json:"recipient"`
			Records   int64    `json:"records"`
			Statuses  []string `json:"statuses"`
		} `json:"mixed_recipients"`
		Records             int64   `json:"records"`
		Recipients          int64   `json:"recipients"`
		MessageIDs          int64   `json:"message_ids"`
		RecordsPerRecipient float64 `json:"records_per_recipient"`
		RecordsPerMessage   float64 `json:"records_per_message"`
	}
	if code := getJSON(t, st, "/api/v1/data-quality?timeframe=0", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	if resp.Records != 3 || resp.Recipients != 1 || resp.MessageIDs != 3 {
		t.Fatalf("unexpected distinct counts: %+v", resp)
	}
	if resp.RecordsPerRecipient != 3 || resp.RecordsPerMessage != 1 {
		t.Fatalf("unexpected averages: %v %v", resp.RecordsPerRecipient, resp.RecordsPerMessage)
	}
	if resp.RepeatedMessages == nil || len(resp.RepeatedMessages) != 0 {
		t.Fatalf("expected an empty repeated list, got %+v", resp.RepeatedMessages)
	}
	if len(resp.MixedRecipients) != 1 || resp.MixedRecipients[0].Recipient != "alice@example.com" {
		t.Fatalf("unexpected mixed recipients: %+v", resp.MixedRecipients)
	}
	if want := []string{"Delivery", "Open", "Send"}; !reflect.DeepEqual(resp.MixedRecipients[0].Statuses, want) {
		t.Fatalf("statuses = %v, want %v", resp.MixedRecipients[0].Statuses, want)
	}
	if resp.Summary["Send"] != 1 || len(resp.Summary) != 3 {
		t.Fatalf("unexpected summary: %v", resp.Summary)
	}
}

func TestHandleAnalyticsAPI_StoreError(t *testing.T) {
	for _, target := range []string{"/api/v1/analytics", "/api/v1/data-quality"} {
		st := newMockEventStore()
		st.err = errDBDown
		if code := getJSON(t, st, target, nil); code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", target, code)
		}
	}
}
