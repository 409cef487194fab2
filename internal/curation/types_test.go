package curation

import (
	"testing"
	"time"
)

func validApproveRequest() *ApproveItemRequest {
	return &ApproveItemRequest{
		URL:     "https://example.com/article",
		Title:   "An Article",
		Status:  "CORPUS",
		Source:  "MANUAL",
		ActorID: "curator|jo",
	}
}

func TestApproveItemRequestValidate(t *testing.T) {
	if err := validApproveRequest().Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*ApproveItemRequest)
		field  string
	}{
		{"missing url", func(r *ApproveItemRequest) { r.URL = "" }, "url"},
		{"relative url", func(r *ApproveItemRequest) { r.URL = "/path/only" }, "url"},
		{"missing title", func(r *ApproveItemRequest) { r.Title = "   " }, "title"},
		{"bad status", func(r *ApproveItemRequest) { r.Status = "PENDING" }, "status"},
		{"bad source", func(r *ApproveItemRequest) { r.Source = "SCRAPER" }, "source"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validApproveRequest()
			tc.mutate(req)
			err := req.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Errorf("expected failure on field %q, got %v", tc.field, verr.Fields)
			}
		})
	}
}

func TestRejectItemRequestValidate(t *testing.T) {
	req := &RejectItemRequest{
		URL:     "https://example.com/bad",
		Reasons: []string{"PAYWALL", "OTHER"},
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	req.Reasons = nil
	if err := req.Validate(); err == nil {
		t.Error("expected error for empty reasons")
	}

	req.Reasons = []string{"PAYWALL", "BORING"}
	if err := req.Validate(); err == nil {
		t.Error("expected error for unknown reason code")
	}
}

func TestScheduleItemRequestValidate(t *testing.T) {
	req := &ScheduleItemRequest{
		ApprovedItemExternalID: "item-1",
		SurfaceGUID:            "NEW_TAB_EN_US",
		ScheduledDate:          "2026-05-17",
	}
	date, err := req.Validate()
	if err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	want := time.Date(2026, 5, 17, 0, 0, 0, 0, time.UTC)
	if !date.Equal(want) {
		t.Errorf("expected %v, got %v", want, date)
	}

	for _, bad := range []string{"", "17-05-2026", "2026-05-17T00:00:00Z"} {
		req.ScheduledDate = bad
		if _, err := req.Validate(); err == nil {
			t.Errorf("%q: expected date parse error", bad)
		}
	}

	req.ScheduledDate = "2026-05-17"
	req.ApprovedItemExternalID = ""
	if _, err := req.Validate(); err == nil {
		t.Error("expected error for missing approved item id")
	}
}

func TestRescheduleItemRequestValidate(t *testing.T) {
	req := &RescheduleItemRequest{ScheduledDate: "2026-06-01"}
	date, err := req.Validate()
	if err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if date.Location() != time.UTC {
		t.Errorf("expected UTC date, got %v", date.Location())
	}

	req.ScheduledDate = "June 1st"
	if _, err := req.Validate(); err == nil {
		t.Error("expected date parse error")
	}
}
