package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
)

const testAdminToken = "admin-secret"

func TestAdminList(t *testing.T) {
	lastSent := time.Date(2025, 1, 13, 8, 30, 0, 0, time.UTC)
	service := &mockSubscriptionService{listSubs: []*model.Subscriber{
		{Email: "a@example.com", LastSent: &lastSent},
		{Email: "b@example.com"},
	}}
	h := NewAdminHandler(service, testAdminToken)

	req := httptest.NewRequest(http.MethodGet, "/admin/subscribers?token="+testAdminToken, nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		OK          bool              `json:"ok"`
		Count       int               `json:"count"`
		Subscribers []adminSubscriber `json:"subscribers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if !body.OK || body.Count != 2 {
		t.Errorf("ok=%v count=%d", body.OK, body.Count)
	}
	if body.Subscribers[0].LastSent != "2025-01-13 08:30" {
		t.Errorf("last_sent = %q", body.Subscribers[0].LastSent)
	}
	if body.Subscribers[1].LastSent != "" {
		t.Errorf("未配信の購読者にlast_sentが設定されている: %q", body.Subscribers[1].LastSent)
	}
}

func TestAdmin_Unauthorized(t *testing.T) {
	service := &mockSubscriptionService{}
	h := NewAdminHandler(service, testAdminToken)

	tests := []struct {
		name string
		url  string
	}{
		{"トークンなし", "/admin/subscribers"},
		{"不正トークン", "/admin/subscribers?token=wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()
			h.List(w, req)

			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403", w.Code)
			}

			var body map[string]any
			json.Unmarshal(w.Body.Bytes(), &body)
			if body["code"] != model.ErrCodeUnauthorized {
				t.Errorf("code = %v", body["code"])
			}
		})
	}
}

func TestAdminAdd(t *testing.T) {
	service := &mockSubscriptionService{subscribeAdded: true}
	h := NewAdminHandler(service, testAdminToken)

	req := httptest.NewRequest(http.MethodPost, "/admin/subscribers?token="+testAdminToken,
		strings.NewReader(`{"email":"new@example.com"}`))
	w := httptest.NewRecorder()
	h.Add(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["added"] != true {
		t.Errorf("added = %v", body["added"])
	}
	if len(service.subscribedEmails) != 1 {
		t.Errorf("登録回数 = %d", len(service.subscribedEmails))
	}
}

func TestAdminRemove(t *testing.T) {
	service := &mockSubscriptionService{removeRemoved: true}
	h := NewAdminHandler(service, testAdminToken)

	req := httptest.NewRequest(http.MethodDelete,
		"/admin/subscribers?token="+testAdminToken+"&email=old@example.com", nil)
	w := httptest.NewRecorder()
	h.Remove(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if service.removedEmail != "old@example.com" {
		t.Errorf("削除対象 = %q", service.removedEmail)
	}
}

func TestAdminRemove_NotFound(t *testing.T) {
	service := &mockSubscriptionService{removeRemoved: false}
	h := NewAdminHandler(service, testAdminToken)

	req := httptest.NewRequest(http.MethodDelete,
		"/admin/subscribers?token="+testAdminToken+"&email=ghost@example.com", nil)
	w := httptest.NewRecorder()
	h.Remove(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
