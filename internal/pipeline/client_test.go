package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendMessagePostsChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Message != "hello" || req.SessionID != "s1" || req.Role != "Software Engineer" {
			t.Errorf("unexpected request %+v", req)
		}
		json.NewEncoder(w).Encode(chatResponse{Response: "Hi, tell me about yourself."})
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	got, err := c.SendMessage(context.Background(), "hello", "s1", "Software Engineer")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got != "Hi, tell me about yourself." {
		t.Fatalf("reply = %q", got)
	}
}

func TestGetFeedback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feedback" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(chatResponse{Feedback: "Solid answers overall."})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.GetFeedback(context.Background(), "s1")
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if got != "Solid answers overall." {
		t.Fatalf("feedback = %q", got)
	}
}

func TestServiceErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.SendMessage(context.Background(), "hello", "s1", "")
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", se.StatusCode)
	}
}

func TestServiceErrorOnBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.SendMessage(context.Background(), "hello", "s1", "")
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
}

func TestNetworkErrorOnUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := NewClient(srv.URL)
	_, err := c.SendMessage(context.Background(), "hello", "s1", "")
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}
