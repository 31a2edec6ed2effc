package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"diabetes-ingest-go/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestEventsHandler_Stream(t *testing.T) {
	h := NewEventsHandler()
	r := gin.New()
	r.GET("/events", h.Stream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// 等待服务端完成订阅
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		n := len(h.clients)
		h.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	want := model.IngestionEvent{EventID: "e-1", ArchiveKey: "raw/20240301_100000_sample.csv", Records: 3, DatabaseRecords: 3}
	if err := h.Publish(context.Background(), want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got model.IngestionEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.EventID != want.EventID || got.ArchiveKey != want.ArchiveKey || got.Records != 3 {
		t.Errorf("event = %+v, want %+v", got, want)
	}
}

func TestEventsHandler_PublishWithoutClients(t *testing.T) {
	h := NewEventsHandler()
	if err := h.Publish(context.Background(), model.IngestionEvent{EventID: "e-1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if h.Name() != "websocket" {
		t.Errorf("Name() = %q", h.Name())
	}
}
