package capture

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-ecotrack/pkg/audioio"
)

func TestDeepgram_Unavailable(t *testing.T) {
	d := NewDeepgram(DeepgramConfig{}, nil)
	if d.Available() {
		t.Error("available without API key")
	}
	if _, err := d.Open(context.Background(), DefaultOptions(), Events{}); err != ErrNoAPIKey {
		t.Errorf("Open = %v, want ErrNoAPIKey", err)
	}
}

func TestDeepgram_ListenURL(t *testing.T) {
	d := NewDeepgram(DeepgramConfig{APIKey: "k", Endpointing: 300}, nil)
	u, err := d.listenURL(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"wss://api.deepgram.com/v1/listen?",
		"language=th-TH",
		"interim_results=true",
		"encoding=linear16",
		"sample_rate=16000",
		"model=nova-2",
		"endpointing=300",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("url %q missing %q", u, want)
		}
	}
}

func TestDeepgram_Session(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotAuth string
	var gotAudio int
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				mu.Lock()
				gotAudio += len(data)
				mu.Unlock()
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"สวั"}]}}`))
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Metadata"}`))
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"สวัสดี"}]}}`))
				continue
			}
			if strings.Contains(string(data), "CloseStream") {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	defer srv.Close()

	d := NewDeepgram(DeepgramConfig{APIKey: "secret", BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil)

	results := make(chan Result, 4)
	ended := make(chan struct{})
	sess, err := d.Open(context.Background(), DefaultOptions(), Events{
		OnResult: func(r Result) { results <- r },
		OnEnd:    func() { close(ended) },
		OnError:  func(err error) { t.Errorf("unexpected error: %v", err) },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := sess.SendAudio(audioio.AudioChunk{Samples: make([]int16, 160)}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	want := []Result{
		{Index: 0, Text: "สวั"},
		{Index: 0, Text: "สวัสดี", IsFinal: true},
	}
	for i, w := range want {
		select {
		case r := <-results:
			if r != w {
				t.Errorf("result %d = %+v, want %+v", i, r, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("result %d never arrived", i)
		}
	}

	if err := sess.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after Stop")
	}
	if err := sess.SendAudio(audioio.AudioChunk{Samples: []int16{1}}); err != ErrSessionClosed {
		t.Errorf("SendAudio after Stop = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "Token secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAudio != 320 {
		t.Errorf("server got %d audio bytes, want 320", gotAudio)
	}
}
