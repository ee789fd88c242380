package signaling

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshcall/internal/protocol"
)

// fakeRelay accepts one connection and hands it to the test.
type fakeRelay struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	query chan url.Values
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()

	r := &fakeRelay{
		conns: make(chan *websocket.Conn, 1),
		query: make(chan url.Values, 1),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.query <- req.URL.Query()
		r.conns <- conn
	})
	r.srv = httptest.NewServer(mux)
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-r.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("relay never saw a connection")
		return nil
	}
}

type recorder struct {
	msgs   chan protocol.Envelope
	closed chan CloseInfo
}

func newRecorder() *recorder {
	return &recorder{
		msgs:   make(chan protocol.Envelope, 16),
		closed: make(chan CloseInfo, 1),
	}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnMessage: func(e protocol.Envelope) { r.msgs <- e },
		OnClose:   func(c CloseInfo) { r.closed <- c },
	}
}

func (r *recorder) waitClose(t *testing.T) CloseInfo {
	t.Helper()
	select {
	case info := <-r.closed:
		return info
	case <-time.After(3 * time.Second):
		t.Fatal("OnClose was not called")
		return CloseInfo{}
	}
}

func open(t *testing.T, relay *fakeRelay, rec *recorder) (*Channel, *websocket.Conn) {
	t.Helper()
	ch, err := Open(context.Background(), Options{
		ServerURL: relay.srv.URL,
		RoomID:    "42",
		Username:  "alice",
	}, rec.handlers())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ch, relay.accept(t)
}

func TestOpenSendsJoin(t *testing.T) {
	relay := newFakeRelay(t)
	rec := newRecorder()
	ch, server := open(t, relay, rec)
	defer ch.Close(websocket.CloseNormalClosure, "done")

	q := <-relay.query
	if q.Get("roomid") != "42" || q.Get("username") != "alice" {
		t.Errorf("unexpected query: %v", q)
	}

	_, data, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("read join: %v", err)
	}
	if string(data) != `{"Data":{"join":true}}` {
		t.Errorf("first frame = %s", data)
	}
}

func TestMessagesDeliveredInOrder(t *testing.T) {
	relay := newFakeRelay(t)
	rec := newRecorder()
	ch, server := open(t, relay, rec)
	defer ch.Close(websocket.CloseNormalClosure, "done")

	frames := []string{
		`{"ClientID":"bob","Data":{"join":true}}`,
		`{"ClientID":"bob","Data":{}}`, // malformed: no payload
		`not json`,
		`{"ClientID":"bob","Data":{"hangup":true}}`,
	}
	for _, f := range frames {
		if err := server.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatal(err)
		}
	}

	want := []protocol.Kind{protocol.KindJoin, protocol.KindHangup}
	for _, k := range want {
		select {
		case env := <-rec.msgs:
			if env.Kind() != k || env.ClientID != "bob" {
				t.Errorf("got %s from %s, want %s from bob", env.Kind(), env.ClientID, k)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("missing %s envelope", k)
		}
	}

	select {
	case env := <-rec.msgs:
		t.Errorf("unexpected extra envelope: %+v", env)
	default:
	}
}

func TestSendOffer(t *testing.T) {
	relay := newFakeRelay(t)
	rec := newRecorder()
	ch, server := open(t, relay, rec)
	defer ch.Close(websocket.CloseNormalClosure, "done")

	server.ReadMessage() // join

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	if err := ch.Send(protocol.Offer("bob", offer)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, data, err := server.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	env, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.To != "bob" || env.Kind() != protocol.KindOffer || env.Data.Offer.SDP != "v=0" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestRelayNormalClosureIsClean(t *testing.T) {
	relay := newFakeRelay(t)
	rec := newRecorder()
	_, server := open(t, relay, rec)

	server.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))

	info := rec.waitClose(t)
	if !info.Clean || info.Code != websocket.CloseNormalClosure || info.Reason != "bye" {
		t.Errorf("unexpected close info: %+v", info)
	}
}

func TestRelayPolicyCloseIsNotClean(t *testing.T) {
	relay := newFakeRelay(t)
	rec := newRecorder()
	_, server := open(t, relay, rec)

	server.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "room is full"))

	info := rec.waitClose(t)
	if info.Clean || info.Code != websocket.ClosePolicyViolation {
		t.Errorf("unexpected close info: %+v", info)
	}
}

func TestAbruptDisconnectIsNotClean(t *testing.T) {
	relay := newFakeRelay(t)
	rec := newRecorder()
	_, server := open(t, relay, rec)

	server.Close()

	info := rec.waitClose(t)
	if info.Clean || info.Code != websocket.CloseAbnormalClosure {
		t.Errorf("unexpected close info: %+v", info)
	}
}

func TestLocalCloseIsCleanAndIdempotent(t *testing.T) {
	relay := newFakeRelay(t)
	rec := newRecorder()
	ch, server := open(t, relay, rec)

	// Echo the close frame like a real relay.
	go func() {
		for {
			if _, _, err := server.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := ch.Close(websocket.CloseNormalClosure, "ending call"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Close(websocket.CloseNormalClosure, "ending call"); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	info := rec.waitClose(t)
	if !info.Clean {
		t.Errorf("local close should be clean: %+v", info)
	}

	err := ch.Send(protocol.Hangup(""))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	var sigErr *Error
	if !errors.As(err, &sigErr) || sigErr.Op != "send" || sigErr.Room != "42" {
		t.Errorf("expected *Error{Op: send}, got %#v", err)
	}
}

func TestOpenUnreachable(t *testing.T) {
	relay := newFakeRelay(t)
	addr := relay.srv.URL
	relay.srv.Close()

	_, err := Open(context.Background(), Options{ServerURL: addr, RoomID: "1", Username: "a"}, Handlers{})
	var sigErr *Error
	if !errors.As(err, &sigErr) || sigErr.Op != "open" {
		t.Fatalf("expected *Error{Op: open}, got %v", err)
	}
}

func TestOpenRejectsBadScheme(t *testing.T) {
	_, err := Open(context.Background(), Options{ServerURL: "ftp://example.com", RoomID: "1"}, Handlers{})
	if err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}
