package hub

import "testing"

func newClient(id string, sub Subscription) *Client {
	return &Client{ID: id, Send: make(chan []byte, 4), Subscription: sub}
}

func TestBroadcastMatchesSubscription(t *testing.T) {
	h := New()

	matching := newClient("c1", Subscription{DoctorID: "d1", Date: "2026-03-02"})
	otherDoctor := newClient("c2", Subscription{DoctorID: "d2", Date: "2026-03-02"})
	otherDay := newClient("c3", Subscription{DoctorID: "d1", Date: "2026-03-03"})
	wildcard := newClient("c4", Subscription{})

	for _, c := range []*Client{matching, otherDoctor, otherDay, wildcard} {
		h.Register(c)
	}

	h.Broadcast([]byte("update"), Subscription{DoctorID: "d1", Date: "2026-03-02"})

	if len(matching.Send) != 1 {
		t.Fatalf("matching client got %d messages, want 1", len(matching.Send))
	}
	if len(wildcard.Send) != 1 {
		t.Fatalf("wildcard client got %d messages, want 1", len(wildcard.Send))
	}
	if len(otherDoctor.Send) != 0 || len(otherDay.Send) != 0 {
		t.Fatalf("non-matching clients received messages")
	}
}

func TestBroadcastDropsWhenClientIsSlow(t *testing.T) {
	h := New()

	slow := &Client{ID: "c1", Send: make(chan []byte)}
	h.Register(slow)

	// Unbuffered channel with no reader: the send must not block.
	h.Broadcast([]byte("update"), Subscription{DoctorID: "d1"})
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := New()

	client := newClient("c1", Subscription{})
	h.Register(client)
	h.Unregister(client)

	if _, open := <-client.Send; open {
		t.Fatalf("send channel still open after unregister")
	}

	h.Broadcast([]byte("update"), Subscription{DoctorID: "d1"})
}

func TestUpdateSubscriptionRetargetsClient(t *testing.T) {
	h := New()

	client := newClient("c1", Subscription{DoctorID: "d1", Date: "2026-03-02"})
	h.Register(client)

	h.UpdateSubscription(client, Subscription{DoctorID: "d2", Date: "2026-03-02"})

	h.Broadcast([]byte("old"), Subscription{DoctorID: "d1", Date: "2026-03-02"})
	if len(client.Send) != 0 {
		t.Fatalf("client still receives old subscription traffic")
	}

	h.Broadcast([]byte("new"), Subscription{DoctorID: "d2", Date: "2026-03-02"})
	if len(client.Send) != 1 {
		t.Fatalf("client missed new subscription traffic")
	}
}

func TestParseSubscribe(t *testing.T) {
	cases := []struct {
		name string
		data string
		ok   bool
		want SubscribeMessage
	}{
		{
			name: "subscribe",
			data: `{"action":"subscribe","doctor_id":"d1","date":"2026-03-02"}`,
			ok:   true,
			want: SubscribeMessage{Action: "subscribe", DoctorID: "d1", Date: "2026-03-02"},
		},
		{
			name: "unsubscribe",
			data: `{"action":"unsubscribe"}`,
			ok:   true,
			want: SubscribeMessage{Action: "unsubscribe"},
		},
		{name: "unknown action", data: `{"action":"ping"}`},
		{name: "not json", data: `subscribe d1`},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := ParseSubscribe([]byte(tt.data))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && msg != tt.want {
				t.Fatalf("msg = %+v, want %+v", msg, tt.want)
			}
		})
	}
}
