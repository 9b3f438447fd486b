package core

import (
	"encoding/json"
	"testing"

	"github.com/Arnovii/Webchat/internal/proto"
)

func TestListRequestReturnsSnapshot(t *testing.T) {
	reg, rt := newTestRouter()

	aliceConn := &fakeConn{}
	alice := reg.Register(aliceConn, Addr{Host: "10.0.0.1", Port: 1111}, "alice")
	bob := reg.Register(&fakeConn{}, Addr{Host: "10.0.0.2", Port: 2222}, "bob")

	if err := rt.HandleInbound(alice.ID, proto.Inbound{Type: proto.InboundTypeListRequest}); err != nil {
		t.Fatalf("list_request: %v", err)
	}

	list := lastList(t, aliceConn)
	if len(list.Clients) != 2 || !listHas(list, alice.ID) || !listHas(list, bob.ID) {
		t.Fatalf("unexpected list: %+v", list.Clients)
	}
}

func TestGroupMessageReachesEveryoneIncludingSender(t *testing.T) {
	reg, rt := newTestRouter()

	conns := []*fakeConn{{}, {}, {}}
	alice := reg.Register(conns[0], UnknownAddr, "alice")
	reg.Register(conns[1], UnknownAddr, "bob")
	reg.Register(conns[2], UnknownAddr, "carol")

	env := proto.Inbound{Type: proto.InboundTypeGroup, Text: "  hi  "}
	if err := rt.HandleInbound(alice.ID, env); err != nil {
		t.Fatalf("group: %v", err)
	}

	for i, conn := range conns {
		msgs := ofType(conn.envelopes(t), proto.OutboundTypeMessage)
		if len(msgs) != 1 {
			t.Fatalf("conn %d received %d messages, want 1", i, len(msgs))
		}
		msg := msgs[0]
		if msg.Text != "hi" || msg.From != alice.ID || msg.Name != "alice" || !msg.Group {
			t.Fatalf("conn %d got unexpected message: %+v", i, msg)
		}
	}
}

func TestGroupEmptyTextIsSilentlyIgnored(t *testing.T) {
	reg, rt := newTestRouter()

	aliceConn, bobConn := &fakeConn{}, &fakeConn{}
	alice := reg.Register(aliceConn, UnknownAddr, "alice")
	reg.Register(bobConn, UnknownAddr, "bob")

	env := proto.Inbound{Type: proto.InboundTypeGroup, Text: "   "}
	if err := rt.HandleInbound(alice.ID, env); err != nil {
		t.Fatalf("group: %v", err)
	}

	if got := len(aliceConn.envelopes(t)) + len(bobConn.envelopes(t)); got != 0 {
		t.Fatalf("empty group message produced %d outbound envelopes", got)
	}
}

func TestGroupFileIsForwardedVerbatim(t *testing.T) {
	reg, rt := newTestRouter()

	aliceConn, bobConn := &fakeConn{}, &fakeConn{}
	alice := reg.Register(aliceConn, UnknownAddr, "alice")
	reg.Register(bobConn, UnknownAddr, "bob")

	file := json.RawMessage(`{"name":"pic.png","size":42,"data":"aGk="}`)
	env := proto.Inbound{Type: proto.InboundTypeGroup, File: file}
	if err := rt.HandleInbound(alice.ID, env); err != nil {
		t.Fatalf("group file: %v", err)
	}

	msgs := ofType(bobConn.envelopes(t), proto.OutboundTypeMessage)
	if len(msgs) != 1 {
		t.Fatalf("bob received %d messages, want 1", len(msgs))
	}
	var got, want any
	if err := json.Unmarshal(msgs[0].File, &got); err != nil {
		t.Fatalf("unmarshal forwarded file: %v", err)
	}
	if err := json.Unmarshal(file, &want); err != nil {
		t.Fatalf("unmarshal original file: %v", err)
	}
	if gm, wm := got.(map[string]any), want.(map[string]any); gm["name"] != wm["name"] || gm["data"] != wm["data"] {
		t.Fatalf("file payload altered in transit: %v != %v", got, want)
	}
}

func TestGroupSendFailureRemovesRecipientAfterFanOut(t *testing.T) {
	reg, rt := newTestRouter()

	aliceConn, deadConn, carolConn := &fakeConn{}, &fakeConn{}, &fakeConn{}
	alice := reg.Register(aliceConn, UnknownAddr, "alice")
	dead := reg.Register(deadConn, UnknownAddr, "bob")
	carol := reg.Register(carolConn, UnknownAddr, "carol")

	deadConn.fail()

	env := proto.Inbound{Type: proto.InboundTypeGroup, Text: "hi"}
	if err := rt.HandleInbound(alice.ID, env); err != nil {
		t.Fatalf("group: %v", err)
	}

	// Healthy recipients still got the message despite the dead peer.
	if msgs := ofType(carolConn.envelopes(t), proto.OutboundTypeMessage); len(msgs) != 1 {
		t.Fatalf("carol received %d messages, want 1", len(msgs))
	}
	if _, ok := reg.Get(dead.ID); ok {
		t.Fatalf("failed recipient still registered")
	}
	if !deadConn.isClosed() {
		t.Fatalf("failed recipient channel not closed")
	}

	// The removal triggered a list rebroadcast without the dead client.
	list := lastList(t, aliceConn)
	if listHas(list, dead.ID) || !listHas(list, alice.ID) || !listHas(list, carol.ID) {
		t.Fatalf("rebroadcast list still names removed client: %+v", list.Clients)
	}
}

func TestPrivateDeliveredToTargetAndSender(t *testing.T) {
	reg, rt := newTestRouter()

	aliceConn, bobConn := &fakeConn{}, &fakeConn{}
	alice := reg.Register(aliceConn, UnknownAddr, "alice")
	bob := reg.Register(bobConn, UnknownAddr, "bob")

	env := proto.Inbound{Type: proto.InboundTypePrivate, To: bob.ID, Text: "hey"}
	if err := rt.HandleInbound(alice.ID, env); err != nil {
		t.Fatalf("private: %v", err)
	}

	for _, conn := range []*fakeConn{bobConn, aliceConn} {
		msgs := ofType(conn.envelopes(t), proto.OutboundTypeMessage)
		if len(msgs) != 1 {
			t.Fatalf("expected exactly one delivery, got %d", len(msgs))
		}
		msg := msgs[0]
		if msg.Text != "hey" || msg.From != alice.ID || msg.Group || msg.To != bob.ID {
			t.Fatalf("unexpected private payload: %+v", msg)
		}
	}
}

func TestPrivateValidationErrors(t *testing.T) {
	reg, rt := newTestRouter()

	aliceConn := &fakeConn{}
	alice := reg.Register(aliceConn, UnknownAddr, "alice")
	bob := reg.Register(&fakeConn{}, UnknownAddr, "bob")

	cases := []struct {
		name string
		env  proto.Inbound
		want string
	}{
		{"missing to", proto.Inbound{Type: proto.InboundTypePrivate, Text: "hi"}, proto.ErrTextPrivateNeedsTo},
		{"empty body", proto.Inbound{Type: proto.InboundTypePrivate, To: bob.ID, Text: "  "}, proto.ErrTextPrivateNeedsBody},
		{"null file", proto.Inbound{Type: proto.InboundTypePrivate, To: bob.ID, File: json.RawMessage(`null`)}, proto.ErrTextInvalidFile},
		{"unknown target", proto.Inbound{Type: proto.InboundTypePrivate, To: "nope", Text: "hi"}, proto.ErrTextTargetOffline},
	}

	for _, tc := range cases {
		before := len(ofType(aliceConn.envelopes(t), proto.OutboundTypeError))
		if err := rt.HandleInbound(alice.ID, tc.env); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		errs := ofType(aliceConn.envelopes(t), proto.OutboundTypeError)
		if len(errs) != before+1 {
			t.Fatalf("%s: got %d new error envelopes, want 1", tc.name, len(errs)-before)
		}
		if got := errs[len(errs)-1].Message; got != tc.want {
			t.Fatalf("%s: error %q, want %q", tc.name, got, tc.want)
		}
	}

	// None of the failures produced a delivery.
	if msgs := ofType(aliceConn.envelopes(t), proto.OutboundTypeMessage); len(msgs) != 0 {
		t.Fatalf("validation failures produced %d deliveries", len(msgs))
	}
	if reg.Len() != 2 {
		t.Fatalf("registry changed by validation failures: %d clients", reg.Len())
	}
}

func TestPrivateDeliveryFailureUnregistersTarget(t *testing.T) {
	reg, rt := newTestRouter()

	aliceConn, bobConn := &fakeConn{}, &fakeConn{}
	alice := reg.Register(aliceConn, UnknownAddr, "alice")
	bob := reg.Register(bobConn, UnknownAddr, "bob")

	bobConn.fail()

	env := proto.Inbound{Type: proto.InboundTypePrivate, To: bob.ID, Text: "hey"}
	if err := rt.HandleInbound(alice.ID, env); err != nil {
		t.Fatalf("private: %v", err)
	}

	errs := ofType(aliceConn.envelopes(t), proto.OutboundTypeError)
	if len(errs) != 1 || errs[0].Message != proto.ErrTextDeliverFailed {
		t.Fatalf("sender error envelopes: %+v", errs)
	}
	if _, ok := reg.Get(bob.ID); ok {
		t.Fatalf("dead target still registered")
	}
	list := lastList(t, aliceConn)
	if listHas(list, bob.ID) || !listHas(list, alice.ID) {
		t.Fatalf("list after removal: %+v", list.Clients)
	}
}

func TestUnknownTypeYieldsError(t *testing.T) {
	reg, rt := newTestRouter()

	aliceConn := &fakeConn{}
	alice := reg.Register(aliceConn, UnknownAddr, "alice")

	if err := rt.HandleInbound(alice.ID, proto.Inbound{Type: "dance"}); err != nil {
		t.Fatalf("unknown type: %v", err)
	}

	errs := ofType(aliceConn.envelopes(t), proto.OutboundTypeError)
	if len(errs) != 1 || errs[0].Message != proto.ErrTextUnknownType {
		t.Fatalf("unexpected error envelopes: %+v", errs)
	}
}

func TestBroadcastListConvergesWhenPeersDie(t *testing.T) {
	reg, rt := newTestRouter()

	healthy := &fakeConn{}
	dead1, dead2 := &fakeConn{}, &fakeConn{}
	alive := reg.Register(healthy, UnknownAddr, "alice")
	reg.Register(dead1, UnknownAddr, "bob")
	reg.Register(dead2, UnknownAddr, "carol")

	dead1.fail()
	dead2.fail()

	rt.BroadcastList()

	if reg.Len() != 1 {
		t.Fatalf("registry has %d clients after broadcast, want 1", reg.Len())
	}
	list := lastList(t, healthy)
	if len(list.Clients) != 1 || !listHas(list, alive.ID) {
		t.Fatalf("final list: %+v", list.Clients)
	}
}

func TestClientLeftRebroadcastsAndIsIdempotent(t *testing.T) {
	reg, rt := newTestRouter()

	aliceConn, bobConn := &fakeConn{}, &fakeConn{}
	alice := reg.Register(aliceConn, UnknownAddr, "alice")
	bob := reg.Register(bobConn, UnknownAddr, "bob")

	rt.ClientLeft(bob.ID)

	list := lastList(t, aliceConn)
	if len(list.Clients) != 1 || !listHas(list, alice.ID) {
		t.Fatalf("list after leave: %+v", list.Clients)
	}
	if !bobConn.isClosed() {
		t.Fatalf("departed client channel not closed")
	}

	sent := len(aliceConn.envelopes(t))
	rt.ClientLeft(bob.ID)
	if got := len(aliceConn.envelopes(t)); got != sent {
		t.Fatalf("second ClientLeft produced %d extra envelopes", got-sent)
	}
}
