package hub_test

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/registry"
	"github.com/shubham-shewale/market-pulse/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/market-pulse/pkg/models"
	"github.com/shubham-shewale/market-pulse/pkg/symbols"
)

func setup() (*hub.Hub, *registry.Registry) {
	reg := registry.New(symbols.NewResolver("NSE"))
	return hub.NewHub(reg, nil, zap.NewNop()), reg
}

func connect(h *hub.Hub, id string) *testutils.MockClient {
	c := testutils.NewMockClient(id)
	h.Register(c)
	return c
}

func sub(aliases ...string) protocol.Command {
	return protocol.Command{Action: protocol.ActionSubscribe, Aliases: aliases}
}

func unsub(aliases ...string) protocol.Command {
	return protocol.Command{Action: protocol.ActionUnsubscribe, Aliases: aliases}
}

func stockEvent(group string) models.Event {
	payload, _ := json.Marshal(models.UpdateMessage{Symbol: group, Price: 100})
	return models.Event{Name: models.EventStockUpdate, Group: group, Payload: payload}
}

func TestHub_Subscribe_AddsToRegistry(t *testing.T) {
	h, reg := setup()
	client := connect(h, "c1")

	h.HandleCommand(client, sub("INFY"))

	if reg.Count("NSE:INFY") != 1 {
		t.Errorf("Expected registry count 1 for NSE:INFY")
	}
	if client.Count() != 0 {
		t.Errorf("Subscribe must not send any ack, got %v", client.RawBytes)
	}
}

func TestHub_Subscribe_Idempotency(t *testing.T) {
	h, reg := setup()
	client := connect(h, "c1")

	h.HandleCommand(client, sub("INFY"))
	h.HandleCommand(client, sub("INFY"))

	if reg.Count("NSE:INFY") != 1 {
		t.Errorf("Registry should only count one subscription per connection and alias")
	}
}

func TestHub_AliasGroupsNotMerged(t *testing.T) {
	h, reg := setup()
	a := connect(h, "a")
	b := connect(h, "b")

	h.HandleCommand(a, sub("BANKNIFTY"))
	h.HandleCommand(b, sub("NIFTY BANK"))

	if reg.Count("NSE:NIFTY BANK") != 2 {
		t.Fatalf("expected both aliases to count against one canonical symbol")
	}
	if got := reg.ActiveCanonicalSymbols(); len(got) != 1 {
		t.Fatalf("expected exactly one canonical entry, got %v", got)
	}

	h.Dispatch(stockEvent("BANKNIFTY"))

	if len(a.Updates(models.EventStockUpdate)) != 1 {
		t.Errorf("BANKNIFTY group member should receive the update")
	}
	if b.Count() != 0 {
		t.Errorf("NIFTY BANK group must not receive BANKNIFTY updates")
	}
}

func TestHub_Unsubscribe_Logic(t *testing.T) {
	h, reg := setup()
	client := connect(h, "c1")

	h.HandleCommand(client, sub("INFY", "TCS"))
	h.HandleCommand(client, unsub("INFY"))

	if reg.Count("NSE:INFY") != 0 {
		t.Errorf("Registry should drop NSE:INFY")
	}
	if reg.Count("NSE:TCS") != 1 {
		t.Errorf("Registry should still hold NSE:TCS")
	}

	h.Dispatch(stockEvent("INFY"))
	if client.Count() != 0 {
		t.Errorf("Unsubscribed client received update")
	}
}

func TestHub_Unsubscribe_NotSubscribed(t *testing.T) {
	h, reg := setup()
	other := connect(h, "other")
	client := connect(h, "c1")

	h.HandleCommand(other, sub("INFY"))
	h.HandleCommand(client, unsub("INFY"))

	if reg.Count("NSE:INFY") != 1 {
		t.Errorf("Unsubscribing a symbol the connection never held must not decrement")
	}
	if client.Count() != 0 {
		t.Errorf("No error frame should be sent")
	}
}

func TestHub_Disconnect_Cleanup(t *testing.T) {
	h, reg := setup()
	c1 := connect(h, "c1")
	c2 := connect(h, "c2")

	h.HandleCommand(c1, sub("INFY", "BANKNIFTY"))
	h.HandleCommand(c2, sub("INFY"))

	h.Unregister(c1)

	if !c1.Closed {
		t.Error("Client should be closed on unregister")
	}
	if reg.Count("NSE:INFY") != 1 {
		t.Errorf("Expected NSE:INFY count 1 after disconnect, got %d", reg.Count("NSE:INFY"))
	}
	if reg.Count("NSE:NIFTY BANK") != 0 {
		t.Errorf("Expected NSE:NIFTY BANK evicted after disconnect")
	}

	h.Dispatch(stockEvent("INFY"))
	h.Dispatch(stockEvent("BANKNIFTY"))

	if c1.Count() != 0 {
		t.Errorf("Disconnected client received %d frames", c1.Count())
	}
	if c2.Count() != 1 {
		t.Errorf("Remaining client should receive INFY, got %d frames", c2.Count())
	}

	// A second unregister must not decrement again.
	h.Unregister(c1)
	if reg.Count("NSE:INFY") != 1 {
		t.Errorf("Double unregister decremented the registry")
	}
}

func TestHub_DispatchWithoutGroupReachesEveryone(t *testing.T) {
	h, _ := setup()
	a := connect(h, "a")
	b := connect(h, "b")
	h.HandleCommand(a, sub("INFY"))

	payload, _ := json.Marshal(models.UpdateMessage{Symbol: "NIFTY 50", Price: 22000})
	h.Dispatch(models.Event{Name: models.EventIndexUpdate, Payload: payload})

	for _, c := range []*testutils.MockClient{a, b} {
		updates := c.Updates(models.EventIndexUpdate)
		if len(updates) != 1 || updates[0].Symbol != "NIFTY 50" {
			t.Errorf("client %s: expected one index-update, got %v", c.ID(), c.RawBytes)
		}
	}
}

func TestHub_SnapshotRelabelledOnSubscribe(t *testing.T) {
	reg := registry.New(symbols.NewResolver("NSE"))
	store := testutils.NewMockSnapshotStore()
	store.Data["NSE:NIFTY BANK"] = models.UpdateMessage{Symbol: "NSE:NIFTY BANK", Price: 48000}

	h := hub.NewHub(reg, store, zap.NewNop())
	client := connect(h, "c1")

	h.HandleCommand(client, sub("BANKNIFTY", "INFY"))

	testutils.Eventually(t, time.Second, func() bool { return client.Count() > 0 }, "snapshot delivered")

	updates := client.Updates(models.EventStockUpdate)
	if len(updates) != 1 {
		t.Fatalf("expected a single snapshot, got %v", client.RawBytes)
	}
	if updates[0].Symbol != "BANKNIFTY" || updates[0].Price != 48000 {
		t.Errorf("snapshot not relabelled with alias: %+v", updates[0])
	}
}

func TestHub_Stats(t *testing.T) {
	h, _ := setup()
	a := connect(h, "a")
	connect(h, "b")
	h.HandleCommand(a, sub("INFY", "TCS"))

	s := h.Stats()
	testutils.AssertTrue(t, s.Connections == 2, "two connections")
	testutils.AssertTrue(t, s.Groups == 2, "two groups")
	testutils.AssertTrue(t, len(h.Groups()) == 2 && h.Groups()[0] == "INFY", "sorted groups")
}

func TestHub_SnapshotSkippedAfterUnsubscribe(t *testing.T) {
	reg := registry.New(symbols.NewResolver("NSE"))
	store := testutils.NewMockSnapshotStore()
	store.Data["NSE:INFY"] = models.UpdateMessage{Symbol: "NSE:INFY", Price: 1500}
	store.Gate = make(chan struct{})

	h := hub.NewHub(reg, store, zap.NewNop())
	client := connect(h, "c1")

	h.HandleCommand(client, sub("INFY"))
	h.HandleCommand(client, unsub("INFY"))
	close(store.Gate)

	testutils.Eventually(t, time.Second, func() bool { return store.ReadCount() == 1 }, "snapshot read")
	time.Sleep(50 * time.Millisecond)

	if client.Count() != 0 {
		t.Errorf("snapshot delivered after unsubscribe: %v", client.RawBytes)
	}
}

func TestHub_SnapshotStillSentToRemainingGroups(t *testing.T) {
	reg := registry.New(symbols.NewResolver("NSE"))
	store := testutils.NewMockSnapshotStore()
	store.Data["NSE:INFY"] = models.UpdateMessage{Symbol: "NSE:INFY", Price: 1500}
	store.Data["NSE:TCS"] = models.UpdateMessage{Symbol: "NSE:TCS", Price: 3900}
	store.Gate = make(chan struct{})

	h := hub.NewHub(reg, store, zap.NewNop())
	client := connect(h, "c1")

	h.HandleCommand(client, sub("INFY", "TCS"))
	h.HandleCommand(client, unsub("INFY"))
	close(store.Gate)

	testutils.Eventually(t, time.Second, func() bool { return client.Count() > 0 }, "TCS snapshot delivered")
	time.Sleep(50 * time.Millisecond)

	updates := client.Updates(models.EventStockUpdate)
	if len(updates) != 1 || updates[0].Symbol != "TCS" {
		t.Errorf("expected only the TCS snapshot, got %v", client.RawBytes)
	}
}

func TestHub_MaxSubscriptionsPerConnection(t *testing.T) {
	h, reg := setup()
	h.WithMaxSubscriptions(2)
	client := connect(h, "c1")

	h.HandleCommand(client, sub("INFY", "TCS", "WIPRO", "HDFCBANK"))
	h.HandleCommand(client, sub("SBIN"))

	if got := reg.ActiveCanonicalSymbols(); len(got) != 2 {
		t.Fatalf("expected the cap to hold the fetch set at 2, got %v", got)
	}
	if reg.Count("NSE:INFY") != 1 || reg.Count("NSE:TCS") != 1 {
		t.Errorf("the first aliases in command order should be kept")
	}

	// Freeing a slot lets the next subscribe in.
	h.HandleCommand(client, unsub("INFY"))
	h.HandleCommand(client, sub("SBIN"))
	if reg.Count("NSE:SBIN") != 1 {
		t.Errorf("subscribe after unsubscribe should fit under the cap")
	}
}

func TestHub_MemberJoiningBeforeDispatchReceivesUpdate(t *testing.T) {
	h, _ := setup()
	early := connect(h, "early")
	h.HandleCommand(early, sub("INFY"))

	// The poller has already chosen INFY for this cycle; a second viewer
	// joins the group before the event is dispatched.
	late := connect(h, "late")
	h.HandleCommand(late, sub("INFY"))
	h.Dispatch(stockEvent("INFY"))

	if len(late.Updates(models.EventStockUpdate)) != 1 {
		t.Errorf("group membership is resolved when the event is dispatched")
	}
	if len(early.Updates(models.EventStockUpdate)) != 1 {
		t.Errorf("existing member should receive the update")
	}
}
