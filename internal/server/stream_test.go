package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradefleet/fleetd/internal/domain"
	"github.com/tradefleet/fleetd/internal/fleet"
)

func TestFleetStream(t *testing.T) {
	env := newTestEnv(t, "pro")
	env.seed(t, []domain.BotConfiguration{testConfig(1, "BTC/USDT")}, "")

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/fleet/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// first frame is the current snapshot
	var seed fleet.Snapshot
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&seed); err != nil {
		t.Fatalf("read seed snapshot: %v", err)
	}
	if len(seed.Records) != 1 || seed.Records[0].CanonicalID != "1" {
		t.Fatalf("unexpected seed snapshot: %+v", seed)
	}

	// a resolve pass is pushed to attached clients
	res := fleet.NewResolver(nil).ResolveRaw(
		[]domain.BotConfiguration{testConfig(1, "BTC/USDT"), testConfig(2, "ETH/USDT")}, nil)
	env.store.ApplyResolve(res, 2, time.Now())

	var update fleet.Snapshot
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if len(update.Records) != 2 || update.RefreshToken != 2 {
		t.Fatalf("unexpected update: %+v", update)
	}
}
