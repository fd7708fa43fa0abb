package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"cardroom/apps/server/internal/gateway"
	"cardroom/apps/server/internal/identity"
	"cardroom/apps/server/internal/lobby"
	"cardroom/apps/server/internal/wallet"
)

func main() {
	identityService, identityMode, err := identity.NewServiceFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to init identity service: %v", err)
	}
	defer identityService.Close()

	walletAdapter, walletMode, err := wallet.NewServiceFromEnv()
	if err != nil {
		log.Fatalf("[Server] Failed to init wallet adapter: %v", err)
	}
	defer walletAdapter.Close()

	lby := lobby.New(walletAdapter, nil, nil)
	gw := gateway.New(lby, identityService)
	lby.SetNotifiers(gw.TableChanged, gw.ListChanged)
	lby.Bootstrap()
	defer lby.Close()

	authHTTP := identity.NewHTTPHandler(identityService)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	authHTTP.RegisterRoutes(mux)

	addr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("[Server] Identity mode: %s", identityMode)
	log.Printf("[Server] Wallet mode: %s", walletMode)
	log.Printf("[Server] Starting WebSocket server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("[Server] Failed to start: %v", err)
	}
}
