// fleetctl is a thin operator CLI over the fleetd control-plane API:
// list the fleet, run bulk lifecycle operations, trigger a refresh.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: fleetctl [-server URL] <command> [ids...]

commands:
  list              print the current fleet snapshot
  refresh           force a refresh and print the snapshot
  start <ids...>    bulk-start the given canonical ids
  stop <ids...>     bulk-stop the given canonical ids
  delete <ids...>   bulk-delete the given canonical ids
  ops               list recent bulk operations
`)
	os.Exit(2)
}

func main() {
	_ = godotenv.Load()

	serverURL := flag.String("server", envOr("FLEETD_SERVER", "http://127.0.0.1:8080"), "fleetd base URL")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(*serverURL, "/")).
		SetTimeout(60 * time.Second)

	var (
		resp *resty.Response
		err  error
	)
	switch args[0] {
	case "list":
		resp, err = client.R().Get("/api/fleet/")
	case "refresh":
		resp, err = client.R().Post("/api/fleet/refresh")
	case "start", "stop", "delete":
		if len(args) < 2 {
			usage()
		}
		body := map[string]any{"ids": args[1:]}
		resp, err = client.R().SetBody(body).Post("/api/fleet/" + args[0])
	case "ops":
		resp, err = client.R().Get("/api/ops/")
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	if resp.IsError() {
		fmt.Fprintf(os.Stderr, "server error: status=%d body=%s\n", resp.StatusCode(), resp.String())
		os.Exit(1)
	}

	var pretty json.RawMessage = resp.Body()
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(resp.String())
		return
	}
	fmt.Println(string(out))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
