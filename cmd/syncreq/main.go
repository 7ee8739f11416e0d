// syncreq publishes an on-demand sync request for one owner to the
// broker, where a running syncd picks it up.
//
// Usage:
//
//	syncreq -owner u1 [-reason manual]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"spend/internal/amqp"
	"spend/internal/config"
)

func main() {
	_ = godotenv.Load()

	ownerID := flag.String("owner", "", "owner to sync (required)")
	reason := flag.String("reason", amqp.ReasonManual, "request reason")
	flag.Parse()

	if *ownerID == "" {
		fmt.Fprintln(os.Stderr, "error: -owner is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	if cfg.AMQPURL == "" {
		fmt.Fprintln(os.Stderr, "error: AMQP_URL is not configured")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: connect to broker: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.PublishSyncRequest(ctx, *ownerID, *reason); err != nil {
		fmt.Fprintf(os.Stderr, "error: publish sync request: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("sync request published for owner %s\n", *ownerID)
}
