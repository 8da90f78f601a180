package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"presence/internal/audit"
	"presence/internal/config"
	"presence/internal/queue"
	"presence/internal/store"
)

// Worker drains the event queue into the audit_events table so recording
// never sits on the check-in request path.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "presence:events")
	}

	audits := audit.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for events...")
	for msg := range messages {
		evt := audit.Event{
			Kind:       msg.Kind,
			Actor:      msg.Actor,
			Detail:     msg.Detail,
			OccurredAt: msg.At,
		}
		if msg.SessionID > 0 {
			id := msg.SessionID
			evt.SessionID = &id
		}
		if err := audits.Insert(ctx, evt); err != nil {
			log.Printf("audit insert failed (%s): %v", msg.Kind, err)
			continue
		}
		log.Printf("recorded %s for session %d", msg.Kind, msg.SessionID)
	}

	log.Println("worker stopped")
}
