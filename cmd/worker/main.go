package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"attendify/internal/attendance"
	"attendify/internal/config"
	"attendify/internal/queue"
	"attendify/internal/store"
)

// Worker drains accepted check-in events off the queue and persists them.
// The API stays responsive during check-in bursts; the unique constraint in
// Postgres makes replayed events harmless.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	repo := attendance.NewRepository(db.Client)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema setup failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		log.Println("WARNING: memory queue backend shares no state with the API; use redis in deployment")
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendify:events")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for attendance events...")
	for msg := range messages {
		if msg.Type != queue.MsgAttendanceEvent {
			continue
		}

		evt, err := attendance.DecodeEvent(msg)
		if err != nil {
			log.Printf("discarding malformed event: %v", err)
			continue
		}

		if err := repo.InsertEvent(ctx, evt); err != nil {
			log.Printf("persist event %s (session %s, student %s) failed: %v",
				evt.ID, evt.SessionID, evt.StudentID, err)
			continue
		}
		log.Printf("recorded %s check-in: session %s student %s", evt.Method, evt.SessionID, evt.StudentID)
	}

	log.Println("worker stopped")
}
