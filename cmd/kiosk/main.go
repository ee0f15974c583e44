package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sfxc-dev/attendance-api/pkg/config"
	"github.com/sfxc-dev/attendance-api/pkg/kiosk"
	"github.com/sfxc-dev/attendance-api/pkg/logger"
)

// The kiosk binary reads RFID values from stdin (keyboard-wedge readers
// type the UID followed by a newline) and submits them one at a time to
// the attendance API for a fixed time slot.
func main() {
	var (
		apiURL   = flag.String("api", "http://localhost:8080/api/v1", "attendance API base URL")
		slotID   = flag.String("slot", "", "time slot ID scans are recorded against")
		pollStat = flag.Duration("poll", 10*time.Second, "stats poll interval, 0 disables")
	)
	flag.Parse()

	if *slotID == "" {
		log.Fatal("missing required -slot flag")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := kiosk.NewClient(*apiURL, 10*time.Second)
	serializer := kiosk.NewSerializer(client, kiosk.SerializerConfig{
		RFIDLength: cfg.Kiosk.RFIDLength,
		Logger:     logr,
		OnResult:   printResult,
	})
	serializer.Start(ctx)
	defer serializer.Stop()

	if *pollStat > 0 {
		go pollStats(ctx, client, *slotID, *pollStat)
	}

	fmt.Printf("scanning for slot %s, waiting for reader input\n", *slotID)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if line := scanner.Text(); line != "" {
			serializer.Offer(line, *slotID)
		}
	}
	if err := scanner.Err(); err != nil {
		logr.Sugar().Errorw("reader input failed", "error", err)
	}
}

func printResult(result kiosk.Result) {
	switch result.Outcome {
	case kiosk.OutcomeAccepted:
		fmt.Printf("OK   %s\n", result.Scan.RFIDUID)
	case kiosk.OutcomeDuplicate:
		fmt.Printf("DUP  %s  %s\n", result.Scan.RFIDUID, result.Message)
	case kiosk.OutcomeRejected:
		fmt.Printf("NO   %s  %s\n", result.Scan.RFIDUID, result.Message)
	default:
		fmt.Printf("ERR  %s  %s\n", result.Scan.RFIDUID, result.Message)
	}
}

func pollStats(ctx context.Context, client *kiosk.Client, slotID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total, present, err := client.Stats(ctx, slotID)
			if err != nil {
				continue
			}
			fmt.Printf("-- %d/%d present\n", present, total)
		}
	}
}
