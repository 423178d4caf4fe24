// workers/fortune_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"fortune-entitlements-service/services"
	"fortune-entitlements-service/utils"
)

// FortuneCount is the fortune service's per-account sent counter.
type FortuneCount struct {
	AccountID string    `json:"account_id"`
	TotalSent int64     `json:"total_sent"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FortuneSyncWorker mirrors the fortune service's per-account counters into
// the Account projection so the badge evaluator can read them locally.
type FortuneSyncWorker struct {
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client

	store  services.Store
	badges *services.BadgeService
}

func NewFortuneSyncWorker(store services.Store, badges *services.BadgeService, baseURL, endpointPath, serviceToken string) *FortuneSyncWorker {
	return &FortuneSyncWorker{
		interval:     1 * time.Minute,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
		store:        store,
		badges:       badges,
	}
}

func (w *FortuneSyncWorker) Start(ctx context.Context) {
	log.Println("Starting Fortune Sync Worker (fortune-service -> accounts)...")
	go w.run(ctx)
}

func (w *FortuneSyncWorker) run(ctx context.Context) {
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Fortune sync stopped.")
			return
		case <-ticker.C:
			tickTime := time.Now().UTC()
			if err := w.syncBatch(ctx, lastSyncTime); err != nil {
				log.Printf("Fortune sync failed: %v", err)
				continue
			}
			lastSyncTime = tickTime
		}
	}
}

func (w *FortuneSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	counts, err := w.fetchCounts(ctx, since)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return nil
	}

	for _, fc := range counts {
		if err := w.store.SetTotalFortunesSent(ctx, fc.AccountID, fc.TotalSent); err != nil {
			if errors.Is(err, services.ErrRecordNotFound) {
				// Account hasn't touched the engine yet; skip until it does.
				continue
			}
			return err
		}
		if _, err := w.badges.EvaluateAll(ctx, fc.AccountID); err != nil {
			log.Printf("Badge evaluation after fortune sync failed for %s: %v", fc.AccountID, err)
		}
	}
	log.Printf("Synced %d fortune counter(s).", len(counts))
	return nil
}

func (w *FortuneSyncWorker) fetchCounts(ctx context.Context, since time.Time) ([]FortuneCount, error) {
	u, err := url.Parse(w.baseURL + w.endpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fortune service URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call fortune service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("fortune service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Counts []FortuneCount `json:"counts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode fortune service response: %w", err)
	}
	return response.Counts, nil
}
