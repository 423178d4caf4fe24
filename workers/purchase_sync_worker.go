// workers/purchase_sync_worker.go
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
	"os"
	"time"

	"fortune-entitlements-service/models"
	"fortune-entitlements-service/services"
	"fortune-entitlements-service/utils"
)

// PurchaseConfirmation matches the payment service's JSON for a confirmed
// purchase event.
type PurchaseConfirmation struct {
	AccountID   string    `json:"account_id"`
	ProductID   string    `json:"product_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// PurchaseSyncClient pulls confirmed purchases from the payment service and
// folds them into the entitlement engine: first-purchase metric, trial
// conversion and badge evaluation.
type PurchaseSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	Store  services.Store
	Trials *services.TrialService
	Badges *services.BadgeService
}

func NewPurchaseSyncClient(store services.Store, trials *services.TrialService, badges *services.BadgeService) *PurchaseSyncClient {
	baseURL := os.Getenv("PAYMENT_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("PAYMENT_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("ENTITLEMENT_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("ENTITLEMENT_SERVICE_TOKEN environment variable is required for purchase sync")
	}

	return &PurchaseSyncClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: utils.HTTPClient,
		Store:      store,
		Trials:     trials,
		Badges:     badges,
	}
}

// GetConfirmedPurchases fetches purchases confirmed since the given cursor.
func (c *PurchaseSyncClient) GetConfirmedPurchases(ctx context.Context, since time.Time) ([]PurchaseConfirmation, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/purchases", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call payment service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("payment service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Purchases []PurchaseConfirmation `json:"purchases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode payment service response: %w", err)
	}
	return response.Purchases, nil
}

// apply folds one confirmation into engine state. Idempotent end to end:
// the first-purchase date only sets once, trial conversion is a no-op on
// terminal records and badge grants are uniqueness-guarded.
func (c *PurchaseSyncClient) apply(ctx context.Context, p PurchaseConfirmation) error {
	if err := c.Store.SetFirstPurchaseDate(ctx, p.AccountID, p.ConfirmedAt); err != nil {
		if errors.Is(err, services.ErrRecordNotFound) {
			// Account has never touched the engine; nothing to credit yet.
			return nil
		}
		return err
	}

	if _, err := c.Trials.EndTrial(ctx, p.AccountID, models.TrialStatusConverted); err != nil &&
		!errors.Is(err, services.ErrRecordNotFound) {
		return err
	}

	if _, err := c.Badges.EvaluateAll(ctx, p.AccountID); err != nil {
		return err
	}
	return nil
}

// PollPurchases runs the polling loop until ctx is cancelled. The cursor
// only advances after a fully processed batch, so a failed tick retries the
// same window; idempotent application makes the replay harmless.
func PollPurchases(ctx context.Context, client *PurchaseSyncClient, pollInterval time.Duration) {
	log.Println("Starting purchase polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Purchase polling stopped.")
			return
		case <-ticker.C:
			tickTime := time.Now().UTC()

			purchases, err := client.GetConfirmedPurchases(ctx, lastSyncTime)
			if err != nil {
				log.Printf("Error polling purchases: %v", err)
				continue
			}
			if len(purchases) == 0 {
				continue
			}

			failed := false
			for _, p := range purchases {
				if err := client.apply(ctx, p); err != nil {
					log.Printf("Failed to apply purchase for %s: %v", p.AccountID, err)
					failed = true
				}
			}
			if failed {
				// Retry the same window next tick.
				continue
			}

			lastSyncTime = tickTime
			log.Printf("Processed %d purchase confirmation(s).", len(purchases))
		}
	}
}
