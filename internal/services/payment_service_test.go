package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/color-report-engine/internal/payment"
	"github.com/tbourn/color-report-engine/internal/repo"
)

func checkoutBody(eventID, email, userID string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":"checkout.session.completed","data":{"object":{
		"amount_total":%d,"currency":"usd","customer_email":%q,"payment_status":"paid",
		"metadata":{"user_id":%q}}}}`, eventID, amount, email, userID))
}

func (f *fixture) deliver(t *testing.T, body []byte) (*WebhookResult, error) {
	t.Helper()
	return f.payments.HandleWebhook(context.Background(), body, payment.Sign(f.payments.Secret, body, time.Now()))
}

func TestPayment_CreditsKnownUserOnce(t *testing.T) {
	f := newFixture(t, 1)
	f.balance(t, "buyer@example.com")

	body := checkoutBody("evt_1", "Buyer@Example.com", "", 999)
	res, err := f.deliver(t, body)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if res.Outcome != WebhookCredited || res.Credits != 3 || res.UserID != "buyer@example.com" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = f.deliver(t, body)
	if err != nil || res.Outcome != WebhookDuplicate {
		t.Fatalf("redelivery: %+v %v", res, err)
	}
	if got := f.balance(t, "buyer@example.com"); got != 4 {
		t.Fatalf("balance = %d, want 4", got)
	}
	f.assertAudit(t, "buyer@example.com")
}

func TestPayment_ConcurrentRedeliveries(t *testing.T) {
	f := newFixture(t, 0)
	f.balance(t, "buyer@example.com")
	body := checkoutBody("evt_race", "", "buyer@example.com", 499)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.deliver(t, body)
			if err != nil {
				t.Errorf("webhook: %v", err)
				return
			}
			if res.Outcome == WebhookCredited {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if credited != 1 {
		t.Fatalf("credited %d times, want 1", credited)
	}
	if got := f.balance(t, "buyer@example.com"); got != 1 {
		t.Fatalf("balance = %d, want 1", got)
	}
}

func TestPayment_ResolvesSessionOwnerByEmail(t *testing.T) {
	f := newFixture(t, 0)
	f.draft(t, "owner@example.com", nil)

	res, err := f.deliver(t, checkoutBody("evt_owner", "OWNER@example.com", "", 499))
	if err != nil || res.Outcome != WebhookCredited || res.UserID != "owner@example.com" {
		t.Fatalf("unexpected: %+v %v", res, err)
	}
}

func TestPayment_UnresolvedIsRecordedAndAcknowledged(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.balance(t, "known@example.com")

	res, err := f.deliver(t, checkoutBody("evt_ghost", "ghost@example.com", "", 499))
	if err != nil || res.Outcome != WebhookUnresolved {
		t.Fatalf("unknown user: %+v %v", res, err)
	}
	res, err = f.deliver(t, checkoutBody("evt_odd", "known@example.com", "", 123))
	if err != nil || res.Outcome != WebhookUnresolved {
		t.Fatalf("unknown amount: %+v %v", res, err)
	}
	// A redelivery of an unresolved event keeps a single row.
	if _, err := f.deliver(t, checkoutBody("evt_ghost", "ghost@example.com", "", 499)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	rows, err := repo.ListUnresolvedPayments(ctx, f.db, 10)
	if err != nil || len(rows) != 2 {
		t.Fatalf("unresolved rows = %d (%v), want 2", len(rows), err)
	}
	reasons := map[string]string{}
	for _, r := range rows {
		reasons[r.EventID] = r.Reason
	}
	if reasons["evt_ghost"] != reasonUnknownUser || reasons["evt_odd"] != reasonUnknownAmount {
		t.Fatalf("unexpected reasons: %v", reasons)
	}
	if got := f.balance(t, "known@example.com"); got != 1 {
		t.Fatalf("balance = %d, want 1", got)
	}
}

func TestPayment_SignatureAndConfiguration(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	body := checkoutBody("evt_sig", "a@example.com", "", 499)

	if _, err := f.payments.HandleWebhook(ctx, body, "t=1,v1=00"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature, got %v", err)
	}
	if _, err := f.payments.HandleWebhook(ctx, body, payment.Sign("wrong", body, time.Now())); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("want ErrInvalidSignature for wrong secret, got %v", err)
	}

	f.payments.Secret = ""
	f.payments.Production = true
	if _, err := f.payments.HandleWebhook(ctx, body, ""); !errors.Is(err, ErrWebhookMisconfigured) {
		t.Fatalf("production without secret must fail closed, got %v", err)
	}

	f.payments.Production = false
	f.balance(t, "a@example.com")
	res, err := f.payments.HandleWebhook(ctx, body, "")
	if err != nil || res.Outcome != WebhookCredited {
		t.Fatalf("development without secret should accept: %+v %v", res, err)
	}
}

func TestPayment_IgnoresOtherEventsAndMalformedBodies(t *testing.T) {
	f := newFixture(t, 1)

	body := []byte(`{"id":"evt_refund","type":"charge.refunded","data":{"object":{}}}`)
	res, err := f.deliver(t, body)
	if err != nil || res.Outcome != WebhookIgnored {
		t.Fatalf("other event: %+v %v", res, err)
	}

	unpaid := []byte(`{"id":"evt_unpaid","type":"checkout.session.completed","data":{"object":{"amount_total":499,"payment_status":"unpaid","customer_email":"a@example.com"}}}`)
	res, err = f.deliver(t, unpaid)
	if err != nil || res.Outcome != WebhookIgnored {
		t.Fatalf("unpaid checkout: %+v %v", res, err)
	}

	if _, err := f.deliver(t, []byte(`{"type":"x"}`)); !errors.Is(err, ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}
