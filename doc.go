// Package tally provides a ledger and subscription-billing engine for Go
// applications.
//
// Tally is designed as a library, not a service. It tracks per-user monetary
// operations, computes balances and bills recurring subscriptions:
//
//   - Credits carry a proof of deposit and wait for an admin review
//   - Debits count against the balance immediately
//   - Subscriptions bill one debit per calendar month of their plan
//   - Canceled subscriptions receive a prorated refund credit
//   - A background worker settles every active subscription periodically
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/tally"
//	    "github.com/xraph/tally/store/postgres"
//	)
//
//	store, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := tally.New(store, tally.WithCurrency("brl"))
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Operations
//
// A user submits a credit with its receipt; an admin approves it later:
//
//	op, err := engine.Operations().Credit(ctx, tally.CreditInput{
//	    Reference: "DEP-2026-001",
//	    Amount:    tally.BRL(10000),
//	    UserID:    userID,
//	    IssuerID:  userID,
//	    Proof:     tally.Proof{Name: "receipt.png", Data: png},
//	})
//
//	_, err = engine.Operations().Review(ctx, op.ID, tally.ReviewInput{
//	    Status:     tally.StatusApproved,
//	    ReviewerID: adminID,
//	})
//
//	summary, err := engine.Operations().Summary(ctx, userID)
//
// A review is final. Reviewing the same credit again fails with
// ErrCreditAlreadyReviewed.
//
// # Subscriptions
//
//	p, err := engine.Plans().Create(ctx, plan.Input{Name: "Basic", Price: tally.BRL(10000)})
//	sub, err := engine.Subscriptions().Enroll(ctx, userID, p.ID, tally.EnrollOptions{})
//
// Settlement is idempotent. Every billed period has the reference
// DEB<period start in unix ms>, and stores reject a second operation with
// the same (user, reference) pair, so settling twice never bills twice.
//
// All monetary calculations use integer arithmetic on the smallest currency
// unit. Proration rounds half away from zero to a whole unit.
//
// # TypeID
//
// All entities use TypeID identifiers:
//
//	plan_01h2xcejqtf2nbrexx3vqjhp41  // Plan ID
//	sub_01h2xcejqtf2nbrexx3vqjhp41   // Subscription ID
//	op_01h455vb4pex5vsknk084sn02q    // Operation ID
package tally
