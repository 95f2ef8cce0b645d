package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-textile/internal/authz"
	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
	"github.com/odyssey-erp/odyssey-textile/internal/testing/memstore"
	"github.com/odyssey-erp/odyssey-textile/internal/workflow"
	"github.com/odyssey-erp/odyssey-textile/jobs"
)

var today = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

var (
	requester  = authz.Actor{EmployeeID: 11, Name: "Dewi", Role: authz.RoleStaff, Department: "Produksi", Position: "Operator"}
	manager    = authz.Actor{EmployeeID: 12, Name: "Sari", Role: authz.RoleManager, Department: "Produksi"}
	accountant = authz.Actor{EmployeeID: 13, Name: "Rina", Role: authz.RoleAccountant, Department: "Finance", Position: "Accountant"}
	purchasing = authz.Actor{EmployeeID: 14, Name: "Budi", Role: authz.RolePurchasing, Department: "Purchasing"}
	director   = authz.Actor{EmployeeID: 15, Name: "Hadi", Role: authz.RoleDirector, Department: "Board"}
	warehouse  = authz.Actor{EmployeeID: 16, Name: "Joko", Role: authz.RoleWarehouse, Department: "Gudang"}
)

const (
	yarn      int64 = 10
	dye       int64 = 20
	mainStore int64 = 1
	supplierA int64 = 501
	supplierB int64 = 502
)

type memUnitOfWork struct {
	db *memstore.DB
}

func (u memUnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context, st workflow.Stores) error) error {
	return u.db.WithTx(ctx, func(tx *memstore.Tx) error { return fn(ctx, tx) })
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []jobs.DocumentCommittedPayload
	err    error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, p jobs.DocumentCommittedPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, p)
	return d.err
}

func (d *recordingDispatcher) count(module, event string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.events {
		if e.Module == module && e.Event == event {
			n++
		}
	}
	return n
}

type outcomeCounter struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *outcomeCounter) ObserveTransition(module, event, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[module+"/"+event+"/"+outcome]++
}

func (o *outcomeCounter) get(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcomes[key]
}

type fixture struct {
	db         *memstore.DB
	svc        *workflow.Service
	dispatcher *recordingDispatcher
	observer   *outcomeCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memstore.New()
	db.AddAccount(1, "1300", "Persediaan Bahan Baku", ledger.BucketInventory)
	db.AddAccount(2, "6100", "Beban Operasional", ledger.BucketExpense)
	db.AddAccount(3, "2100", "Hutang Usaha", ledger.BucketAccountsPayable)
	db.AddAccount(4, "1200", "Piutang Usaha", ledger.BucketAccountsReceivable)
	db.AddAccount(5, "4100", "Penjualan", ledger.BucketRevenue)
	db.AddAccount(6, "1100", "Kas dan Bank", ledger.BucketCash)
	db.AddPeriod("2026-03", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), ledger.PeriodOpen)

	now := func() time.Time { return today }
	stock := inventory.NewEngine(nil)
	stock.WithNow(now)
	engine := ledger.NewEngine(nil, nil)
	engine.WithNow(now)
	dispatcher := &recordingDispatcher{}
	observer := &outcomeCounter{}
	svc := workflow.NewService(workflow.Deps{
		UnitOfWork: memUnitOfWork{db: db},
		Authz:      authz.NewResolver(nil),
		Stock:      stock,
		Ledger:     engine,
		Dispatcher: dispatcher,
		Observer:   observer,
		Now:        now,
	})
	return &fixture{db: db, svc: svc, dispatcher: dispatcher, observer: observer}
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func key(product int64) inventory.Key {
	return inventory.Key{ProductID: product, WarehouseID: mainStore}
}

// approvedPR files, submits and approves a request for the given items.
func (f *fixture) approvedPR(t *testing.T, items ...workflow.PRItemInput) procurement.PurchaseRequest {
	t.Helper()
	ctx := context.Background()
	pr, err := f.svc.CreatePurchaseRequest(ctx, requester, workflow.CreatePRInput{Items: items})
	require.NoError(t, err)
	_, err = f.svc.SubmitPurchaseRequest(ctx, requester, pr.ID)
	require.NoError(t, err)
	decisions := make([]workflow.ItemDecision, 0, len(pr.Items))
	for _, it := range pr.Items {
		decisions = append(decisions, workflow.ItemDecision{ItemID: it.ID, Approve: true})
	}
	res, err := f.svc.ApprovePurchaseRequest(ctx, manager, pr.ID, workflow.ApprovePRInput{Decisions: decisions})
	require.NoError(t, err)
	return res.Document
}

func itemIDs(pr procurement.PurchaseRequest) []int64 {
	ids := make([]int64, 0, len(pr.Items))
	for _, it := range pr.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

// openPO converts an approved single supplier request and confirms the order.
func (f *fixture) openPO(t *testing.T, items ...workflow.PRItemInput) procurement.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	pr := f.approvedPR(t, items...)
	conv, err := f.svc.ConvertPurchaseRequest(ctx, purchasing, pr.ID, workflow.ConvertPRInput{ItemIDs: itemIDs(pr)})
	require.NoError(t, err)
	require.Len(t, conv.Orders, 1)
	res, err := f.svc.ConfirmPurchaseOrder(ctx, director, conv.Orders[0].ID)
	require.NoError(t, err)
	return res.Document
}

func yarnLine(qty string) workflow.PRItemInput {
	return workflow.PRItemInput{
		ProductID:           yarn,
		WarehouseID:         mainStore,
		Quantity:            d(qty),
		EstimatedUnitPrice:  d("10000"),
		PreferredSupplierID: supplierA,
	}
}

func requireBalanced(t *testing.T, entries []ledger.Entry) {
	t.Helper()
	for _, e := range entries {
		debit, credit := e.Totals()
		require.True(t, debit.Equal(credit), "%s/%s debit %s credit %s", e.Reference, e.Kind, debit, credit)
		require.GreaterOrEqual(t, len(e.Lines), 2)
	}
}

func TestProduksiEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pr, err := f.svc.CreatePurchaseRequest(ctx, requester, workflow.CreatePRInput{
		Note:  "Benang untuk order tenun Maret",
		Items: []workflow.PRItemInput{yarnLine("50")},
	})
	require.NoError(t, err)
	require.Equal(t, "Produksi", pr.Department)
	require.Equal(t, procurement.PRStatusDraft, pr.Status)

	_, err = f.svc.SubmitPurchaseRequest(ctx, requester, pr.ID)
	require.NoError(t, err)

	decision := workflow.ApprovePRInput{Decisions: []workflow.ItemDecision{{ItemID: pr.Items[0].ID, Approve: true}}}
	_, err = f.svc.ApprovePurchaseRequest(ctx, accountant, pr.ID, decision)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	approved, err := f.svc.ApprovePurchaseRequest(ctx, manager, pr.ID, decision)
	require.NoError(t, err)
	require.Equal(t, procurement.PRStatusApproved, approved.Document.Status)
	require.True(t, approved.Document.Items[0].ReservedQty.IsZero())

	conv, err := f.svc.ConvertPurchaseRequest(ctx, purchasing, pr.ID, workflow.ConvertPRInput{ItemIDs: itemIDs(pr)})
	require.NoError(t, err)
	require.Equal(t, procurement.PRStatusPOCreated, conv.PurchaseRequest.Status)
	require.Len(t, conv.Orders, 1)
	po := conv.Orders[0]
	require.Equal(t, procurement.POStatusPendingApproval, po.Status)
	require.Equal(t, supplierA, po.SupplierID)
	require.True(t, po.Items[0].Quantity.Equal(d("50")))

	confirmed, err := f.svc.ConfirmPurchaseOrder(ctx, director, po.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusOpen, confirmed.Document.Status)

	entries := f.db.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, po.Number, entries[0].Reference)
	require.Equal(t, ledger.KindPOConfirm, entries[0].Kind)
	requireBalanced(t, entries)
	debit, _ := entries[0].Totals()
	require.True(t, debit.Equal(d("500000")))
	require.True(t, f.db.Stock(key(yarn)).OnOrderQty.Equal(d("50")))

	before := f.db.Stock(key(yarn)).Quantity
	grn, err := f.svc.CreateGoodsReceipt(ctx, warehouse, po.ID, workflow.CreateGRNInput{
		Lines: []procurement.ReceiptLine{{POItemID: po.Items[0].ID, ReceivedQty: d("45")}},
	})
	require.NoError(t, err)
	_, err = f.svc.StartInspection(ctx, warehouse, grn.ID)
	require.NoError(t, err)
	_, err = f.svc.RecordInspection(ctx, warehouse, grn.ID, []procurement.InspectionResult{
		{GRNItemID: grn.Items[0].ID, AcceptedQty: d("40"), RejectedQty: d("5")},
	})
	require.NoError(t, err)
	accepted, err := f.svc.AcceptGoodsReceipt(ctx, warehouse, grn.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.GRNStatusPartialAccepted, accepted.Document.Status)

	level := f.db.Stock(key(yarn))
	require.True(t, level.Quantity.Sub(before).Equal(d("40")), "stock grew by %s", level.Quantity.Sub(before))
	require.True(t, level.OnOrderQty.Equal(d("5")))

	view, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusPartial, view.Status)
	require.True(t, view.Items[0].ReceivedQty.Equal(d("45")))
	require.Len(t, view.Entries, 1)

	entries = f.db.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, grn.Number, entries[1].Reference)
	require.Equal(t, ledger.KindGRNReject, entries[1].Kind)
	requireBalanced(t, entries)

	inv, err := f.svc.AccountBalance(ctx, ledger.BucketInventory, today)
	require.NoError(t, err)
	require.True(t, inv.Net().Equal(d("450000")), "inventory %s", inv.Net())
	ap, err := f.svc.AccountBalance(ctx, ledger.BucketAccountsPayable, today)
	require.NoError(t, err)
	require.True(t, ap.Net().Equal(d("-450000")), "payable %s", ap.Net())

	require.Equal(t, 1, f.dispatcher.count(workflow.ModulePurchaseOrder, "confirm"))
	require.Equal(t, 1, f.dispatcher.count(workflow.ModulePurchaseOrder, "receive_partial"))
	require.Equal(t, 1, f.observer.get("purchase_request/approve/denied"))
}

func TestDoubleConfirmPostsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.openPO(t, yarnLine("50"))

	again, err := f.svc.ConfirmPurchaseOrder(ctx, director, po.ID)
	require.NoError(t, err)
	require.True(t, again.Replayed)
	require.Equal(t, procurement.POStatusOpen, again.Document.Status)

	require.Len(t, f.db.Entries(), 1)
	onOrder := 0
	for _, m := range f.db.Movements() {
		if m.Kind == inventory.MovementOnOrder {
			onOrder++
		}
	}
	require.Equal(t, 1, onOrder)
	require.True(t, f.db.Stock(key(yarn)).OnOrderQty.Equal(d("50")))
	require.Equal(t, 1, f.dispatcher.count(workflow.ModulePurchaseOrder, "confirm"))
	require.Equal(t, 1, f.observer.get("purchase_order/confirm/replayed"))
}

func TestConcurrentConfirmPostsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pr := f.approvedPR(t, yarnLine("50"))
	conv, err := f.svc.ConvertPurchaseRequest(ctx, purchasing, pr.ID, workflow.ConvertPRInput{ItemIDs: itemIDs(pr)})
	require.NoError(t, err)
	poID := conv.Orders[0].ID

	var wg sync.WaitGroup
	results := make([]workflow.Result[procurement.PurchaseOrder], 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.ConfirmPurchaseOrder(ctx, director, poID)
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := range results {
		require.NoError(t, errs[i])
		if !results[i].Replayed {
			applied++
		}
	}
	require.Equal(t, 1, applied)
	require.Len(t, f.db.Entries(), 1)
	require.True(t, f.db.Stock(key(yarn)).OnOrderQty.Equal(d("50")))
}

func TestApprovalReservesAvailableStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.db.SetStock(key(yarn), d("30"), d("0"))

	pr := f.approvedPR(t, yarnLine("50"))
	require.True(t, pr.Items[0].ReservedQty.Equal(d("30")))
	require.True(t, f.db.Stock(key(yarn)).ReservedQty.Equal(d("30")))

	conv, err := f.svc.ConvertPurchaseRequest(ctx, purchasing, pr.ID, workflow.ConvertPRInput{ItemIDs: itemIDs(pr)})
	require.NoError(t, err)
	require.Len(t, conv.Orders, 1)
	require.True(t, conv.Orders[0].Items[0].Quantity.Equal(d("20")), "only the shortfall is ordered")

	item, err := f.svc.ReleaseReservation(ctx, manager, pr.ID, workflow.ReleaseInput{
		ItemID: pr.Items[0].ID, Quantity: d("10"), Reason: inventory.ReleaseFulfilled,
	})
	require.NoError(t, err)
	require.True(t, item.ReservedQty.Equal(d("20")))
	require.True(t, f.db.Stock(key(yarn)).ReservedQty.Equal(d("20")))

	item, err = f.svc.ReleaseReservation(ctx, manager, pr.ID, workflow.ReleaseInput{
		ItemID: pr.Items[0].ID, Reason: inventory.ReleaseCancelled,
	})
	require.NoError(t, err)
	require.True(t, item.ReservedQty.IsZero())
	require.True(t, f.db.Stock(key(yarn)).ReservedQty.IsZero())
}

func TestFullyStockedItemNeedsNoOrder(t *testing.T) {
	f := newFixture(t)
	f.db.SetStock(key(yarn), d("80"), d("0"))

	pr := f.approvedPR(t, yarnLine("50"))
	conv, err := f.svc.ConvertPurchaseRequest(context.Background(), purchasing, pr.ID, workflow.ConvertPRInput{ItemIDs: itemIDs(pr)})
	require.NoError(t, err)
	require.Empty(t, conv.Orders)
	require.Equal(t, procurement.PRStatusPOCreated, conv.PurchaseRequest.Status)
	require.Equal(t, procurement.PRItemConverted, conv.PurchaseRequest.Items[0].Status)
}

func TestConversionIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pr := f.approvedPR(t,
		yarnLine("50"),
		workflow.PRItemInput{ProductID: dye, WarehouseID: mainStore, Quantity: d("5"), EstimatedUnitPrice: d("75000")},
	)

	_, err := f.svc.ConvertPurchaseRequest(ctx, purchasing, pr.ID, workflow.ConvertPRInput{ItemIDs: itemIDs(pr)})
	require.ErrorIs(t, err, shared.ErrGuardViolation)
	require.ErrorContains(t, err, "no preferred supplier")
	require.Empty(t, f.db.PurchaseOrders())

	got, err := f.svc.GetPurchaseRequest(ctx, pr.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.PRStatusApproved, got.Status)
	for _, it := range got.Items {
		require.Equal(t, procurement.PRItemApproved, it.Status)
	}
}

func TestConversionGroupsBySupplier(t *testing.T) {
	f := newFixture(t)
	pr := f.approvedPR(t,
		yarnLine("50"),
		workflow.PRItemInput{ProductID: dye, WarehouseID: mainStore, Quantity: d("5"), EstimatedUnitPrice: d("75000"), PreferredSupplierID: supplierB},
	)
	conv, err := f.svc.ConvertPurchaseRequest(context.Background(), purchasing, pr.ID, workflow.ConvertPRInput{ItemIDs: itemIDs(pr)})
	require.NoError(t, err)
	require.Len(t, conv.Orders, 2)
	require.Equal(t, supplierA, conv.Orders[0].SupplierID)
	require.Equal(t, supplierB, conv.Orders[1].SupplierID)
	require.Len(t, conv.Links, 2)
}

func TestFailedSideEffectRollsBackTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pr := f.approvedPR(t, yarnLine("50"))
	conv, err := f.svc.ConvertPurchaseRequest(ctx, purchasing, pr.ID, workflow.ConvertPRInput{ItemIDs: itemIDs(pr)})
	require.NoError(t, err)
	po := conv.Orders[0]

	boom := errors.New("disk full")
	f.db.FailOn("ledger.InsertEntry", boom)
	_, err = f.svc.ConfirmPurchaseOrder(ctx, director, po.ID)
	require.ErrorIs(t, err, boom)

	view, err := f.svc.GetPurchaseOrder(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusPendingApproval, view.Status)
	require.Empty(t, f.db.Entries())
	require.True(t, f.db.Stock(key(yarn)).OnOrderQty.IsZero())
	require.Zero(t, f.dispatcher.count(workflow.ModulePurchaseOrder, "confirm"))

	f.db.FailOn("ledger.InsertEntry", nil)
	res, err := f.svc.ConfirmPurchaseOrder(ctx, director, po.ID)
	require.NoError(t, err)
	require.False(t, res.Replayed)
	require.Len(t, f.db.Entries(), 1)
}

func TestAuditFailureRollsBackApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.db.SetStock(key(yarn), d("30"), d("0"))
	pr, err := f.svc.CreatePurchaseRequest(ctx, requester, workflow.CreatePRInput{Items: []workflow.PRItemInput{yarnLine("50")}})
	require.NoError(t, err)
	_, err = f.svc.SubmitPurchaseRequest(ctx, requester, pr.ID)
	require.NoError(t, err)

	f.db.FailOn("audit.Record", errors.New("audit unavailable"))
	_, err = f.svc.ApprovePurchaseRequest(ctx, manager, pr.ID, workflow.ApprovePRInput{
		Decisions: []workflow.ItemDecision{{ItemID: pr.Items[0].ID, Approve: true}},
	})
	require.Error(t, err)
	f.db.FailOn("audit.Record", nil)

	got, err := f.svc.GetPurchaseRequest(ctx, pr.ID)
	require.NoError(t, err)
	require.Equal(t, procurement.PRStatusPending, got.Status)
	require.True(t, f.db.Stock(key(yarn)).ReservedQty.IsZero())
}

func TestDispatchFailureKeepsCommit(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("redis down")
	po := f.openPO(t, yarnLine("10"))
	require.Equal(t, procurement.POStatusOpen, po.Status)
	require.Len(t, f.db.Entries(), 1)
}

func TestCancelConfirmedOrderReverses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.openPO(t, yarnLine("50"))

	_, err := f.svc.CancelPurchaseOrder(ctx, manager, po.ID, "supplier out of stock")
	require.NoError(t, err)

	res, err := f.svc.CancelPurchaseOrder(ctx, director, po.ID, "supplier out of stock")
	require.NoError(t, err)
	require.True(t, res.Replayed)

	entries := f.db.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, ledger.KindPOCancel, entries[1].Kind)
	require.NotNil(t, entries[1].ReversalOf)
	requireBalanced(t, entries)
	require.True(t, f.db.Stock(key(yarn)).OnOrderQty.IsZero())

	ap, err := f.svc.AccountBalance(ctx, ledger.BucketAccountsPayable, today)
	require.NoError(t, err)
	require.True(t, ap.Net().IsZero())
}

func TestCancelAfterReceiptIsGuarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po := f.openPO(t, yarnLine("50"))
	receive(t, f, po, "50", "50", "0")

	_, err := f.svc.CancelPurchaseOrder(ctx, director, po.ID, "")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestManagerOfOtherDepartmentCannotConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pr := f.approvedPR(t, yarnLine("50"))
	conv, err := f.svc.ConvertPurchaseRequest(ctx, purchasing, pr.ID, workflow.ConvertPRInput{ItemIDs: itemIDs(pr)})
	require.NoError(t, err)

	outsider := authz.Actor{EmployeeID: 99, Role: authz.RoleManager, Department: "Finishing"}
	_, err = f.svc.ConfirmPurchaseOrder(ctx, outsider, conv.Orders[0].ID)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	require.Empty(t, f.db.Entries())
}

func TestExpenseLinesDebitExpense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	po, err := f.svc.CreatePurchaseOrder(ctx, purchasing, workflow.CreatePOInput{
		SupplierID: supplierA,
		Department: "Produksi",
		Items: []workflow.POItemInput{
			{ProductID: yarn, WarehouseID: mainStore, Quantity: d("3"), UnitPrice: d("100000.10")},
			{ProductID: dye, WarehouseID: mainStore, Category: procurement.CategoryExpense, Quantity: d("1"), UnitPrice: d("250000")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, procurement.POStatusDraft, po.Status)

	_, err = f.svc.SubmitPurchaseOrder(ctx, purchasing, po.ID)
	require.NoError(t, err)
	_, err = f.svc.ConfirmPurchaseOrder(ctx, purchasing, po.ID)
	require.NoError(t, err)

	entries := f.db.Entries()
	require.Len(t, entries, 1)
	requireBalanced(t, entries)
	byBucket := map[ledger.Bucket]ledger.Line{}
	for _, l := range entries[0].Lines {
		byBucket[l.Bucket] = l
	}
	require.True(t, byBucket[ledger.BucketInventory].Debit.Equal(d("300000.30")))
	require.True(t, byBucket[ledger.BucketExpense].Debit.Equal(d("250000")))
	require.True(t, byBucket[ledger.BucketAccountsPayable].Credit.Equal(d("550000.30")))
	require.True(t, f.db.Stock(key(dye)).OnOrderQty.IsZero(), "expense lines are never on order")
}

func TestApprovalHistory(t *testing.T) {
	f := newFixture(t)
	po := f.openPO(t, yarnLine("50"))

	var actions []shared.ApprovalAction
	for _, l := range f.db.ApprovalLogs() {
		actions = append(actions, l.Action)
		require.NotZero(t, l.ActorID)
	}
	require.Equal(t, []shared.ApprovalAction{shared.ApprovalSubmit, shared.ApprovalApprove, shared.ApprovalConfirm}, actions)

	view, err := f.svc.GetPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	var events []string
	for _, ev := range view.Events {
		events = append(events, ev.Event)
	}
	require.Equal(t, []string{"create", "confirm"}, events)
}

func receive(t *testing.T, f *fixture, po procurement.PurchaseOrder, received, accepted, rejected string) procurement.GoodsReceipt {
	t.Helper()
	ctx := context.Background()
	grn, err := f.svc.CreateGoodsReceipt(ctx, warehouse, po.ID, workflow.CreateGRNInput{
		Lines: []procurement.ReceiptLine{{POItemID: po.Items[0].ID, ReceivedQty: d(received)}},
	})
	require.NoError(t, err)
	_, err = f.svc.StartInspection(ctx, warehouse, grn.ID)
	require.NoError(t, err)
	_, err = f.svc.RecordInspection(ctx, warehouse, grn.ID, []procurement.InspectionResult{
		{GRNItemID: grn.Items[0].ID, AcceptedQty: d(accepted), RejectedQty: d(rejected)},
	})
	require.NoError(t, err)
	res, err := f.svc.AcceptGoodsReceipt(ctx, warehouse, grn.ID)
	require.NoError(t, err)
	return res.Document
}
