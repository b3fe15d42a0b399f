package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-agent/internal/cart"
	"github.com/angelmondragon/pos-agent/internal/offlinequeue"
	"github.com/angelmondragon/pos-agent/internal/payment"
	"github.com/angelmondragon/pos-agent/internal/receipt"
	"github.com/angelmondragon/pos-agent/internal/session"
	"github.com/angelmondragon/pos-agent/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
	"github.com/angelmondragon/pos-agent/pkg/logger"
	"github.com/angelmondragon/pos-agent/pkg/orderapi"
	"github.com/angelmondragon/pos-agent/pkg/types"
)

const (
	msgSucceeded     = "Sale completed."
	msgQueuedOffline = "Sale saved offline and will sync automatically."
	historyLimit     = 200
)

// Submitter sends a sale to the order service.
type Submitter interface {
	SubmitOrder(ctx context.Context, payload types.OrderPayload) (*orderapi.SubmitResult, error)
}

// OfflineQueue is the write side of the durable queue.
type OfflineQueue interface {
	Enqueue(ctx context.Context, payload types.OrderPayload) (*offlinequeue.Entry, error)
	Count(ctx context.Context) (int64, error)
}

// PaymentFlow validates and settles payment selections.
type PaymentFlow interface {
	Validate(req payment.Request, total decimal.Decimal) error
	Authorize(ctx context.Context, req payment.Request, total decimal.Decimal, reference string) (*payment.Selection, error)
}

// ActiveCart is the slice of the cart the orchestrator reads and resets.
type ActiveCart interface {
	IsEmpty() bool
	Snapshot() cart.Snapshot
	Clear()
}

// CashierSource resolves the signed-in cashier.
type CashierSource interface {
	Cashier() (session.Cashier, error)
}

// OutcomeRecorder counts checkout outcomes.
type OutcomeRecorder interface {
	ObserveCheckout(outcome string)
}

type Params struct {
	Cart       ActiveCart
	Flow       PaymentFlow
	Submitter  Submitter
	Queue      OfflineQueue
	Cashiers   CashierSource
	Printer    receipt.Printer
	Metrics    OutcomeRecorder
	Logger     *logger.Logger
	TerminalID string
	Currency   string
	AckDelay   time.Duration
	Now        func() time.Time
	NewRef     func() string
}

// Failure is the last error surfaced while confirming.
type Failure struct {
	Code      pkgerrors.Code `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   any            `json:"details,omitempty"`
}

// Status is the orchestrator state as shown on the checkout screen.
type Status struct {
	State           enums.CheckoutState `json:"state"`
	Method          enums.PaymentMethod `json:"method,omitempty"`
	Totals          cart.Totals         `json:"totals"`
	AmountTendered  *decimal.Decimal    `json:"amountTendered,omitempty"`
	Change          *decimal.Decimal    `json:"change,omitempty"`
	ClientReference string              `json:"clientReference,omitempty"`
	CapturedPayment *payment.Selection  `json:"capturedPayment,omitempty"`
	LastError       *Failure            `json:"lastError,omitempty"`
	LastOutcome     *Outcome            `json:"lastOutcome,omitempty"`
	PendingCount    int64               `json:"pendingCount"`
	RunningTotal    decimal.Decimal     `json:"runningTotal"`
}

// Outcome describes a finished submission.
type Outcome struct {
	State       enums.CheckoutState `json:"state"`
	OrderNumber string              `json:"orderNumber"`
	LocalID     int64               `json:"localId,omitempty"`
	Receipt     receipt.Receipt     `json:"receipt"`
	Message     string              `json:"message"`
}

// Orchestrator drives a sale from method selection to a submitted or queued
// order. The Cart to PendingOrder transition happens only here.
type Orchestrator struct {
	cart       ActiveCart
	flow       PaymentFlow
	submitter  Submitter
	queue      OfflineQueue
	cashiers   CashierSource
	printer    receipt.Printer
	metrics    OutcomeRecorder
	logg       *logger.Logger
	terminalID string
	currency   string
	ackDelay   time.Duration
	now        func() time.Time
	newRef     func() string

	mu           sync.Mutex
	state        enums.CheckoutState
	request      *payment.Request
	clientRef    string
	authorized   *payment.Selection
	lastErr      *Failure
	lastOutcome  *Outcome
	pending      int64
	history      []receipt.Receipt
	runningTotal decimal.Decimal
	generation   uint64
	ackTimer     *time.Timer
}

func New(params Params) (*Orchestrator, error) {
	switch {
	case params.Cart == nil:
		return nil, fmt.Errorf("cart required")
	case params.Flow == nil:
		return nil, fmt.Errorf("payment flow required")
	case params.Submitter == nil:
		return nil, fmt.Errorf("order submitter required")
	case params.Queue == nil:
		return nil, fmt.Errorf("offline queue required")
	case params.Cashiers == nil:
		return nil, fmt.Errorf("cashier source required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	newRef := params.NewRef
	if newRef == nil {
		newRef = uuid.NewString
	}
	return &Orchestrator{
		cart:         params.Cart,
		flow:         params.Flow,
		submitter:    params.Submitter,
		queue:        params.Queue,
		cashiers:     params.Cashiers,
		printer:      params.Printer,
		metrics:      params.Metrics,
		logg:         params.Logger,
		terminalID:   params.TerminalID,
		currency:     params.Currency,
		ackDelay:     params.AckDelay,
		now:          now,
		newRef:       newRef,
		state:        enums.CheckoutStateIdle,
		runningTotal: decimal.Zero,
	}, nil
}

// Begin starts checkout for the active cart.
func (o *Orchestrator) Begin(ctx context.Context) (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.IsTerminal() {
		o.resetLocked()
	}
	switch o.state {
	case enums.CheckoutStateIdle, enums.CheckoutStateMethodSelectionRequired:
	default:
		return o.statusLocked(), stateConflict(o.state, "begin")
	}
	if o.cart.IsEmpty() {
		return o.statusLocked(), pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	o.transitionLocked(enums.CheckoutStateMethodSelectionRequired)
	o.request = nil
	o.authorized = nil
	o.lastErr = nil
	return o.statusLocked(), nil
}

// SelectMethod chooses a payment variant. Cash is only accepted once the
// tendered amount covers the total.
func (o *Orchestrator) SelectMethod(ctx context.Context, req payment.Request) (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case enums.CheckoutStateMethodSelectionRequired, enums.CheckoutStateConfirming:
	default:
		return o.statusLocked(), stateConflict(o.state, "select payment method")
	}

	total := o.cart.Snapshot().Totals.Total
	if err := o.flow.Validate(req, total); err != nil {
		o.lastErr = failureFrom(err)
		return o.statusLocked(), err
	}

	if o.authorized != nil && o.authorized.Method != req.Method {
		err := capturedConflict(*o.authorized, "change the payment method")
		o.lastErr = failureFrom(err)
		return o.statusLocked(), err
	}
	selected := req
	o.request = &selected
	o.lastErr = nil
	o.transitionLocked(enums.CheckoutStateConfirming)
	return o.statusLocked(), nil
}

// Confirm settles payment and submits the sale. A transient failure queues
// the sale offline and is reported as a soft success.
func (o *Orchestrator) Confirm(ctx context.Context) (*Outcome, error) {
	o.mu.Lock()
	if o.state != enums.CheckoutStateConfirming || o.request == nil {
		state := o.state
		o.mu.Unlock()
		return nil, stateConflict(state, "confirm")
	}
	if o.cart.IsEmpty() {
		err := pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		o.lastErr = failureFrom(err)
		o.mu.Unlock()
		return nil, err
	}

	cashier, err := o.cashiers.Cashier()
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}

	sale := o.cart.Snapshot()
	req := *o.request
	if err := o.flow.Validate(req, sale.Totals.Total); err != nil {
		o.lastErr = failureFrom(err)
		o.mu.Unlock()
		return nil, err
	}
	authorized := o.authorized
	if authorized != nil && !authorized.Amount.Equal(sale.Totals.Total) {
		err := capturedConflict(*authorized, fmt.Sprintf("confirm a total of %s", sale.Totals.Total.StringFixed(2)))
		o.lastErr = failureFrom(err)
		o.mu.Unlock()
		return nil, err
	}
	if o.clientRef == "" {
		o.clientRef = o.newRef()
	}
	ref := o.clientRef
	o.transitionLocked(enums.CheckoutStateSubmitting)
	o.lastErr = nil
	o.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	ctx = o.logg.WithFields(ctx, map[string]any{
		"client_reference": ref,
		"payment_method":   string(req.Method),
	})
	ctx = o.logg.WithCashierID(ctx, cashier.ID)

	selection := authorized
	if selection == nil {
		selection, err = o.flow.Authorize(ctx, req, sale.Totals.Total, ref)
		if err != nil {
			return nil, o.failConfirm(ctx, err, false)
		}
		// Captured provider payments are kept so a corrected retry does not
		// charge the customer twice.
		if selection.ProviderTransactionID != "" {
			o.mu.Lock()
			o.authorized = selection
			o.mu.Unlock()
		}
	}
	if selection.OperatorAttested() {
		o.logg.Warn(o.logg.WithField(ctx, "payment.verification", selection.Verification), "sale settled on operator attestation")
	}

	payload := o.buildPayload(ref, sale, *selection, cashier)
	result, submitErr := o.submitter.SubmitOrder(ctx, payload)
	if submitErr == nil {
		orderNumber := ref
		if result != nil && strings.TrimSpace(result.OrderNumber) != "" {
			orderNumber = result.OrderNumber
		}
		return o.complete(ctx, enums.CheckoutStateSucceeded, ref, orderNumber, 0, sale, *selection, cashier), nil
	}

	if pkgerrors.IsCode(submitErr, pkgerrors.CodeTransient) {
		o.logg.Warn(o.logg.WithField(ctx, "cause", submitErr.Error()), "order service unavailable; queueing sale")
		entry, queueErr := o.queue.Enqueue(ctx, payload.AsOffline())
		if queueErr != nil {
			o.logg.Error(ctx, "sale could not be queued offline", queueErr)
			return nil, o.failConfirm(ctx, queueErr, true)
		}
		return o.complete(ctx, enums.CheckoutStateQueuedOffline, ref, receipt.OfflineOrderNumber(entry.LocalID), entry.LocalID, sale, *selection, cashier), nil
	}

	return nil, o.failConfirm(ctx, submitErr, false)
}

// failConfirm returns to Confirming with the error surfaced. The client
// reference survives when the sale may still reach the server or a provider
// capture is tied to it.
func (o *Orchestrator) failConfirm(ctx context.Context, err error, keepReference bool) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodePermanent, err, "order could not be submitted")
	}

	o.mu.Lock()
	if !keepReference && o.authorized == nil {
		o.clientRef = ""
	}
	o.lastErr = failureFrom(typed)
	o.transitionLocked(enums.CheckoutStateConfirming)
	o.mu.Unlock()

	o.observe(string(typed.Code()))
	if typed.Code() != pkgerrors.CodeValidation && typed.Code() != pkgerrors.CodePaymentFailed {
		o.logg.Error(ctx, "checkout failed", typed)
	}
	return typed
}

func (o *Orchestrator) complete(ctx context.Context, state enums.CheckoutState, ref, orderNumber string, localID int64, sale cart.Snapshot, sel payment.Selection, cashier session.Cashier) *Outcome {
	rec := receipt.Build(receipt.Input{
		OrderNumber:     orderNumber,
		ClientReference: ref,
		Date:            o.now().UTC(),
		Sale:            sale,
		Payment:         sel,
		CashierName:     cashier.Name,
		Currency:        o.currency,
		Offline:         state == enums.CheckoutStateQueuedOffline,
	})
	message := msgSucceeded
	if state == enums.CheckoutStateQueuedOffline {
		message = msgQueuedOffline
	}
	outcome := &Outcome{
		State:       state,
		OrderNumber: orderNumber,
		LocalID:     localID,
		Receipt:     rec,
		Message:     message,
	}

	o.cart.Clear()
	pending, err := o.queue.Count(ctx)
	if err != nil {
		o.logg.Warn(ctx, "pending count unavailable after checkout")
	}

	o.mu.Lock()
	o.history = append(o.history, rec)
	if len(o.history) > historyLimit {
		o.history = o.history[len(o.history)-historyLimit:]
	}
	o.runningTotal = o.runningTotal.Add(rec.Total)
	if err == nil {
		o.pending = pending
	}
	o.clientRef = ""
	o.request = nil
	o.authorized = nil
	o.lastErr = nil
	o.lastOutcome = outcome
	o.transitionLocked(state)
	o.scheduleAckLocked()
	o.mu.Unlock()

	o.observe(string(state))
	o.logg.Info(o.logg.WithFields(ctx, map[string]any{
		"order_number": orderNumber,
		"state":        string(state),
		"total":        rec.Total.String(),
	}), "checkout completed")

	if o.printer != nil {
		if err := o.printer.Print(ctx, rec); err != nil {
			o.logg.Error(ctx, "receipt delivery failed", err)
		}
	}
	return outcome
}

// Cancel abandons checkout before submission. A sale with a captured provider
// payment cannot be cancelled until the capture is released.
func (o *Orchestrator) Cancel(ctx context.Context) (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == enums.CheckoutStateSubmitting {
		return o.statusLocked(), stateConflict(o.state, "cancel")
	}
	if o.authorized != nil {
		return o.statusLocked(), capturedConflict(*o.authorized, "cancel")
	}
	o.resetLocked()
	return o.statusLocked(), nil
}

// ReleaseCapture forgets a captured provider payment once the cashier has
// voided or refunded it with the provider. The next confirmation charges
// again under a fresh client reference.
func (o *Orchestrator) ReleaseCapture(ctx context.Context) (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == enums.CheckoutStateSubmitting {
		return o.statusLocked(), stateConflict(o.state, "release the captured payment")
	}
	if o.authorized == nil {
		return o.statusLocked(), pkgerrors.New(pkgerrors.CodeNotFound, "no captured payment to release")
	}
	o.logg.Warn(o.logg.WithFields(ctx, map[string]any{
		"client_reference":        o.clientRef,
		"provider_transaction_id": o.authorized.ProviderTransactionID,
		"amount":                  o.authorized.Amount.String(),
	}), "captured payment released by cashier")
	o.authorized = nil
	o.clientRef = ""
	o.lastErr = nil
	return o.statusLocked(), nil
}

// Acknowledge dismisses a finished sale ahead of the timed reset.
func (o *Orchestrator) Acknowledge(ctx context.Context) (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.state.IsTerminal():
		o.resetLocked()
	case o.state == enums.CheckoutStateIdle:
	default:
		return o.statusLocked(), stateConflict(o.state, "acknowledge")
	}
	return o.statusLocked(), nil
}

// Status reports the current orchestrator state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked()
}

// EditCart runs fn unless a sale is being submitted. fn runs under the
// checkout lock so Confirm cannot snapshot the cart halfway through an edit.
func (o *Orchestrator) EditCart(fn func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == enums.CheckoutStateSubmitting {
		return stateConflict(o.state, "edit cart")
	}
	return fn()
}

// History returns the receipts issued in this process, oldest first.
func (o *Orchestrator) History() []receipt.Receipt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]receipt.Receipt(nil), o.history...)
}

// RunningTotal is the sum of every completed or queued sale in this process.
func (o *Orchestrator) RunningTotal() decimal.Decimal {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runningTotal
}

// OnPendingCount matches the offline queue's count listener signature.
func (o *Orchestrator) OnPendingCount(_ context.Context, _, current int64) {
	o.mu.Lock()
	o.pending = current
	o.mu.Unlock()
}

func (o *Orchestrator) buildPayload(ref string, sale cart.Snapshot, sel payment.Selection, cashier session.Cashier) types.OrderPayload {
	items := make([]types.OrderItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		items = append(items, types.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.UnitDiscount(),
		})
	}
	payload := types.OrderPayload{
		ClientReference: ref,
		Items:           items,
		TaxRate:         sale.Totals.TaxRate,
		Total:           sale.Totals.Total,
		Payments:        []types.PaymentLine{sel.Line()},
		Status:          enums.OrderStatusCompleted,
		IsOffline:       false,
		CashierID:       cashier.ID,
		CashierName:     cashier.Name,
		BranchID:        cashier.BranchID,
		TerminalID:      o.terminalID,
		CapturedAt:      o.now().UTC(),
	}
	if notes := strings.TrimSpace(sale.Notes); notes != "" {
		payload.Notes = &notes
	}
	if name := strings.TrimSpace(sale.CustomerName); name != "" {
		payload.CustomerName = &name
	}
	return payload
}

func (o *Orchestrator) observe(outcome string) {
	if o.metrics != nil {
		o.metrics.ObserveCheckout(outcome)
	}
}

func (o *Orchestrator) transitionLocked(next enums.CheckoutState) {
	o.state = next
	o.generation++
	if o.ackTimer != nil {
		o.ackTimer.Stop()
		o.ackTimer = nil
	}
}

func (o *Orchestrator) resetLocked() {
	o.request = nil
	o.authorized = nil
	o.lastErr = nil
	o.clientRef = ""
	o.transitionLocked(enums.CheckoutStateIdle)
}

// scheduleAckLocked resets a finished sale to Idle after the acknowledgement
// delay unless another transition happens first.
func (o *Orchestrator) scheduleAckLocked() {
	if o.ackDelay <= 0 {
		return
	}
	gen := o.generation
	o.ackTimer = time.AfterFunc(o.ackDelay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.generation == gen && o.state.IsTerminal() {
			o.resetLocked()
		}
	})
}

func (o *Orchestrator) statusLocked() Status {
	sale := o.cart.Snapshot()
	st := Status{
		State:           o.state,
		Totals:          sale.Totals,
		ClientReference: o.clientRef,
		LastError:       o.lastErr,
		PendingCount:    o.pending,
		RunningTotal:    o.runningTotal,
	}
	if o.state.IsTerminal() && o.lastOutcome != nil {
		out := *o.lastOutcome
		st.LastOutcome = &out
	}
	if o.authorized != nil {
		captured := *o.authorized
		st.CapturedPayment = &captured
	}
	if o.request != nil {
		st.Method = o.request.Method
		if o.request.Method == enums.PaymentMethodCash && o.request.AmountTendered != nil {
			tendered := *o.request.AmountTendered
			change := tendered.Sub(sale.Totals.Total)
			st.AmountTendered = &tendered
			if !change.IsNegative() {
				st.Change = &change
			}
		}
	}
	return st
}

func stateConflict(state enums.CheckoutState, action string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot %s while checkout is %s", action, state)).
		WithDetails(map[string]any{"state": state})
}

func capturedConflict(sel payment.Selection, action string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("cannot %s: a %s payment of %s was already captured; restore the cart or void it with the provider and release it", action, sel.Method, sel.Amount.StringFixed(2))).
		WithDetails(map[string]any{
			"providerTransactionId": sel.ProviderTransactionID,
			"captured":              sel.Amount.StringFixed(2),
		})
}

func failureFrom(err error) *Failure {
	typed := pkgerrors.As(err)
	if typed == nil {
		return &Failure{Code: pkgerrors.CodeInternal, Message: err.Error()}
	}
	return &Failure{
		Code:      typed.Code(),
		Message:   typed.Message(),
		Retryable: typed.Retryable(),
		Details:   typed.Details(),
	}
}
