package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/talkincode/toughpos/internal/domain"
	"github.com/talkincode/toughpos/internal/events"
	"github.com/talkincode/toughpos/internal/notify"
	"github.com/talkincode/toughpos/internal/pos/cart"
	"github.com/talkincode/toughpos/internal/report"
	"github.com/talkincode/toughpos/internal/resilient"
	"github.com/talkincode/toughpos/pkg/common"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrZeroAmount        = errors.New("sale amount must be greater than zero")
	ErrPermissionDenied  = errors.New("operator is not allowed to sell")
	ErrCustomerRequired  = errors.New("paying with points requires a customer")
	ErrDraftStoreMissing = errors.New("draft storage is not configured")
)

// PermissionChecker decides whether an operator may submit sales
type PermissionChecker interface {
	CanSell(ctx context.Context, operatorID int64) (bool, error)
}

// Loyalty is the part of the loyalty program checkout depends on
type Loyalty interface {
	Earn(ctx context.Context, customerID int64, amount decimal.Decimal, ref string) (int64, error)
	Redeem(ctx context.Context, customerID, points int64, ref string) (*domain.LoyaltyCustomer, error)
	Adjust(ctx context.Context, customerID, points int64, note string) (*domain.LoyaltyCustomer, error)
}

// DraftStore persists unfinished sessions per operator
type DraftStore interface {
	SaveDraft(userID int64, payload interface{}) error
	LoadDraft(userID int64, out interface{}) (bool, error)
	DeleteDraft(userID int64) error
}

// ContactLookup finds where to send a customer's receipt
type ContactLookup interface {
	Contact(ctx context.Context, customerID int64) (string, error)
}

// Request is the payment part of a submit
type Request struct {
	Payments       []Payment `json:"payments" validate:"required,dive"`
	IdempotencyKey string    `json:"idempotency_key" validate:"max=64"`
	Note           string    `json:"note" validate:"max=255"`
	SendReceipt    bool      `json:"send_receipt"`
}

// Quote is the priced cart before submission
type Quote struct {
	Totals     cart.Totals `json:"totals"`
	Settlement *Settlement `json:"settlement,omitempty"`
}

// Result of a successful checkout. Warnings lists follow-up steps that failed
// after the sale was committed.
type Result struct {
	Sale      *domain.Sale    `json:"sale"`
	ReceiptNo string          `json:"receipt_no"`
	Change    decimal.Decimal `json:"change"`
	Replayed  bool            `json:"replayed"`
	Warnings  []string        `json:"warnings,omitempty"`
}

type Options struct {
	TaxRate decimal.Decimal
}

type Service struct {
	store     SaleStore
	perms     PermissionChecker
	retry     *resilient.Client
	bus       *events.Bus
	loyalty   Loyalty
	drafts    DraftStore
	messenger notify.Messenger
	contacts  ContactLookup
	mu        sync.RWMutex
	opts      Options
	now       func() time.Time
}

type Option func(*Service)

func WithLoyalty(l Loyalty) Option { return func(s *Service) { s.loyalty = l } }
func WithDrafts(d DraftStore) Option { return func(s *Service) { s.drafts = d } }
func WithEventBus(b *events.Bus) Option { return func(s *Service) { s.bus = b } }
func WithRetry(c *resilient.Client) Option { return func(s *Service) { s.retry = c } }
func WithOptions(o Options) Option { return func(s *Service) { s.opts = o } }
func WithReceipts(m notify.Messenger, c ContactLookup) Option {
	return func(s *Service) { s.messenger, s.contacts = m, c }
}

func NewService(store SaleStore, perms PermissionChecker, opts ...Option) *Service {
	s := &Service{store: store, perms: perms, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.retry == nil {
		s.retry = resilient.NewClient(resilient.DefaultPolicy)
	}
	return s
}

func (s *Service) TaxRate() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.TaxRate
}

// SetOptions swaps the pricing options used by subsequent sales
func (s *Service) SetOptions(o Options) {
	s.mu.Lock()
	s.opts = o
	s.mu.Unlock()
}

// Quote prices the session and, when payments are given, checks them
func (s *Service) Quote(sess *Session, payments []Payment) (Quote, error) {
	q := Quote{Totals: sess.Cart.Totals(s.TaxRate())}
	if len(payments) == 0 {
		return q, nil
	}
	st, err := Settle(q.Totals.Total, payments)
	if err != nil {
		return q, err
	}
	q.Settlement = &st
	return q, nil
}

func (s *Service) newReceiptNo() string {
	return "R-" + s.now().Format("20060102") + "-" + strings.ToUpper(common.ShortID(6))
}

// Checkout submits the session as a sale. On error the session is left untouched,
// on success the cart is cleared and the customer reset.
func (s *Service) Checkout(ctx context.Context, sess *Session, req Request) (*Result, error) {
	if sess == nil || sess.Cart == nil || sess.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	totals := sess.Cart.Totals(s.TaxRate())
	if !totals.Final.IsPositive() {
		return nil, ErrZeroAmount
	}
	allowed, err := s.perms.CanSell(ctx, sess.OperatorID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrPermissionDenied
	}
	settlement, err := Settle(totals.Total, req.Payments)
	if err != nil {
		return nil, err
	}
	if settlement.Points > 0 && sess.CustomerID == 0 {
		return nil, ErrCustomerRequired
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		if sess.PendingKey == "" {
			sess.PendingKey = uuid.NewString()
		}
		key = sess.PendingKey
	}

	// A committed key is answered from the stored sale before any points move.
	prev, err := s.findByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		sess.Reset()
		return &Result{Sale: prev, ReceiptNo: prev.ReceiptNo, Change: prev.ChangeAmount, Replayed: true}, nil
	}

	sale := s.buildSale(sess, totals, settlement, req, key)

	redeemed := settlement.Points > 0 && s.loyalty != nil
	if redeemed {
		if _, err := s.loyalty.Redeem(ctx, sess.CustomerID, settlement.Points, key); err != nil {
			return nil, err
		}
	}

	stored, replayed, err := s.submit(ctx, sale)
	if err != nil {
		if redeemed {
			s.restorePoints(ctx, sess.CustomerID, settlement.Points, "sale failed: "+key)
		}
		zap.L().Error("sale submission failed",
			zap.String("idempotency_key", key), zap.Error(err), zap.String("namespace", "checkout"))
		return nil, err
	}

	res := &Result{Sale: stored, ReceiptNo: stored.ReceiptNo, Change: stored.ChangeAmount, Replayed: replayed}
	if replayed {
		// a concurrent submit committed the key between the lookup and the write
		if redeemed {
			s.restorePoints(ctx, sess.CustomerID, settlement.Points, "sale replayed: "+key)
		}
	} else {
		s.afterCommit(ctx, sess, stored, req, res)
	}
	sess.Reset()
	return res, nil
}

func (s *Service) findByKey(ctx context.Context, key string) (*domain.Sale, error) {
	return resilient.Call(ctx, s.retry, "checkout.find_sale", resilient.Idempotent, func(ctx context.Context) (*domain.Sale, error) {
		return s.store.GetByKey(ctx, key)
	})
}

func (s *Service) restorePoints(ctx context.Context, customerID, points int64, note string) {
	if _, err := s.loyalty.Adjust(ctx, customerID, points, note); err != nil {
		zap.L().Error("restore redeemed points failed",
			zap.Int64("customer_id", customerID), zap.Error(err), zap.String("namespace", "checkout"))
	}
}

func (s *Service) buildSale(sess *Session, totals cart.Totals, st Settlement, req Request, key string) *domain.Sale {
	sale := &domain.Sale{
		ID:             common.UUIDint64(),
		ReceiptNo:      s.newReceiptNo(),
		IdempotencyKey: key,
		CustomerID:     sess.CustomerID,
		OperatorID:     sess.OperatorID,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.Discount,
		TaxAmount:      totals.Tax,
		TotalAmount:    totals.Total,
		PaidAmount:     st.Paid,
		ChangeAmount:   st.Change,
		PaymentMethod:  st.Method,
		Status:         domain.SaleStatusCompleted,
		Note:           strings.TrimSpace(req.Note),
		CreatedAt:      s.now(),
	}
	if d := sess.Cart.Discount(); d != nil {
		sale.DiscountType = string(d.Type)
		sale.DiscountValue = d.Value
	}
	for _, it := range sess.Cart.Items() {
		sale.Items = append(sale.Items, domain.SaleItem{
			ID:          common.UUIDint64(),
			SaleID:      sale.ID,
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			VariantName: it.VariantName,
			Sku:         it.Sku,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
		})
	}
	for _, p := range req.Payments {
		sale.Payments = append(sale.Payments, domain.SalePayment{
			ID:        common.UUIDint64(),
			SaleID:    sale.ID,
			Method:    p.Method,
			Amount:    p.Amount,
			Reference: p.Reference,
		})
	}
	return sale
}

// submit writes the sale, retrying transient failures. The idempotency key makes retries safe.
func (s *Service) submit(ctx context.Context, sale *domain.Sale) (*domain.Sale, bool, error) {
	var (
		stored   *domain.Sale
		replayed bool
	)
	err := s.retry.Do(ctx, "checkout.create_sale", resilient.Idempotent, func(ctx context.Context) error {
		var err error
		stored, replayed, err = s.store.CreateSale(ctx, sale)
		return err
	})
	return stored, replayed, err
}

func (s *Service) afterCommit(ctx context.Context, sess *Session, sale *domain.Sale, req Request, res *Result) {
	warn := func(step string, err error) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", step, err))
		zap.L().Warn("sale committed with warning",
			zap.String("receipt_no", sale.ReceiptNo),
			zap.String("step", step),
			zap.Error(err),
			zap.String("namespace", "checkout"))
	}

	if sale.CustomerID != 0 && s.loyalty != nil {
		points, err := s.loyalty.Earn(ctx, sale.CustomerID, sale.TotalAmount, sale.ReceiptNo)
		if err != nil {
			warn("loyalty", err)
		} else if points > 0 {
			sale.PointsEarned = points
			if err := s.store.SetPointsEarned(ctx, sale.ID, points); err != nil {
				warn("loyalty", err)
			}
		}
	}

	if s.drafts != nil {
		if err := s.drafts.DeleteDraft(sess.OperatorID); err != nil {
			warn("draft", err)
		}
	}

	if req.SendReceipt && sale.CustomerID != 0 && s.messenger != nil && s.contacts != nil {
		recipient, err := s.contacts.Contact(ctx, sale.CustomerID)
		switch {
		case err != nil:
			warn("receipt", err)
		case recipient == "":
			warn("receipt", errors.New("customer has no contact"))
		default:
			if r := s.messenger.Send(ctx, recipient, report.RenderText(sale)); !r.Success {
				warn("receipt", errors.New(r.Error))
			}
		}
	}

	if s.bus != nil {
		ev := events.SaleCompleted{
			SaleID:     sale.ID,
			ReceiptNo:  sale.ReceiptNo,
			CustomerID: sale.CustomerID,
			Total:      sale.TotalAmount,
		}
		for _, it := range sale.Items {
			ev.Lines = append(ev.Lines, events.SaleLine{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
		}
		s.bus.Publish(events.TopicSaleCompleted, ev)
	}
}

func (s *Service) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return resilient.Call(ctx, s.retry, "checkout.get_sale", resilient.Idempotent,
		func(ctx context.Context) (*domain.Sale, error) {
			return s.store.GetSale(ctx, id)
		})
}

func (s *Service) GetByReceipt(ctx context.Context, receiptNo string) (*domain.Sale, error) {
	return resilient.Call(ctx, s.retry, "checkout.get_receipt", resilient.Idempotent,
		func(ctx context.Context) (*domain.Sale, error) {
			return s.store.GetByReceipt(ctx, receiptNo)
		})
}

func (s *Service) ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, int64, error) {
	var (
		rows  []domain.Sale
		total int64
	)
	err := s.retry.Do(ctx, "checkout.list_sales", resilient.Idempotent, func(ctx context.Context) error {
		var err error
		rows, total, err = s.store.ListSales(ctx, filter)
		return err
	})
	return rows, total, err
}

// Refund reverses a completed sale and restocks its items
func (s *Service) Refund(ctx context.Context, operatorID, saleID int64, reason string) (*domain.Sale, error) {
	allowed, err := s.perms.CanSell(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrPermissionDenied
	}
	sale, err := resilient.Call(ctx, s.retry, "checkout.refund", resilient.NonIdempotent,
		func(ctx context.Context) (*domain.Sale, error) {
			return s.store.Refund(ctx, saleID, strings.TrimSpace(reason), s.now())
		})
	if err != nil {
		return nil, err
	}
	zap.L().Info("sale refunded",
		zap.String("receipt_no", sale.ReceiptNo),
		zap.Int64("operator_id", operatorID),
		zap.String("namespace", "checkout"))
	if s.bus != nil {
		s.bus.Publish(events.TopicSaleRefunded, events.SaleRefunded{
			SaleID:       sale.ID,
			CustomerID:   sale.CustomerID,
			PointsEarned: sale.PointsEarned,
			Reason:       sale.RefundReason,
		})
	}
	return sale, nil
}

// SaveDraft stores the session so the operator can resume it later
func (s *Service) SaveDraft(sess *Session) error {
	if s.drafts == nil {
		return ErrDraftStoreMissing
	}
	return s.drafts.SaveDraft(sess.OperatorID, sess.Draft())
}

// LoadDraft restores the operator's saved session, ok is false when there is none
func (s *Service) LoadDraft(operatorID int64) (*Session, bool, error) {
	sess := NewSession(operatorID)
	if s.drafts == nil {
		return sess, false, ErrDraftStoreMissing
	}
	var d Draft
	ok, err := s.drafts.LoadDraft(operatorID, &d)
	if err != nil || !ok {
		return sess, false, err
	}
	sess.Restore(d)
	return sess, true, nil
}

func (s *Service) DiscardDraft(operatorID int64) error {
	if s.drafts == nil {
		return ErrDraftStoreMissing
	}
	return s.drafts.DeleteDraft(operatorID)
}
