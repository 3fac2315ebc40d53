package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/counselops/lexbill/internal/audit/domain"
	"github.com/counselops/lexbill/internal/clock"
	invoicedomain "github.com/counselops/lexbill/internal/invoice/domain"
	"github.com/counselops/lexbill/internal/observability/metrics"
	"github.com/counselops/lexbill/internal/payment/domain"
	timedomain "github.com/counselops/lexbill/internal/timeentry/domain"
	"github.com/counselops/lexbill/pkg/db"
	"github.com/counselops/lexbill/pkg/db/option"
	"github.com/counselops/lexbill/pkg/money"
	"github.com/counselops/lexbill/pkg/repository"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Audit   auditdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	audit    auditdomain.Service
	metrics  *metrics.Metrics
	payments repository.Repository[domain.Payment]
	invoices repository.Repository[invoicedomain.Invoice]
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		audit:    p.Audit,
		metrics:  p.Metrics,
		payments: repository.ProvideStore[domain.Payment](p.DB),
		invoices: repository.ProvideStore[invoicedomain.Invoice](p.DB),
	}
}

// Create records a payment and recomputes the invoice status in the same
// transaction. A cleared payment that would push the paid sum more than one
// cent past the invoice total is rejected before anything is written.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Result, error) {
	if req.Amount <= 0 {
		return domain.Result{}, domain.ErrInvalidAmount
	}
	if !req.Method.Valid() {
		return domain.Result{}, domain.ErrInvalidMethod
	}
	status := req.Status
	if status == "" {
		status = domain.StatusCleared
	}
	if !status.Valid() {
		return domain.Result{}, domain.ErrInvalidStatus
	}

	var res domain.Result
	err := s.db.Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == invoicedomain.StatusVoid {
			return domain.ErrVoidInvoice
		}

		amount := money.Round2(req.Amount)
		if status == domain.StatusCleared {
			cleared, err := s.clearedSum(ctx, tx, inv.ID)
			if err != nil {
				return err
			}
			if cleared+amount > inv.Total+money.Tolerance {
				return &domain.OverpaymentError{
					InvoiceID:   inv.ID,
					Total:       inv.Total,
					AlreadyPaid: cleared,
					Attempted:   amount,
				}
			}
		}

		currency := req.Currency
		if currency == "" {
			currency = inv.Currency
		}
		reference := req.Reference
		if reference == "" {
			reference = fmt.Sprintf("PAY-%s", ulid.Make())
		}
		paidAt := s.clock.Now()
		if req.PaidAt != nil {
			paidAt = *req.PaidAt
		}

		pay := domain.Payment{
			ID:        s.genID.Generate(),
			InvoiceID: inv.ID,
			ClientID:  inv.ClientID,
			Amount:    amount,
			Currency:  currency,
			Method:    req.Method,
			Reference: reference,
			Status:    status,
			PaidAt:    paidAt,
			Notes:     req.Notes,
			CreatedBy: req.CreatedBy,
			CreatedAt: s.clock.Now(),
			UpdatedAt: s.clock.Now(),
		}
		if err := s.payments.WithTrx(tx).Create(ctx, &pay); err != nil {
			return err
		}

		res.Payment = pay
		res.Invoice, res.Paid, err = s.recomputeInvoiceStatus(ctx, tx, inv)
		res.Status = res.Invoice.Status
		return err
	})
	if err != nil {
		return domain.Result{}, err
	}

	if s.metrics != nil {
		s.metrics.PaymentsRecorded.WithLabelValues(string(req.Method)).Inc()
	}
	s.audit.Record(ctx, auditdomain.Record{
		Entity:   "payment",
		EntityID: res.Payment.ID.String(),
		Action:   "recorded",
		ActorID:  req.CreatedBy,
		Metadata: map[string]interface{}{
			"invoice_id":     res.Invoice.ID.String(),
			"amount":         res.Payment.Amount,
			"method":         string(res.Payment.Method),
			"invoice_status": string(res.Status),
		},
	})
	s.log.Info("payment recorded",
		zap.String("payment_id", res.Payment.ID.String()),
		zap.String("invoice_id", res.Invoice.ID.String()),
		zap.Float64("amount", res.Payment.Amount),
		zap.String("invoice_status", string(res.Status)),
	)
	return res, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Payment, error) {
	pay, err := s.findPayment(ctx, s.db, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return *pay, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Payment, error) {
	opts := []option.QueryOption{option.WithOrder("paid_at DESC")}
	if req.InvoiceID != nil {
		opts = append(opts, option.Where("invoice_id = ?", *req.InvoiceID))
	}
	if req.ClientID != nil {
		opts = append(opts, option.Where("client_id = ?", *req.ClientID))
	}
	if req.Status != nil {
		opts = append(opts, option.Where("status = ?", *req.Status))
	}
	if req.PaidFrom != nil {
		opts = append(opts, option.Where("paid_at >= ?", *req.PaidFrom))
	}
	if req.PaidTo != nil {
		opts = append(opts, option.Where("paid_at <= ?", *req.PaidTo))
	}

	found, err := s.payments.Find(ctx, &domain.Payment{}, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Payment, 0, len(found))
	for _, p := range found {
		out = append(out, *p)
	}
	return out, nil
}

// Reconcile moves a payment between clearing states and recomputes the
// invoice. Clearing a pending payment runs the same overpayment guard as
// Create, since only now does the amount start counting toward the total.
func (s *Service) Reconcile(ctx context.Context, id string, req domain.ReconcileRequest) (domain.Result, error) {
	if !req.Status.Valid() {
		return domain.Result{}, domain.ErrInvalidStatus
	}

	var res domain.Result
	err := s.db.Transaction(func(tx *gorm.DB) error {
		pay, err := s.findPayment(ctx, db.RowLock(tx), id)
		if err != nil {
			return err
		}
		inv, err := s.lockInvoice(ctx, tx, pay.InvoiceID)
		if err != nil {
			return err
		}

		if req.Status == domain.StatusCleared && pay.Status != domain.StatusCleared {
			cleared, err := s.clearedSum(ctx, tx, inv.ID)
			if err != nil {
				return err
			}
			if cleared+pay.Amount > inv.Total+money.Tolerance {
				return &domain.OverpaymentError{
					InvoiceID:   inv.ID,
					Total:       inv.Total,
					AlreadyPaid: cleared,
					Attempted:   pay.Amount,
				}
			}
		}

		updates := map[string]interface{}{
			"status":     req.Status,
			"updated_at": s.clock.Now(),
		}
		if req.PaidAt != nil {
			updates["paid_at"] = req.PaidAt.UTC()
		}
		if req.Notes != nil {
			updates["notes"] = *req.Notes
		}
		if err := s.payments.WithTrx(tx).Update(ctx, id, updates); err != nil {
			return err
		}
		pay.Status = req.Status
		if req.Notes != nil {
			pay.Notes = req.Notes
		}

		res.Payment = *pay
		res.Invoice, res.Paid, err = s.recomputeInvoiceStatus(ctx, tx, inv)
		res.Status = res.Invoice.Status
		return err
	})
	if err != nil {
		return domain.Result{}, err
	}

	s.audit.Record(ctx, auditdomain.Record{
		Entity:   "payment",
		EntityID: id,
		Action:   "reconciled",
		Metadata: map[string]interface{}{
			"status":         string(req.Status),
			"invoice_status": string(res.Status),
		},
	})
	return res, nil
}

// Delete removes a payment and recomputes the invoice, so a mistakenly keyed
// remittance can be backed out and the status settles where the remaining
// ledger puts it.
func (s *Service) Delete(ctx context.Context, id string) (domain.Result, error) {
	var res domain.Result
	err := s.db.Transaction(func(tx *gorm.DB) error {
		pay, err := s.findPayment(ctx, db.RowLock(tx), id)
		if err != nil {
			return err
		}
		inv, err := s.lockInvoice(ctx, tx, pay.InvoiceID)
		if err != nil {
			return err
		}

		if err := s.payments.WithTrx(tx).Delete(ctx, id); err != nil {
			return err
		}

		res.Payment = *pay
		res.Invoice, res.Paid, err = s.recomputeInvoiceStatus(ctx, tx, inv)
		res.Status = res.Invoice.Status
		return err
	})
	if err != nil {
		return domain.Result{}, err
	}

	s.audit.Record(ctx, auditdomain.Record{
		Entity:   "payment",
		EntityID: id,
		Action:   "deleted",
		Metadata: map[string]interface{}{
			"invoice_id":     res.Invoice.ID.String(),
			"invoice_status": string(res.Status),
		},
	})
	return res, nil
}

// recomputeInvoiceStatus is the single writer of payment-derived invoice
// status. It sums cleared payments, derives the status and persists it, and
// promotes the invoice's billed time entries to paid when the invoice is
// fully settled.
func (s *Service) recomputeInvoiceStatus(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) (invoicedomain.Invoice, float64, error) {
	paid, err := s.clearedSum(ctx, tx, inv.ID)
	if err != nil {
		return invoicedomain.Invoice{}, 0, err
	}

	next := inv.ComputeStatus(paid, s.clock.Now())
	if next != inv.Status {
		err = s.invoices.WithTrx(tx).Update(ctx, inv.ID.String(), map[string]interface{}{
			"status":     next,
			"updated_at": s.clock.Now(),
		})
		if err != nil {
			return invoicedomain.Invoice{}, 0, err
		}
		inv.Status = next
	}

	if next == invoicedomain.StatusPaid {
		err = tx.WithContext(ctx).Model(&timedomain.TimeEntry{}).
			Where("status = ?", timedomain.StatusBilled).
			Where("id IN (?)", tx.Session(&gorm.Session{NewDB: true}).
				Model(&invoicedomain.Line{}).
				Select("time_entry_id").
				Where("invoice_id = ? AND time_entry_id IS NOT NULL", inv.ID)).
			Updates(map[string]interface{}{
				"status":     timedomain.StatusPaid,
				"updated_at": s.clock.Now(),
			}).Error
		if err != nil {
			return invoicedomain.Invoice{}, 0, err
		}
	}

	return *inv, paid, nil
}

func (s *Service) clearedSum(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (float64, error) {
	var sum float64
	err := tx.WithContext(ctx).Model(&domain.Payment{}).
		Where("invoice_id = ? AND status = ?", invoiceID, domain.StatusCleared).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return money.Round2(sum), err
}

func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := s.invoices.WithTrx(db.RowLock(tx)).FindOne(ctx, &invoicedomain.Invoice{ID: id})
	if err != nil {
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Service) findPayment(ctx context.Context, tx *gorm.DB, id string) (*domain.Payment, error) {
	parsed, err := snowflake.ParseString(id)
	if err != nil {
		return nil, domain.ErrPaymentNotFound
	}
	pay, err := s.payments.WithTrx(tx).FindOne(ctx, &domain.Payment{ID: parsed})
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if pay == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return pay, nil
}
