package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/counselops/lexbill/internal/audit/domain"
	"github.com/counselops/lexbill/internal/clock"
	"github.com/counselops/lexbill/internal/config"
	"github.com/counselops/lexbill/internal/invoice/domain"
	"github.com/counselops/lexbill/internal/observability/metrics"
	"github.com/counselops/lexbill/internal/state"
	"github.com/counselops/lexbill/internal/tax"
	timedomain "github.com/counselops/lexbill/internal/timeentry/domain"
	"github.com/counselops/lexbill/pkg/db"
	"github.com/counselops/lexbill/pkg/db/option"
	"github.com/counselops/lexbill/pkg/money"
	"github.com/counselops/lexbill/pkg/repository"
)

type Params struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Tax     tax.Policy
	Audit   auditdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	cfg      config.Config
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	tax      tax.Policy
	audit    auditdomain.Service
	metrics  *metrics.Metrics
	invoices repository.Repository[domain.Invoice]
	lines    repository.Repository[domain.Line]
	entries  repository.Repository[timedomain.TimeEntry]
}

func NewService(p Params) domain.Service {
	return &Service{
		cfg:      p.Config,
		db:       p.DB,
		log:      p.Log.Named("invoice.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		tax:      p.Tax,
		audit:    p.Audit,
		metrics:  p.Metrics,
		invoices: repository.ProvideStore[domain.Invoice](p.DB),
		lines:    repository.ProvideStore[domain.Line](p.DB),
		entries:  repository.ProvideStore[timedomain.TimeEntry](p.DB),
	}
}

// GenerateFromApprovedTime creates a draft invoice covering the given approved
// time entries. Invoice creation, line creation, marking the entries billed
// and total recalculation all happen in one transaction: either every entry
// flips to billed and the totals cover all of them, or nothing changes.
func (s *Service) GenerateFromApprovedTime(ctx context.Context, req domain.GenerateRequest) (domain.Invoice, error) {
	if req.ClientID == 0 {
		return domain.Invoice{}, domain.ErrMissingClient
	}
	if len(req.TimeEntryIDs) == 0 {
		return domain.Invoice{}, domain.ErrNoTimeEntries
	}

	currency := req.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	var inv domain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		entries := s.entries.WithTrx(db.RowLock(tx))

		found, err := entries.Find(ctx, &timedomain.TimeEntry{},
			option.Where("id IN ?", req.TimeEntryIDs),
		)
		if err != nil {
			return err
		}
		if len(found) != len(req.TimeEntryIDs) {
			return timedomain.ErrTimeEntryNotFound
		}
		for _, e := range found {
			if e.Status != timedomain.StatusApproved {
				return state.NewError("time_entry", e.ID.String(),
					[]string{string(timedomain.StatusApproved)}, string(e.Status))
			}
			if e.ClientID != req.ClientID {
				return domain.ErrEntryMismatch
			}
			if req.CaseID != nil && e.CaseID != *req.CaseID {
				return domain.ErrEntryMismatch
			}
		}

		now := s.clock.Now()
		inv = domain.Invoice{
			ID:          s.genID.Generate(),
			ClientID:    req.ClientID,
			CaseID:      req.CaseID,
			PeriodStart: req.PeriodStart,
			PeriodEnd:   req.PeriodEnd,
			IssueDate:   now,
			DueDate:     req.DueDate,
			Currency:    currency,
			Status:      domain.StatusDraft,
			CreatedBy:   req.CreatedBy,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.invoices.WithTrx(tx).Create(ctx, &inv); err != nil {
			return err
		}

		lines := make([]*domain.Line, 0, len(found))
		for _, e := range found {
			entryID := e.ID
			rate := 0.0
			if e.RateApplied != nil {
				rate = *e.RateApplied
			}
			lines = append(lines, &domain.Line{
				ID:          s.genID.Generate(),
				InvoiceID:   inv.ID,
				TimeEntryID: &entryID,
				Description: e.Narrative,
				QtyHours:    money.Round2(float64(e.BillableMinutes) / 60),
				Rate:        rate,
				Amount:      e.Amount,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		if err := s.lines.WithTrx(tx).BatchCreate(ctx, lines); err != nil {
			return err
		}

		if err := tx.Model(&timedomain.TimeEntry{}).
			Where("id IN ?", req.TimeEntryIDs).
			Updates(map[string]interface{}{"status": timedomain.StatusBilled, "updated_at": now}).Error; err != nil {
			return err
		}

		totals, err := s.recalcTotals(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		inv.Subtotal, inv.Tax, inv.Total = totals.Subtotal, totals.Tax, totals.Total
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	if s.metrics != nil {
		s.metrics.InvoicesGenerated.Inc()
	}
	s.audit.Record(ctx, auditdomain.Record{
		Entity:   "invoice",
		EntityID: inv.ID.String(),
		Action:   "generated",
		ActorID:  req.CreatedBy,
		Metadata: map[string]interface{}{
			"client_id":   req.ClientID.String(),
			"entry_count": len(req.TimeEntryIDs),
			"total":       inv.Total,
		},
	})
	s.log.Info("invoice generated",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("client_id", req.ClientID.String()),
		zap.Int("lines", len(req.TimeEntryIDs)),
		zap.Float64("total", inv.Total),
	)
	return inv, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Invoice, error) {
	inv, err := s.findInvoice(ctx, s.db, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *inv, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Invoice, error) {
	opts := []option.QueryOption{option.WithOrder("issue_date DESC")}
	if req.ClientID != nil {
		opts = append(opts, option.Where("client_id = ?", *req.ClientID))
	}
	if req.CaseID != nil {
		opts = append(opts, option.Where("case_id = ?", *req.CaseID))
	}
	if req.Status != nil {
		opts = append(opts, option.Where("status = ?", *req.Status))
	}
	if req.IssuedFrom != nil {
		opts = append(opts, option.Where("issue_date >= ?", *req.IssuedFrom))
	}
	if req.IssuedTo != nil {
		opts = append(opts, option.Where("issue_date <= ?", *req.IssuedTo))
	}

	found, err := s.invoices.Find(ctx, &domain.Invoice{}, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Invoice, 0, len(found))
	for _, inv := range found {
		out = append(out, *inv)
	}
	return out, nil
}

// Send issues a draft invoice. Void invoices cannot be sent.
func (s *Service) Send(ctx context.Context, id string, req domain.SendRequest) (domain.Invoice, error) {
	var inv domain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.findInvoice(ctx, db.RowLock(tx), id)
		if err != nil {
			return err
		}
		if locked.Status == domain.StatusVoid {
			return state.NewError("invoice", id,
				[]string{string(domain.StatusDraft), string(domain.StatusSent)},
				string(locked.Status))
		}

		updates := map[string]interface{}{"updated_at": s.clock.Now()}
		if locked.Status == domain.StatusDraft {
			updates["status"] = domain.StatusSent
			locked.Status = domain.StatusSent
		}
		if locked.IssueDate.IsZero() {
			updates["issue_date"] = s.clock.Now()
			locked.IssueDate = s.clock.Now()
		}
		if req.DueDate != nil {
			updates["due_date"] = *req.DueDate
			locked.DueDate = req.DueDate
		}
		if req.PdfURL != nil {
			updates["pdf_url"] = *req.PdfURL
			locked.PdfURL = req.PdfURL
		}
		if err := s.invoices.WithTrx(tx).Update(ctx, id, updates); err != nil {
			return err
		}
		inv = *locked
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.audit.Record(ctx, auditdomain.Record{
		Entity:   "invoice",
		EntityID: id,
		Action:   "sent",
	})
	return inv, nil
}

// Void terminally cancels an invoice. Voiding a void invoice fails.
func (s *Service) Void(ctx context.Context, id string) (domain.Invoice, error) {
	var inv domain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		locked, err := s.findInvoice(ctx, db.RowLock(tx), id)
		if err != nil {
			return err
		}
		if locked.Status == domain.StatusVoid {
			return state.NewError("invoice", id,
				[]string{string(domain.StatusDraft), string(domain.StatusSent),
					string(domain.StatusPartial), string(domain.StatusOverdue)},
				string(locked.Status))
		}
		updates := map[string]interface{}{
			"status":     domain.StatusVoid,
			"updated_at": s.clock.Now(),
		}
		if err := s.invoices.WithTrx(tx).Update(ctx, id, updates); err != nil {
			return err
		}
		locked.Status = domain.StatusVoid
		inv = *locked
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.audit.Record(ctx, auditdomain.Record{
		Entity:   "invoice",
		EntityID: id,
		Action:   "voided",
	})
	return inv, nil
}

func (s *Service) ListLines(ctx context.Context, invoiceID string) ([]domain.Line, error) {
	if _, err := s.findInvoice(ctx, s.db, invoiceID); err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(invoiceID)
	if err != nil {
		return nil, domain.ErrInvoiceNotFound
	}
	found, err := s.lines.Find(ctx, &domain.Line{InvoiceID: id}, option.WithOrder("created_at ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Line, 0, len(found))
	for _, l := range found {
		out = append(out, *l)
	}
	return out, nil
}

func (s *Service) AddLine(ctx context.Context, invoiceID string, req domain.AddLineRequest) (domain.Line, domain.Totals, error) {
	if req.QtyHours < 0 || req.Rate < 0 || (req.Amount != nil && *req.Amount < 0) {
		return domain.Line{}, domain.Totals{}, domain.ErrNegativeLine
	}

	var (
		line   domain.Line
		totals domain.Totals
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		inv, err := s.findInvoice(ctx, db.RowLock(tx), invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == domain.StatusVoid {
			return state.NewError("invoice", invoiceID,
				[]string{string(domain.StatusDraft), string(domain.StatusSent)},
				string(inv.Status))
		}

		amount := domain.ComputeLineAmount(req.QtyHours, req.Rate)
		if req.Amount != nil {
			amount = money.Round2(*req.Amount)
		}
		now := s.clock.Now()
		line = domain.Line{
			ID:          s.genID.Generate(),
			InvoiceID:   inv.ID,
			TimeEntryID: req.TimeEntryID,
			Description: req.Description,
			QtyHours:    req.QtyHours,
			Rate:        req.Rate,
			Amount:      amount,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.lines.WithTrx(tx).Create(ctx, &line); err != nil {
			return err
		}

		totals, err = s.recalcTotals(ctx, tx, inv.ID)
		return err
	})
	if err != nil {
		return domain.Line{}, domain.Totals{}, err
	}
	return line, totals, nil
}

func (s *Service) UpdateLine(ctx context.Context, invoiceID, lineID string, req domain.UpdateLineRequest) (domain.Line, domain.Totals, error) {
	if (req.QtyHours != nil && *req.QtyHours < 0) ||
		(req.Rate != nil && *req.Rate < 0) ||
		(req.Amount != nil && *req.Amount < 0) {
		return domain.Line{}, domain.Totals{}, domain.ErrNegativeLine
	}

	var (
		line   domain.Line
		totals domain.Totals
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		inv, err := s.findInvoice(ctx, db.RowLock(tx), invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == domain.StatusVoid {
			return state.NewError("invoice", invoiceID,
				[]string{string(domain.StatusDraft), string(domain.StatusSent)},
				string(inv.Status))
		}

		existing, err := s.findLine(ctx, tx, inv.ID, lineID)
		if err != nil {
			return err
		}

		if req.Description != nil {
			existing.Description = *req.Description
		}
		if req.QtyHours != nil {
			existing.QtyHours = *req.QtyHours
		}
		if req.Rate != nil {
			existing.Rate = *req.Rate
		}
		switch {
		case req.Amount != nil:
			existing.Amount = money.Round2(*req.Amount)
		case req.QtyHours != nil || req.Rate != nil:
			existing.Amount = domain.ComputeLineAmount(existing.QtyHours, existing.Rate)
		}
		existing.UpdatedAt = s.clock.Now()

		// Map update: zero is a legal value for qty, rate and amount.
		updates := map[string]interface{}{
			"description": existing.Description,
			"qty_hours":   existing.QtyHours,
			"rate":        existing.Rate,
			"amount":      existing.Amount,
			"updated_at":  existing.UpdatedAt,
		}
		if err := s.lines.WithTrx(tx).Update(ctx, lineID, updates); err != nil {
			return err
		}
		line = *existing

		totals, err = s.recalcTotals(ctx, tx, inv.ID)
		return err
	})
	if err != nil {
		return domain.Line{}, domain.Totals{}, err
	}
	return line, totals, nil
}

func (s *Service) DeleteLine(ctx context.Context, invoiceID, lineID string) (domain.Totals, error) {
	var totals domain.Totals
	err := s.db.Transaction(func(tx *gorm.DB) error {
		inv, err := s.findInvoice(ctx, db.RowLock(tx), invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == domain.StatusVoid {
			return state.NewError("invoice", invoiceID,
				[]string{string(domain.StatusDraft), string(domain.StatusSent)},
				string(inv.Status))
		}

		if _, err := s.findLine(ctx, tx, inv.ID, lineID); err != nil {
			return err
		}
		if err := s.lines.WithTrx(tx).Delete(ctx, lineID); err != nil {
			return err
		}

		totals, err = s.recalcTotals(ctx, tx, inv.ID)
		return err
	})
	if err != nil {
		return domain.Totals{}, err
	}
	return totals, nil
}

// recalcTotals rederives subtotal, tax and total from the persisted lines
// and writes them back. It runs after every mutation that can change a line,
// so the stored totals are never stale inside a committed transaction.
func (s *Service) recalcTotals(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (domain.Totals, error) {
	var subtotal float64
	err := tx.WithContext(ctx).Model(&domain.Line{}).
		Where("invoice_id = ?", invoiceID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&subtotal).Error
	if err != nil {
		return domain.Totals{}, err
	}

	totals := domain.Totals{Subtotal: money.Round2(subtotal)}
	totals.Tax = s.tax.Compute(totals.Subtotal)
	totals.Total = money.Round2(totals.Subtotal + totals.Tax)

	err = s.invoices.WithTrx(tx).Update(ctx, invoiceID.String(), map[string]interface{}{
		"subtotal":   totals.Subtotal,
		"tax":        totals.Tax,
		"total":      totals.Total,
		"updated_at": s.clock.Now(),
	})
	if err != nil {
		return domain.Totals{}, err
	}
	return totals, nil
}

func (s *Service) findInvoice(ctx context.Context, tx *gorm.DB, id string) (*domain.Invoice, error) {
	parsed, err := snowflake.ParseString(id)
	if err != nil {
		return nil, domain.ErrInvoiceNotFound
	}
	inv, err := s.invoices.WithTrx(tx).FindOne(ctx, &domain.Invoice{ID: parsed})
	if err != nil {
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	if inv == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Service) findLine(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, lineID string) (*domain.Line, error) {
	parsed, err := snowflake.ParseString(lineID)
	if err != nil {
		return nil, domain.ErrLineNotFound
	}
	line, err := s.lines.WithTrx(tx).FindOne(ctx, &domain.Line{ID: parsed, InvoiceID: invoiceID})
	if err != nil {
		return nil, fmt.Errorf("find invoice line: %w", err)
	}
	if line == nil {
		return nil, domain.ErrLineNotFound
	}
	return line, nil
}
