package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/counselops/lexbill/internal/aging/domain"
	"github.com/counselops/lexbill/internal/clock"
	invoicedomain "github.com/counselops/lexbill/internal/invoice/domain"
	paymentdomain "github.com/counselops/lexbill/internal/payment/domain"
	"github.com/counselops/lexbill/pkg/db/option"
	"github.com/counselops/lexbill/pkg/money"
	"github.com/counselops/lexbill/pkg/repository"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	invoices repository.Repository[invoicedomain.Invoice]
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("aging.service"),
		clock:    p.Clock,
		invoices: repository.ProvideStore[invoicedomain.Invoice](p.DB),
	}
}

func (s *Service) Aging(ctx context.Context, req domain.Request) (domain.Report, error) {
	asOf, clearedOnly := s.defaults(req)

	outstanding, err := s.outstandingInvoices(ctx, req.ClientID, asOf, clearedOnly)
	if err != nil {
		return domain.Report{}, err
	}

	report := domain.Report{AsOf: asOf, ClientID: req.ClientID, ClearedOnly: clearedOnly}
	for _, o := range outstanding {
		report.Add(o.amount, domain.DaysPastDue(o.dueDate, asOf))
	}
	return report, nil
}

func (s *Service) AgingByClient(ctx context.Context, req domain.Request) ([]domain.ClientReport, error) {
	asOf, clearedOnly := s.defaults(req)

	outstanding, err := s.outstandingInvoices(ctx, req.ClientID, asOf, clearedOnly)
	if err != nil {
		return nil, err
	}

	byClient := make(map[snowflake.ID]*domain.ClientReport)
	for _, o := range outstanding {
		report, ok := byClient[o.clientID]
		if !ok {
			report = &domain.ClientReport{ClientID: o.clientID}
			byClient[o.clientID] = report
		}
		report.Add(o.amount, domain.DaysPastDue(o.dueDate, asOf))
	}

	out := make([]domain.ClientReport, 0, len(byClient))
	for _, report := range byClient {
		out = append(out, *report)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TotalOutstanding > out[j].TotalOutstanding
	})
	return out, nil
}

type outstandingInvoice struct {
	clientID snowflake.ID
	dueDate  *time.Time
	amount   float64
}

// outstandingInvoices lists every sent/partial/overdue invoice with a
// positive balance, pairing it with its payment sum. Invoices fully covered
// by payments drop out here, so the buckets only ever see real receivables.
func (s *Service) outstandingInvoices(ctx context.Context, clientID *snowflake.ID, asOf time.Time, clearedOnly bool) ([]outstandingInvoice, error) {
	opts := []option.QueryOption{
		option.Where("status IN ?", []invoicedomain.Status{
			invoicedomain.StatusSent,
			invoicedomain.StatusPartial,
			invoicedomain.StatusOverdue,
		}),
		option.Where("issue_date <= ?", asOf),
	}
	if clientID != nil {
		opts = append(opts, option.Where("client_id = ?", *clientID))
	}
	invoices, err := s.invoices.Find(ctx, &invoicedomain.Invoice{}, opts...)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}

	ids := make([]snowflake.ID, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
	}

	paid, err := s.paymentSums(ctx, ids, asOf, clearedOnly)
	if err != nil {
		return nil, err
	}

	out := make([]outstandingInvoice, 0, len(invoices))
	for _, inv := range invoices {
		balance := money.Round2(inv.Total - paid[inv.ID])
		if balance <= 0 {
			continue
		}
		out = append(out, outstandingInvoice{
			clientID: inv.ClientID,
			dueDate:  inv.DueDate,
			amount:   balance,
		})
	}
	return out, nil
}

func (s *Service) paymentSums(ctx context.Context, invoiceIDs []snowflake.ID, asOf time.Time, clearedOnly bool) (map[snowflake.ID]float64, error) {
	type row struct {
		InvoiceID snowflake.ID
		Paid      float64
	}

	stmt := s.db.WithContext(ctx).Model(&paymentdomain.Payment{}).
		Select("invoice_id, COALESCE(SUM(amount), 0) AS paid").
		Where("invoice_id IN ?", invoiceIDs).
		Where("paid_at <= ?", asOf).
		Group("invoice_id")
	if clearedOnly {
		stmt = stmt.Where("status = ?", paymentdomain.StatusCleared)
	} else {
		stmt = stmt.Where("status <> ?", paymentdomain.StatusFailed)
	}

	var rows []row
	if err := stmt.Scan(&rows).Error; err != nil {
		return nil, err
	}

	sums := make(map[snowflake.ID]float64, len(rows))
	for _, r := range rows {
		sums[r.InvoiceID] = r.Paid
	}
	return sums, nil
}

func (s *Service) defaults(req domain.Request) (time.Time, bool) {
	asOf := s.clock.Now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}
	clearedOnly := true
	if req.ClearedOnly != nil {
		clearedOnly = *req.ClearedOnly
	}
	return asOf, clearedOnly
}
