package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"servicehub/internal/domain"
)

// ErrStaleBooking is returned when a conditional write finds the booking row
// in a different state than the caller observed.
var ErrStaleBooking = errors.New("booking state changed concurrently")

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

type bookingModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	BookingNumber string `gorm:"column:booking_number;uniqueIndex"`

	CustomerID int64 `gorm:"column:customer_id;index"`
	ProviderID int64 `gorm:"column:provider_id;index"`
	ServiceID  int64 `gorm:"column:service_id"`

	ScheduledDate     time.Time `gorm:"column:scheduled_date;index"`
	EstimatedDuration int       `gorm:"column:estimated_duration"`
	ActualDuration    int       `gorm:"column:actual_duration"`

	Address             string `gorm:"column:address"`
	ContactPhone        string `gorm:"column:contact_phone"`
	SpecialInstructions string `gorm:"column:special_instructions"`

	Status string `gorm:"column:status;index"`

	PricingBaseAmount        int64   `gorm:"column:pricing_base_amount"`
	PricingAdditionalCharges *string `gorm:"column:pricing_additional_charges"`
	PricingDiscount          int64   `gorm:"column:pricing_discount"`
	PricingDiscountType      string  `gorm:"column:pricing_discount_type"`
	PricingTaxAmount         int64   `gorm:"column:pricing_tax_amount"`
	PricingTotalAmount       int64   `gorm:"column:pricing_total_amount"`

	PaymentStatus              string     `gorm:"column:payment_status;index"`
	PaymentMethod              string     `gorm:"column:payment_method"`
	PaymentTransactionID       string     `gorm:"column:payment_transaction_id"`
	PaymentPaidAmount          int64      `gorm:"column:payment_paid_amount"`
	PaymentPaidAt              *time.Time `gorm:"column:payment_paid_at"`
	PaymentRefundTransactionID string     `gorm:"column:payment_refund_transaction_id"`
	PaymentRefundAmount        int64      `gorm:"column:payment_refund_amount"`
	PaymentRefundedAt          *time.Time `gorm:"column:payment_refunded_at"`

	HasWorkSummary  bool       `gorm:"column:has_work_summary"`
	WorkStartTime   *time.Time `gorm:"column:work_start_time"`
	WorkEndTime     *time.Time `gorm:"column:work_end_time"`
	WorkDescription string     `gorm:"column:work_description"`
	BeforeImages    *string    `gorm:"column:before_images"`
	AfterImages     *string    `gorm:"column:after_images"`
	MaterialsUsed   *string    `gorm:"column:materials_used"`
	AdditionalNotes string     `gorm:"column:additional_notes"`

	CancelledBy        string     `gorm:"column:cancelled_by"`
	CancellationReason string     `gorm:"column:cancellation_reason"`
	CancellationDate   *time.Time `gorm:"column:cancellation_date"`
	RefundAmount       int64      `gorm:"column:refund_amount"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (bookingModel) TableName() string { return "bookings" }

// statusHistoryModel rows are insert-only; history entries are never updated
// or deleted once written.
type statusHistoryModel struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	BookingID int64     `gorm:"column:booking_id;index"`
	Status    string    `gorm:"column:status"`
	ChangedBy int64     `gorm:"column:changed_by"`
	ChangedAt time.Time `gorm:"column:changed_at"`
	Reason    string    `gorm:"column:reason"`
	Comments  string    `gorm:"column:comments"`
}

func (statusHistoryModel) TableName() string { return "booking_status_history" }

func jsonColumn(v interface{}) *string {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func chargesFromColumn(s *string) []domain.AdditionalCharge {
	if s == nil || *s == "" {
		return nil
	}
	var out []domain.AdditionalCharge
	if err := json.Unmarshal([]byte(*s), &out); err != nil {
		return nil
	}
	return out
}

func stringsFromColumn(s *string) []string {
	if s == nil || *s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(*s), &out); err != nil {
		return nil
	}
	return out
}

func toBookingModel(b *domain.Booking) bookingModel {
	m := bookingModel{
		ID:                  b.ID,
		BookingNumber:       b.BookingNumber,
		CustomerID:          b.CustomerID,
		ProviderID:          b.ProviderID,
		ServiceID:           b.ServiceID,
		ScheduledDate:       b.ScheduledDate,
		EstimatedDuration:   b.EstimatedDuration,
		ActualDuration:      b.ActualDuration,
		Address:             b.Address,
		ContactPhone:        b.ContactPhone,
		SpecialInstructions: b.SpecialInstructions,
		Status:              string(b.Status),

		PricingBaseAmount:   b.Pricing.BaseAmount,
		PricingDiscount:     b.Pricing.Discount,
		PricingDiscountType: string(b.Pricing.DiscountType),
		PricingTaxAmount:    b.Pricing.TaxAmount,
		PricingTotalAmount:  b.Pricing.TotalAmount,

		PaymentStatus:              string(b.Payment.Status),
		PaymentMethod:              string(b.Payment.Method),
		PaymentTransactionID:       b.Payment.TransactionID,
		PaymentPaidAmount:          b.Payment.PaidAmount,
		PaymentPaidAt:              b.Payment.PaidAt,
		PaymentRefundTransactionID: b.Payment.RefundTransactionID,
		PaymentRefundAmount:        b.Payment.RefundAmount,
		PaymentRefundedAt:          b.Payment.RefundedAt,

		CancelledBy:        string(b.CancelledBy),
		CancellationReason: b.CancellationReason,
		CancellationDate:   b.CancellationDate,
		RefundAmount:       b.RefundAmount,

		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}

	if len(b.Pricing.AdditionalCharges) > 0 {
		m.PricingAdditionalCharges = jsonColumn(b.Pricing.AdditionalCharges)
	}

	if ws := b.WorkSummary; ws != nil {
		m.HasWorkSummary = true
		m.WorkStartTime = ws.WorkStartTime
		m.WorkEndTime = ws.WorkEndTime
		m.WorkDescription = ws.WorkDescription
		m.AdditionalNotes = ws.AdditionalNotes
		if len(ws.BeforeImages) > 0 {
			m.BeforeImages = jsonColumn(ws.BeforeImages)
		}
		if len(ws.AfterImages) > 0 {
			m.AfterImages = jsonColumn(ws.AfterImages)
		}
		if len(ws.MaterialsUsed) > 0 {
			m.MaterialsUsed = jsonColumn(ws.MaterialsUsed)
		}
	}

	return m
}

func toDomainBooking(m bookingModel, history []statusHistoryModel) *domain.Booking {
	b := &domain.Booking{
		ID:                  m.ID,
		BookingNumber:       m.BookingNumber,
		CustomerID:          m.CustomerID,
		ProviderID:          m.ProviderID,
		ServiceID:           m.ServiceID,
		ScheduledDate:       m.ScheduledDate,
		EstimatedDuration:   m.EstimatedDuration,
		ActualDuration:      m.ActualDuration,
		Address:             m.Address,
		ContactPhone:        m.ContactPhone,
		SpecialInstructions: m.SpecialInstructions,
		Status:              domain.BookingStatus(m.Status),

		Pricing: domain.Pricing{
			BaseAmount:        m.PricingBaseAmount,
			AdditionalCharges: chargesFromColumn(m.PricingAdditionalCharges),
			Discount:          m.PricingDiscount,
			DiscountType:      domain.DiscountType(m.PricingDiscountType),
			TaxAmount:         m.PricingTaxAmount,
			TotalAmount:       m.PricingTotalAmount,
		},

		Payment: domain.PaymentInfo{
			Status:              domain.PaymentStatus(m.PaymentStatus),
			Method:              domain.PaymentMethod(m.PaymentMethod),
			TransactionID:       m.PaymentTransactionID,
			PaidAmount:          m.PaymentPaidAmount,
			PaidAt:              m.PaymentPaidAt,
			RefundTransactionID: m.PaymentRefundTransactionID,
			RefundAmount:        m.PaymentRefundAmount,
			RefundedAt:          m.PaymentRefundedAt,
		},

		CancelledBy:        domain.CancelledBy(m.CancelledBy),
		CancellationReason: m.CancellationReason,
		CancellationDate:   m.CancellationDate,
		RefundAmount:       m.RefundAmount,

		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}

	if m.HasWorkSummary {
		b.WorkSummary = &domain.WorkSummary{
			WorkStartTime:   m.WorkStartTime,
			WorkEndTime:     m.WorkEndTime,
			WorkDescription: m.WorkDescription,
			BeforeImages:    stringsFromColumn(m.BeforeImages),
			AfterImages:     stringsFromColumn(m.AfterImages),
			MaterialsUsed:   stringsFromColumn(m.MaterialsUsed),
			AdditionalNotes: m.AdditionalNotes,
		}
	}

	for _, h := range history {
		b.StatusHistory = append(b.StatusHistory, domain.StatusChange{
			Status:    domain.BookingStatus(h.Status),
			ChangedBy: h.ChangedBy,
			ChangedAt: h.ChangedAt,
			Reason:    h.Reason,
			Comments:  h.Comments,
		})
	}

	return b
}

// Create inserts the booking together with its initial status history entry.
// Unique-constraint violations on booking_number propagate to the caller,
// which regenerates the number and retries.
func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	m := toBookingModel(b)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		for _, h := range b.StatusHistory {
			row := statusHistoryModel{
				BookingID: m.ID,
				Status:    string(h.Status),
				ChangedBy: h.ChangedBy,
				ChangedAt: h.ChangedAt,
				Reason:    h.Reason,
				Comments:  h.Comments,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.ID = m.ID
	b.CreatedAt = m.CreatedAt
	b.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *BookingRepository) loadHistory(ctx context.Context, bookingID int64) ([]statusHistoryModel, error) {
	var history []statusHistoryModel
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("changed_at ASC, id ASC").
		Find(&history).Error
	return history, err
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	var m bookingModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	history, err := r.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDomainBooking(m, history), nil
}

// ListFilter narrows booking listings; zero values mean "no filter".
type ListFilter struct {
	Status domain.BookingStatus
	Limit  int
	Offset int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 100 {
		return 20
	}
	return f.Limit
}

func (r *BookingRepository) list(ctx context.Context, column string, ownerID int64, f ListFilter) ([]domain.Booking, int64, error) {
	q := r.db.WithContext(ctx).Model(&bookingModel{}).Where(column+" = ?", ownerID)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []bookingModel
	err := q.Order("scheduled_date DESC").
		Limit(f.limit()).
		Offset(f.Offset).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]domain.Booking, 0, len(models))
	for _, m := range models {
		out = append(out, *toDomainBooking(m, nil))
	}
	return out, total, nil
}

func (r *BookingRepository) ListByCustomer(ctx context.Context, customerID int64, f ListFilter) ([]domain.Booking, int64, error) {
	return r.list(ctx, "customer_id", customerID, f)
}

func (r *BookingRepository) ListByProvider(ctx context.Context, providerID int64, f ListFilter) ([]domain.Booking, int64, error) {
	return r.list(ctx, "provider_id", providerID, f)
}

// ListUpcoming returns pending and confirmed bookings scheduled at or after
// the given instant, soonest first.
func (r *BookingRepository) ListUpcoming(ctx context.Context, column string, ownerID int64, from time.Time, limit int) ([]domain.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var models []bookingModel
	err := r.db.WithContext(ctx).
		Where(column+" = ?", ownerID).
		Where("scheduled_date >= ?", from).
		Where("status IN ?", []string{string(domain.BookingPending), string(domain.BookingConfirmed)}).
		Order("scheduled_date ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Booking, 0, len(models))
	for _, m := range models {
		out = append(out, *toDomainBooking(m, nil))
	}
	return out, nil
}

// ApplyTransition persists the result of a status transition: the booking row
// is updated only if it is still in prev, and the history entry is inserted
// in the same transaction. Returns ErrStaleBooking when the row moved on.
func (r *BookingRepository) ApplyTransition(ctx context.Context, b *domain.Booking, prev domain.BookingStatus, change domain.StatusChange) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":     string(b.Status),
			"updated_at": change.ChangedAt,
		}
		switch b.Status {
		case domain.BookingCancelled:
			updates["cancelled_by"] = string(b.CancelledBy)
			updates["cancellation_reason"] = b.CancellationReason
			updates["cancellation_date"] = b.CancellationDate
			updates["refund_amount"] = b.RefundAmount
		case domain.BookingInProgress:
			if ws := b.WorkSummary; ws != nil {
				updates["has_work_summary"] = true
				updates["work_start_time"] = ws.WorkStartTime
			}
		case domain.BookingCompleted:
			if ws := b.WorkSummary; ws != nil {
				updates["work_end_time"] = ws.WorkEndTime
			}
			updates["actual_duration"] = b.ActualDuration
		}

		res := tx.Model(&bookingModel{}).
			Where("id = ? AND status = ?", b.ID, string(prev)).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleBooking
		}

		row := statusHistoryModel{
			BookingID: b.ID,
			Status:    string(change.Status),
			ChangedBy: change.ChangedBy,
			ChangedAt: change.ChangedAt,
			Reason:    change.Reason,
			Comments:  change.Comments,
		}
		return tx.Create(&row).Error
	})
}

// UpdateWorkSummary overwrites the work summary fields while the booking is
// in one of the allowed statuses.
func (r *BookingRepository) UpdateWorkSummary(ctx context.Context, id int64, ws *domain.WorkSummary, allowed []domain.BookingStatus) error {
	statuses := make([]string, 0, len(allowed))
	for _, s := range allowed {
		statuses = append(statuses, string(s))
	}

	updates := map[string]interface{}{
		"has_work_summary": true,
		"work_description": ws.WorkDescription,
		"additional_notes": ws.AdditionalNotes,
		"updated_at":       time.Now().UTC(),
	}
	if ws.WorkStartTime != nil {
		updates["work_start_time"] = ws.WorkStartTime
	}
	if ws.WorkEndTime != nil {
		updates["work_end_time"] = ws.WorkEndTime
	}
	if len(ws.BeforeImages) > 0 {
		updates["before_images"] = jsonColumn(ws.BeforeImages)
	}
	if len(ws.AfterImages) > 0 {
		updates["after_images"] = jsonColumn(ws.AfterImages)
	}
	if len(ws.MaterialsUsed) > 0 {
		updates["materials_used"] = jsonColumn(ws.MaterialsUsed)
	}

	res := r.db.WithContext(ctx).Model(&bookingModel{}).
		Where("id = ? AND status IN ?", id, statuses).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleBooking
	}
	return nil
}

// MarkPaidIdempotent records a successful payment exactly once. Replays with
// the same (or any) transaction id after the booking is already paid are
// no-ops reported as changed=false.
func (r *BookingRepository) MarkPaidIdempotent(ctx context.Context, bookingID int64, method domain.PaymentMethod, transactionID string, amount int64, paidAt time.Time) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m bookingModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, bookingID).Error; err != nil {
			return err
		}
		if m.PaymentStatus == string(domain.PaymentPaid) {
			changed = false
			return nil
		}
		res := tx.Model(&bookingModel{}).
			Where("id = ? AND payment_status <> ?", bookingID, string(domain.PaymentPaid)).
			Updates(map[string]interface{}{
				"payment_status":         string(domain.PaymentPaid),
				"payment_method":         string(method),
				"payment_transaction_id": transactionID,
				"payment_paid_amount":    amount,
				"payment_paid_at":        paidAt,
				"updated_at":             paidAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("booking payment row not updated")
		}
		changed = true
		return nil
	})
	return changed, err
}

// MarkPaymentFailed flips the payment sub-state to failed unless the booking
// was already paid. A failure event arriving after a success never clobbers
// the paid state.
func (r *BookingRepository) MarkPaymentFailed(ctx context.Context, bookingID int64, transactionID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&bookingModel{}).
		Where("id = ? AND payment_status <> ?", bookingID, string(domain.PaymentPaid)).
		Updates(map[string]interface{}{
			"payment_status":         string(domain.PaymentFailed),
			"payment_transaction_id": transactionID,
			"updated_at":             time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecordRefundIfAbsent stores the refund exactly once: the write only lands
// while the booking is paid and carries no refund transaction yet. Replays of
// the same refund report changed=false without touching the row.
func (r *BookingRepository) RecordRefundIfAbsent(ctx context.Context, bookingID int64, refundTransactionID string, amount int64, status domain.PaymentStatus, refundedAt time.Time) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m bookingModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, bookingID).Error; err != nil {
			return err
		}
		if m.PaymentRefundTransactionID != "" {
			changed = false
			return nil
		}
		if m.PaymentStatus != string(domain.PaymentPaid) {
			return ErrStaleBooking
		}
		res := tx.Model(&bookingModel{}).
			Where("id = ? AND payment_status = ? AND payment_refund_transaction_id = ''", bookingID, string(domain.PaymentPaid)).
			Updates(map[string]interface{}{
				"payment_status":                string(status),
				"payment_refund_transaction_id": refundTransactionID,
				"payment_refund_amount":         amount,
				"payment_refunded_at":           refundedAt,
				"updated_at":                    refundedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleBooking
		}
		changed = true
		return nil
	})
	return changed, err
}

// ListTransactions returns bookings that have touched the payment gateway,
// most recent first.
func (r *BookingRepository) ListTransactions(ctx context.Context, column string, ownerID int64, f ListFilter) ([]domain.Booking, int64, error) {
	q := r.db.WithContext(ctx).Model(&bookingModel{}).
		Where(column+" = ?", ownerID).
		Where("payment_transaction_id <> ''")

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []bookingModel
	err := q.Order("payment_paid_at DESC, updated_at DESC").
		Limit(f.limit()).
		Offset(f.Offset).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]domain.Booking, 0, len(models))
	for _, m := range models {
		out = append(out, *toDomainBooking(m, nil))
	}
	return out, total, nil
}
