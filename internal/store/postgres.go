package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"BookingSettlement/internal/apperr"
	"BookingSettlement/internal/models"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Postgres struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const bookingColumns = `
	id, tenant_id, host_id, property_id, check_in_date, check_out_date,
	nights, number_of_guests, currency, base_price, requested_price, status,
	tenant_wallet_address, host_wallet_address, on_chain_tx_hash,
	tenant_checked_out_at, completed_at, cancelled_by, created_at, updated_at`

const offerColumns = `
	id, booking_id, proposed_price, proposed_by, negotiation_percent_bound,
	status, created_at, expires_at, resolved_at`

const intentColumns = `
	id, booking_id, recipient_address, sender_address, amount, symbol, decimals,
	chain_id, fiat_amount, currency, rate, rate_source, rate_at, status,
	created_at, expires_at`

const settlementColumns = `
	id, booking_id, intent_id, tx_hash, status, confirmations, failure_reason,
	submitted_at, finalized_at, updated_at`

func (s *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

func (s *Postgres) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	return b, err
}

func (s *Postgres) ListBookingEvents(ctx context.Context, bookingID string) ([]*models.BookingEvent, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, booking_id, event, from_status, to_status, actor_id, at
		FROM booking_events WHERE booking_id=$1 ORDER BY seq
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.BookingEvent
	for rows.Next() {
		var ev models.BookingEvent
		if err := rows.Scan(&ev.ID, &ev.BookingID, &ev.Event, &ev.FromStatus, &ev.ToStatus, &ev.ActorID, &ev.At); err != nil {
			return nil, err
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (s *Postgres) ListOffers(ctx context.Context, bookingID string) ([]*models.NegotiationOffer, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+offerColumns+` FROM negotiation_offers WHERE booking_id=$1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.NegotiationOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Postgres) ListIntents(ctx context.Context, bookingID string) ([]*models.PaymentIntent, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE booking_id=$1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PaymentIntent
	for rows.Next() {
		p, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) ListSettlements(ctx context.Context, bookingID string) ([]*models.SettlementRecord, error) {
	return listSettlements(ctx, s.Pool, `WHERE booking_id=$1`, bookingID)
}

func (s *Postgres) ListSubmittedSettlements(ctx context.Context) ([]*models.SettlementRecord, error) {
	return listSettlements(ctx, s.Pool, `WHERE status='SUBMITTED'`)
}

func (s *Postgres) ListBookingsWithOfferExpiredBefore(ctx context.Context, before time.Time) ([]string, error) {
	return listIDs(ctx, s.Pool, `
		SELECT DISTINCT o.booking_id
		FROM negotiation_offers o
		JOIN bookings b ON b.id = o.booking_id
		WHERE o.status='OPEN' AND o.expires_at < $1 AND b.status='PENDING_NEGOTIATION'
		ORDER BY o.booking_id
	`, before)
}

func (s *Postgres) ListBookingsCheckedOutBefore(ctx context.Context, before time.Time) ([]string, error) {
	return listIDs(ctx, s.Pool, `
		SELECT id FROM bookings
		WHERE status='TENANT_CHECKED_OUT' AND tenant_checked_out_at < $1
		ORDER BY id
	`, before)
}

func (s *Postgres) ExpireIntents(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE payment_intents
		SET status='EXPIRED'
		WHERE status='ACTIVE' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (s *Postgres) LatestRate(ctx context.Context, fiat, symbol string) (*models.ConversionRate, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT fiat_currency, symbol, rate, source, effective_at
		FROM conversion_rates
		WHERE fiat_currency=$1 AND symbol=$2
		ORDER BY effective_at DESC LIMIT 1
	`, fiat, symbol)

	var r models.ConversionRate
	var rate string
	if err := row.Scan(&r.FiatCurrency, &r.Symbol, &rate, &r.Source, &r.EffectiveAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("no conversion rate for %s/%s", fiat, symbol)
		}
		return nil, err
	}
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return nil, err
	}
	r.Rate = d
	return &r, nil
}

func (s *Postgres) InsertRate(ctx context.Context, rate *models.ConversionRate) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO conversion_rates (fiat_currency, symbol, rate, source, effective_at)
		VALUES ($1,$2,$3,$4,$5)
	`, rate.FiatCurrency, rate.Symbol, rate.Rate.String(), rate.Source, rate.EffectiveAt)
	return err
}

type pgTx struct {
	q queryer
}

func (t *pgTx) LockProperty(ctx context.Context, propertyID string) error {
	_, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "property:"+propertyID)
	return err
}

func (t *pgTx) LockBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := t.q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1 FOR UPDATE`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	return b, err
}

func (t *pgTx) FindOverlapping(ctx context.Context, propertyID string, checkIn, checkOut time.Time, excludeID string) ([]string, error) {
	holding := make([]string, 0, len(models.CalendarHoldingStatuses))
	for _, s := range models.CalendarHoldingStatuses {
		holding = append(holding, string(s))
	}
	return listIDs(ctx, t.q, `
		SELECT id FROM bookings
		WHERE property_id=$1 AND id<>$2 AND status = ANY($3)
		  AND check_in_date < $5 AND $4 < check_out_date
		ORDER BY id
	`, propertyID, excludeID, holding, checkIn, checkOut)
}

func (t *pgTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, bookingArgs(b)...)
	return mapWriteErr(err)
}

func (t *pgTx) UpdateBooking(ctx context.Context, b *models.Booking) error {
	args := bookingArgs(b)
	res, err := t.q.Exec(ctx, `
		UPDATE bookings SET
			check_in_date=$2, check_out_date=$3, nights=$4, number_of_guests=$5,
			currency=$6, base_price=$7, requested_price=$8, status=$9,
			tenant_wallet_address=$10, host_wallet_address=$11, on_chain_tx_hash=$12,
			tenant_checked_out_at=$13, completed_at=$14, cancelled_by=$15, updated_at=$16
		WHERE id=$1
	`, append([]any{args[0]}, append(args[4:18], args[19])...)...)
	if err != nil {
		return mapWriteErr(err)
	}
	if res.RowsAffected() == 0 {
		return apperr.NotFound("booking %s not found", b.ID)
	}
	return nil
}

func (t *pgTx) InsertEvent(ctx context.Context, ev *models.BookingEvent) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO booking_events (id, booking_id, event, from_status, to_status, actor_id, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, ev.ID, ev.BookingID, ev.Event, ev.FromStatus, ev.ToStatus, ev.ActorID, ev.At)
	return err
}

func (t *pgTx) OpenOffer(ctx context.Context, bookingID string) (*models.NegotiationOffer, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+offerColumns+` FROM negotiation_offers
		WHERE booking_id=$1 AND status='OPEN'
		ORDER BY created_at DESC LIMIT 1
	`, bookingID)
	o, err := scanOffer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

func (t *pgTx) InsertOffer(ctx context.Context, o *models.NegotiationOffer) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO negotiation_offers (`+offerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, o.ID, o.BookingID, o.ProposedPrice.String(), o.ProposedBy, o.NegotiationPercentBound.String(),
		o.Status, o.CreatedAt, o.ExpiresAt, o.ResolvedAt)
	return mapWriteErr(err)
}

func (t *pgTx) UpdateOffer(ctx context.Context, o *models.NegotiationOffer) error {
	_, err := t.q.Exec(ctx, `
		UPDATE negotiation_offers SET status=$2, resolved_at=$3 WHERE id=$1
	`, o.ID, o.Status, o.ResolvedAt)
	return err
}

func (t *pgTx) ActiveIntent(ctx context.Context, bookingID string) (*models.PaymentIntent, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE booking_id=$1 AND status='ACTIVE'
		ORDER BY created_at DESC LIMIT 1
	`, bookingID)
	p, err := scanIntent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (t *pgTx) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	row := t.q.QueryRow(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id=$1`, id)
	p, err := scanIntent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("payment intent %s not found", id)
	}
	return p, err
}

func (t *pgTx) InsertIntent(ctx context.Context, p *models.PaymentIntent) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO payment_intents (`+intentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, p.ID, p.BookingID, p.RecipientAddress, p.SenderAddress, p.Amount, p.Symbol, p.Decimals,
		p.ChainID, p.FiatAmount.String(), p.Currency, p.Rate.String(), p.RateSource, p.RateAt,
		p.Status, p.CreatedAt, p.ExpiresAt)
	return mapWriteErr(err)
}

func (t *pgTx) UpdateIntentStatus(ctx context.Context, id string, status models.IntentStatus) error {
	_, err := t.q.Exec(ctx, `UPDATE payment_intents SET status=$2 WHERE id=$1`, id, status)
	return err
}

func (t *pgTx) SettlementByTxHash(ctx context.Context, txHash string) (*models.SettlementRecord, error) {
	row := t.q.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlement_records WHERE tx_hash=$1`, txHash)
	r, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (t *pgTx) BookingSettlements(ctx context.Context, bookingID string) ([]*models.SettlementRecord, error) {
	return listSettlements(ctx, t.q, `WHERE booking_id=$1`, bookingID)
}

func (t *pgTx) InsertSettlement(ctx context.Context, r *models.SettlementRecord) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO settlement_records (`+settlementColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, r.ID, r.BookingID, r.IntentID, r.TxHash, r.Status, r.Confirmations, r.FailureReason,
		r.SubmittedAt, r.FinalizedAt, r.UpdatedAt)
	return mapWriteErr(err)
}

func (t *pgTx) UpdateSettlement(ctx context.Context, r *models.SettlementRecord) error {
	_, err := t.q.Exec(ctx, `
		UPDATE settlement_records
		SET status=$2, confirmations=$3, failure_reason=$4, finalized_at=$5, updated_at=$6
		WHERE id=$1
	`, r.ID, r.Status, r.Confirmations, r.FailureReason, r.FinalizedAt, r.UpdatedAt)
	return err
}

func bookingArgs(b *models.Booking) []any {
	var requested *string
	if b.RequestedPrice.Valid {
		s := b.RequestedPrice.Decimal.String()
		requested = &s
	}
	return []any{
		b.ID, b.TenantID, b.HostID, b.PropertyID, b.CheckInDate, b.CheckOutDate,
		b.Nights, b.NumberOfGuests, b.Currency, b.BasePrice.String(), requested, b.Status,
		b.TenantWalletAddress, b.HostWalletAddress, b.OnChainTxHash,
		b.TenantCheckedOutAt, b.CompletedAt, b.CancelledBy, b.CreatedAt, b.UpdatedAt,
	}
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var basePrice string
	var requested, txHash, cancelledBy sql.NullString
	var checkedOutAt, completedAt sql.NullTime

	err := row.Scan(
		&b.ID, &b.TenantID, &b.HostID, &b.PropertyID, &b.CheckInDate, &b.CheckOutDate,
		&b.Nights, &b.NumberOfGuests, &b.Currency, &basePrice, &requested, &b.Status,
		&b.TenantWalletAddress, &b.HostWalletAddress, &txHash,
		&checkedOutAt, &completedAt, &cancelledBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if b.BasePrice, err = decimal.NewFromString(basePrice); err != nil {
		return nil, err
	}
	if requested.Valid {
		d, err := decimal.NewFromString(requested.String)
		if err != nil {
			return nil, err
		}
		b.RequestedPrice = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	if txHash.Valid {
		b.OnChainTxHash = &txHash.String
	}
	if cancelledBy.Valid {
		b.CancelledBy = &cancelledBy.String
	}
	if checkedOutAt.Valid {
		b.TenantCheckedOutAt = &checkedOutAt.Time
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	return &b, nil
}

func scanOffer(row rowScanner) (*models.NegotiationOffer, error) {
	var o models.NegotiationOffer
	var price, bound string
	var resolvedAt sql.NullTime
	if err := row.Scan(&o.ID, &o.BookingID, &price, &o.ProposedBy, &bound, &o.Status, &o.CreatedAt, &o.ExpiresAt, &resolvedAt); err != nil {
		return nil, err
	}
	var err error
	if o.ProposedPrice, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	if o.NegotiationPercentBound, err = decimal.NewFromString(bound); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		o.ResolvedAt = &resolvedAt.Time
	}
	return &o, nil
}

func scanIntent(row rowScanner) (*models.PaymentIntent, error) {
	var p models.PaymentIntent
	var fiat, rate string
	err := row.Scan(
		&p.ID, &p.BookingID, &p.RecipientAddress, &p.SenderAddress, &p.Amount, &p.Symbol, &p.Decimals,
		&p.ChainID, &fiat, &p.Currency, &rate, &p.RateSource, &p.RateAt, &p.Status,
		&p.CreatedAt, &p.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	if p.FiatAmount, err = decimal.NewFromString(fiat); err != nil {
		return nil, err
	}
	if p.Rate, err = decimal.NewFromString(rate); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanSettlement(row rowScanner) (*models.SettlementRecord, error) {
	var r models.SettlementRecord
	var reason sql.NullString
	var finalizedAt sql.NullTime
	err := row.Scan(&r.ID, &r.BookingID, &r.IntentID, &r.TxHash, &r.Status, &r.Confirmations,
		&reason, &r.SubmittedAt, &finalizedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		r.FailureReason = &reason.String
	}
	if finalizedAt.Valid {
		r.FinalizedAt = &finalizedAt.Time
	}
	return &r, nil
}

func listSettlements(ctx context.Context, q queryer, where string, args ...any) ([]*models.SettlementRecord, error) {
	rows, err := q.Query(ctx, `SELECT `+settlementColumns+` FROM settlement_records `+where+` ORDER BY submitted_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SettlementRecord
	for rows.Next() {
		r, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func listIDs(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return apperr.Wrap(apperr.KindConflict, err, "record already exists (%s)", pgErr.ConstraintName)
		case pgerrcode.ExclusionViolation:
			return apperr.Wrap(apperr.KindConflict, err, "dates overlap an existing booking")
		}
	}
	return err
}
