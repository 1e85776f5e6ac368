package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/db"
)

// =========== Broadcast Repository ===========

type broadcastRepoPG struct{ pool *pgxpool.Pool }

func NewBroadcastRepoPG(pool *pgxpool.Pool) BroadcastRepository {
	return &broadcastRepoPG{pool: pool}
}

func (r *broadcastRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const broadcastCols = `b.id, b.patient_id, b.medication_name, b.dosage, b.frequency, b.duration, b.notes,
	b.prescription_image, b.status, b.expiry_date,
	(SELECT COUNT(*) FROM pharmacy_responses pr WHERE pr.broadcast_id = b.id),
	b.created_at, b.updated_at`

func scanBroadcast(row pgx.Row) (*Broadcast, error) {
	var b Broadcast
	err := row.Scan(&b.ID, &b.PatientID, &b.MedicationName, &b.Dosage, &b.Frequency, &b.Duration, &b.Notes,
		&b.PrescriptionImage, &b.Status, &b.ExpiryDate, &b.ResponsesCount, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err, "broadcast not found", "")
	}
	return &b, nil
}

func (r *broadcastRepoPG) Create(ctx context.Context, b *Broadcast) error {
	b.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription_broadcasts (id, patient_id, medication_name, dosage, frequency, duration,
			notes, prescription_image, status, expiry_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		b.ID, b.PatientID, b.MedicationName, b.Dosage, b.Frequency, b.Duration,
		b.Notes, b.PrescriptionImage, b.Status, b.ExpiryDate).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *broadcastRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Broadcast, error) {
	return scanBroadcast(r.conn(ctx).QueryRow(ctx,
		`SELECT `+broadcastCols+` FROM prescription_broadcasts b WHERE b.id = $1`, id))
}

func (r *broadcastRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Broadcast, error) {
	return scanBroadcast(r.conn(ctx).QueryRow(ctx,
		`SELECT `+broadcastCols+` FROM prescription_broadcasts b WHERE b.id = $1 FOR UPDATE OF b`, id))
}

func (r *broadcastRepoPG) List(ctx context.Context, f BroadcastFilter, limit, offset int) ([]*Broadcast, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, fmt.Sprintf("b.patient_id = $%d", len(args)))
	}
	if f.VisibleAt != nil {
		args = append(args, *f.VisibleAt)
		conds = append(conds, fmt.Sprintf("b.status = 'active' AND b.expiry_date > $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescription_broadcasts b`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT `+broadcastCols+` FROM prescription_broadcasts b`+where+
		` ORDER BY b.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *broadcastRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription_broadcasts SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("broadcast not found")
	}
	return nil
}

// =========== Response Repository ===========

type responseRepoPG struct{ pool *pgxpool.Pool }

func NewResponseRepoPG(pool *pgxpool.Pool) ResponseRepository {
	return &responseRepoPG{pool: pool}
}

func (r *responseRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const responseCols = `r.id, r.broadcast_id, r.pharmacy_id, r.status, r.price, r.estimated_delivery_time,
	r.notes, r.created_at, r.updated_at`

func scanResponse(row pgx.Row) (*Response, error) {
	var resp Response
	err := row.Scan(&resp.ID, &resp.BroadcastID, &resp.PharmacyID, &resp.Status, &resp.Price,
		&resp.EstimatedDeliveryTime, &resp.Notes, &resp.CreatedAt, &resp.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err, "response not found", "")
	}
	return &resp, nil
}

func (r *responseRepoPG) Create(ctx context.Context, resp *Response) error {
	resp.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pharmacy_responses (id, broadcast_id, pharmacy_id, status, price, estimated_delivery_time, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		resp.ID, resp.BroadcastID, resp.PharmacyID, resp.Status, resp.Price, resp.EstimatedDeliveryTime, resp.Notes,
	).Scan(&resp.CreatedAt, &resp.UpdatedAt)
	return db.Classify(err, "", "this pharmacy has already responded to the broadcast")
}

func (r *responseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Response, error) {
	return scanResponse(r.conn(ctx).QueryRow(ctx,
		`SELECT `+responseCols+` FROM pharmacy_responses r WHERE r.id = $1`, id))
}

func (r *responseRepoPG) List(ctx context.Context, f ResponseFilter, limit, offset int) ([]*Response, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.PharmacyID != nil {
		args = append(args, *f.PharmacyID)
		conds = append(conds, fmt.Sprintf("r.pharmacy_id = $%d", len(args)))
	}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, fmt.Sprintf("b.patient_id = $%d", len(args)))
	}
	if f.BroadcastID != nil {
		args = append(args, *f.BroadcastID)
		conds = append(conds, fmt.Sprintf("r.broadcast_id = $%d", len(args)))
	}
	from := ` FROM pharmacy_responses r JOIN prescription_broadcasts b ON b.id = r.broadcast_id`
	if len(conds) > 0 {
		from += " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT `+responseCols+from+
		` ORDER BY r.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, resp)
	}
	return items, total, rows.Err()
}

func (r *responseRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE pharmacy_responses SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("response not found")
	}
	return nil
}

func (r *responseRepoPG) NearExpiry(ctx context.Context, pharmacyID uuid.UUID, now, until time.Time) ([]*Discount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT r.id, b.id, b.medication_name, r.status, b.expiry_date, r.price
		FROM pharmacy_responses r JOIN prescription_broadcasts b ON b.id = r.broadcast_id
		WHERE r.pharmacy_id = $1
		  AND r.status IN ('pending', 'accepted')
		  AND b.status = 'active'
		  AND b.expiry_date > $2 AND b.expiry_date <= $3
		ORDER BY b.expiry_date, r.created_at`, pharmacyID, now, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Discount
	for rows.Next() {
		var d Discount
		if err := rows.Scan(&d.ResponseID, &d.BroadcastID, &d.MedicationName, &d.Status, &d.ExpiryDate, &d.Price); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}
