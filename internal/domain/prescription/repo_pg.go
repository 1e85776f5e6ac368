package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/db"
)

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const prescriptionCols = `id, patient_id, medicine_id, pharmacy_id, prescription_image, status,
	notes, latitude, longitude, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.MedicineID, &p.PharmacyID, &p.PrescriptionImage, &p.Status,
		&p.Notes, &p.Latitude, &p.Longitude, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err, "prescription not found", "")
	}
	return &p, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (id, patient_id, medicine_id, pharmacy_id, prescription_image, status,
			notes, latitude, longitude)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.MedicineID, p.PharmacyID, p.PrescriptionImage, p.Status,
		p.Notes, p.Latitude, p.Longitude).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1`, id))
}

func (r *prescriptionRepoPG) List(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.Unassigned {
		conds = append(conds, "pharmacy_id IS NULL AND status = 'pending'")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT `+prescriptionCols+` FROM prescriptions`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *prescriptionRepoPG) Assign(ctx context.Context, id, pharmacyID uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx, `
		UPDATE prescriptions SET pharmacy_id = $2, status = 'accepted', updated_at = NOW()
		WHERE id = $1 AND pharmacy_id IS NULL
		RETURNING `+prescriptionCols, id, pharmacyID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	// Nothing updated: either the row is missing or already assigned.
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM prescriptions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("prescription not found")
	}
	return nil, apperr.Conflict("prescription already assigned to a pharmacy")
}

// =========== Order Repository ===========

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const orderCols = `id, patient_id, pharmacy_id, prescription_id, status, total_amount,
	shipping_address, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.PatientID, &o.PharmacyID, &o.PrescriptionID, &o.Status, &o.TotalAmount,
		&o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err, "order not found", "")
	}
	o.Items = []OrderItem{}
	return &o, nil
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	if o.Items == nil {
		o.Items = []OrderItem{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO orders (id, patient_id, pharmacy_id, prescription_id, status, total_amount, shipping_address)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		o.ID, o.PatientID, o.PharmacyID, o.PrescriptionID, o.Status, o.TotalAmount, o.ShippingAddress,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepoPG) List(ctx context.Context, f OrderFilter, limit, offset int) ([]*Order, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.PharmacyID != nil {
		args = append(args, *f.PharmacyID)
		conds = append(conds, fmt.Sprintf("pharmacy_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT `+orderCols+` FROM orders`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.loadItems(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *orderRepoPG) loadItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Order, len(orders))
	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		byID[o.ID] = o
		ids[i] = o.ID
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, order_id, medicine_id, quantity, price
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY seq`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MedicineID, &it.Quantity, &it.Price); err != nil {
			return err
		}
		o := byID[it.OrderID]
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (r *orderRepoPG) AddItem(ctx context.Context, item *OrderItem) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orders SET total_amount = total_amount + $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`, item.OrderID, item.Subtotal(), openOrderStatuses)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("order no longer accepts items")
	}

	item.ID = uuid.New()
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO order_items (id, order_id, medicine_id, quantity, price)
		VALUES ($1,$2,$3,$4,$5)`,
		item.ID, item.OrderID, item.MedicineID, item.Quantity, item.Price)
	return err
}

func (r *orderRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict(fmt.Sprintf("order is no longer %s", from))
	}
	return nil
}

func (r *orderRepoPG) ReassignPending(ctx context.Context, prescriptionID, pharmacyID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orders SET pharmacy_id = $2, updated_at = NOW()
		WHERE prescription_id = $1 AND status = 'pending' AND pharmacy_id <> $2`,
		prescriptionID, pharmacyID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
