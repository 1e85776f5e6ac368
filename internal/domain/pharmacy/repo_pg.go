package pharmacy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconnect/medconnect/internal/platform/db"
)

// escapeLike quotes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// =========== Medicine Repository ===========

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) MedicineRepository {
	return &medicineRepoPG{pool: pool}
}

func (r *medicineRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const medicineCols = `m.id, m.pharmacy_id, m.name, m.description, m.price, m.stock, m.discount,
	m.requires_prescription, m.expiry_date, m.created_at, m.updated_at`

func scanMedicine(row pgx.Row, extra ...interface{}) (*Medicine, error) {
	var m Medicine
	dest := []interface{}{&m.ID, &m.PharmacyID, &m.Name, &m.Description, &m.Price, &m.Stock, &m.Discount,
		&m.RequiresPrescription, &m.ExpiryDate, &m.CreatedAt, &m.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, db.Classify(err, "medicine not found", "")
	}
	return &m, nil
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicines (id, pharmacy_id, name, description, price, stock, discount,
			requires_prescription, expiry_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		m.ID, m.PharmacyID, m.Name, m.Description, m.Price, m.Stock, m.Discount,
		m.RequiresPrescription, m.ExpiryDate).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medicineCols+` FROM medicines m WHERE m.id = $1`, id))
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicines SET name=$2, description=$3, price=$4, stock=$5, discount=$6,
			requires_prescription=$7, expiry_date=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Name, m.Description, m.Price, m.Stock, m.Discount,
		m.RequiresPrescription, m.ExpiryDate).Scan(&m.UpdatedAt)
	return db.Classify(err, "medicine not found", "")
}

func (r *medicineRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medicines WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.Classify(pgx.ErrNoRows, "medicine not found", "")
	}
	return nil
}

func (r *medicineRepoPG) List(ctx context.Context, f MedicineFilter, limit, offset int) ([]*Medicine, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.PharmacyID != nil {
		args = append(args, *f.PharmacyID)
		where = append(where, fmt.Sprintf("m.pharmacy_id = $%d", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		where = append(where, fmt.Sprintf("(m.name ILIKE $%d OR m.description ILIKE $%d)", len(args), len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicines m`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+medicineCols+` FROM medicines m`+clause+
			fmt.Sprintf(` ORDER BY m.name, m.created_at LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *medicineRepoPG) SearchByName(ctx context.Context, name string) ([]MedicineAt, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medicineCols+`, `+locationCols+`
		FROM medicines m
		JOIN pharmacy_profiles p ON p.id = m.pharmacy_id
		JOIN users u ON u.id = p.user_id
		WHERE m.name ILIKE $1 AND p.latitude IS NOT NULL AND p.longitude IS NOT NULL
		ORDER BY p.seq, m.created_at`,
		"%"+escapeLike(name)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MedicineAt
	for rows.Next() {
		var loc Location
		m, err := scanMedicine(rows, locationDest(&loc)...)
		if err != nil {
			return nil, err
		}
		out = append(out, MedicineAt{Medicine: *m, Pharmacy: loc})
	}
	return out, rows.Err()
}

// =========== Location Repository ===========

type locationRepoPG struct{ pool *pgxpool.Pool }

func NewLocationRepoPG(pool *pgxpool.Pool) LocationRepository {
	return &locationRepoPG{pool: pool}
}

func (r *locationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const locationCols = `p.id, p.user_id, p.business_name, u.address, u.phone_number, p.is_verified, p.latitude, p.longitude`

const locationFrom = ` FROM pharmacy_profiles p JOIN users u ON u.id = p.user_id`

func locationDest(l *Location) []interface{} {
	return []interface{}{&l.ID, &l.UserID, &l.BusinessName, &l.Address, &l.Phone, &l.IsVerified, &l.Latitude, &l.Longitude}
}

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	if err := row.Scan(locationDest(&l)...); err != nil {
		return nil, db.Classify(err, "pharmacy not found", "")
	}
	return &l, nil
}

func filterClause(f Filter, geocoded bool) string {
	var conds []string
	if geocoded {
		conds = append(conds, "p.latitude IS NOT NULL AND p.longitude IS NOT NULL")
	}
	if f.VerifiedOnly {
		conds = append(conds, "p.is_verified")
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func (r *locationRepoPG) ListGeocoded(ctx context.Context, f Filter) ([]Location, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+locationCols+locationFrom+filterClause(f, true)+` ORDER BY p.seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *locationRepoPG) First(ctx context.Context, f Filter) (*Location, error) {
	return scanLocation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+locationCols+locationFrom+filterClause(f, false)+` ORDER BY p.seq LIMIT 1`))
}

func (r *locationRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Location, error) {
	return scanLocation(r.conn(ctx).QueryRow(ctx, `SELECT `+locationCols+locationFrom+` WHERE p.user_id = $1`, userID))
}
