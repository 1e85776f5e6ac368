package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconnect/medconnect/internal/platform/db"
)

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, username, email, password_hash, first_name, last_name, role,
	phone_number, address, latitude, longitude, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role,
		&u.PhoneNumber, &u.Address, &u.Latitude, &u.Longitude, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, db.Classify(err, "user not found", "")
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, role,
			phone_number, address, latitude, longitude)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role,
		u.PhoneNumber, u.Address, u.Latitude, u.Longitude).Scan(&u.CreatedAt, &u.UpdatedAt)
	return db.Classify(err, "", "a user with this username or email already exists")
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByLogin(ctx context.Context, login string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE username = $1 OR LOWER(email) = $2 LIMIT 1`,
		login, strings.ToLower(login)))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET first_name=$2, last_name=$3, phone_number=$4, address=$5,
			latitude=$6, longitude=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.FirstName, u.LastName, u.PhoneNumber, u.Address, u.Latitude, u.Longitude).Scan(&u.UpdatedAt)
	return db.Classify(err, "user not found", "")
}

// =========== Patient Profile Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientProfileRepoPG(pool *pgxpool.Pool) PatientProfileRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, user_id, date_of_birth, medical_history, allergies, emergency_contact, emergency_phone`

func (r *patientRepoPG) Create(ctx context.Context, p *PatientProfile) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_profiles (id, user_id, date_of_birth, medical_history, allergies,
			emergency_contact, emergency_phone)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.UserID, p.DateOfBirth, p.MedicalHistory, p.Allergies, p.EmergencyContact, p.EmergencyPhone)
	return db.Classify(err, "", "patient profile already exists")
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*PatientProfile, error) {
	var p PatientProfile
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient_profiles WHERE user_id = $1`, userID).
		Scan(&p.ID, &p.UserID, &p.DateOfBirth, &p.MedicalHistory, &p.Allergies, &p.EmergencyContact, &p.EmergencyPhone)
	if err != nil {
		return nil, db.Classify(err, "patient profile not found", "")
	}
	return &p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *PatientProfile) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_profiles SET date_of_birth=$2, medical_history=$3, allergies=$4,
			emergency_contact=$5, emergency_phone=$6
		WHERE id = $1`,
		p.ID, p.DateOfBirth, p.MedicalHistory, p.Allergies, p.EmergencyContact, p.EmergencyPhone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.Classify(pgx.ErrNoRows, "patient profile not found", "")
	}
	return nil
}

// =========== Pharmacy Profile Repository ===========

type pharmacyRepoPG struct{ pool *pgxpool.Pool }

func NewPharmacyProfileRepoPG(pool *pgxpool.Pool) PharmacyProfileRepository {
	return &pharmacyRepoPG{pool: pool}
}

func (r *pharmacyRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const pharmacyCols = `id, user_id, license_number, business_name, operating_hours, is_verified,
	rating, total_ratings, latitude, longitude, created_at`

func scanPharmacy(row pgx.Row) (*PharmacyProfile, error) {
	var p PharmacyProfile
	err := row.Scan(&p.ID, &p.UserID, &p.LicenseNumber, &p.BusinessName, &p.OperatingHours, &p.IsVerified,
		&p.Rating, &p.TotalRatings, &p.Latitude, &p.Longitude, &p.CreatedAt)
	if err != nil {
		return nil, db.Classify(err, "pharmacy not found", "")
	}
	return &p, nil
}

func (r *pharmacyRepoPG) Create(ctx context.Context, p *PharmacyProfile) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pharmacy_profiles (id, user_id, license_number, business_name, operating_hours,
			latitude, longitude)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, rating, total_ratings, is_verified`,
		p.ID, p.UserID, p.LicenseNumber, p.BusinessName, p.OperatingHours, p.Latitude, p.Longitude).
		Scan(&p.CreatedAt, &p.Rating, &p.TotalRatings, &p.IsVerified)
	return db.Classify(err, "", "a pharmacy with this license number already exists")
}

func (r *pharmacyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PharmacyProfile, error) {
	return scanPharmacy(r.conn(ctx).QueryRow(ctx, `SELECT `+pharmacyCols+` FROM pharmacy_profiles WHERE id = $1`, id))
}

func (r *pharmacyRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*PharmacyProfile, error) {
	return scanPharmacy(r.conn(ctx).QueryRow(ctx, `SELECT `+pharmacyCols+` FROM pharmacy_profiles WHERE user_id = $1`, userID))
}

func (r *pharmacyRepoPG) Update(ctx context.Context, p *PharmacyProfile) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE pharmacy_profiles SET business_name=$2, operating_hours=$3, latitude=$4, longitude=$5
		WHERE id = $1`,
		p.ID, p.BusinessName, p.OperatingHours, p.Latitude, p.Longitude)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.Classify(pgx.ErrNoRows, "pharmacy not found", "")
	}
	return nil
}

func (r *pharmacyRepoPG) SetVerified(ctx context.Context, id uuid.UUID, verified bool) (*PharmacyProfile, error) {
	return scanPharmacy(r.conn(ctx).QueryRow(ctx,
		`UPDATE pharmacy_profiles SET is_verified = $2 WHERE id = $1 RETURNING `+pharmacyCols, id, verified))
}

func (r *pharmacyRepoPG) List(ctx context.Context, verifiedOnly bool, limit, offset int) ([]*PharmacyProfile, int, error) {
	where := ""
	if verifiedOnly {
		where = " WHERE is_verified"
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM pharmacy_profiles`+where).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+pharmacyCols+` FROM pharmacy_profiles`+where+` ORDER BY seq LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*PharmacyProfile
	for rows.Next() {
		p, err := scanPharmacy(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
