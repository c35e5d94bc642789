// internal/repository/customer_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/unclebandit/voiceops-backend/internal/model"
)

type CustomerRepositoryInterface interface {
	FindOrCreate(ctx context.Context, c *model.Customer) (*model.Customer, error)
	GetByID(ctx context.Context, id int64) (*model.Customer, error)
	GetByPhone(ctx context.Context, orgID int64, phone string) (*model.Customer, error)
	FindOrCreateVehicle(ctx context.Context, v *model.Vehicle) (*model.Vehicle, error)
	GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error)
}

type CustomerRepository struct {
	DB *sql.DB
}

func scanCustomer(row rowScanner) (*model.Customer, error) {
	var (
		c     model.Customer
		email sql.NullString
	)
	if err := row.Scan(&c.ID, &c.OrgID, &c.FullName, &c.PhoneE164, &email, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Email = stringPtr(email)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

// FindOrCreate returns the customer with c's org and phone, inserting c
// when there is none.
func (r *CustomerRepository) FindOrCreate(ctx context.Context, c *model.Customer) (*model.Customer, error) {
	c.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO customers (org_id, full_name, phone_e164, email, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org_id, phone_e164) DO NOTHING
		RETURNING id
	`
	err := getDB(ctx, r.DB).QueryRowContext(ctx, query,
		c.OrgID, c.FullName, c.PhoneE164, nullString(c.Email), c.CreatedAt,
	).Scan(&c.ID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return r.GetByPhone(ctx, c.OrgID, c.PhoneE164)
}

func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*model.Customer, error) {
	query := `SELECT id, org_id, full_name, phone_e164, email, created_at FROM customers WHERE id = $1`
	c, err := scanCustomer(getDB(ctx, r.DB).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *CustomerRepository) GetByPhone(ctx context.Context, orgID int64, phone string) (*model.Customer, error) {
	query := `
		SELECT id, org_id, full_name, phone_e164, email, created_at
		FROM customers WHERE org_id = $1 AND phone_e164 = $2
	`
	c, err := scanCustomer(getDB(ctx, r.DB).QueryRowContext(ctx, query, orgID, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

const vehicleColumns = `id, org_id, customer_id, make, model, year, plate_number, created_at`

func scanVehicle(row rowScanner) (*model.Vehicle, error) {
	var (
		v     model.Vehicle
		year  sql.NullInt64
		plate sql.NullString
	)
	if err := row.Scan(&v.ID, &v.OrgID, &v.CustomerID, &v.Make, &v.Model, &year, &plate, &v.CreatedAt); err != nil {
		return nil, err
	}
	if year.Valid {
		y := int(year.Int64)
		v.Year = &y
	}
	v.PlateNumber = stringPtr(plate)
	return &v, nil
}

// FindOrCreateVehicle matches on (org, plate). Vehicles without a plate
// are always inserted.
func (r *CustomerRepository) FindOrCreateVehicle(ctx context.Context, v *model.Vehicle) (*model.Vehicle, error) {
	if v.PlateNumber != nil {
		query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE org_id = $1 AND plate_number = $2`
		existing, err := scanVehicle(getDB(ctx, r.DB).QueryRowContext(ctx, query, v.OrgID, *v.PlateNumber))
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	v.CreatedAt = time.Now().UTC()
	var year any
	if v.Year != nil {
		year = *v.Year
	}
	query := `
		INSERT INTO vehicles (org_id, customer_id, make, model, year, plate_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	if err := getDB(ctx, r.DB).QueryRowContext(ctx, query,
		v.OrgID, v.CustomerID, v.Make, v.Model, year, nullString(v.PlateNumber), v.CreatedAt,
	).Scan(&v.ID); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *CustomerRepository) GetVehicle(ctx context.Context, id int64) (*model.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1`
	v, err := scanVehicle(getDB(ctx, r.DB).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}
