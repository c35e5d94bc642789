// internal/model/customer.go
package model

import "time"

type Customer struct {
	ID        int64     `db:"id" json:"id"`
	OrgID     int64     `db:"org_id" json:"org_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	PhoneE164 string    `db:"phone_e164" json:"phone_e164"`
	Email     *string   `db:"email" json:"email,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Vehicle struct {
	ID          int64     `db:"id" json:"id"`
	OrgID       int64     `db:"org_id" json:"org_id"`
	CustomerID  int64     `db:"customer_id" json:"customer_id"`
	Make        string    `db:"make" json:"make"`
	Model       string    `db:"model" json:"model"`
	Year        *int      `db:"year" json:"year,omitempty"`
	PlateNumber *string   `db:"plate_number" json:"plate_number,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
