package db

import "time"

// Project is one construction project being accounted for.
type Project struct {
	ID        string
	Name      string
	Client    string
	Address   string
	Status    string
	Budget    float64
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Employee is a worker whose hours are logged against projects.
type Employee struct {
	ID         string
	Name       string
	Role       string
	Phone      string
	HourlyRate float64
	CreatedAt  time.Time
}

// Material is a purchased material booked to a project.
type Material struct {
	ID        string
	ProjectID string
	Name      string
	Quantity  float64
	Unit      string
	UnitPrice float64
	Supplier  string
	CreatedAt time.Time
}

// WorkLog records hours an employee worked on a project on a given day.
type WorkLog struct {
	ID         string
	ProjectID  string
	EmployeeID string
	WorkDate   string // YYYY-MM-DD
	Hours      float64
	Note       string
	CreatedAt  time.Time
}

// Payment is money in or out against a project.
type Payment struct {
	ID        string
	ProjectID string
	Amount    float64
	Direction string // "in" or "out"
	Method    string
	PaidAt    string // YYYY-MM-DD
	Note      string
	CreatedAt time.Time
}
