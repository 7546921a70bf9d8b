package models

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Patient struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Age       string    `json:"age"` // kept as submitted text
	Condition string    `json:"condition"`
	CreatedAt time.Time `json:"created_at"`
}
