package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"safehaven/models"
)

// SQLite is the file-backed alternative to the Mongo backend, for
// single-file deployments. Identifiers are UUID strings.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	createTables := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS patients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		age TEXT NOT NULL,
		condition TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(createTables); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)",
		user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return models.User{}, ErrDuplicateUsername
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *SQLite) UserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *SQLite) CreatePatient(ctx context.Context, p models.Patient) (models.Patient, error) {
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO patients (id, name, age, condition, created_at) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.Name, p.Age, p.Condition, p.CreatedAt)
	if err != nil {
		return models.Patient{}, err
	}
	return p, nil
}

func (s *SQLite) Patients(ctx context.Context) ([]models.Patient, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, age, condition, created_at FROM patients ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		var p models.Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.Age, &p.Condition, &p.CreatedAt); err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func (s *SQLite) PatientByID(ctx context.Context, id string) (models.Patient, error) {
	var p models.Patient
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, age, condition, created_at FROM patients WHERE id = ?", id).
		Scan(&p.ID, &p.Name, &p.Age, &p.Condition, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Patient{}, ErrNotFound
	}
	if err != nil {
		return models.Patient{}, err
	}
	return p, nil
}

func (s *SQLite) UpdatePatient(ctx context.Context, id, name, age, condition string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE patients SET name = ?, age = ?, condition = ? WHERE id = ?",
		name, age, condition, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) DeletePatient(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM patients WHERE id = ?", id)
	return err
}

func (s *SQLite) Close(ctx context.Context) error {
	return s.db.Close()
}
