package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"safehaven/models"
)

// Memory implements Store entirely in process. Handler tests run against it.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]models.User // keyed by username
	patients []models.Patient
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]models.User)}
}

func (m *Memory) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[username]; exists {
		return models.User{}, ErrDuplicateUsername
	}
	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.users[username] = user
	return user, nil
}

func (m *Memory) UserByUsername(ctx context.Context, username string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[username]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

func (m *Memory) CreatePatient(ctx context.Context, p models.Patient) (models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	m.patients = append(m.patients, p)
	return p, nil
}

func (m *Memory) Patients(ctx context.Context) ([]models.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Patient, len(m.patients))
	copy(out, m.patients)
	return out, nil
}

func (m *Memory) PatientByID(ctx context.Context, id string) (models.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.patients {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Patient{}, ErrNotFound
}

func (m *Memory) UpdatePatient(ctx context.Context, id, name, age, condition string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.patients {
		if m.patients[i].ID == id {
			m.patients[i].Name = name
			m.patients[i].Age = age
			m.patients[i].Condition = condition
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) DeletePatient(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.patients {
		if m.patients[i].ID == id {
			m.patients = append(m.patients[:i], m.patients[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) Close(ctx context.Context) error {
	return nil
}
