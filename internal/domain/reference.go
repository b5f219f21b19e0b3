package domain

import "time"

// ProblemType is a static reference entity seeded at startup.
type ProblemType struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// DefaultProblemTypes is the fixed catalog seeded when the schema is created.
var DefaultProblemTypes = []string{
	"компьютер",
	"принтер",
	"проектор",
	"интернет",
	"электронный дневник",
	"интерактивная панель",
	"авторизация в пк",
	"авторизация в школьных сервисах",
}

// Cabinet is a room reference entry; users add missing numbers themselves.
type Cabinet struct {
	ID        int64
	Number    string
	AddedBy   int64
	CreatedAt time.Time
}
