// Package repository реализует хранилище данных на основе PostgreSQL
// для матчей, результатов, пользователей, кандидатов и журнала
// использования. Раскрытие матча выполняется одной транзакцией с
// compare-and-swap по статусу, чтобы два конкурентных запроса не могли
// списать кредиты дважды.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Типизированные ошибки хранилища, которые пробрасываются до HTTP-границы.
var (
	// ErrNotFound — запись не найдена или не принадлежит пользователю.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRevealed — матч уже раскрыт; повторное раскрытие не списывает кредиты.
	ErrAlreadyRevealed = errors.New("match already revealed")
	// ErrInsufficientCredits — на балансе не хватает кредитов для списания.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL и проверяет его доступность.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}
