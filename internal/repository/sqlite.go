package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/itsupport/helpdesk/internal/domain"
)

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns the SQLite-backed implementation. Ordered lists
// (files, ldap groups) are stored as JSON text and decoded at this boundary.
func NewSQLiteStore(db *sql.DB) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) Init(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			login VARCHAR(100) UNIQUE NOT NULL,
			full_name VARCHAR(200),
			ldap_groups TEXT,
			role VARCHAR(50) DEFAULT 'user',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS problem_types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name VARCHAR(100) UNIQUE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS cabinets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			number VARCHAR(20) UNIQUE NOT NULL,
			added_by INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER UNIQUE,
			phone VARCHAR(50),
			email VARCHAR(100),
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER,
			problem_type_id INTEGER,
			cabinet VARCHAR(50) NOT NULL,
			phone VARCHAR(50),
			email VARCHAR(100),
			description TEXT NOT NULL,
			comments TEXT,
			status VARCHAR(50) DEFAULT 'открыта',
			main_executor VARCHAR(100),
			executor VARCHAR(100),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			assigned_at TIMESTAMP,
			in_progress_at TIMESTAMP,
			completed_at TIMESTAMP,
			archived_at TIMESTAMP,
			files TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	for _, name := range domain.DefaultProblemTypes {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO problem_types (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("seed problem types: %w", err)
		}
	}
	return nil
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() {
	_ = s.db.Close()
}

func (s *sqliteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (login, full_name, ldap_groups, role)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(login) DO UPDATE SET
            full_name = excluded.full_name,
            ldap_groups = excluded.ldap_groups,
            role = excluded.role,
            updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, query,
		user.Login, user.FullName, encodeList(user.Groups), user.Role); err != nil {
		return err
	}

	stored, err := s.GetUserByLogin(ctx, user.Login)
	if err != nil {
		return err
	}
	if stored == nil {
		return sql.ErrNoRows
	}
	*user = *stored
	return nil
}

const sqliteUserColumns = `id, login, full_name, ldap_groups, role, created_at, updated_at`

func (s *sqliteStore) GetUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	return s.fetchUser(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE login=?`, login)
}

func (s *sqliteStore) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.fetchUser(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id=?`, id)
}

func (s *sqliteStore) fetchUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *sqliteStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteUserColumns+` FROM users ORDER BY login`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user             domain.User
		fullName, groups sql.NullString
	)
	if err := row.Scan(
		&user.ID,
		&user.Login,
		&fullName,
		&groups,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.FullName = fullName.String
	user.Groups = decodeList(groups)
	return &user, nil
}

func (s *sqliteStore) GetContact(ctx context.Context, userID int64) (*domain.Contact, error) {
	var (
		contact      domain.Contact
		phone, email sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, phone, email, updated_at FROM user_contacts WHERE user_id=?`, userID,
	).Scan(&contact.ID, &contact.UserID, &phone, &email, &contact.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	contact.Phone = phone.String
	contact.Email = email.String
	return &contact, nil
}

func (s *sqliteStore) UpsertContact(ctx context.Context, userID int64, phone, email string) error {
	const query = `
        INSERT INTO user_contacts (user_id, phone, email)
        VALUES (?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET
            phone = excluded.phone,
            email = excluded.email,
            updated_at = CURRENT_TIMESTAMP`
	_, err := s.db.ExecContext(ctx, query, userID, phone, email)
	return err
}

func (s *sqliteStore) ListProblemTypes(ctx context.Context) ([]domain.ProblemType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM problem_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ProblemType
	for rows.Next() {
		var pt domain.ProblemType
		if err := rows.Scan(&pt.ID, &pt.Name, &pt.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, pt)
	}
	return result, rows.Err()
}

func (s *sqliteStore) ListCabinets(ctx context.Context) ([]domain.Cabinet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, number, COALESCE(added_by, 0), created_at FROM cabinets ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Cabinet
	for rows.Next() {
		var cab domain.Cabinet
		if err := rows.Scan(&cab.ID, &cab.Number, &cab.AddedBy, &cab.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, cab)
	}
	return result, rows.Err()
}

func (s *sqliteStore) AddCabinet(ctx context.Context, number string, addedBy int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cabinets (number, added_by) VALUES (?, ?)`, number, addedBy)
	return err
}

func (s *sqliteStore) CreateTicket(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (user_id, problem_type_id, cabinet, phone, email, description, comments, status, files)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query,
		ticket.UserID,
		ticket.ProblemTypeID,
		ticket.Cabinet,
		nullable(ticket.Phone),
		nullable(ticket.Email),
		ticket.Description,
		nullable(ticket.Comments),
		ticket.Status,
		encodeList(ticket.Files),
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	ticket.ID = id
	return s.db.QueryRowContext(ctx,
		`SELECT created_at FROM tickets WHERE id=?`, id).Scan(&ticket.CreatedAt)
}

const sqliteTicketColumns = `
    t.id, t.user_id, t.problem_type_id, t.cabinet, t.phone, t.email,
    t.description, t.comments, t.status, t.main_executor, t.executor, t.files,
    t.created_at, t.assigned_at, t.in_progress_at, t.completed_at, t.archived_at,
    p.name, u.login, u.full_name`

const sqliteTicketJoins = `
    FROM tickets t
    LEFT JOIN problem_types p ON t.problem_type_id = p.id
    LEFT JOIN users u ON t.user_id = u.id`

func (s *sqliteStore) GetTicket(ctx context.Context, id int64) (*domain.TicketDetails, error) {
	query := `SELECT` + sqliteTicketColumns + `,
        u.ldap_groups, uc.phone, uc.email` + sqliteTicketJoins + `
    LEFT JOIN user_contacts uc ON t.user_id = uc.user_id
    WHERE t.id=?`

	var (
		details                            domain.TicketDetails
		groups, contactPhone, contactEmail sql.NullString
	)
	scanFields, assign := sqliteTicketScanTargets(&details)
	scanFields = append(scanFields, &groups, &contactPhone, &contactEmail)
	if err := s.db.QueryRowContext(ctx, query, id).Scan(scanFields...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	assign()
	details.UserGroups = decodeList(groups)
	details.ContactPhone = contactPhone.String
	details.ContactEmail = contactEmail.String
	return &details, nil
}

func (s *sqliteStore) ListUserTickets(ctx context.Context, userID int64) ([]domain.TicketDetails, error) {
	query := `SELECT` + sqliteTicketColumns + sqliteTicketJoins + `
        WHERE t.user_id=? AND t.status != 'архив'
        ORDER BY t.created_at DESC`
	return s.queryTickets(ctx, query, userID)
}

func (s *sqliteStore) ListTickets(ctx context.Context, limit, offset int) ([]domain.TicketDetails, error) {
	query := `SELECT` + sqliteTicketColumns + sqliteTicketJoins + `
        WHERE t.status != 'архив'
        ORDER BY t.created_at DESC`
	if limit > 0 {
		return s.queryTickets(ctx, query+` LIMIT ? OFFSET ?`, limit, offset)
	}
	return s.queryTickets(ctx, query)
}

func (s *sqliteStore) CountTickets(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE status != 'архив'`).Scan(&count)
	return count, err
}

func (s *sqliteStore) SetStatus(ctx context.Context, id int64, status domain.TicketStatus, at time.Time) error {
	query := `UPDATE tickets SET status=? WHERE id=?`
	args := []any{status, id}
	if col := status.TimestampColumn(); col != "" {
		query = fmt.Sprintf(`UPDATE tickets SET status=?, %s=COALESCE(%s, ?) WHERE id=?`, col, col)
		args = []any{status, at, id}
	}
	return s.execOne(ctx, query, args...)
}

func (s *sqliteStore) UpdateTicket(ctx context.Context, id int64, update TicketUpdate) error {
	if update.Empty() {
		return nil
	}
	clauses := []string{}
	args := []any{}
	if update.Description != nil {
		clauses = append(clauses, "description=?")
		args = append(args, *update.Description)
	}
	if update.Comments != nil {
		clauses = append(clauses, "comments=?")
		args = append(args, *update.Comments)
	}
	if update.MainExecutor != nil {
		clauses = append(clauses, "main_executor=?")
		args = append(args, *update.MainExecutor)
	}
	if update.Executor != nil {
		clauses = append(clauses, "executor=?")
		args = append(args, *update.Executor)
	}
	if update.AssignedAt != nil {
		clauses = append(clauses, "assigned_at=COALESCE(assigned_at, ?)")
		args = append(args, *update.AssignedAt)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE id=?`, strings.Join(clauses, ", "))
	return s.execOne(ctx, query, args...)
}

func (s *sqliteStore) UpdateTicketFiles(ctx context.Context, id int64, files []string) error {
	return s.execOne(ctx, `UPDATE tickets SET files=? WHERE id=?`, encodeList(files), id)
}

func (s *sqliteStore) AppendComment(ctx context.Context, id int64, entry string) error {
	return s.execOne(ctx,
		`UPDATE tickets SET comments = COALESCE(comments, '') || ? WHERE id=?`, entry, id)
}

func (s *sqliteStore) SearchTickets(ctx context.Context, filter SearchFilter) ([]domain.TicketDetails, error) {
	clauses := []string{`t.status != 'архив'`}
	args := []any{}

	if term := strings.TrimSpace(filter.Term); term != "" {
		like := "%" + term + "%"
		clauses = append(clauses,
			"(t.description LIKE ? OR t.cabinet LIKE ? OR t.comments LIKE ? OR u.full_name LIKE ?)")
		args = append(args, like, like, like, like)
	}
	if filter.UserID != nil {
		clauses = append(clauses, "t.user_id=?")
		args = append(args, *filter.UserID)
	}
	if filter.Status != nil {
		clauses = append(clauses, "t.status=?")
		args = append(args, *filter.Status)
	}
	if filter.StartDate != "" {
		clauses = append(clauses, "DATE(t.created_at) >= ?")
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		clauses = append(clauses, "DATE(t.created_at) <= ?")
		args = append(args, filter.EndDate)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT%s%s WHERE %s ORDER BY t.created_at DESC LIMIT %d`,
		sqliteTicketColumns, sqliteTicketJoins, strings.Join(clauses, " AND "), limit)
	return s.queryTickets(ctx, query, args...)
}

func (s *sqliteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: []StatusCount{}, ByType: []TypeCount{}}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE status != 'архив'`).Scan(&stats.TotalTickets); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT status, COUNT(*) FROM tickets
        WHERE status != 'архив'
        GROUP BY status ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByStatus = append(stats.ByStatus, sc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
        SELECT COALESCE(p.name, ''), COUNT(t.id) FROM tickets t
        LEFT JOIN problem_types p ON t.problem_type_id = p.id
        WHERE t.status != 'архив'
        GROUP BY p.name ORDER BY COUNT(t.id) DESC`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByType = append(stats.ByType, tc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.UserCount); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *sqliteStore) queryTickets(ctx context.Context, query string, args ...any) ([]domain.TicketDetails, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketDetails
	for rows.Next() {
		var details domain.TicketDetails
		scanFields, assign := sqliteTicketScanTargets(&details)
		if err := rows.Scan(scanFields...); err != nil {
			return nil, err
		}
		assign()
		result = append(result, details)
	}
	return result, rows.Err()
}

func (s *sqliteStore) execOne(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// sqliteTicketScanTargets mirrors pgTicketScanTargets for the text-encoded
// dialect: files arrive as JSON and nullable timestamps as NullTime.
func sqliteTicketScanTargets(details *domain.TicketDetails) ([]any, func()) {
	nullables := &struct {
		phone, email, comments        sql.NullString
		mainExecutor, executor, files sql.NullString
		problemType, login, funame    sql.NullString
		assigned, inProgress          sql.NullTime
		completed, archived           sql.NullTime
	}{}
	fields := []any{
		&details.ID,
		&details.UserID,
		&details.ProblemTypeID,
		&details.Cabinet,
		&nullables.phone,
		&nullables.email,
		&details.Description,
		&nullables.comments,
		&details.Status,
		&nullables.mainExecutor,
		&nullables.executor,
		&nullables.files,
		&details.CreatedAt,
		&nullables.assigned,
		&nullables.inProgress,
		&nullables.completed,
		&nullables.archived,
		&nullables.problemType,
		&nullables.login,
		&nullables.funame,
	}
	assign := func() {
		details.Phone = nullables.phone.String
		details.Email = nullables.email.String
		details.Comments = nullables.comments.String
		details.MainExecutor = nullables.mainExecutor.String
		details.Executor = nullables.executor.String
		details.Files = decodeList(nullables.files)
		details.AssignedAt = timePtr(nullables.assigned)
		details.InProgressAt = timePtr(nullables.inProgress)
		details.CompletedAt = timePtr(nullables.completed)
		details.ArchivedAt = timePtr(nullables.archived)
		details.ProblemTypeName = nullables.problemType.String
		details.UserLogin = nullables.login.String
		details.UserFullName = nullables.funame.String
	}
	return fields, assign
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time
	return &t
}

// encodeList serializes an ordered string list for a text column; empty lists
// are stored as NULL, matching historical rows.
func encodeList(values []string) any {
	if len(values) == 0 {
		return nil
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(payload)
}

func decodeList(val sql.NullString) []string {
	if !val.Valid || val.String == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(val.String), &values); err != nil {
		return nil
	}
	return values
}
