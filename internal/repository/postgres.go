package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/itsupport/helpdesk/internal/domain"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns the PostgreSQL-backed implementation.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) Init(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			login VARCHAR(100) UNIQUE NOT NULL,
			full_name VARCHAR(200),
			ldap_groups TEXT[],
			role VARCHAR(50) DEFAULT 'user',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS problem_types (
			id SERIAL PRIMARY KEY,
			name VARCHAR(100) UNIQUE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS cabinets (
			id SERIAL PRIMARY KEY,
			number VARCHAR(20) UNIQUE NOT NULL,
			added_by INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_contacts (
			id SERIAL PRIMARY KEY,
			user_id INTEGER UNIQUE,
			phone VARCHAR(50),
			email VARCHAR(100),
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id SERIAL PRIMARY KEY,
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
			files TEXT[]
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	for _, name := range domain.DefaultProblemTypes {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO problem_types (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("seed problem types: %w", err)
		}
	}
	return nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *postgresStore) Close() {
	s.pool.Close()
}

func (s *postgresStore) UpsertUser(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (login, full_name, ldap_groups, role)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (login) DO UPDATE SET
            full_name = EXCLUDED.full_name,
            ldap_groups = EXCLUDED.ldap_groups,
            role = EXCLUDED.role,
            updated_at = CURRENT_TIMESTAMP
        RETURNING id, created_at, updated_at`
	return s.pool.QueryRow(ctx, query,
		user.Login,
		user.FullName,
		user.Groups,
		user.Role,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

const pgUserColumns = `id, login, full_name, ldap_groups, role, created_at, updated_at`

func (s *postgresStore) GetUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	return s.fetchUser(ctx, `SELECT `+pgUserColumns+` FROM users WHERE login=$1`, login)
}

func (s *postgresStore) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.fetchUser(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id=$1`, id)
}

func (s *postgresStore) fetchUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var (
		user     domain.User
		fullName sql.NullString
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Login,
		&fullName,
		&user.Groups,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.FullName = fullName.String
	return &user, nil
}

func (s *postgresStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgUserColumns+` FROM users ORDER BY login`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var (
			user     domain.User
			fullName sql.NullString
		)
		if err := rows.Scan(
			&user.ID,
			&user.Login,
			&fullName,
			&user.Groups,
			&user.Role,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		user.FullName = fullName.String
		result = append(result, user)
	}
	return result, rows.Err()
}

func (s *postgresStore) GetContact(ctx context.Context, userID int64) (*domain.Contact, error) {
	var (
		contact      domain.Contact
		phone, email sql.NullString
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, phone, email, updated_at FROM user_contacts WHERE user_id=$1`, userID,
	).Scan(&contact.ID, &contact.UserID, &phone, &email, &contact.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	contact.Phone = phone.String
	contact.Email = email.String
	return &contact, nil
}

func (s *postgresStore) UpsertContact(ctx context.Context, userID int64, phone, email string) error {
	const query = `
        INSERT INTO user_contacts (user_id, phone, email)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE SET
            phone = EXCLUDED.phone,
            email = EXCLUDED.email,
            updated_at = CURRENT_TIMESTAMP`
	_, err := s.pool.Exec(ctx, query, userID, phone, email)
	return err
}

func (s *postgresStore) ListProblemTypes(ctx context.Context) ([]domain.ProblemType, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM problem_types ORDER BY name`)
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

func (s *postgresStore) ListCabinets(ctx context.Context) ([]domain.Cabinet, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, number, COALESCE(added_by, 0), created_at FROM cabinets ORDER BY number`)
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

func (s *postgresStore) AddCabinet(ctx context.Context, number string, addedBy int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cabinets (number, added_by) VALUES ($1, $2) ON CONFLICT (number) DO NOTHING`,
		number, addedBy)
	return err
}

func (s *postgresStore) CreateTicket(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (user_id, problem_type_id, cabinet, phone, email, description, comments, status, files)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at`
	files := ticket.Files
	if files == nil {
		files = []string{}
	}
	return s.pool.QueryRow(ctx, query,
		ticket.UserID,
		ticket.ProblemTypeID,
		ticket.Cabinet,
		nullable(ticket.Phone),
		nullable(ticket.Email),
		ticket.Description,
		nullable(ticket.Comments),
		ticket.Status,
		files,
	).Scan(&ticket.ID, &ticket.CreatedAt)
}

const pgTicketColumns = `
    t.id, t.user_id, t.problem_type_id, t.cabinet, t.phone, t.email,
    t.description, t.comments, t.status, t.main_executor, t.executor, t.files,
    t.created_at, t.assigned_at, t.in_progress_at, t.completed_at, t.archived_at,
    p.name, u.login, u.full_name`

const pgTicketJoins = `
    FROM tickets t
    LEFT JOIN problem_types p ON t.problem_type_id = p.id
    LEFT JOIN users u ON t.user_id = u.id`

func (s *postgresStore) GetTicket(ctx context.Context, id int64) (*domain.TicketDetails, error) {
	query := `SELECT` + pgTicketColumns + `,
        u.ldap_groups, uc.phone, uc.email` + pgTicketJoins + `
    LEFT JOIN user_contacts uc ON t.user_id = uc.user_id
    WHERE t.id=$1`

	row := s.pool.QueryRow(ctx, query, id)
	var (
		details                    domain.TicketDetails
		contactPhone, contactEmail sql.NullString
	)
	scanFields, assign := pgTicketScanTargets(&details)
	scanFields = append(scanFields, &details.UserGroups, &contactPhone, &contactEmail)
	if err := row.Scan(scanFields...); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	assign()
	details.ContactPhone = contactPhone.String
	details.ContactEmail = contactEmail.String
	return &details, nil
}

func (s *postgresStore) ListUserTickets(ctx context.Context, userID int64) ([]domain.TicketDetails, error) {
	query := `SELECT` + pgTicketColumns + pgTicketJoins + `
        WHERE t.user_id=$1 AND t.status != 'архив'
        ORDER BY t.created_at DESC`
	return s.queryTickets(ctx, query, userID)
}

func (s *postgresStore) ListTickets(ctx context.Context, limit, offset int) ([]domain.TicketDetails, error) {
	query := `SELECT` + pgTicketColumns + pgTicketJoins + `
        WHERE t.status != 'архив'
        ORDER BY t.created_at DESC`
	if limit > 0 {
		return s.queryTickets(ctx, query+` LIMIT $1 OFFSET $2`, limit, offset)
	}
	return s.queryTickets(ctx, query)
}

func (s *postgresStore) CountTickets(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE status != 'архив'`).Scan(&count)
	return count, err
}

func (s *postgresStore) SetStatus(ctx context.Context, id int64, status domain.TicketStatus, at time.Time) error {
	query := `UPDATE tickets SET status=$1 WHERE id=$2`
	args := []any{status, id}
	if col := status.TimestampColumn(); col != "" {
		query = fmt.Sprintf(`UPDATE tickets SET status=$1, %s=COALESCE(%s, $2) WHERE id=$3`, col, col)
		args = []any{status, at, id}
	}
	cmd, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *postgresStore) UpdateTicket(ctx context.Context, id int64, update TicketUpdate) error {
	if update.Empty() {
		return nil
	}
	clauses := []string{}
	args := []any{}
	if update.Description != nil {
		args = append(args, *update.Description)
		clauses = append(clauses, fmt.Sprintf("description=$%d", len(args)))
	}
	if update.Comments != nil {
		args = append(args, *update.Comments)
		clauses = append(clauses, fmt.Sprintf("comments=$%d", len(args)))
	}
	if update.MainExecutor != nil {
		args = append(args, *update.MainExecutor)
		clauses = append(clauses, fmt.Sprintf("main_executor=$%d", len(args)))
	}
	if update.Executor != nil {
		args = append(args, *update.Executor)
		clauses = append(clauses, fmt.Sprintf("executor=$%d", len(args)))
	}
	if update.AssignedAt != nil {
		args = append(args, *update.AssignedAt)
		clauses = append(clauses, fmt.Sprintf("assigned_at=COALESCE(assigned_at, $%d)", len(args)))
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE id=$%d`, strings.Join(clauses, ", "), len(args))

	cmd, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *postgresStore) UpdateTicketFiles(ctx context.Context, id int64, files []string) error {
	if files == nil {
		files = []string{}
	}
	cmd, err := s.pool.Exec(ctx, `UPDATE tickets SET files=$1 WHERE id=$2`, files, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *postgresStore) AppendComment(ctx context.Context, id int64, entry string) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE tickets SET comments = COALESCE(comments, '') || $1 WHERE id=$2`, entry, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *postgresStore) SearchTickets(ctx context.Context, filter SearchFilter) ([]domain.TicketDetails, error) {
	clauses := []string{`t.status != 'архив'`}
	args := []any{}

	if term := strings.TrimSpace(filter.Term); term != "" {
		args = append(args, "%"+term+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(t.description ILIKE %s OR t.cabinet ILIKE %s OR t.comments ILIKE %s OR u.full_name ILIKE %s)",
			placeholder, placeholder, placeholder, placeholder))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("t.user_id=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("t.status=$%d", len(args)))
	}
	if filter.StartDate != "" {
		args = append(args, filter.StartDate)
		clauses = append(clauses, fmt.Sprintf("DATE(t.created_at) >= $%d", len(args)))
	}
	if filter.EndDate != "" {
		args = append(args, filter.EndDate)
		clauses = append(clauses, fmt.Sprintf("DATE(t.created_at) <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT%s%s WHERE %s ORDER BY t.created_at DESC LIMIT %d`,
		pgTicketColumns, pgTicketJoins, strings.Join(clauses, " AND "), limit)
	return s.queryTickets(ctx, query, args...)
}

func (s *postgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: []StatusCount{}, ByType: []TypeCount{}}

	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE status != 'архив'`).Scan(&stats.TotalTickets); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
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

	rows, err = s.pool.Query(ctx, `
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

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.UserCount); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *postgresStore) queryTickets(ctx context.Context, query string, args ...any) ([]domain.TicketDetails, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketDetails
	for rows.Next() {
		var details domain.TicketDetails
		scanFields, assign := pgTicketScanTargets(&details)
		if err := rows.Scan(scanFields...); err != nil {
			return nil, err
		}
		assign()
		result = append(result, details)
	}
	return result, rows.Err()
}

// pgTicketScanTargets returns scan destinations for pgTicketColumns plus an
// assign closure copying nullable columns into the details struct.
func pgTicketScanTargets(details *domain.TicketDetails) ([]any, func()) {
	nullables := &struct {
		phone, email, comments     sql.NullString
		mainExecutor, executor     sql.NullString
		problemType, login, funame sql.NullString
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
		&details.Files,
		&details.CreatedAt,
		&details.AssignedAt,
		&details.InProgressAt,
		&details.CompletedAt,
		&details.ArchivedAt,
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
		details.ProblemTypeName = nullables.problemType.String
		details.UserLogin = nullables.login.String
		details.UserFullName = nullables.funame.String
	}
	return fields, assign
}

func nullable(val string) any {
	if val == "" {
		return nil
	}
	return val
}
