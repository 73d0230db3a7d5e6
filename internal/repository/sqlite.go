package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database and applies migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	// Every connection to an in-memory database is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate database")
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			requested_count INTEGER NOT NULL DEFAULT 0,
			request TEXT,
			error TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at)`,
		`CREATE TABLE IF NOT EXISTS questions (
			question_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			question_type TEXT NOT NULL,
			difficulty TEXT,
			question_text TEXT NOT NULL,
			options TEXT,
			correct_answer TEXT,
			explanation TEXT,
			blooms_level TEXT,
			points INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_session ON questions(session_id, position)`,
		`CREATE TABLE IF NOT EXISTS materials (
			material_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return errors.Wrapf(err, "migration failed\n%s", m)
		}
	}

	// Columns added after the first release.
	return s.ensureColumn("questions", "blooms_level", "ALTER TABLE questions ADD COLUMN blooms_level TEXT")
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession stores a new session together with the request that started it.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session, req *domain.GenerateRequest) error {
	var request sql.NullString
	requested := 0
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		request = sql.NullString{String: string(b), Valid: true}
		requested = req.QuestionCount
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, prompt, status, requested_count, request, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.Prompt, session.Status, requested, request, session.CreatedAt)
	return errors.Wrap(err, "insert session")
}

// GetSession retrieves a session with its questions in generation order.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, prompt, status, created_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.Prompt, &session.Status, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get session")
	}

	questions, err := s.listQuestions(ctx, `WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	session.Questions = questions[sessionID]
	if session.Questions == nil {
		session.Questions = []*domain.Question{}
	}
	session.Recount()
	return &session, nil
}

// ListSessionsWithQuestions returns sessions newest first, each embedding its
// questions. A non-positive limit returns every session.
func (s *SQLiteStore) ListSessionsWithQuestions(ctx context.Context, limit int) ([]domain.Session, error) {
	query := `SELECT session_id, prompt, status, created_at FROM sessions ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	defer rows.Close()

	sessions := []domain.Session{}
	var ids []any
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(&session.SessionID, &session.Prompt, &session.Status, &session.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		sessions = append(sessions, session)
		ids = append(ids, session.SessionID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return sessions, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	questions, err := s.listQuestions(ctx, `WHERE session_id IN (`+placeholders+`)`, ids...)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Questions = questions[sessions[i].SessionID]
		if sessions[i].Questions == nil {
			sessions[i].Questions = []*domain.Question{}
		}
		sessions[i].Recount()
	}
	return sessions, nil
}

const questionColumns = `question_id, session_id, question_type, difficulty, question_text, options, correct_answer, explanation, blooms_level, points, status, created_at`

func (s *SQLiteStore) listQuestions(ctx context.Context, where string, args ...any) (map[string][]*domain.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions `+where+` ORDER BY session_id, position`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list questions")
	}
	defer rows.Close()

	out := make(map[string][]*domain.Question)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out[q.SessionID] = append(out[q.SessionID], q)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*domain.Question, error) {
	var q domain.Question
	var difficulty, options, answer, explanation, blooms sql.NullString
	if err := row.Scan(&q.QuestionID, &q.SessionID, &q.Type, &difficulty, &q.Text, &options,
		&answer, &explanation, &blooms, &q.Points, &q.Status, &q.CreatedAt); err != nil {
		return nil, err
	}
	q.Difficulty = domain.Difficulty(difficulty.String)
	q.CorrectAnswer = answer.String
	q.Explanation = explanation.String
	q.BloomsLevel = blooms.String
	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &q.Options); err != nil {
			return nil, errors.Wrapf(err, "decode options of %s", q.QuestionID)
		}
	}
	return &q, nil
}

// UpdateSessionStatus records a session's status. Terminal statuses also
// stamp the completion time.
func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus, errMsg string) error {
	var completedAt sql.NullTime
	if status.Terminal() {
		completedAt = sql.NullTime{Time: time.Now(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, error = ?, completed_at = COALESCE(?, completed_at) WHERE session_id = ?`,
		status, nullString(errMsg), completedAt, sessionID)
	return errors.Wrap(err, "update session status")
}

// DeleteSession removes a session; its questions go with it.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return false, errors.Wrap(err, "delete session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AppendQuestion stores a question after the session's existing ones.
func (s *SQLiteStore) AppendQuestion(ctx context.Context, q *domain.Question) error {
	options, err := marshalOptions(q.Options)
	if err != nil {
		return err
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	if q.Status == "" {
		q.Status = domain.QuestionStatusPending
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions (question_id, session_id, position, question_type, difficulty, question_text, options, correct_answer, explanation, blooms_level, points, status, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM questions WHERE session_id = ?), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.QuestionID, q.SessionID, q.SessionID, q.Type, nullString(string(q.Difficulty)), q.Text, options,
		nullString(q.CorrectAnswer), nullString(q.Explanation), nullString(q.BloomsLevel), q.Points, q.Status, q.CreatedAt)
	return errors.Wrap(err, "insert question")
}

// GetQuestion retrieves one question of a session.
func (s *SQLiteStore) GetQuestion(ctx context.Context, sessionID, questionID string) (*domain.Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE session_id = ? AND question_id = ?`,
		sessionID, questionID)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get question")
	}
	return q, nil
}

// UpdateQuestionStatus moves a pending question to status. It returns
// ErrStatusConflict when the question is no longer pending.
func (s *SQLiteStore) UpdateQuestionStatus(ctx context.Context, sessionID, questionID string, status domain.QuestionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET status = ?, updated_at = ? WHERE session_id = ? AND question_id = ? AND status = ?`,
		status, time.Now(), sessionID, questionID, domain.QuestionStatusPending)
	if err != nil {
		return errors.Wrap(err, "update question status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

// UpdateQuestion saves the editable fields of a question. Status is left alone.
func (s *SQLiteStore) UpdateQuestion(ctx context.Context, q *domain.Question) error {
	options, err := marshalOptions(q.Options)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET question_type = ?, difficulty = ?, question_text = ?, options = ?, correct_answer = ?, explanation = ?, updated_at = ?
		WHERE session_id = ? AND question_id = ?`,
		q.Type, nullString(string(q.Difficulty)), q.Text, options, nullString(q.CorrectAnswer),
		nullString(q.Explanation), time.Now(), q.SessionID, q.QuestionID)
	if err != nil {
		return errors.Wrap(err, "update question")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

// CreateMaterial stores a material, replacing one with the same id.
func (s *SQLiteStore) CreateMaterial(ctx context.Context, m *domain.Material) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO materials (material_id, title, content, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(material_id) DO UPDATE SET title = excluded.title, content = excluded.content`,
		m.MaterialID, m.Title, m.Content, m.CreatedAt)
	return errors.Wrap(err, "insert material")
}

// GetMaterial retrieves a material by ID.
func (s *SQLiteStore) GetMaterial(ctx context.Context, materialID string) (*domain.Material, error) {
	var m domain.Material
	err := s.db.QueryRowContext(ctx,
		`SELECT material_id, title, content, created_at FROM materials WHERE material_id = ?`,
		materialID).Scan(&m.MaterialID, &m.Title, &m.Content, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get material")
	}
	return &m, nil
}

func marshalOptions(options []string) (sql.NullString, error) {
	if len(options) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(options)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "marshal options")
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
