package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
)

// ParticipantsSchema creates the tables used by STORAGE_DRIVER=postgres.
// Same shape as the managed backend's tables.
const ParticipantsSchema = `
CREATE TABLE IF NOT EXISTS users (
	id       UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	username TEXT UNIQUE NOT NULL,
	email    TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS participants (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	no            SERIAL,
	nik           CHAR(16) NOT NULL,
	name          TEXT NOT NULL,
	date_of_birth DATE NOT NULL,
	address       TEXT,
	bb            NUMERIC,
	tb            NUMERIC,
	lila          NUMERIC,
	gds           NUMERIC,
	au            TEXT,
	immunization  TEXT,
	lp            NUMERIC,
	td            TEXT,
	hb            NUMERIC,
	chol          NUMERIC,
	custom_fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ,
	user_id       UUID
);

CREATE INDEX IF NOT EXISTS idx_participants_created_at ON participants (created_at DESC);
`

// EnsureSchema 初始化表结构（幂等）
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, ParticipantsSchema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// PostgresParticipantsRepository 参与者Repository实现（直连 PostgreSQL）
type PostgresParticipantsRepository struct {
	db *sql.DB
}

// NewPostgresParticipantsRepository 创建参与者Repository
func NewPostgresParticipantsRepository(db *sql.DB) *PostgresParticipantsRepository {
	return &PostgresParticipantsRepository{db: db}
}

// 确保实现了接口
var _ ParticipantsRepository = (*PostgresParticipantsRepository)(nil)

// List 查询全部参与者（created_at 倒序）
func (r *PostgresParticipantsRepository) List(ctx context.Context) ([]*domain.Participant, error) {
	query := `
		SELECT
			id::text,
			no,
			nik,
			name,
			date_of_birth,
			address,
			bb, tb, lila, gds,
			au,
			immunization,
			lp,
			td,
			hb, chol,
			custom_fields,
			created_at,
			updated_at,
			user_id::text
		FROM participants
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	out := []*domain.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return out, nil
}

func scanParticipant(rows *sql.Rows) (*domain.Participant, error) {
	var (
		p                             domain.Participant
		dob                           sql.NullTime
		address, au, immunization, td sql.NullString
		bb, tb, lila, gds, lp, hb     sql.NullFloat64
		chol                          sql.NullFloat64
		custom                        []byte
		updatedAt                     sql.NullTime
		userID                        sql.NullString
	)
	if err := rows.Scan(
		&p.ID,
		&p.No,
		&p.NIK,
		&p.Name,
		&dob,
		&address,
		&bb, &tb, &lila, &gds,
		&au,
		&immunization,
		&lp,
		&td,
		&hb, &chol,
		&custom,
		&p.CreatedAt,
		&updatedAt,
		&userID,
	); err != nil {
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}

	if dob.Valid {
		p.DateOfBirth = domain.NewDate(dob.Time)
	}
	p.Address = address.String
	p.AU = au.String
	p.Immunization = immunization.String
	p.TD = td.String
	p.BB, p.TB, p.LILA, p.GDS = bb.Float64, tb.Float64, lila.Float64, gds.Float64
	p.LP, p.HB, p.Chol = lp.Float64, hb.Float64, chol.Float64
	if updatedAt.Valid {
		p.UpdatedAt = updatedAt.Time
	}
	p.UserID = userID.String

	// JSONB 字段在驱动中返回 []byte
	if len(custom) > 0 {
		if err := json.Unmarshal(custom, &p.CustomFields); err != nil {
			return nil, fmt.Errorf("failed to decode custom_fields of participant %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func customFieldsJSON(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode custom_fields: %w", err)
	}
	return string(b), nil
}

// Insert 创建参与者（no 由 SERIAL 生成）
func (r *PostgresParticipantsRepository) Insert(ctx context.Context, f domain.ParticipantFields, ownerID string) error {
	custom, err := customFieldsJSON(f.CustomFields)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO participants (
			nik, name, date_of_birth, address,
			bb, tb, lila, gds, au, immunization, lp, td, hb, chol,
			custom_fields, user_id
		) VALUES (
			$1, $2, $3::date, $4,
			$5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15::jsonb, NULLIF($16, '')::uuid
		)
	`
	_, err = r.db.ExecContext(ctx, query,
		f.NIK, f.Name, f.DateOfBirth.String(), f.Address,
		f.BB, f.TB, f.LILA, f.GDS, f.AU, f.Immunization, f.LP, f.TD, f.HB, f.Chol,
		custom, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

// Update 更新参与者可写字段
func (r *PostgresParticipantsRepository) Update(ctx context.Context, id string, f domain.ParticipantFields) error {
	custom, err := customFieldsJSON(f.CustomFields)
	if err != nil {
		return err
	}
	query := `
		UPDATE participants SET
			nik = $2,
			name = $3,
			date_of_birth = $4::date,
			address = $5,
			bb = $6, tb = $7, lila = $8, gds = $9,
			au = $10,
			immunization = $11,
			lp = $12,
			td = $13,
			hb = $14, chol = $15,
			custom_fields = $16::jsonb,
			updated_at = NOW()
		WHERE id::text = $1
	`
	res, err := r.db.ExecContext(ctx, query, id,
		f.NIK, f.Name, f.DateOfBirth.String(), f.Address,
		f.BB, f.TB, f.LILA, f.GDS, f.AU, f.Immunization, f.LP, f.TD, f.HB, f.Chol,
		custom,
	)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	return requireAffected(res)
}

// Delete 删除参与者
func (r *PostgresParticipantsRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE id::text = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// PostgresUserDirectory 用户名 -> 邮箱（users 表）
type PostgresUserDirectory struct {
	db *sql.DB
}

func NewPostgresUserDirectory(db *sql.DB) *PostgresUserDirectory {
	return &PostgresUserDirectory{db: db}
}

var _ UserDirectory = (*PostgresUserDirectory)(nil)

func (r *PostgresUserDirectory) LookupEmailByUsername(ctx context.Context, username string) (string, bool, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `SELECT email FROM users WHERE username = $1 LIMIT 1`, username).Scan(&email)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to look up username: %w", err)
	}
	return email, true, nil
}
