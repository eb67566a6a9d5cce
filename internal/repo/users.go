package repo

import (
	"context"
	"database/sql"

	"shelter/internal/domain"
)

const userColumns = `id,username,role,has_experience,has_other_pets,ready_for_pet,created_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Role, &u.HasExperience, &u.HasOtherPets, &u.ReadyForPet, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.exec(ctx, tx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.Username, u.Role, u.HasExperience, u.HasOtherPets, u.ReadyForPet, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.queryRow(ctx, nil, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.queryRow(ctx, nil, `SELECT `+userColumns+` FROM users WHERE username=?`, username))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.query(ctx, nil, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.queryRow(ctx, nil, `SELECT COUNT(*) FROM users WHERE role=?`, domain.RoleAdmin).Scan(&n)
	return n, err
}

func (r Repo) DeleteUser(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.exec(ctx, tx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
